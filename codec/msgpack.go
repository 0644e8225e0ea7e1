package codec

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// The default codec. Integers decode into interface{} as int64/uint64, floats as float64.
type Msgpack struct{}

func (Msgpack) Name() string {
	return "msgpack"
}

func (Msgpack) Marshal(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (Msgpack) Unmarshal(data []byte, v interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	return dec.Decode(v)
}
