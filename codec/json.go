package codec

import "encoding/json"

// Text codec, e.g. for talking to services written in other languages.
// Numbers decode into interface{} as float64 and byte slices travel as base64 strings.
type JSON struct{}

func (JSON) Name() string {
	return "json"
}

func (JSON) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
