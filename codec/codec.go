/*
Package codec contains the serializers used for argument, keyword-argument and result blobs.

Service and proxies have to use the same codec; the wire protocol does not carry the
codec name, so a mismatch shows up as SerializationError failures or garbled values.
*/
package codec

import (
	"errors"
	"fmt"
	"reflect"

	pb "github.com/gogo/protobuf/proto"
)

type Codec interface {
	Name() string
	Marshal(v interface{}) ([]byte, error)
	// v is a pointer to the destination. Decoding into *interface{} yields
	// generic values (int64, float64, string, []byte, []interface{}, map[string]interface{}, ...)
	Unmarshal(data []byte, v interface{}) error
}

// Used by services and proxies that don't set their own codec.
var Default Codec = Msgpack{}

// Look up a codec by its name, e.g. for command line flags.
func ByName(name string) (Codec, error) {
	switch name {
	case "msgpack", "":
		return Msgpack{}, nil
	case "json":
		return JSON{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// A failure to (de)serialize a value. It is reported to callers as a remote error of kind SerializationError.
type Error struct {
	Codec string
	Op    string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Codec, e.Op, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) ErrorKind() string {
	return "SerializationError"
}

/*
Marshal v with c, after replacing protocol buffer messages by their wire encoding.
Errors are returned as *Error.
*/
func Encode(c Codec, v interface{}) ([]byte, error) {
	v, err := prepare(v)

	if err != nil {
		return nil, &Error{Codec: c.Name(), Op: "marshal", Err: err}
	}

	b, err := c.Marshal(v)

	if err != nil {
		return nil, &Error{Codec: c.Name(), Op: "marshal", Err: err}
	}
	return b, nil
}

// Unmarshal data into v. Errors are returned as *Error.
func Decode(c Codec, data []byte, v interface{}) error {
	if err := c.Unmarshal(data, v); err != nil {
		return &Error{Codec: c.Name(), Op: "unmarshal", Err: err}
	}
	return nil
}

/*
Convert a generic value (as returned by decoding into *interface{}) into the typed destination v
by encoding and decoding it again with the same codec.
*/
func Convert(c Codec, generic interface{}, v interface{}) error {
	b, err := Encode(c, generic)

	if err != nil {
		return err
	}
	return Decode(c, b, v)
}

/*
Decode a value that was sent as a protocol buffer message (i.e. as its wire bytes) into msg.
*/
func ConvertProto(c Codec, generic interface{}, msg pb.Message) error {
	var raw []byte

	if b, ok := generic.([]byte); ok {
		raw = b
	} else if err := Convert(c, generic, &raw); err != nil {
		return err
	}

	if err := pb.Unmarshal(raw, msg); err != nil {
		return &Error{Codec: "protobuf", Op: "unmarshal", Err: err}
	}
	return nil
}

/*
An error carried as a value, e.g. as element of a result list. Kind is the ErrorKind() of
the original error if it has one, otherwise the name of its type.
*/
type ErrorValue struct {
	Kind    string
	Message string
}

func NewErrorValue(err error) ErrorValue {
	return ErrorValue{Kind: ErrorKind(err), Message: err.Error()}
}

func (e ErrorValue) Error() string {
	return e.Kind + ": " + e.Message
}

func (e ErrorValue) ErrorKind() string {
	return e.Kind
}

/*
The kind of err as reported to callers: the result of the ErrorKind() method of the first
error in its chain that has one, otherwise the name of its type (without pointers), e.g. "errorString".
*/
func ErrorKind(err error) string {
	var k interface{ ErrorKind() string }
	if errors.As(err, &k) && k.ErrorKind() != "" {
		return k.ErrorKind()
	}

	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.Name() == "" {
		return "Error"
	}
	return t.Name()
}

/*
Protocol buffer messages are carried as bytes and errors as ErrorValue, also inside argument
lists and keyword maps.
*/
func prepare(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case ErrorValue, *ErrorValue:
		return v, nil
	case pb.Message:
		return pb.Marshal(x)
	case error:
		return NewErrorValue(x), nil
	case []interface{}:
		if !needsPrepare(x...) {
			return v, nil
		}
		out := make([]interface{}, len(x))
		for i := range x {
			e, err := prepare(x[i])
			if err != nil {
				return nil, err
			}
			out[i] = e
		}
		return out, nil
	case map[string]interface{}:
		found := false
		for _, e := range x {
			if needsPrepare(e) {
				found = true
				break
			}
		}
		if !found {
			return v, nil
		}
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			p, err := prepare(e)
			if err != nil {
				return nil, err
			}
			out[k] = p
		}
		return out, nil
	default:
		return v, nil
	}
}

func needsPrepare(l ...interface{}) bool {
	for _, e := range l {
		switch e.(type) {
		case ErrorValue, *ErrorValue:
		case pb.Message, error, []interface{}, map[string]interface{}:
			return true
		}
	}
	return false
}
