package codec

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/gogo/protobuf/types"
)

type errorInfo struct {
	Kind, Message, Traceback string
}

var roundTripValues = []interface{}{
	nil,
	true,
	int64(-17),
	3.25,
	"hello",
	[]interface{}{"a", int64(1), []interface{}{int64(2), "b"}},
	map[string]interface{}{"x": int64(1), "nested": map[string]interface{}{"y": "z"}},
}

func TestMsgpackRoundTrip(t *testing.T) {
	c := Msgpack{}

	for _, v := range roundTripValues {
		b, err := Encode(c, v)
		if err != nil {
			t.Fatal(err)
		}

		var back interface{}
		if err = Decode(c, b, &back); err != nil {
			t.Fatal(err)
		}

		if !reflect.DeepEqual(v, back) {
			t.Errorf("round trip changed value: %#v -> %#v", v, back)
		}
	}
}

func TestJSONRoundTrip(t *testing.T) {
	c := JSON{}
	values := []interface{}{"hello", true, 2.5, []interface{}{"a", 1.0},
		map[string]interface{}{"k": []interface{}{"v"}}}

	for _, v := range values {
		b, err := Encode(c, v)
		if err != nil {
			t.Fatal(err)
		}

		var back interface{}
		if err = Decode(c, b, &back); err != nil {
			t.Fatal(err)
		}

		if !reflect.DeepEqual(v, back) {
			t.Errorf("round trip changed value: %#v -> %#v", v, back)
		}
	}
}

func TestErrorInfoRoundTrip(t *testing.T) {
	for _, c := range []Codec{Msgpack{}, JSON{}} {
		info := errorInfo{Kind: "ValueError", Message: "bad input", Traceback: "line 1\nline 2"}

		b, err := Encode(c, info)
		if err != nil {
			t.Fatal(err)
		}

		var back errorInfo
		if err = Decode(c, b, &back); err != nil {
			t.Fatal(err)
		}
		if back != info {
			t.Errorf("%s: %+v != %+v", c.Name(), back, info)
		}

		// Plain error values travel as ErrorValue, wherever they are
		boom := errors.New("boom")
		wrapped := fmt.Errorf("wrapped: %w", boom)

		b, err = Encode(c, boom)
		if err != nil {
			t.Fatal(err)
		}
		var ev ErrorValue
		if err = Decode(c, b, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.Kind != "errorString" || ev.Message != "boom" {
			t.Errorf("%s: unexpected error value %+v", c.Name(), ev)
		}

		b, err = Encode(c, map[string]interface{}{"errs": []interface{}{"ok", wrapped}})
		if err != nil {
			t.Fatal(err)
		}
		var nested struct {
			Errs []interface{} `json:"errs" msgpack:"errs"`
		}
		if err = Decode(c, b, &nested); err != nil {
			t.Fatal(err)
		}
		if len(nested.Errs) != 2 {
			t.Fatal(c.Name(), "unexpected list:", nested.Errs)
		}
		if err = Convert(c, nested.Errs[1], &ev); err != nil {
			t.Fatal(err)
		}
		if ev.Kind != "wrapError" || ev.Message != "wrapped: boom" {
			t.Errorf("%s: unexpected nested error value %+v", c.Name(), ev)
		}
	}
}

func TestErrorKind(t *testing.T) {
	if k := ErrorKind(&Error{Codec: "msgpack", Op: "marshal", Err: errors.New("x")}); k != "SerializationError" {
		t.Error("kind from method:", k)
	}
	if k := ErrorKind(errors.New("x")); k != "errorString" {
		t.Error("kind from type:", k)
	}
	if k := ErrorKind(ErrorValue{Kind: "ValueError"}); k != "ValueError" {
		t.Error("kind of error value:", k)
	}
}

func TestConvertGenericToTyped(t *testing.T) {
	for _, c := range []Codec{Msgpack{}, JSON{}} {
		b, _ := Encode(c, []interface{}{42, "str", []string{"a", "b"}})

		var generic []interface{}
		if err := Decode(c, b, &generic); err != nil {
			t.Fatal(err)
		}

		var i int
		var s string
		var l []string

		if err := Convert(c, generic[0], &i); err != nil || i != 42 {
			t.Error(c.Name(), "int:", i, err)
		}
		if err := Convert(c, generic[1], &s); err != nil || s != "str" {
			t.Error(c.Name(), "string:", s, err)
		}
		if err := Convert(c, generic[2], &l); err != nil || !reflect.DeepEqual(l, []string{"a", "b"}) {
			t.Error(c.Name(), "slice:", l, err)
		}
	}
}

func TestUnserializableValue(t *testing.T) {
	_, err := Encode(Msgpack{}, make(chan int))

	if err == nil {
		t.Fatal("channel was serialized")
	}

	var cerr *Error
	if !errors.As(err, &cerr) || cerr.ErrorKind() != "SerializationError" || cerr.Op != "marshal" {
		t.Fatalf("unexpected error %#v", err)
	}
}

func TestProtoArguments(t *testing.T) {
	for _, c := range []Codec{Msgpack{}, JSON{}} {
		args := []interface{}{&types.StringValue{Value: "proto"}, "plain"}

		b, err := Encode(c, args)
		if err != nil {
			t.Fatal(err)
		}

		var generic []interface{}
		if err = Decode(c, b, &generic); err != nil {
			t.Fatal(err)
		}

		msg := new(types.StringValue)
		if err = ConvertProto(c, generic[0], msg); err != nil {
			t.Fatal(c.Name(), err)
		}
		if msg.Value != "proto" {
			t.Error(c.Name(), "wrong proto value:", msg.Value)
		}
		if generic[1] != "plain" {
			t.Error(c.Name(), "plain value changed:", generic[1])
		}
	}
}

func TestByName(t *testing.T) {
	if c, err := ByName("json"); err != nil || c.Name() != "json" {
		t.Error("json:", c, err)
	}
	if c, err := ByName(""); err != nil || c.Name() != "msgpack" {
		t.Error("default:", c, err)
	}
	if _, err := ByName("pickle"); err == nil {
		t.Error("unknown codec accepted")
	}
}

func BenchmarkMsgpackArgs(b *testing.B) {
	args := []interface{}{"hello", int64(12), map[string]interface{}{"a": 1.5}}

	for i := 0; i < b.N; i++ {
		buf, err := Encode(Msgpack{}, args)
		if err != nil {
			b.Fatal(err)
		}
		var back []interface{}
		if err = Decode(Msgpack{}, buf, &back); err != nil {
			b.Fatal(err)
		}
	}
}
