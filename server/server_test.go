package server

import (
	"bytes"
	"errors"
	"fmt"
	golog "log"
	"strings"
	"testing"

	"github.com/dermesser/simplerpc/codec"
	"github.com/dermesser/simplerpc/protocol"

	"github.com/gogo/protobuf/types"
)

// A service without socket and loop; only usable for handleRequest()
func getService() *Service {
	srv := &Service{handlers: make(map[string]Handler), codec: codec.Default}
	srv.registerBuiltins()
	return srv
}

func makeRequest(t *testing.T, method string, args []interface{}, kwargs map[string]interface{}) [][]byte {
	a, err := codec.Encode(codec.Default, args)
	if err != nil {
		t.Fatal(err)
	}
	k, err := codec.Encode(codec.Default, kwargs)
	if err != nil {
		t.Fatal(err)
	}

	rq := protocol.Request{Identity: []byte("client-1"), CallID: protocol.NewCallID(), Method: method, Args: a, Kwargs: k}
	return rq.Serialize()
}

func parseReply(t *testing.T, frames [][]byte) *protocol.Reply {
	if frames == nil {
		t.Fatal("no reply")
	}
	rp, err := protocol.ParseReply(frames, true)
	if err != nil {
		t.Fatal(err)
	}
	if string(rp.Identity) != "client-1" {
		t.Fatal("reply addressed to wrong peer:", rp.Identity)
	}
	return rp
}

func echo(cx *Context) (interface{}, error) {
	var s string
	if err := cx.Arg(0, &s); err != nil {
		return nil, err
	}
	return s, nil
}

func TestEcho(t *testing.T) {
	srv := getService()
	srv.RegisterHandler("echo", echo)

	rq := makeRequest(t, "echo", []interface{}{"hi"}, nil)
	rp := parseReply(t, srv.handleRequest(rq))

	if !rp.Ok || !bytes.Equal([]byte(rp.CallID), rq[1]) {
		t.Fatal("unexpected reply:", rp)
	}

	var result string
	if err := codec.Decode(codec.Default, rp.Result, &result); err != nil || result != "hi" {
		t.Fatal("unexpected result:", result, err)
	}
}

func TestRemoteErrorKind(t *testing.T) {
	srv := getService()
	srv.RegisterHandler("fail", func(*Context) (interface{}, error) {
		return nil, NewError("ValueError", "bad")
	})

	rp := parseReply(t, srv.handleRequest(makeRequest(t, "fail", nil, nil)))

	if rp.Ok || rp.Kind != "ValueError" || rp.Message != "bad" {
		t.Fatal("unexpected failure:", rp.Kind, rp.Message)
	}
	if !strings.Contains(rp.Traceback, "goroutine") {
		t.Fatal("no traceback:", rp.Traceback)
	}
}

func validateInput(n int64) error {
	if n < 0 {
		return Errorf("ValueError", "negative input %d", n)
	}
	return nil
}

func TestTracebackFromErrorOrigin(t *testing.T) {
	srv := getService()
	srv.RegisterHandler("validate", func(cx *Context) (interface{}, error) {
		var n int64
		if err := cx.Arg(0, &n); err != nil {
			return nil, err
		}
		if err := validateInput(n); err != nil {
			return nil, fmt.Errorf("validate: %w", err)
		}
		return n, nil
	})

	rp := parseReply(t, srv.handleRequest(makeRequest(t, "validate", []interface{}{-1}, nil)))

	if rp.Ok || rp.Kind != "ValueError" {
		t.Fatal("unexpected failure:", rp.Kind, rp.Message)
	}
	if !strings.Contains(rp.Traceback, "validateInput") {
		t.Fatal("traceback doesn't show where the error was created:", rp.Traceback)
	}
}

func TestErrorAsResult(t *testing.T) {
	srv := getService()
	srv.RegisterHandler("errs", func(*Context) (interface{}, error) {
		return []interface{}{"ok", errors.New("not ok")}, nil
	})

	rp := parseReply(t, srv.handleRequest(makeRequest(t, "errs", nil, nil)))
	if !rp.Ok {
		t.Fatal("unexpected failure:", rp.Kind, rp.Message)
	}

	var result []interface{}
	if err := codec.Decode(codec.Default, rp.Result, &result); err != nil || len(result) != 2 {
		t.Fatal("unexpected result:", result, err)
	}

	var ev codec.ErrorValue
	if err := codec.Convert(codec.Default, result[1], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Kind != "errorString" || ev.Message != "not ok" {
		t.Fatal("unexpected error value:", ev)
	}
}

type customError struct{}

func (*customError) Error() string {
	return "custom"
}

func TestErrorKindFromType(t *testing.T) {
	if k := errorKind(&customError{}); k != "customError" {
		t.Error("kind of *customError:", k)
	}
	if k := errorKind(&codec.Error{Err: errors.New("x")}); k != "SerializationError" {
		t.Error("kind of codec error:", k)
	}
	if k := errorKind(Errorf("KeyError", "missing %q", "a")); k != "KeyError" {
		t.Error("kind of server error:", k)
	}
}

func TestPanicIsCaptured(t *testing.T) {
	srv := getService()
	srv.RegisterHandler("panic", func(*Context) (interface{}, error) {
		panic("boom")
	})
	srv.RegisterHandler("panicerr", func(*Context) (interface{}, error) {
		panic(NewError("RuntimeError", "kaputt"))
	})

	rp := parseReply(t, srv.handleRequest(makeRequest(t, "panic", nil, nil)))
	if rp.Ok || rp.Kind != KIND_PANIC || rp.Message != "boom" {
		t.Fatal("unexpected failure:", rp.Kind, rp.Message)
	}

	rp = parseReply(t, srv.handleRequest(makeRequest(t, "panicerr", nil, nil)))
	if rp.Ok || rp.Kind != "RuntimeError" || rp.Message != "kaputt" {
		t.Fatal("unexpected failure:", rp.Kind, rp.Message)
	}
}

func TestUnknownMethod(t *testing.T) {
	srv := getService()

	rp := parseReply(t, srv.handleRequest(makeRequest(t, "nope", nil, nil)))
	if rp.Ok || rp.Kind != KIND_METHOD_NOT_FOUND {
		t.Fatal("unexpected reply:", rp)
	}

	srv.SetDropUnknownMethods(true)
	if reply := srv.handleRequest(makeRequest(t, "nope", nil, nil)); reply != nil {
		t.Fatal("expected no reply, got", reply)
	}
}

func TestUnknownMethodDroppedBeforeAdmission(t *testing.T) {
	srv := getService()
	srv.SetDropUnknownMethods(true)

	srv.SetLoadshed(true)
	if reply := srv.handleRequest(makeRequest(t, "nope", nil, nil)); reply != nil {
		t.Fatal("expected no reply while loadshedding, got", reply)
	}
	srv.SetLoadshed(false)

	srv.SetRateLimit(0.01, 1)
	for i := 0; i < 3; i++ {
		if reply := srv.handleRequest(makeRequest(t, "nope", nil, nil)); reply != nil {
			t.Fatal("expected no reply with rate limit, got", reply)
		}
	}

	// dropped calls don't use up the only token
	rp := parseReply(t, srv.handleRequest(makeRequest(t, PING_METHOD, nil, nil)))
	if !rp.Ok {
		t.Fatal("request refused:", rp.Kind)
	}
}

func TestUnserializableResult(t *testing.T) {
	srv := getService()
	srv.RegisterHandler("chan", func(*Context) (interface{}, error) {
		return make(chan int), nil
	})

	rp := parseReply(t, srv.handleRequest(makeRequest(t, "chan", nil, nil)))
	if rp.Ok || rp.Kind != KIND_SERIALIZATION {
		t.Fatal("unexpected reply:", rp.Kind, rp.Message)
	}
}

func TestUndecodableArguments(t *testing.T) {
	srv := getService()
	srv.RegisterHandler("echo", echo)

	rq := protocol.Request{Identity: []byte("client-1"), CallID: "x", Method: "echo", Args: []byte{0xc1}, Kwargs: []byte{}}
	rp := parseReply(t, srv.handleRequest(rq.Serialize()))

	if rp.Ok || rp.Kind != KIND_SERIALIZATION {
		t.Fatal("unexpected reply:", rp.Kind, rp.Message)
	}
}

func TestMalformedRequestIsDropped(t *testing.T) {
	srv := getService()

	if reply := srv.handleRequest([][]byte{[]byte("client-1"), []byte("id"), []byte("echo")}); reply != nil {
		t.Fatal("reply to malformed request:", reply)
	}
}

func TestKwargs(t *testing.T) {
	srv := getService()
	srv.RegisterHandler("greet", func(cx *Context) (interface{}, error) {
		var name, greeting string
		if err := cx.Arg(0, &name); err != nil {
			return nil, err
		}
		greeting = "Hello"
		if _, err := cx.Kwarg("greeting", &greeting); err != nil {
			return nil, err
		}
		var count int
		if ok, _ := cx.Kwarg("count", &count); ok {
			return strings.Repeat(greeting+" "+name+"!", count), nil
		}
		return greeting + " " + name + "!", nil
	})

	var result string
	rp := parseReply(t, srv.handleRequest(makeRequest(t, "greet", []interface{}{"Ann"}, map[string]interface{}{"greeting": "Hi"})))
	codec.Decode(codec.Default, rp.Result, &result)

	if result != "Hi Ann!" {
		t.Fatal("unexpected result:", result)
	}

	rp = parseReply(t, srv.handleRequest(makeRequest(t, "greet", []interface{}{"Bo"}, map[string]interface{}{"count": 2})))
	codec.Decode(codec.Default, rp.Result, &result)

	if result != "Hello Bo!Hello Bo!" {
		t.Fatal("unexpected result:", result)
	}
}

func TestMissingArgument(t *testing.T) {
	srv := getService()
	srv.RegisterHandler("echo", echo)

	rp := parseReply(t, srv.handleRequest(makeRequest(t, "echo", nil, nil)))
	if rp.Ok || rp.Kind != "IndexError" {
		t.Fatal("unexpected reply:", rp.Kind, rp.Message)
	}
}

func TestProtoArgument(t *testing.T) {
	srv := getService()
	srv.RegisterHandler("upper", func(cx *Context) (interface{}, error) {
		arg := &types.StringValue{}
		if err := cx.GetArgument(0, arg); err != nil {
			return nil, err
		}
		return &types.StringValue{Value: strings.ToUpper(arg.Value)}, nil
	})

	rp := parseReply(t, srv.handleRequest(makeRequest(t, "upper", []interface{}{&types.StringValue{Value: "abc"}}, nil)))

	result := &types.StringValue{}
	var raw []byte
	if err := codec.Decode(codec.Default, rp.Result, &raw); err != nil {
		t.Fatal(err)
	}
	if err := result.Unmarshal(raw); err != nil || result.Value != "ABC" {
		t.Fatal("unexpected result:", result, err)
	}
}

func TestBuiltins(t *testing.T) {
	srv := getService()

	rp := parseReply(t, srv.handleRequest(makeRequest(t, PING_METHOD, nil, nil)))
	if !rp.Ok {
		t.Fatal("ping failed:", rp.Kind)
	}

	rp = parseReply(t, srv.handleRequest(makeRequest(t, HEALTH_METHOD, nil, nil)))
	if !rp.Ok {
		t.Fatal("health check failed:", rp.Kind)
	}

	srv.SetLameduck(true)
	rp = parseReply(t, srv.handleRequest(makeRequest(t, HEALTH_METHOD, nil, nil)))
	if rp.Ok || rp.Kind != KIND_LAMEDUCK {
		t.Fatal("health check in lameduck mode:", rp.Kind)
	}
	// still serving
	rp = parseReply(t, srv.handleRequest(makeRequest(t, PING_METHOD, nil, nil)))
	if !rp.Ok {
		t.Fatal("ping failed in lameduck mode:", rp.Kind)
	}
}

func TestLoadshedAndRateLimit(t *testing.T) {
	srv := getService()

	srv.SetLoadshed(true)
	rp := parseReply(t, srv.handleRequest(makeRequest(t, PING_METHOD, nil, nil)))
	if rp.Ok || rp.Kind != KIND_LOADSHED {
		t.Fatal("expected loadshed failure:", rp.Kind)
	}
	srv.SetLoadshed(false)

	// one token, refilled once per 100 s
	srv.SetRateLimit(0.01, 1)

	rp = parseReply(t, srv.handleRequest(makeRequest(t, PING_METHOD, nil, nil)))
	if !rp.Ok {
		t.Fatal("first request refused:", rp.Kind)
	}
	rp = parseReply(t, srv.handleRequest(makeRequest(t, PING_METHOD, nil, nil)))
	if rp.Ok || rp.Kind != KIND_OVERLOADED {
		t.Fatal("expected overload failure:", rp.Kind)
	}

	srv.SetRateLimit(0, 0)
	rp = parseReply(t, srv.handleRequest(makeRequest(t, PING_METHOD, nil, nil)))
	if !rp.Ok {
		t.Fatal("request refused without limit:", rp.Kind)
	}
}

type calculator struct{}

func (calculator) RPCMethods() map[string]Handler {
	add := func(cx *Context) (interface{}, error) {
		var a, b int64
		if err := cx.Arg(0, &a); err != nil {
			return nil, err
		}
		if err := cx.Arg(1, &b); err != nil {
			return nil, err
		}
		return a + b, nil
	}
	return map[string]Handler{"calc.Add": add}
}

func TestRegistration(t *testing.T) {
	srv := getService()

	if err := srv.RegisterAll(calculator{}); err != nil {
		t.Fatal(err)
	}
	if err := srv.RegisterHandler("calc.Add", echo); err == nil {
		t.Fatal("registered method twice")
	}

	var sum int64
	rp := parseReply(t, srv.handleRequest(makeRequest(t, "calc.Add", []interface{}{2, 40}, nil)))
	codec.Decode(codec.Default, rp.Result, &sum)
	if sum != 42 {
		t.Fatal("unexpected sum:", sum)
	}

	if err := srv.UnregisterHandler("calc.Add"); err != nil {
		t.Fatal(err)
	}
	if err := srv.UnregisterHandler("calc.Add"); err == nil {
		t.Fatal("unregistered method twice")
	}

	srv.frozen = true
	if err := srv.RegisterHandler("late", echo); err == nil {
		t.Fatal("registered method after bind")
	}
	if len(srv.Methods()) != 2 {
		t.Fatal("unexpected methods:", srv.Methods())
	}
}

func TestRPCLogger(t *testing.T) {
	srv := getService()
	srv.RegisterHandler("echo", echo)

	var buf bytes.Buffer
	srv.SetRPCLogger(golog.New(&buf, "", 0))

	srv.handleRequest(makeRequest(t, "echo", []interface{}{"logged"}, nil))

	out := buf.String()
	if !strings.Contains(out, "REQ echo") || !strings.Contains(out, "RSP echo") {
		t.Fatal("unexpected rpc log:", out)
	}
}
