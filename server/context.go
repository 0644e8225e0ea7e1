package server

import (
	"fmt"
	"log"

	"github.com/dermesser/simplerpc/codec"
	"github.com/dermesser/simplerpc/protocol"

	pb "github.com/gogo/protobuf/proto"
)

/*
Opaque structure that contains request information: the called method, the caller's
identity and the decoded arguments. It is only valid during the handler invocation.
*/
type Context struct {
	rq     *protocol.Request
	codec  codec.Codec
	args   []interface{}
	kwargs map[string]interface{}

	logger *log.Logger
	// 0 = None, 1 = logged request, 2 = logged response
	log_state int
}

// Decodes the argument blobs of rq. Empty blobs are taken as no arguments.
func newContext(rq *protocol.Request, c codec.Codec, logger *log.Logger) (*Context, error) {
	cx := &Context{rq: rq, codec: c, logger: logger}

	if len(rq.Args) > 0 {
		if err := codec.Decode(c, rq.Args, &cx.args); err != nil {
			return nil, err
		}
	}
	if len(rq.Kwargs) > 0 {
		if err := codec.Decode(c, rq.Kwargs, &cx.kwargs); err != nil {
			return nil, err
		}
	}
	if cx.kwargs == nil {
		cx.kwargs = map[string]interface{}{}
	}

	cx.rpclogRequest()
	return cx, nil
}

func (c *Context) Method() string {
	return c.rq.Method
}

func (c *Context) CallID() protocol.CallID {
	return c.rq.CallID
}

// The routing identity of the calling proxy.
func (c *Context) ClientID() []byte {
	return c.rq.Identity
}

func (c *Context) NumArgs() int {
	return len(c.args)
}

/*
The positional arguments as decoded by the codec, i.e. as generic values
(int64, float64, string, []byte, []interface{}, map[string]interface{} ...).
*/
func (c *Context) Args() []interface{} {
	return c.args
}

func (c *Context) Kwargs() map[string]interface{} {
	return c.kwargs
}

/*
Decode the i-th positional argument into v, which must be a pointer.
Returns a SerializationError if the argument can not be converted, and an
error of kind IndexError if there is no such argument.
*/
func (c *Context) Arg(i int, v interface{}) error {
	if i < 0 || i >= len(c.args) {
		return Errorf("IndexError", "%s takes argument #%d, but only %d were given", c.rq.Method, i, len(c.args))
	}
	return codec.Convert(c.codec, c.args[i], v)
}

/*
Decode the keyword argument name into v, which must be a pointer.
Returns false if there is no such keyword argument.
*/
func (c *Context) Kwarg(name string, v interface{}) (bool, error) {
	arg, ok := c.kwargs[name]

	if !ok {
		return false, nil
	}
	return true, codec.Convert(c.codec, arg, v)
}

/*
GetArgument deserializes the i-th positional argument, which has been sent as
protocol buffer message, into msg.
*/
func (c *Context) GetArgument(i int, msg pb.Message) error {
	if i < 0 || i >= len(c.args) {
		return Errorf("IndexError", "%s takes argument #%d, but only %d were given", c.rq.Method, i, len(c.args))
	}
	err := codec.ConvertProto(c.codec, c.args[i], msg)

	if err != nil {
		c.rpclogErr(err)
	}
	return err
}

func (c *Context) String() string {
	return fmt.Sprintf("%s %s/%x", c.rq.Method, c.rq.CallID, c.rq.Identity)
}
