package client

import (
	"github.com/dermesser/simplerpc/codec"
	"github.com/dermesser/simplerpc/protocol"

	pb "github.com/gogo/protobuf/proto"
)

// An error raised by the handler on the service side, as transmitted in a FAILURE reply.
type RemoteError struct {
	Kind      string
	Message   string
	Traceback string
}

func (e *RemoteError) Error() string {
	return e.Kind + ": " + e.Message
}

// Error() followed by the service's traceback, if any.
func (e *RemoteError) Details() string {
	if e.Traceback == "" {
		return e.Error()
	}
	return e.Error() + "\n" + e.Traceback
}

// The outcome of one call: a result, a *RemoteError or a *RequestError.
type Response struct {
	id     protocol.CallID
	codec  codec.Codec
	result []byte
	remote *RemoteError
	err    error
}

func newResponse(rp *protocol.Reply, c codec.Codec) *Response {
	rsp := &Response{id: rp.CallID, codec: c}

	if rp.Ok {
		rsp.result = rp.Result
	} else {
		rsp.remote = &RemoteError{Kind: rp.Kind, Message: rp.Message, Traceback: rp.Traceback}
	}
	return rsp
}

func errorResponse(id protocol.CallID, status Status, err error) *Response {
	return &Response{id: id, err: &RequestError{status: status, err: err}}
}

func (rp *Response) CallID() protocol.CallID {
	return rp.id
}

// Check whether the request was successful.
func (rp *Response) Ok() bool {
	return rp.err == nil && rp.remote == nil
}

// Get the error that has occurred: a *RequestError, a *RemoteError, or nil.
func (rp *Response) Err() error {
	if rp.err != nil {
		return rp.err
	} else if rp.remote != nil {
		return rp.remote
	}
	return nil
}

// Returns nil unless the service replied with a failure.
func (rp *Response) RemoteError() *RemoteError {
	return rp.remote
}

// Returns the serialized result.
func (rp *Response) Payload() []byte {
	return rp.result
}

// Decode the result into v, which must be a pointer. Returns Err() if the call failed.
func (rp *Response) Decode(v interface{}) error {
	if !rp.Ok() {
		return rp.Err()
	}
	return codec.Decode(rp.codec, rp.result, v)
}

// The result as generic value.
func (rp *Response) Value() (interface{}, error) {
	var v interface{}
	err := rp.Decode(&v)
	return v, err
}

// Unmarshals a result that was returned as protocol buffer message into msg.
func (rp *Response) GetResponseMessage(msg pb.Message) error {
	v, err := rp.Value()

	if err != nil {
		return err
	}
	return codec.ConvertProto(rp.codec, v, msg)
}
