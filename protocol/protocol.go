/*
Package protocol defines the multi-frame messages exchanged between a service (ROUTER socket)
and its proxies (DEALER sockets). Every message is sent as one atomic multipart unit:

	request:  [identity?, call-id, method, args-blob, kwargs-blob]
	success:  [identity?, call-id, "SUCCESS", result-blob]
	failure:  [identity?, call-id, "FAILURE", kind, message, traceback]

The identity frame is added by ZeroMQ on the ROUTER side and is only present
in messages received or sent by a service. Blobs are opaque to this package.
*/
package protocol

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	TagSuccess = "SUCCESS"
	TagFailure = "FAILURE"
)

const (
	requestFrames = 4
	successFrames = 3
	failureFrames = 5
)

// Correlates one request with its single reply. Generated call ids are the
// canonical text form of a random (v4) UUID; ids received from peers are treated as opaque bytes.
type CallID string

func NewCallID() CallID {
	return CallID(uuid.NewString())
}

func (id CallID) String() string {
	return string(id)
}

// Returned by the Parse* functions when frames don't match a known message shape.
type Error struct {
	reason string
	frames int
}

func (e *Error) Error() string {
	return fmt.Sprintf("protocol error: %s (%d frames)", e.reason, e.frames)
}

func (e *Error) ErrorKind() string {
	return "ProtocolError"
}

func newError(reason string, frames [][]byte) *Error {
	return &Error{reason: reason, frames: len(frames)}
}

type Request struct {
	// Routing identity assigned by the ROUTER socket; nil on the proxy side.
	Identity []byte
	CallID   CallID
	Method   string
	Args     []byte
	Kwargs   []byte
}

func (rq *Request) Serialize() [][]byte {
	frames := make([][]byte, 0, requestFrames+1)

	if rq.Identity != nil {
		frames = append(frames, rq.Identity)
	}
	return append(frames,
		[]byte(rq.CallID),
		[]byte(strings.ToValidUTF8(rq.Method, string(utf8.RuneError))),
		nonNil(rq.Args),
		nonNil(rq.Kwargs))
}

/*
Parse a request. If routed is true, the first frame is taken to be the routing identity.
Frames following the kwargs blob are ignored.
*/
func ParseRequest(msg [][]byte, routed bool) (*Request, error) {
	rq := &Request{}
	frames := msg

	if routed {
		if len(frames) < 1 {
			return nil, newError("request without routing identity", msg)
		}
		rq.Identity = frames[0]
		frames = frames[1:]
	}

	if len(frames) < requestFrames {
		return nil, newError("request too short", msg)
	}

	if !utf8.Valid(frames[1]) {
		return nil, newError("method name is not valid UTF-8", msg)
	}

	rq.CallID = CallID(frames[0])
	rq.Method = string(frames[1])
	rq.Args = frames[2]
	rq.Kwargs = frames[3]

	return rq, nil
}

type Reply struct {
	Identity []byte
	CallID   CallID
	// true for SUCCESS replies
	Ok     bool
	Result []byte

	// Only set for FAILURE replies
	Kind, Message, Traceback string
}

func NewSuccessReply(identity []byte, id CallID, result []byte) *Reply {
	return &Reply{Identity: identity, CallID: id, Ok: true, Result: result}
}

func NewFailureReply(identity []byte, id CallID, kind, message, traceback string) *Reply {
	return &Reply{Identity: identity, CallID: id, Ok: false, Kind: kind, Message: message, Traceback: traceback}
}

func (rp *Reply) Serialize() [][]byte {
	frames := make([][]byte, 0, failureFrames+1)

	if rp.Identity != nil {
		frames = append(frames, rp.Identity)
	}

	frames = append(frames, []byte(rp.CallID))

	if rp.Ok {
		return append(frames, []byte(TagSuccess), nonNil(rp.Result))
	}
	return append(frames, []byte(TagFailure),
		utf8Frame(rp.Kind),
		utf8Frame(rp.Message),
		utf8Frame(rp.Traceback))
}

// Parse a reply. If routed is true, the first frame is taken to be the routing identity.
func ParseReply(msg [][]byte, routed bool) (*Reply, error) {
	rp := &Reply{}
	frames := msg

	if routed {
		if len(frames) < 1 {
			return nil, newError("reply without routing identity", msg)
		}
		rp.Identity = frames[0]
		frames = frames[1:]
	}

	if len(frames) < 2 {
		return nil, newError("reply too short", msg)
	}

	rp.CallID = CallID(frames[0])

	switch tag := string(frames[1]); {
	case tag == TagSuccess && len(frames) == successFrames:
		rp.Ok = true
		rp.Result = frames[2]
	case tag == TagFailure && len(frames) == failureFrames:
		rp.Kind = string(frames[2])
		rp.Message = string(frames[3])
		rp.Traceback = string(frames[4])
	case tag == TagSuccess || tag == TagFailure:
		return nil, newError("wrong frame count for "+tag+" reply", msg)
	default:
		return nil, newError(fmt.Sprintf("unknown reply tag %q", tag), msg)
	}

	return rp, nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func utf8Frame(s string) []byte {
	return []byte(strings.ToValidUTF8(s, string(utf8.RuneError)))
}
