package client

import "fmt"

// Reasons for a call failing locally, i.e. without the service reporting an error.
type Status int

const (
	// default value; the RequestError hasn't been initialized
	STATUS_UNKNOWN Status = iota
	// the proxy is neither bound nor connected; nothing was sent
	STATUS_NOT_READY
	// sending the request or receiving the reply timed out
	STATUS_TIMEOUT
	// the socket returned an unrecoverable error
	STATUS_NETWORK_ERROR
	// the arguments could not be serialized
	STATUS_ENCODE_ERROR
	// the outbox of an asynchronous proxy is full
	STATUS_OVERLOADED
	// the proxy was closed
	STATUS_CLOSED
)

var statusStrings = []string{"STATUS_UNKNOWN", "STATUS_NOT_READY", "STATUS_TIMEOUT",
	"STATUS_NETWORK_ERROR", "STATUS_ENCODE_ERROR", "STATUS_OVERLOADED", "STATUS_CLOSED"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusStrings) {
		return fmt.Sprintf("STATUS_%d", int(s))
	}
	return statusStrings[s]
}

/*
A call that failed before a reply from the service was received. Errors reported by the
service are returned as *RemoteError instead.
*/
type RequestError struct {
	status Status
	err    error
}

func (e *RequestError) Error() string {
	if e.err != nil {
		return e.status.String() + ": " + e.err.Error()
	}
	return e.status.String()
}

func (e *RequestError) Unwrap() error {
	return e.err
}

/*
Returns one of the STATUS_ constants. Use errors.As() to get at the *RequestError
and then obtain its status.
*/
func (e *RequestError) Status() Status {
	return e.status
}

/*
Returns a human-readable error message such as "resource temporarily unavailable" (which is an
EAGAIN error)
*/
func (e *RequestError) Message() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}
