package server

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/dermesser/simplerpc/codec"
)

// Kinds of failures generated by the service itself.
const (
	KIND_METHOD_NOT_FOUND = "MethodNotFound"
	KIND_SERIALIZATION    = "SerializationError"
	KIND_LOADSHED         = "Loadshed"
	KIND_OVERLOADED       = "Overloaded"
	KIND_LAMEDUCK         = "Lameduck"
	KIND_PANIC            = "Panic"
)

/*
An error with an explicit kind. The kind is sent to the caller in the FAILURE reply and
can be checked there, e.g. NewError("ValueError", "negative input").
*/
type Error struct {
	Kind    string
	Message string

	// stack of the goroutine that created the error
	stack string
}

func NewError(kind, message string) *Error {
	return &Error{Kind: kind, Message: message, stack: string(debug.Stack())}
}

func Errorf(kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), stack: string(debug.Stack())}
}

func (e *Error) Error() string {
	return e.Kind + ": " + e.Message
}

func (e *Error) ErrorKind() string {
	return e.Kind
}

func errorKind(err error) string {
	return codec.ErrorKind(err)
}

// Only the message of a *Error; its kind travels in a separate frame.
func errorMessage(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Message
	}
	return err.Error()
}

// The traceback is where a *Error was created, or the current stack for other errors.
func failureFromError(err error) *failure {
	f := &failure{kind: errorKind(err), message: errorMessage(err)}

	var e *Error
	if errors.As(err, &e) && e.stack != "" {
		f.traceback = e.stack
	} else {
		f.traceback = string(debug.Stack())
	}
	return f
}

// Turns the value passed to panic() into a failure.
func failureFromPanic(v interface{}) *failure {
	if err, ok := v.(error); ok {
		return failureFromError(err)
	}
	return &failure{kind: KIND_PANIC, message: fmt.Sprint(v), traceback: string(debug.Stack())}
}
