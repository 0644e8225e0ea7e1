package server

import (
	"fmt"
	golog "log"

	"github.com/dermesser/simplerpc/codec"
	"github.com/dermesser/simplerpc/log"
	"github.com/dermesser/simplerpc/protocol"
	"github.com/dermesser/simplerpc/transport"

	"golang.org/x/time/rate"
)

/*
This file has the internal functions, the actual dispatcher; server.go remains
uncluttered and with only public functions.
*/

// Maximum number of requests handled per readiness event; the loop serves other sockets in between.
const MAX_REQUESTS_PER_WAKEUP = 64

// Snapshot of the settings that apply to one request.
type dispatchConfig struct {
	handler      Handler
	codec        codec.Codec
	drop_unknown bool
	limiter      *rate.Limiter
	loadshed     bool
	rpclogger    *golog.Logger
}

func (srv *Service) configFor(method string) (dispatchConfig, bool) {
	srv.lock.Lock()
	defer srv.lock.Unlock()

	handler, ok := srv.handlers[method]
	return dispatchConfig{
		handler:      handler,
		codec:        srv.codec,
		drop_unknown: srv.drop_unknown,
		limiter:      srv.limiter,
		loadshed:     srv.loadshed_state,
		rpclogger:    srv.rpclogger,
	}, ok
}

// Readiness callback; runs on the loop goroutine.
func (srv *Service) handleReadable() error {
	for i := 0; i < MAX_REQUESTS_PER_WAKEUP; i++ {
		msg, err := srv.endpoint.RecvFrames(true)

		if transport.IsAgain(err) {
			return nil
		} else if err != nil {
			return err
		}

		reply := srv.handleRequest(msg)

		if reply == nil {
			continue
		}

		if err = srv.endpoint.SendFrames(reply, true); err != nil {
			if transport.IsUnroutable(err) {
				// routing is mandatory.
				// Fails when the client has already disconnected
				log.SRPC_log(log.LOGLEVEL_WARNINGS, fmt.Sprintf("Could not route reply to %x", msg[0]))
			} else {
				log.SRPC_log(log.LOGLEVEL_ERRORS, "Error when sending reply:", err.Error())
			}
		}
	}
	return nil
}

/*
Handle one request: decode, resolve, invoke, encode. Returns the reply frames, or nil if
no reply is to be sent. Never panics because of a handler or malformed input.
*/
func (srv *Service) handleRequest(msg [][]byte) [][]byte {
	rq, err := protocol.ParseRequest(msg, true)

	if err != nil {
		log.SRPC_log(log.LOGLEVEL_ERRORS, "Dropped malformed request:", err.Error())
		return nil
	}

	cfg, found := srv.configFor(rq.Method)

	// Unknown methods are dropped before admission, so they neither get a reply nor use up the rate limit
	if !found && cfg.drop_unknown {
		log.SRPC_log(log.LOGLEVEL_WARNINGS, fmt.Sprintf("[%x/%s] Dropped call of unknown RPC method: %s", rq.Identity, rq.CallID, rq.Method))
		return nil
	}

	if cfg.loadshed {
		log.SRPC_log(log.LOGLEVEL_DEBUG, fmt.Sprintf("[%x/%s] Refused %s, loadshedding", rq.Identity, rq.CallID, rq.Method))
		return failureReply(rq, &failure{kind: KIND_LOADSHED, message: "Service is shedding load"})
	}

	if cfg.limiter != nil && !cfg.limiter.Allow() {
		log.SRPC_log(log.LOGLEVEL_WARNINGS, fmt.Sprintf("[%x/%s] Refused %s, rate limit exceeded", rq.Identity, rq.CallID, rq.Method))
		return failureReply(rq, &failure{kind: KIND_OVERLOADED, message: "Rate limit exceeded"})
	}

	cx, err := newContext(rq, cfg.codec, cfg.rpclogger)

	if err != nil {
		log.SRPC_log(log.LOGLEVEL_WARNINGS, fmt.Sprintf("[%x/%s] Could not decode arguments for %s: %s", rq.Identity, rq.CallID, rq.Method, err.Error()))
		return failureReply(rq, failureFromError(err))
	}

	if !found {
		log.SRPC_log(log.LOGLEVEL_WARNINGS, fmt.Sprintf("[%x/%s] Unknown RPC method: %s", rq.Identity, rq.CallID, rq.Method))

		f := &failure{kind: KIND_METHOD_NOT_FOUND, message: "No such method: " + rq.Method}
		cx.rpclogFailure(f)
		return failureReply(rq, f)
	}

	if log.IsLoggingEnabled(log.LOGLEVEL_DEBUG) {
		log.SRPC_log(log.LOGLEVEL_DEBUG, fmt.Sprintf("[%x/%s] Calling method %s...", rq.Identity, rq.CallID, rq.Method))
	}

	result, f := invoke(cfg.handler, cx)

	if f != nil {
		cx.rpclogFailure(f)
		return failureReply(rq, f)
	}

	blob, err := codec.Encode(cfg.codec, result)

	if err != nil {
		log.SRPC_log(log.LOGLEVEL_WARNINGS, fmt.Sprintf("[%x/%s] Could not encode result of %s: %s", rq.Identity, rq.CallID, rq.Method, err.Error()))
		f = failureFromError(err)
		cx.rpclogFailure(f)
		return failureReply(rq, f)
	}

	cx.rpclogResponse(blob)
	return protocol.NewSuccessReply(rq.Identity, rq.CallID, blob).Serialize()
}

// Actual invocation. Errors and panics of the handler are returned as failure.
func invoke(handler Handler, cx *Context) (result interface{}, f *failure) {
	defer func() {
		if v := recover(); v != nil {
			log.SRPC_log(log.LOGLEVEL_ERRORS, fmt.Sprintf("Handler for %s panicked: %v", cx.Method(), v))
			result, f = nil, failureFromPanic(v)
		}
	}()

	result, err := handler(cx)

	if err != nil {
		return nil, failureFromError(err)
	}
	return result, nil
}

func failureReply(rq *protocol.Request, f *failure) [][]byte {
	return protocol.NewFailureReply(rq.Identity, rq.CallID, f.kind, f.message, f.traceback).Serialize()
}
