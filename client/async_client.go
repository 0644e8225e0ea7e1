package client

import (
	"errors"
	"fmt"
	golog "log"
	"sync"

	"github.com/dermesser/simplerpc/codec"
	"github.com/dermesser/simplerpc/eventloop"
	"github.com/dermesser/simplerpc/log"
	"github.com/dermesser/simplerpc/protocol"
	"github.com/dermesser/simplerpc/queue"
	"github.com/dermesser/simplerpc/transport"

	zmq "github.com/pebbe/zmq4"
)

// Outbox capacity used by NewAsyncProxy() if none is given.
const DEFAULT_QUEUE_LENGTH = 1024

// Maximum number of replies handled per readiness event.
const MAX_REPLIES_PER_WAKEUP = 64

type asyncRequest struct {
	id     protocol.CallID
	method string
	frames [][]byte
}

/*
Asynchronous proxy. Call() returns as soon as the request has been queued; the callback is
invoked on the event loop goroutine once the reply has arrived. Many calls can be in flight
at the same time over the same connection.

Requests are queued in a bounded outbox (of length queue_length) and sent by the event loop,
which is the only goroutine using the socket. Callbacks must not block, but may make further
asynchronous calls.
*/
type AsyncProxy struct {
	loop     *eventloop.Loop
	wakeup   *eventloop.Wakeup
	endpoint *transport.Endpoint
	pending  *pendingCalls
	// tags the socket's handler on the loop
	name string

	// protects everything below
	lock   sync.Mutex
	outbox *queue.Queue
	// mirrors endpoint.Ready(), which may only be called on the loop
	ready  bool
	closed bool

	codec     codec.Codec
	rpclogger *golog.Logger
	urls      []string
}

/*
Create an asynchronous proxy with a DEALER socket in ctx, driven by loop. queue_length
is the number of requests that can be waiting to be sent; 0 means DEFAULT_QUEUE_LENGTH.

Must not be called from a handler or callback running on loop.
*/
func NewAsyncProxy(loop *eventloop.Loop, ctx *zmq.Context, queue_length uint) (*AsyncProxy, error) {
	if queue_length == 0 {
		queue_length = DEFAULT_QUEUE_LENGTH
	}

	endpoint, err := newDealer(ctx)

	if err != nil {
		return nil, err
	}

	p := &AsyncProxy{loop: loop, endpoint: endpoint, pending: newPendingCalls(),
		name: "async proxy " + log.GetLogToken(), outbox: queue.NewQueue(int(queue_length)), codec: codec.Default}

	p.wakeup, err = loop.AddWakeup(p.name+" outbox", p.flush)

	if err != nil {
		endpoint.Close()
		return nil, err
	}

	if err = loop.AddSocket(endpoint.Socket(), p.name, p.handleReadable); err != nil {
		loop.RemoveWakeup(p.wakeup)
		endpoint.Close()
		return nil, err
	}
	return p, nil
}

// Connect to a service at url. Must not be called from a handler or callback.
func (p *AsyncProxy) Connect(url string) error {
	return p.attach(url, p.endpoint.Connect)
}

// Bind to url. Must not be called from a handler or callback.
func (p *AsyncProxy) Bind(url string) error {
	return p.attach(url, p.endpoint.Bind)
}

func (p *AsyncProxy) attach(url string, f func(string) error) error {
	err := p.loop.Invoke(func() error { return f(url) })

	if err != nil {
		return err
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	p.ready = true
	p.urls = append(p.urls, url)
	return nil
}

func (p *AsyncProxy) URLs() []string {
	p.lock.Lock()
	defer p.lock.Unlock()

	urls := make([]string, len(p.urls))
	copy(urls, p.urls)
	return urls
}

/*
Close the socket and create a new one, forgetting all urls. Calls in flight or queued are
forgotten; their callbacks are never invoked. Must not be called from a handler or callback.
*/
func (p *AsyncProxy) Reset() error {
	p.lock.Lock()
	p.ready = false
	p.urls = nil
	dropped := len(p.outbox.Drain())
	p.lock.Unlock()

	n := p.pending.clear()

	if n > 0 || dropped > 0 {
		log.SRPC_log(log.LOGLEVEL_INFO, "Reset proxy; forgot", n, "pending calls")
	}

	return p.loop.Invoke(func() error {
		if sock := p.endpoint.Socket(); sock != nil {
			p.loop.Unregister(sock)
		}
		if err := p.endpoint.Reset(); err != nil {
			return err
		}
		p.loop.Register(p.endpoint.Socket(), p.name, p.handleReadable)
		return nil
	})
}

/*
Close the proxy. Callbacks of pending calls are never invoked. Must not be called from a
handler or callback.
*/
func (p *AsyncProxy) Close() error {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return nil
	}
	p.closed = true
	p.ready = false
	p.outbox.Drain()
	p.lock.Unlock()

	p.pending.clear()
	p.loop.RemoveWakeup(p.wakeup)

	return p.loop.Invoke(func() error {
		if sock := p.endpoint.Socket(); sock != nil {
			p.loop.Unregister(sock)
		}
		return p.endpoint.Close()
	})
}

// Set the codec used for arguments and results. It has to match the service's codec.
func (p *AsyncProxy) SetCodec(c codec.Codec) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.codec = c
}

/*
Log all RPCs made by this proxy to this logging device.
*/
func (p *AsyncProxy) SetRPCLogger(l *golog.Logger) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.rpclogger = l
}

// Number of calls waiting for their reply.
func (p *AsyncProxy) Pending() int {
	return p.pending.len()
}

/*
Forget the call id; its callback won't be invoked, even if a reply arrives. Returns false
if the call wasn't pending (anymore).
*/
func (p *AsyncProxy) Abandon(id protocol.CallID) bool {
	return p.pending.abandon(id)
}

/*
Call method with positional arguments. cb (which may be nil) is invoked with the outcome
on the event loop goroutine.

Returns the call id, or a *RequestError if the request could not be queued; cb is not
invoked in that case.
*/
func (p *AsyncProxy) Call(method string, cb Callback, args ...interface{}) (protocol.CallID, error) {
	return p.CallKw(method, cb, Args(args), nil)
}

// Like Call(), with keyword arguments.
func (p *AsyncProxy) CallKw(method string, cb Callback, args Args, kwargs Kwargs) (protocol.CallID, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.closed {
		return "", &RequestError{status: STATUS_CLOSED, err: transport.ErrClosed}
	} else if !p.ready {
		return "", &RequestError{status: STATUS_NOT_READY, err: errors.New("proxy is neither bound nor connected")}
	}

	id := protocol.NewCallID()
	frames, err := encodeRequest(p.codec, id, method, args, kwargs)

	if err != nil {
		log.SRPC_log(log.LOGLEVEL_WARNINGS, fmt.Sprintf("[%s] Could not encode arguments for %s: %s", id, method, err.Error()))
		return "", &RequestError{status: STATUS_ENCODE_ERROR, err: err}
	}

	if err = p.pending.register(id, p.wrapCallback(method, cb)); err != nil {
		return "", &RequestError{status: STATUS_UNKNOWN, err: err}
	}

	if !p.outbox.Push(&asyncRequest{id: id, method: method, frames: frames}) {
		p.pending.abandon(id)
		log.SRPC_log(log.LOGLEVEL_WARNINGS, "Outbox is full, refusing call of", method)
		return "", &RequestError{status: STATUS_OVERLOADED, err: errors.New("outbox is full")}
	}

	if log.IsLoggingEnabled(log.LOGLEVEL_WARNINGS) && float64(p.outbox.Len()) > 0.7*float64(p.outbox.Cap()) {
		log.SRPC_log(log.LOGLEVEL_WARNINGS, "Outbox is fuller than 70% of its capacity:", p.outbox.Len(), p.outbox.Cap())
	}

	rpclogRequest(p.rpclogger, p.urls, method, id, frames)
	p.wakeup.Notify()

	return id, nil
}

// Adds logging to cb; the logger is looked up when the reply arrives.
func (p *AsyncProxy) wrapCallback(method string, cb Callback) Callback {
	return func(rsp *Response) {
		p.lock.Lock()
		l, urls := p.rpclogger, p.urls
		p.lock.Unlock()

		rpclogResponse(l, urls, method, rsp)

		if cb != nil {
			cb(rsp)
		}
	}
}

// Invoke a callback; a panic in it must not stop the loop.
func dispatch(cb Callback, rsp *Response) {
	defer func() {
		if v := recover(); v != nil {
			log.SRPC_log(log.LOGLEVEL_ERRORS, fmt.Sprintf("[%s] Callback panicked: %v", rsp.CallID(), v))
		}
	}()

	cb(rsp)
}

// Sends queued requests. Runs on the loop goroutine.
func (p *AsyncProxy) flush() error {
	p.lock.Lock()
	requests := p.outbox.Drain()
	p.lock.Unlock()

	for _, r := range requests {
		rq := r.(*asyncRequest)
		err := p.endpoint.SendFrames(rq.frames, true)

		if err == nil {
			log.SRPC_log(log.LOGLEVEL_DEBUG, fmt.Sprintf("[%s] Sent request: %s", rq.id, rq.method))
			continue
		}

		log.SRPC_log(log.LOGLEVEL_ERRORS, fmt.Sprintf("[%s] Could not send request for %s: %s", rq.id, rq.method, err.Error()))

		status := STATUS_NETWORK_ERROR
		if transport.IsAgain(err) {
			// no connected peer, or its pipe is full
			status = STATUS_OVERLOADED
		}

		if cb, ok := p.pending.resolve(rq.id); ok {
			dispatch(cb, errorResponse(rq.id, status, err))
		}
	}
	return nil
}

// Readiness callback; runs on the loop goroutine.
func (p *AsyncProxy) handleReadable() error {
	for i := 0; i < MAX_REPLIES_PER_WAKEUP; i++ {
		msg, err := p.endpoint.RecvFrames(true)

		if transport.IsAgain(err) {
			return nil
		} else if err != nil {
			return err
		}

		rp, err := protocol.ParseReply(msg, false)

		if err != nil {
			log.SRPC_log(log.LOGLEVEL_ERRORS, "Dropped malformed reply:", err.Error())
			continue
		}

		cb, ok := p.pending.resolve(rp.CallID)

		if !ok {
			log.SRPC_log(log.LOGLEVEL_DEBUG, fmt.Sprintf("[%s] Dropped reply for a call that isn't pending", rp.CallID))
			continue
		}

		p.lock.Lock()
		c := p.codec
		p.lock.Unlock()

		dispatch(cb, newResponse(rp, c))
	}
	return nil
}
