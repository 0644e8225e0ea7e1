package client

import (
	"errors"
	golog "log"
	"sync"
	"time"

	"github.com/dermesser/simplerpc/codec"
	"github.com/dermesser/simplerpc/log"
	"github.com/dermesser/simplerpc/server"
	"github.com/dermesser/simplerpc/transport"

	zmq "github.com/pebbe/zmq4"
)

// Positional arguments of a call.
type Args []interface{}

// Keyword arguments of a call.
type Kwargs map[string]interface{}

/*
Synchronous proxy. Calls block the calling goroutine until the reply has been received.
A Proxy is thread-safe, but only one call is in flight at a time; other callers wait
on a lock. Use several proxies (e.g. from a ProxyCache) for parallel calls.

There's no timeout by default; see SetTimeout().
*/
type Proxy struct {
	lock     sync.Mutex
	endpoint *transport.Endpoint
	pending  *pendingCalls

	codec     codec.Codec
	timeout   time.Duration
	rpclogger *golog.Logger

	// for ProxyCache
	last_used time.Time
	cache_key string
}

/*
Create a new proxy with a DEALER socket in ctx. The proxy has to be connected (or bound)
before calls can be made.
*/
func NewProxy(ctx *zmq.Context) (*Proxy, error) {
	endpoint, err := newDealer(ctx)

	if err != nil {
		return nil, err
	}
	return &Proxy{endpoint: endpoint, pending: newPendingCalls(), codec: codec.Default}, nil
}

// Create a proxy and connect it to url.
func Dial(ctx *zmq.Context, url string) (*Proxy, error) {
	p, err := NewProxy(ctx)

	if err != nil {
		return nil, err
	}
	if err = p.Connect(url); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Connect to a service at url (of the form proto://ip:port). Several urls may be connected.
func (p *Proxy) Connect(url string) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.endpoint.Connect(url)
}

// Bind to url, e.g. to wait for a service to connect.
func (p *Proxy) Bind(url string) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.endpoint.Bind(url)
}

func (p *Proxy) URLs() []string {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.endpoint.URLs()
}

/*
Close the socket and create a new one, forgetting all urls. Replies to calls made
before are never delivered.
*/
func (p *Proxy) Reset() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.pending.clear()
	return p.endpoint.Reset()
}

// Disable the proxy. Following calls fail with STATUS_CLOSED.
func (p *Proxy) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	log.SRPC_log(log.LOGLEVEL_DEBUG, "Closing proxy to", p.endpoint.URLs())
	p.pending.clear()
	return p.endpoint.Close()
}

/*
Sets the duration to wait for sending a request and for receiving its reply. After a timeout,
the call fails with STATUS_TIMEOUT; a reply arriving later is dropped. Zero means no timeout.
*/
func (p *Proxy) SetTimeout(timeout time.Duration) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if timeout < 0 {
		timeout = 0
	}
	p.timeout = timeout
	p.endpoint.SetTimeout(timeout)
}

// Set the codec used for arguments and results. It has to match the service's codec.
func (p *Proxy) SetCodec(c codec.Codec) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.codec = c
}

/*
Log all RPCs made by this proxy to this logging device.
*/
func (p *Proxy) SetRPCLogger(l *golog.Logger) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.rpclogger = l
}

/*
Call method with positional and keyword arguments (both may be nil) and wait for the reply.
The returned response carries either the result, a *RemoteError or a *RequestError.
*/
func (p *Proxy) Invoke(method string, args Args, kwargs Kwargs) *Response {
	return p.request(method, args, kwargs)
}

/*
Call method with the given positional arguments and decode the result into result
(a pointer, or nil if the result is not needed).

Errors are either *RequestError (the call didn't make it) or *RemoteError
(the service's handler failed); use errors.As() to distinguish them.
*/
func (p *Proxy) Call(result interface{}, method string, args ...interface{}) error {
	return p.CallKw(result, method, Args(args), nil)
}

// Like Call(), with keyword arguments.
func (p *Proxy) CallKw(result interface{}, method string, args Args, kwargs Kwargs) error {
	rsp := p.request(method, args, kwargs)

	if !rsp.Ok() {
		return rsp.Err()
	}
	if result == nil {
		return nil
	}
	return rsp.Decode(result)
}

/*
Call the service's built-in ping method. Returns nil if the service was reachable and
answered within the timeout.
*/
func (p *Proxy) Ping() error {
	err := p.Call(nil, server.PING_METHOD)

	if err != nil {
		log.SRPC_log(log.LOGLEVEL_WARNINGS, "RPC backend doesn't respond to ping:", err.Error())
	}
	return err
}

/*
Call the service's built-in health method. Returns nil if the service is healthy; a *RemoteError
of kind Lameduck means that it is going away and no further requests should be made.
*/
func (p *Proxy) HealthCheck() error {
	err := p.Call(nil, server.HEALTH_METHOD)

	if err != nil {
		log.SRPC_log(log.LOGLEVEL_WARNINGS, "RPC backend is unhealthy:", err.Error())
	}
	return err
}

// Whether err is a *RemoteError of the given kind.
func IsRemoteKind(err error, kind string) bool {
	var rerr *RemoteError
	return errors.As(err, &rerr) && rerr.Kind == kind
}
