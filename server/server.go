package server

import (
	"errors"
	golog "log"
	"sync"

	"github.com/dermesser/simplerpc/codec"
	"github.com/dermesser/simplerpc/eventloop"
	"github.com/dermesser/simplerpc/log"
	"github.com/dermesser/simplerpc/transport"

	zmq "github.com/pebbe/zmq4"
	"golang.org/x/time/rate"
)

// Namespace of the methods every service answers to.
const BUILTIN_PREFIX = "__simplerpc."

/*
Type of a function that is called when the corresponding method is requested. The returned
value is serialized and sent back; a returned error (or a panic) is sent back as FAILURE reply.
*/
type Handler func(*Context) (interface{}, error)

// Implemented by types that want to expose several methods at once, see RegisterAll().
type Exposer interface {
	RPCMethods() map[string]Handler
}

/*
Handles incoming requests on a ROUTER socket and dispatches them to registered handlers.
All socket operations and all handler invocations happen on the goroutine running the event loop,
so handlers must not block for long.
*/
type Service struct {
	loop     *eventloop.Loop
	endpoint *transport.Endpoint
	// tags the socket's handler on the loop
	name string

	// protects everything below
	lock     sync.Mutex
	handlers map[string]Handler
	// set when the socket is bound for the first time; no registrations afterwards
	frozen bool

	codec        codec.Codec
	drop_unknown bool
	limiter      *rate.Limiter
	// Respond "no" to healthchecks
	lameduck_state bool
	// Do not accept requests anymore
	loadshed_state bool

	rpclogger *golog.Logger
}

/*
Create a service whose socket is driven by loop. The ROUTER socket is created in ctx; it
is neither bound nor connected yet.

Use the setter functions and RegisterHandler() before calling Bind().
*/
func NewService(loop *eventloop.Loop, ctx *zmq.Context) (*Service, error) {
	srv := &Service{loop: loop, name: "service " + log.GetLogToken(), handlers: make(map[string]Handler), codec: codec.Default}

	var err error
	srv.endpoint, err = transport.NewEndpoint(ctx, zmq.ROUTER, func(sock *zmq.Socket) error {
		// Unroutable replies (the proxy has gone away) fail instead of being dropped silently
		return sock.SetRouterMandatory(1)
	})

	if err != nil {
		return nil, err
	}

	srv.registerBuiltins()

	if err = loop.AddSocket(srv.endpoint.Socket(), srv.name, srv.handleReadable); err != nil {
		srv.endpoint.Close()
		return nil, err
	}
	return srv, nil
}

/*
Add a new method. name is the name with which the handler can be identified from the outside.

err is not nil if the method is already registered or the service has already been bound.
*/
func (srv *Service) RegisterHandler(name string, handler Handler) error {
	srv.lock.Lock()
	defer srv.lock.Unlock()

	if srv.frozen {
		log.SRPC_log(log.LOGLEVEL_WARNINGS, "Trying to register method after bind:", name)
		return errors.New("Service already bound; methods can't be registered anymore")
	} else if name == "" || handler == nil {
		return errors.New("Need a method name and a handler")
	} else if _, ok := srv.handlers[name]; ok {
		log.SRPC_log(log.LOGLEVEL_WARNINGS, "Trying to register existing method:", name)
		return errors.New("Method already registered; not overwritten")
	}

	log.SRPC_log(log.LOGLEVEL_INFO, "Registered method:", name)
	srv.handlers[name] = handler
	return nil
}

/*
Register all methods of e. Stops at the first error; methods registered until then stay registered.
*/
func (srv *Service) RegisterAll(e Exposer) error {
	for name, handler := range e.RPCMethods() {
		if err := srv.RegisterHandler(name, handler); err != nil {
			return err
		}
	}
	return nil
}

/*
Removes a method from the set of served methods.

Returns an error value with a description if the method doesn't exist or the service has already been bound.
*/
func (srv *Service) UnregisterHandler(name string) error {
	srv.lock.Lock()
	defer srv.lock.Unlock()

	if srv.frozen {
		return errors.New("Service already bound; methods can't be unregistered anymore")
	} else if _, ok := srv.handlers[name]; !ok {
		log.SRPC_log(log.LOGLEVEL_WARNINGS, "Trying to unregister non-existing method:", name)
		return errors.New("No such method")
	}

	log.SRPC_log(log.LOGLEVEL_INFO, "Unregistered method:", name)
	delete(srv.handlers, name)
	return nil
}

// Names of all registered methods, including the built-in ones.
func (srv *Service) Methods() []string {
	srv.lock.Lock()
	defer srv.lock.Unlock()

	names := make([]string, 0, len(srv.handlers))
	for name := range srv.handlers {
		names = append(names, name)
	}
	return names
}

/*
Bind the service to a url of the form proto://ip:port. The method registry is frozen
on the first call. Must not be called from a handler.
*/
func (srv *Service) Bind(url string) error {
	srv.lock.Lock()
	srv.frozen = true
	srv.lock.Unlock()

	return srv.loop.Invoke(func() error { return srv.endpoint.Bind(url) })
}

// Connect the service to a url, e.g. a device that forwards requests to it. Freezes the registry like Bind().
func (srv *Service) Connect(url string) error {
	srv.lock.Lock()
	srv.frozen = true
	srv.lock.Unlock()

	return srv.loop.Invoke(func() error { return srv.endpoint.Connect(url) })
}

// The urls that the service was bound or connected to.
func (srv *Service) URLs() []string {
	var urls []string
	srv.loop.Invoke(func() error {
		urls = srv.endpoint.URLs()
		return nil
	})
	return urls
}

/*
Close the socket and create a new one; the service has to be bound again. Must not be called from a handler.
*/
func (srv *Service) Reset() error {
	return srv.loop.Invoke(func() error {
		if sock := srv.endpoint.Socket(); sock != nil {
			srv.loop.Unregister(sock)
		}

		if err := srv.endpoint.Reset(); err != nil {
			return err
		}
		srv.loop.Register(srv.endpoint.Socket(), srv.name, srv.handleReadable)
		return nil
	})
}

// Close the socket. The service may not be used after calling Close().
func (srv *Service) Close() error {
	return srv.loop.Invoke(func() error {
		if sock := srv.endpoint.Socket(); sock != nil {
			srv.loop.Unregister(sock)
		}
		return srv.endpoint.Close()
	})
}

/*
Set the codec used for arguments and results. It has to match the codec of the proxies.
*/
func (srv *Service) SetCodec(c codec.Codec) {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	srv.codec = c
}

/*
Log all RPCs handled by this service to this logging device.
*/
func (srv *Service) SetRPCLogger(l *golog.Logger) {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	srv.rpclogger = l
}

/*
Don't answer requests for unknown methods at all instead of replying with a MethodNotFound
failure. Callers of such methods only notice by timing out.
*/
func (srv *Service) SetDropUnknownMethods(drop bool) {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	srv.drop_unknown = drop
}

/*
Accept at most perSecond requests per second on average, with bursts of up to burst requests.
Requests over the limit are refused with an Overloaded failure. perSecond <= 0 removes the limit.
*/
func (srv *Service) SetRateLimit(perSecond float64, burst int) {
	srv.lock.Lock()
	defer srv.lock.Unlock()

	if perSecond <= 0 {
		srv.limiter = nil
		return
	}
	if burst < 1 {
		burst = 1
	}
	srv.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

/*
A service that is in lameduck mode will respond negatively to health checks
but continue serving requests.
*/
func (srv *Service) SetLameduck(lameduck bool) {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	srv.lameduck_state = lameduck
}

/*
A service in loadshed mode will refuse any requests immediately.
*/
func (srv *Service) SetLoadshed(loadshed bool) {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	srv.loadshed_state = loadshed
}
