package transport

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/dermesser/simplerpc/log"

	zmq "github.com/pebbe/zmq4"
)

// Returned by operations on an Endpoint after Close().
var ErrClosed = errors.New("endpoint is closed")

// A network address that a socket can bind to or connect to.
type PeerAddress struct {
	host string
	port uint

	path   string
	inproc string
}

// Construct a new TCP peer address. host may be "*" for binding on all interfaces.
func Peer(host string, port uint) PeerAddress {
	return PeerAddress{host: host, port: port}
}

func IPCPeer(path string) PeerAddress {
	return PeerAddress{path: path}
}

func InprocPeer(name string) PeerAddress {
	return PeerAddress{inproc: name}
}

func (pa PeerAddress) ToUrl() string {
	if pa.host != "" {
		return fmt.Sprintf("tcp://%s:%d", pa.host, pa.port)
	} else if pa.path != "" {
		return fmt.Sprintf("ipc://%s", pa.path)
	} else if pa.inproc != "" {
		return fmt.Sprintf("inproc://%s", pa.inproc)
	} else {
		return ""
	}
}

func (pa PeerAddress) String() string {
	return pa.ToUrl()
}

// Checks that url looks like scheme://address with a scheme ZeroMQ understands.
func ValidateUrl(url string) error {
	i := strings.Index(url, "://")

	if i < 1 || i+3 == len(url) {
		return fmt.Errorf("malformed url %q, expected scheme://address", url)
	}

	switch url[:i] {
	case "tcp", "ipc", "inproc", "pgm", "epgm", "tipc", "ws", "wss":
		return nil
	default:
		return fmt.Errorf("unsupported transport %q in url %q", url[:i], url)
	}
}

/*
An Endpoint owns one ZeroMQ socket and remembers the URLs it was bound or connected to.
Reset() closes the socket and creates a fresh one. Endpoints are not safe for concurrent use;
their owner (a service, a proxy) decides on which goroutine they are used.
*/
type Endpoint struct {
	ctx  *zmq.Context
	kind zmq.Type
	sock *zmq.Socket

	urls []string

	linger  time.Duration
	sndtimo time.Duration
	rcvtimo time.Duration

	// applied to every new socket, e.g. to set router-mandatory mode
	setup func(*zmq.Socket) error
}

/*
Create an endpoint with a socket of type kind (ROUTER for services, DEALER for proxies)
in the given ZeroMQ context. setup may be nil.
*/
func NewEndpoint(ctx *zmq.Context, kind zmq.Type, setup func(*zmq.Socket) error) (*Endpoint, error) {
	if ctx == nil {
		return nil, errors.New("no ZeroMQ context given")
	}

	e := &Endpoint{ctx: ctx, kind: kind, setup: setup, linger: 0, sndtimo: -1, rcvtimo: -1}

	if err := e.createSocket(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Endpoint) createSocket() error {
	sock, err := e.ctx.NewSocket(e.kind)

	if err != nil {
		log.SRPC_log(log.LOGLEVEL_ERRORS, "Error when creating", e.kind.String(), "socket:", err.Error())
		return err
	}

	sock.SetLinger(e.linger)
	sock.SetSndtimeo(e.sndtimo)
	sock.SetRcvtimeo(e.rcvtimo)

	if e.setup != nil {
		if err = e.setup(sock); err != nil {
			log.SRPC_log(log.LOGLEVEL_ERRORS, "Error when setting up", e.kind.String(), "socket:", err.Error())
			sock.Close()
			return err
		}
	}

	e.sock = sock
	return nil
}

// Bind the socket to a url of the form proto://ip:port.
func (e *Endpoint) Bind(url string) error {
	if e.sock == nil {
		return ErrClosed
	}
	if err := ValidateUrl(url); err != nil {
		return err
	}

	if err := e.sock.Bind(url); err != nil {
		log.SRPC_log(log.LOGLEVEL_ERRORS, "Error when binding to", url, ":", err.Error())
		return err
	}

	log.SRPC_log(log.LOGLEVEL_INFO, "Bound", e.kind.String(), "socket to", url)
	e.urls = append(e.urls, url)
	return nil
}

// Connect the socket to a url of the form proto://ip:port.
func (e *Endpoint) Connect(url string) error {
	if e.sock == nil {
		return ErrClosed
	}
	if err := ValidateUrl(url); err != nil {
		return err
	}

	if err := e.sock.Connect(url); err != nil {
		log.SRPC_log(log.LOGLEVEL_ERRORS, "Could not connect to", url, ":", err.Error())
		return err
	}

	log.SRPC_log(log.LOGLEVEL_INFO, "Connected", e.kind.String(), "socket to", url)
	e.urls = append(e.urls, url)
	return nil
}

// The URLs this endpoint was bound or connected to since creation or the last Reset().
func (e *Endpoint) URLs() []string {
	urls := make([]string, len(e.urls))
	copy(urls, e.urls)
	return urls
}

// True once the endpoint was bound or connected at least once.
func (e *Endpoint) Ready() bool {
	return e.sock != nil && len(e.urls) > 0
}

// Closes the current socket and creates a new one. All URLs are forgotten.
func (e *Endpoint) Reset() error {
	if e.sock != nil {
		e.sock.Close()
		e.sock = nil
	}
	e.urls = nil
	return e.createSocket()
}

func (e *Endpoint) Close() error {
	if e.sock == nil {
		return nil
	}
	err := e.sock.Close()
	e.sock = nil
	e.urls = nil
	return err
}

// The underlying socket; nil after Close().
func (e *Endpoint) Socket() *zmq.Socket {
	return e.sock
}

/*
Set send and receive timeouts. Zero or a negative duration means "block forever".
The timeouts survive Reset().
*/
func (e *Endpoint) SetTimeout(d time.Duration) {
	if d <= 0 {
		// the only value zmq4 maps to "infinite"
		d = -1
	}
	e.sndtimo, e.rcvtimo = d, d

	if e.sock != nil {
		e.sock.SetSndtimeo(d)
		e.sock.SetRcvtimeo(d)
	}
}

// Send all frames as one multipart message. With dontwait, EAGAIN is returned instead of blocking.
func (e *Endpoint) SendFrames(frames [][]byte, dontwait bool) error {
	if e.sock == nil {
		return ErrClosed
	}

	var err error
	if dontwait {
		_, err = e.sock.SendMessageDontwait(frames)
	} else {
		_, err = e.sock.SendMessage(frames)
	}
	return err
}

// Receive one multipart message. With dontwait, EAGAIN is returned if no message is waiting.
func (e *Endpoint) RecvFrames(dontwait bool) ([][]byte, error) {
	if e.sock == nil {
		return nil, ErrClosed
	}

	var flags zmq.Flag
	if dontwait {
		flags = zmq.DONTWAIT
	}
	return e.sock.RecvMessageBytes(flags)
}

// Whether err means "would block" or "timed out" (EAGAIN).
func IsAgain(err error) bool {
	return err != nil && zmq.AsErrno(err) == zmq.Errno(syscall.EAGAIN)
}

// Whether err means that a ROUTER socket could not route a message to its peer.
func IsUnroutable(err error) bool {
	return err != nil && zmq.AsErrno(err) == zmq.EHOSTUNREACH
}
