package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/dermesser/simplerpc/codec"
	"github.com/dermesser/simplerpc/log"
	"github.com/dermesser/simplerpc/protocol"
	"github.com/dermesser/simplerpc/transport"

	"github.com/google/uuid"
	zmq "github.com/pebbe/zmq4"
)

// DEALER endpoint with a random identity, so a service can tell proxies apart in its logs.
func newDealer(ctx *zmq.Context) (*transport.Endpoint, error) {
	return transport.NewEndpoint(ctx, zmq.DEALER, func(sock *zmq.Socket) error {
		if err := sock.SetIdentity(uuid.NewString()); err != nil {
			return err
		}
		return sock.SetReconnectIvl(100 * time.Millisecond)
	})
}

// Serialize a request without routing identity.
func encodeRequest(c codec.Codec, id protocol.CallID, method string, args Args, kwargs Kwargs) ([][]byte, error) {
	if args == nil {
		args = Args{}
	}
	if kwargs == nil {
		kwargs = Kwargs{}
	}

	a, err := codec.Encode(c, []interface{}(args))

	if err != nil {
		return nil, err
	}

	k, err := codec.Encode(c, map[string]interface{}(kwargs))

	if err != nil {
		return nil, err
	}

	rq := protocol.Request{CallID: id, Method: method, Args: a, Kwargs: k}
	return rq.Serialize(), nil
}

func socketError(err error) Status {
	if transport.IsAgain(err) {
		return STATUS_TIMEOUT
	} else if err == transport.ErrClosed {
		return STATUS_CLOSED
	}
	return STATUS_NETWORK_ERROR
}

/*
Encode, send, and wait for the matching reply. Replies for other (abandoned) calls are dropped.
*/
func (p *Proxy) request(method string, args Args, kwargs Kwargs) *Response {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.endpoint.Socket() == nil {
		return errorResponse("", STATUS_CLOSED, transport.ErrClosed)
	} else if !p.endpoint.Ready() {
		return errorResponse("", STATUS_NOT_READY, errors.New("proxy is neither bound nor connected"))
	}

	id := protocol.NewCallID()
	frames, err := encodeRequest(p.codec, id, method, args, kwargs)

	if err != nil {
		log.SRPC_log(log.LOGLEVEL_WARNINGS, fmt.Sprintf("[%s] Could not encode arguments for %s: %s", id, method, err.Error()))
		return errorResponse(id, STATUS_ENCODE_ERROR, err)
	}

	var rsp *Response
	if err = p.pending.register(id, func(r *Response) { rsp = r }); err != nil {
		return errorResponse(id, STATUS_UNKNOWN, err)
	}

	urls := p.endpoint.URLs()
	rpclogRequest(p.rpclogger, urls, method, id, frames)

	if err = p.endpoint.SendFrames(frames, false); err != nil {
		log.SRPC_log(log.LOGLEVEL_ERRORS, fmt.Sprintf("[%s] Could not send request for %s to %v: %s", id, method, urls, err.Error()))
		p.pending.abandon(id)
		return errorResponse(id, socketError(err), err)
	}

	log.SRPC_log(log.LOGLEVEL_DEBUG, fmt.Sprintf("[%s] Sent request to %v: %s", id, urls, method))

	var deadline time.Time
	if p.timeout > 0 {
		deadline = time.Now().Add(p.timeout)
	}

	for rsp == nil {
		if !deadline.IsZero() && time.Now().After(deadline) {
			p.pending.abandon(id)
			return errorResponse(id, STATUS_TIMEOUT, errors.New("no reply within timeout"))
		}

		msg, err := p.endpoint.RecvFrames(false)

		if err != nil {
			log.SRPC_log(log.LOGLEVEL_ERRORS, fmt.Sprintf("[%s] Could not receive reply for %s, error %s", id, method, err.Error()))
			p.pending.abandon(id)
			return errorResponse(id, socketError(err), err)
		}

		rp, err := protocol.ParseReply(msg, false)

		if err != nil {
			log.SRPC_log(log.LOGLEVEL_ERRORS, "Dropped malformed reply:", err.Error())
			continue
		}

		cb, ok := p.pending.resolve(rp.CallID)

		if !ok {
			log.SRPC_log(log.LOGLEVEL_WARNINGS, fmt.Sprintf("[%s] Dropped reply for a call that isn't pending", rp.CallID))
			continue
		}
		cb(newResponse(rp, p.codec))
	}

	p.last_used = time.Now()
	rpclogResponse(p.rpclogger, urls, method, rsp)

	return rsp
}
