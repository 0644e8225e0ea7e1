package client

import (
	"errors"
	"sync"

	"github.com/dermesser/simplerpc/protocol"
)

// Called with the outcome of an asynchronous call. Runs on the event loop goroutine.
type Callback func(*Response)

/*
The correlation ledger: maps the call id of every call in flight to whatever waits for its reply.
Calls are registered by the calling goroutine and resolved by the goroutine receiving replies.
*/
type pendingCalls struct {
	mx    sync.Mutex
	calls map[protocol.CallID]Callback
}

func newPendingCalls() *pendingCalls {
	return &pendingCalls{calls: make(map[protocol.CallID]Callback)}
}

func (p *pendingCalls) register(id protocol.CallID, cb Callback) error {
	p.mx.Lock()
	defer p.mx.Unlock()

	if _, ok := p.calls[id]; ok {
		return errors.New("call id already pending: " + string(id))
	}
	p.calls[id] = cb
	return nil
}

// Removes and returns the entry for id. A second resolve of the same id returns false.
func (p *pendingCalls) resolve(id protocol.CallID) (Callback, bool) {
	p.mx.Lock()
	defer p.mx.Unlock()

	cb, ok := p.calls[id]
	if ok {
		delete(p.calls, id)
	}
	return cb, ok
}

// Forget id; a reply arriving later is dropped. Returns false if id wasn't pending.
func (p *pendingCalls) abandon(id protocol.CallID) bool {
	_, ok := p.resolve(id)
	return ok
}

// Forget all calls, returning how many there were.
func (p *pendingCalls) clear() int {
	p.mx.Lock()
	defer p.mx.Unlock()

	n := len(p.calls)
	p.calls = make(map[protocol.CallID]Callback)
	return n
}

func (p *pendingCalls) len() int {
	p.mx.Lock()
	defer p.mx.Unlock()
	return len(p.calls)
}
