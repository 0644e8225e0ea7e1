/*
Package eventloop drives non-blocking sockets with a ZeroMQ reactor. Handlers for socket
readiness, wakeup channels and posted tasks all run on the goroutine executing the loop; they
must not block, or they stall every other socket sharing the loop.

Sockets registered with a loop must only be used by handlers running on that loop.
*/
package eventloop

import (
	"errors"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/dermesser/simplerpc/log"

	zmq "github.com/pebbe/zmq4"
)

const DEFAULT_INTERVAL = 10 * time.Millisecond

// Number of tasks that can be posted before Post() blocks.
const taskBuffer = 64

var ErrRunning = errors.New("event loop is already running")

// returned by the stop task to end reactor.Run()
var errStop = errors.New("stop requested")

var errStale = errors.New("event loop stopped before running task")

type task struct {
	f    func() error
	done chan error
	// the run the task was submitted to; nil for tasks that may run in any run
	run chan struct{}
}

type Loop struct {
	reactor  *zmq.Reactor
	interval time.Duration

	tasks chan interface{}
	// names of registered sockets; only used on the loop goroutine
	sockets map[*zmq.Socket]string

	mx      sync.Mutex
	running bool
	stopped chan struct{}
}

/*
Create a new loop. interval is the poll timeout of the reactor, i.e. the maximum latency
with which posted tasks and wakeup channels are noticed while no socket is active.
Zero means DEFAULT_INTERVAL.
*/
func New(interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DEFAULT_INTERVAL
	}

	l := &Loop{reactor: zmq.NewReactor(), interval: interval, tasks: make(chan interface{}, taskBuffer),
		sockets: make(map[*zmq.Socket]string)}
	l.reactor.AddChannel(l.tasks, 0, l.runTask)

	return l
}

func (l *Loop) runTask(item interface{}) error {
	t := item.(*task)

	// Left over from an earlier run, whose submitter has already been told that it failed
	if t.run != nil && t.run != l.current() {
		if t.done != nil {
			t.done <- errStale
		}
		return nil
	}

	err := t.f()

	if t.done != nil {
		if err == errStop {
			t.done <- nil
		} else {
			t.done <- err
		}
	}

	if err == errStop {
		return errStop
	}
	if err != nil && t.done == nil {
		log.SRPC_log(log.LOGLEVEL_WARNINGS, "Posted task failed:", err.Error())
	}
	return nil
}

func (l *Loop) current() chan struct{} {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.stopped
}

// Marks the loop as running. Returns the channel closed when it stops.
func (l *Loop) begin() (chan struct{}, error) {
	l.mx.Lock()
	defer l.mx.Unlock()

	if l.running {
		return nil, ErrRunning
	}
	l.running = true
	l.stopped = make(chan struct{})
	return l.stopped, nil
}

func (l *Loop) run(stopped chan struct{}) error {
	defer func() {
		l.mx.Lock()
		l.running = false
		l.mx.Unlock()
		close(stopped)
	}()

	log.SRPC_log(log.LOGLEVEL_DEBUG, "Event loop started")

	for {
		// re-run reactor if its internal poll fails with "interrupted system call"
		err := l.reactor.Run(l.interval)

		if err == nil || err == errStop {
			log.SRPC_log(log.LOGLEVEL_DEBUG, "Event loop stopped")
			return nil
		} else if zmq.AsErrno(err) != zmq.Errno(syscall.EINTR) {
			log.SRPC_log(log.LOGLEVEL_ERRORS, "Event loop failed:", err.Error())
			return err
		}
		log.SRPC_log(log.LOGLEVEL_WARNINGS, "Event loop interrupted, restarting:", err.Error())
	}
}

/*
Run the loop on the current goroutine until Stop() is called. Handler errors never end the
loop; they are logged. Returns ErrRunning if the loop is already running, and the reactor's
error if polling fails for another reason than EINTR.
*/
func (l *Loop) Run() error {
	stopped, err := l.begin()

	if err != nil {
		return err
	}
	return l.run(stopped)
}

// Run the loop in a new goroutine. Failures are logged.
func (l *Loop) Start() error {
	stopped, err := l.begin()

	if err != nil {
		return err
	}
	go l.run(stopped)
	return nil
}

func (l *Loop) Running() bool {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.running
}

/*
Stop the loop and wait until it has returned. Does nothing if the loop is not running.
Must not be called from a handler running on the loop.
*/
func (l *Loop) Stop() {
	l.mx.Lock()
	if !l.running {
		l.mx.Unlock()
		return
	}
	stopped := l.stopped
	l.mx.Unlock()

	l.tasks <- &task{f: func() error { return errStop }, run: stopped}
	<-stopped
}

// Run f on the loop goroutine at some point in the future. Errors returned by f are logged.
func (l *Loop) Post(f func() error) {
	l.tasks <- &task{f: f}
}

/*
Run f on the loop goroutine and wait for its result. If the loop is not running, f is
executed right away on the calling goroutine. Must not be called from a handler running on the loop.
*/
func (l *Loop) Invoke(f func() error) error {
	l.mx.Lock()
	if !l.running {
		defer l.mx.Unlock()
		return f()
	}
	stopped := l.stopped
	l.mx.Unlock()

	t := &task{f: f, done: make(chan error, 1), run: stopped}
	l.tasks <- t

	select {
	case err := <-t.done:
		return err
	case <-stopped:
		// The loop was stopped before running the task; it may still have run it.
		// Otherwise it is discarded if it is still queued when the loop runs again.
		select {
		case err := <-t.done:
			return err
		default:
			return errStale
		}
	}
}

/*
Register a readiness handler for sock. handler is called on the loop goroutine whenever
sock has a message waiting; errors returned by it are logged.
Must be called from a handler or task running on the loop, or while the loop is not running.
*/
func (l *Loop) Register(sock *zmq.Socket, name string, handler func() error) {
	l.sockets[sock] = name
	l.reactor.AddSocket(sock, zmq.POLLIN, func(zmq.State) error {
		if err := handler(); err != nil {
			log.SRPC_log(log.LOGLEVEL_WARNINGS, "Handler for", name, "failed:", err.Error())
		}
		return nil
	})
}

// Counterpart of Register(); the same restrictions apply.
func (l *Loop) Unregister(sock *zmq.Socket) {
	delete(l.sockets, sock)
	l.reactor.RemoveSocket(sock)
}

// Names of the sockets currently registered, sorted. Safe to call from any goroutine other than the loop's.
func (l *Loop) Sockets() []string {
	var names []string
	l.Invoke(func() error {
		names = make([]string, 0, len(l.sockets))
		for _, name := range l.sockets {
			names = append(names, name)
		}
		return nil
	})
	sort.Strings(names)
	return names
}

// Like Register(), but safe to call from any goroutine other than the loop's.
func (l *Loop) AddSocket(sock *zmq.Socket, name string, handler func() error) error {
	return l.Invoke(func() error {
		l.Register(sock, name, handler)
		return nil
	})
}

// Like Unregister(), but safe to call from any goroutine other than the loop's.
func (l *Loop) RemoveSocket(sock *zmq.Socket) error {
	return l.Invoke(func() error {
		l.Unregister(sock)
		return nil
	})
}

/*
A wakeup channel lets other goroutines schedule work on the loop without ever blocking:
Notify() never blocks, and several notifications before the handler runs are coalesced into one.
*/
type Wakeup struct {
	ch chan interface{}
	id uint64
}

func (w *Wakeup) Notify() {
	select {
	case w.ch <- nil:
	default:
	}
}

/*
Create a wakeup channel whose handler runs on the loop. Safe to call from any goroutine
other than the loop's.
*/
func (l *Loop) AddWakeup(name string, handler func() error) (*Wakeup, error) {
	w := &Wakeup{ch: make(chan interface{}, 1)}

	err := l.Invoke(func() error {
		w.id = l.reactor.AddChannel(w.ch, 1, func(interface{}) error {
			if err := handler(); err != nil {
				log.SRPC_log(log.LOGLEVEL_WARNINGS, "Wakeup handler for", name, "failed:", err.Error())
			}
			return nil
		})
		return nil
	})

	if err != nil {
		return nil, err
	}
	return w, nil
}

// Safe to call from any goroutine other than the loop's.
func (l *Loop) RemoveWakeup(w *Wakeup) error {
	return l.Invoke(func() error {
		l.reactor.RemoveChannel(w.id)
		return nil
	})
}
