package server

/*
* This file implements the default methods every service answers to:
* __simplerpc.Ping, which always succeeds with an empty result, and
* __simplerpc.Health, which fails while the service is in lameduck mode.
 */

const (
	PING_METHOD   = BUILTIN_PREFIX + "Ping"
	HEALTH_METHOD = BUILTIN_PREFIX + "Health"
)

func (srv *Service) registerBuiltins() {
	srv.handlers[PING_METHOD] = pingHandler
	srv.handlers[HEALTH_METHOD] = srv.makeHealthHandler()
}

// Returns a handler function that returns an empty result
// iff the service is not in lameduck mode, otherwise a Lameduck failure.
func (srv *Service) makeHealthHandler() Handler {
	return func(ctx *Context) (interface{}, error) {
		srv.lock.Lock()
		lameduck := srv.lameduck_state
		srv.lock.Unlock()

		if lameduck {
			return nil, NewError(KIND_LAMEDUCK, "Lameduck mode")
		}
		return nil, nil
	}
}

func pingHandler(ctx *Context) (interface{}, error) {
	return nil, nil
}
