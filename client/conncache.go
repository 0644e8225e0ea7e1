package client

import (
	"container/list"
	"sync"
	"time"

	"github.com/dermesser/simplerpc/codec"

	zmq "github.com/pebbe/zmq4"
)

/*
ProxyCache is a pool of synchronous proxies. Applications call Connect() and get, transparently,
either a cached proxy or a newly created one. After being finished with using the proxy,
the application should call Return() with the proxy if it wants to use it later again.

As every Proxy has only one call in flight, taking one proxy per goroutine from a cache
is the way to make parallel synchronous calls.
*/
type ProxyCache struct {
	ctx *zmq.Context
	// Map url -> idle proxies
	cache map[string]*list.List

	timeout time.Duration
	codec   codec.Codec

	mx sync.Mutex
}

func NewProxyCache(ctx *zmq.Context) *ProxyCache {
	return &ProxyCache{ctx: ctx, cache: make(map[string]*list.List), codec: codec.Default}
}

// Timeout applied to newly created proxies.
func (pc *ProxyCache) SetTimeout(d time.Duration) {
	pc.mx.Lock()
	defer pc.mx.Unlock()
	pc.timeout = d
}

// Codec applied to newly created proxies.
func (pc *ProxyCache) SetCodec(c codec.Codec) {
	pc.mx.Lock()
	defer pc.mx.Unlock()
	pc.codec = c
}

/*
Get a proxy connected to url, either from the pool or a new one, depending on if there are
proxies available.
*/
func (pc *ProxyCache) Connect(url string) (*Proxy, error) {
	pc.mx.Lock()
	defer pc.mx.Unlock()

	ps, ok := pc.cache[url]

	if ok {
		if ps.Len() > 0 {
			p := ps.Front().Value.(*Proxy)
			ps.Remove(ps.Front())
			return p, nil
		}
	} else {
		pc.cache[url] = list.New()
	}

	p, err := Dial(pc.ctx, url)

	if err != nil {
		return nil, err
	}

	p.SetTimeout(pc.timeout)
	p.SetCodec(pc.codec)
	p.cache_key = url
	p.last_used = time.Now()

	return p, nil
}

/*
Return a proxy into the pool. Argument is a pointer to a pointer to make sure that the proxy
is not used by the calling function after this call. Proxies not created by this cache are closed.
*/
func (pc *ProxyCache) Return(pp **Proxy) {
	pc.mx.Lock()
	defer pc.mx.Unlock()

	p := *pp
	*pp = nil

	if p == nil {
		return
	} else if p.cache_key == "" {
		p.Close()
		return
	}

	ps, ok := pc.cache[p.cache_key]

	if !ok {
		// Happens when there was a garbage collection (CleanOld()) in between
		ps = list.New()
		pc.cache[p.cache_key] = ps
	}

	ps.PushBack(p)
}

// Number of idle proxies for url.
func (pc *ProxyCache) Idle(url string) int {
	pc.mx.Lock()
	defer pc.mx.Unlock()

	if ps, ok := pc.cache[url]; ok {
		return ps.Len()
	}
	return 0
}

/*
Remove and close all proxies from the pool that haven't been used for longer than older_than. Also
cleans up empty cache entries.
*/
func (pc *ProxyCache) CleanOld(older_than time.Duration) {
	pc.mx.Lock()
	defer pc.mx.Unlock()

	for url, ps := range pc.cache {
		var next *list.Element

		for e := ps.Front(); e != nil; e = next {
			next = e.Next()
			p := e.Value.(*Proxy)

			if time.Since(p.last_used) >= older_than {
				p.Close()
				ps.Remove(e)
			}
		}

		if ps.Len() == 0 {
			delete(pc.cache, url)
		}
	}
}

// Closes all idle proxies
func (pc *ProxyCache) CloseAll() {
	pc.CleanOld(0)
}
