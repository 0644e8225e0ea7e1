package client

import "github.com/dermesser/simplerpc/protocol"

/*
A method of the service behind a Proxy, so that calls read like local ones:

	add := proxy.Method("calc.Add")
	var sum int
	err := add.Call(&sum, 1, 2)
*/
type RemoteMethod struct {
	proxy *Proxy
	name  string
}

func (p *Proxy) Method(name string) RemoteMethod {
	return RemoteMethod{proxy: p, name: name}
}

func (m RemoteMethod) Name() string {
	return m.name
}

func (m RemoteMethod) Call(result interface{}, args ...interface{}) error {
	return m.proxy.CallKw(result, m.name, Args(args), nil)
}

func (m RemoteMethod) CallKw(result interface{}, args Args, kwargs Kwargs) error {
	return m.proxy.CallKw(result, m.name, args, kwargs)
}

func (m RemoteMethod) Invoke(args Args, kwargs Kwargs) *Response {
	return m.proxy.Invoke(m.name, args, kwargs)
}

// A method of the service behind an AsyncProxy.
type AsyncRemoteMethod struct {
	proxy *AsyncProxy
	name  string
}

func (p *AsyncProxy) Method(name string) AsyncRemoteMethod {
	return AsyncRemoteMethod{proxy: p, name: name}
}

func (m AsyncRemoteMethod) Name() string {
	return m.name
}

func (m AsyncRemoteMethod) Call(cb Callback, args ...interface{}) (protocol.CallID, error) {
	return m.proxy.CallKw(m.name, cb, Args(args), nil)
}

func (m AsyncRemoteMethod) CallKw(cb Callback, args Args, kwargs Kwargs) (protocol.CallID, error) {
	return m.proxy.CallKw(m.name, cb, args, kwargs)
}
