package server

import (
	"fmt"
	"strings"
)

type rpclog_type int

const (
	log_REQUEST rpclog_type = iota
	log_RESPONSE
	log_ERROR
)

func (t rpclog_type) String() string {
	switch t {
	case log_REQUEST:
		return "REQ"
	case log_RESPONSE:
		return "RSP"
	case log_ERROR:
		return "ERR"
	default:
		return ""
	}
}

func transformRuneToPrintable(r rune) rune {
	if r >= 32 && r < 127 {
		return r
	}
	return '.'
}

func logString(str []byte) string {
	return strings.Map(transformRuneToPrintable, string(str))
}

func (ctx *Context) connIdString(size int) string {
	return fmt.Sprintf("%s %x/%s %d B", ctx.rq.Method, ctx.rq.Identity, ctx.rq.CallID, size)
}

func (ctx *Context) rpclogRequest() {
	if ctx.logger != nil && ctx.log_state == 0 {
		size := len(ctx.rq.Args) + len(ctx.rq.Kwargs)
		ctx.logger.Println(log_REQUEST.String(), ctx.connIdString(size), fmt.Sprint(ctx.args), fmt.Sprint(ctx.kwargs))
		ctx.log_state++
	}
}

func (ctx *Context) rpclogResponse(result []byte) {
	if ctx.logger != nil && ctx.log_state == 1 {
		ctx.logger.Println(log_RESPONSE.String(), ctx.connIdString(len(result)), logString(result))
		ctx.log_state++
	}
}

func (ctx *Context) rpclogErr(err error) {
	if ctx.logger != nil {
		ctx.logger.Println(log_ERROR.String(), ctx.connIdString(0), err.Error())
	}
}

func (ctx *Context) rpclogFailure(f *failure) {
	if ctx.logger != nil {
		ctx.logger.Println(log_ERROR.String(), ctx.connIdString(0), f.kind+":", f.message)
	}
}
