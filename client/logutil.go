package client

import (
	"fmt"
	golog "log"
	"strings"

	"github.com/dermesser/simplerpc/protocol"
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

func connIdString(urls []string, method string, id protocol.CallID, size int) string {
	return fmt.Sprintf("%s ->%v %s %d B:", id, urls, method, size)
}

func rpclogRequest(l *golog.Logger, urls []string, method string, id protocol.CallID, frames [][]byte) {
	if l != nil {
		// args and kwargs blobs
		args, kwargs := frames[len(frames)-2], frames[len(frames)-1]
		l.Println(log_REQUEST.String(), connIdString(urls, method, id, len(args)+len(kwargs)), logString(args), logString(kwargs))
	}
}

func rpclogResponse(l *golog.Logger, urls []string, method string, rsp *Response) {
	if l == nil {
		return
	}
	if rsp.Ok() {
		l.Println(log_RESPONSE.String(), connIdString(urls, method, rsp.id, len(rsp.result)), logString(rsp.result))
	} else {
		l.Println(log_ERROR.String(), connIdString(urls, method, rsp.id, 0), rsp.Err().Error())
	}
}
