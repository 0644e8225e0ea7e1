package log

import (
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"sync"
	"time"
)

const (
	// Log absolutely nothing
	LOGLEVEL_NONE int = iota
	// Log situations that are not expected to happen and
	// are difficult to handle (e.g. malformed frames on the wire)
	LOGLEVEL_ERRORS
	// Log non-critical situations that might happen, but shouldn't (e.g. unknown methods, late replies)
	LOGLEVEL_WARNINGS
	// Log situations that are expected, but important for the operation
	LOGLEVEL_INFO
	// Log everything
	LOGLEVEL_DEBUG
)

func init() {
	logger = log.New(os.Stderr, "simplerpc ", logger_flags)
	loglevel = LOGLEVEL_WARNINGS
	token_source = rand.New(rand.NewSource(time.Now().UnixNano()))
}

var logger *log.Logger
var loglevel int

var token_lock sync.Mutex
var token_source *rand.Rand

const logger_flags = log.LstdFlags | log.Lmicroseconds

var loglevel_strings []string = []string{"[NON]", "[ERR]", "[WRN]", "[INF]", "[DBG]"}

func loglevel_to_string(ll int) string {
	if ll < 0 || ll >= len(loglevel_strings) {
		return "[???]"
	}
	return loglevel_strings[ll]
}

// Set the global RPC log level
func SetLoglevel(ll int) {
	loglevel = ll
}

// Returns the global RPC log level
func GetLoglevel() int {
	return loglevel
}

// Redirect all library log output to w.
func SetLoggingOutput(w io.Writer) {
	logger = log.New(w, logger.Prefix(), logger.Flags())
}

// Performance-enhancer: Prevent unnecessary log calls
func IsLoggingEnabled(ll int) bool {
	return loglevel >= ll
}

func SRPC_log(ll int, what ...interface{}) {
	if ll <= loglevel {
		logger.Printf("%s: %s", loglevel_to_string(ll), fmt.Sprintln(what...))
	}
}

func SRPC_logf(ll int, format string, what ...interface{}) {
	if ll <= loglevel {
		logger.Printf("%s: %s", loglevel_to_string(ll), fmt.Sprintf(format, what...))
	}
}

func mapToChar(i int) byte {
	i = i % (10 + 26 + 26)
	if i < 10 {
		return byte('0' + i)
	} else if i < 10+26 {
		return byte('A' + i - 10)
	} else if i < 10+26+26 {
		return byte('a' + i - 10 - 26)
	}
	return byte('_')
}

// Returns a short random alphanumeric string.
// Used to tag the lines belonging to one proxy or service instance in the logs.
func GetLogToken() string {
	token_lock.Lock()
	defer token_lock.Unlock()

	str := make([]byte, 6)
	for i := range str {
		str[i] = mapToChar(token_source.Int())
	}
	return string(str)
}
