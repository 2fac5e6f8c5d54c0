package server

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/ValentinKolb/udsrpc/rpc/transport"
)

// Echo answers with the request itself
func Echo(req []byte) []byte {
	// the request aliases the read buffer of the connection
	return bytes.Clone(req)
}

// Upper answers with the upper case request
func Upper(req []byte) []byte {
	return bytes.ToUpper(req)
}

// Multiply answers a decimal integer with ten times its value, anything else yields "NaN"
func Multiply(req []byte) []byte {
	n, err := strconv.ParseInt(string(bytes.TrimSpace(req)), 10, 64)
	if err != nil {
		return []byte("NaN")
	}
	return strconv.AppendInt(nil, n*10, 10)
}

var handlers = map[string]transport.ServerHandleFunc{
	"echo":     Echo,
	"upper":    Upper,
	"multiply": Multiply,
}

// HandlerByName returns one of the built-in handlers (echo, upper, multiply)
func HandlerByName(name string) (transport.ServerHandleFunc, error) {
	h, ok := handlers[name]
	if !ok {
		return nil, fmt.Errorf("unknown handler %q (expected one of %v)", name, HandlerNames())
	}
	return h, nil
}

// HandlerNames lists the names of the built-in handlers
func HandlerNames() []string {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
