package protocol

import "strings"

const (
	// KeepAliveHeader is the request header that asks the server to keep the
	// connection open for another request after the response is written.
	KeepAliveHeader = "Keep-Alive"

	// DelayHeader is consulted by the /delay demo handler.
	DelayHeader = "Delay"

	// LengthPrefixSize is the size of the [headerLength][bodyLength] prefix.
	LengthPrefixSize = 8

	// ResponsePrefixSize is the size of the [statusCode][bodyLength] prefix.
	ResponsePrefixSize = 8

	// MaxFieldLength is the largest path, header key or header value that fits
	// a u16 length field.
	MaxFieldLength = 0xFFFF

	// MaxHeaderCount is the largest number of headers a frame can carry.
	MaxHeaderCount = 0xFFFF

	// DefaultMaxFrameSize bounds headerLength+bodyLength when no explicit
	// limit is configured.
	DefaultMaxFrameSize = 1 << 20 // 1MB
)

// Request is a decoded request frame.
//
// A Request is built once per completed frame and must be treated as
// immutable by handlers.
type Request struct {
	Path    string
	Headers map[string]string
	Body    []byte
}

// Header returns the value of the named header and whether it was present.
// Lookup is exact: header keys are opaque byte strings on the wire.
func (r *Request) Header(key string) (string, bool) {
	if r == nil || r.Headers == nil {
		return "", false
	}
	v, ok := r.Headers[key]
	return v, ok
}

// Response is the result a handler produces for a Request.
type Response struct {
	StatusCode int
	Body       []byte
}

// NewResponse is a small convenience for handlers.
func NewResponse(status int, body []byte) *Response {
	return &Response{StatusCode: status, Body: body}
}

// KeepAlive reports whether the request asked to keep the connection open.
//
// The Keep-Alive header value is compared case-insensitively with "true";
// an absent header or any other value means the connection closes after the
// response.
func KeepAlive(req *Request) bool {
	v, ok := req.Header(KeepAliveHeader)
	return ok && strings.EqualFold(v, "true")
}
