// Package model defines the per-request data passed between the HTTP
// surface, the forwarder and the backend client. None of it outlives a
// single request.
package model

// BodyKind says how an inbound body was captured.
type BodyKind int

const (
	// BodyNone is used for GET and HEAD, which never carry a body.
	BodyNone BodyKind = iota
	// BodyBinary is a multipart payload captured as raw bytes.
	BodyBinary
	// BodyText is any other payload (JSON, urlencoded forms, plain text).
	BodyText
)

func (k BodyKind) String() string {
	switch k {
	case BodyNone:
		return "none"
	case BodyBinary:
		return "binary"
	case BodyText:
		return "text"
	default:
		return "unknown"
	}
}

// InboundRequest is a frontend request accepted on a route family.
type InboundRequest struct {
	Method string
	// Prefix is the route family the request matched, e.g. "/api/auth".
	Prefix string
	// Segments holds the wildcard path segments in escaped form.
	Segments []string
	RawQuery string
	Header   Header
	// Cookie is every inbound Cookie line joined with "; ".
	Cookie   string
	Body     []byte
	BodyKind BodyKind
}

// OutboundRequest is the request sent to the backend.
type OutboundRequest struct {
	URL      string
	Method   string
	Header   Header
	Body     []byte
	BodyKind BodyKind
}

// BackendResponse is a fully buffered backend response. Any content-coding
// has already been removed from Body.
type BackendResponse struct {
	StatusCode int
	StatusText string
	Header     Header
	Body       []byte
}

// RelayedResponse is what goes back to the original caller.
type RelayedResponse struct {
	StatusCode int
	StatusText string
	Header     Header
	Body       []byte
}
