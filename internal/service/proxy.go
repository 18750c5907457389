// Package service implements the core proxy forwarding logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang/gddo/httputil/header"

	"api-bridge-go/internal/config"
	"api-bridge-go/internal/model"
)

// ErrTransport marks a failure to reach the backend or read its response.
// Backend 4xx/5xx answers are never reported through it.
var ErrTransport = errors.New("backend transport failure")

// droppedResponseHeaders describe the backend's framing of a body that has
// since been buffered and decoded; replaying them would misdescribe it.
var droppedResponseHeaders = map[string]bool{
	"Transfer-Encoding": true,
	"Content-Encoding":  true,
	"Content-Length":    true,
}

// Doer sends an outbound request and returns the buffered backend response.
type Doer interface {
	Do(ctx context.Context, out *model.OutboundRequest) (*model.BackendResponse, error)
}

// ProxyService forwards inbound requests to the configured backend origin.
// It keeps no per-request state and is safe for concurrent use.
type ProxyService struct {
	client  Doer
	logger  *slog.Logger
	baseURL string
}

// NewProxyService creates a ProxyService for cfg.Backend.URL.
func NewProxyService(c Doer, cfg *config.Config, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		client:  c,
		logger:  logger.With("component", "proxy_service"),
		baseURL: strings.TrimRight(cfg.Backend.URL, "/"),
	}
}

// Forward sends in to the backend and returns the response to relay.
// A transport failure is returned wrapped in ErrTransport and is never
// retried.
func (s *ProxyService) Forward(ctx context.Context, in *model.InboundRequest) (*model.RelayedResponse, error) {
	out := s.Outbound(in)

	s.logger.Debug("forwarding request",
		"method", out.Method,
		"url", out.URL,
		"body_kind", out.BodyKind.String(),
	)

	resp, err := s.client.Do(ctx, out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	return Relay(resp), nil
}

// Outbound builds the backend request for in.
func (s *ProxyService) Outbound(in *model.InboundRequest) *model.OutboundRequest {
	return &model.OutboundRequest{
		URL:      s.TargetURL(in.Prefix, in.Segments, in.RawQuery),
		Method:   in.Method,
		Header:   RequestHeaders(in.Header, in.Cookie),
		Body:     in.Body,
		BodyKind: in.BodyKind,
	}
}

// TargetURL joins the backend base URL, the route prefix, the wildcard
// segments and the raw query. The query is copied verbatim.
func (s *ProxyService) TargetURL(prefix string, segments []string, rawQuery string) string {
	var b strings.Builder
	b.WriteString(s.baseURL)
	b.WriteString(prefix)
	b.WriteByte('/')
	b.WriteString(strings.Join(segments, "/"))
	if rawQuery != "" {
		b.WriteByte('?')
		b.WriteString(rawQuery)
	}
	return b.String()
}

// CaptureBody reads an inbound body according to the method and content
// type. GET and HEAD never carry a body and r is not read. Multipart
// payloads are captured as raw bytes so boundaries survive untouched; every
// other payload is captured as text. Either way the bytes are forwarded
// unchanged.
func CaptureBody(method, contentType string, r io.Reader) ([]byte, model.BodyKind, error) {
	if method == http.MethodGet || method == http.MethodHead {
		return nil, model.BodyNone, nil
	}

	kind := model.BodyText
	if isMultipart(contentType) {
		kind = model.BodyBinary
	}
	if r == nil || r == http.NoBody {
		return []byte{}, kind, nil
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, kind, fmt.Errorf("read %s body: %w", kind, err)
	}
	return body, kind, nil
}

func isMultipart(contentType string) bool {
	if contentType == "" {
		return false
	}
	h := http.Header{"Content-Type": {contentType}}
	mediaType, _ := header.ParseValueAndParams(h, "Content-Type")
	return strings.HasPrefix(strings.ToLower(mediaType), "multipart/")
}

// RequestHeaders copies every inbound field except Host, then re-asserts the
// inbound cookie string so session cookies always reach the backend.
func RequestHeaders(in model.Header, cookie string) model.Header {
	out := make(model.Header, 0, len(in)+1)
	for _, f := range in {
		if http.CanonicalHeaderKey(f.Name) == "Host" {
			continue
		}
		out.Add(f.Name, f.Value)
	}
	if cookie != "" {
		out.Set("Cookie", cookie)
	}
	return out
}

// Relay turns a backend response into the response for the original caller.
//
// Set-Cookie fields are always appended so every cookie survives. Framing
// headers (Transfer-Encoding, Content-Encoding, Content-Length) are dropped
// since the body has been buffered and decoded. Any other repeated name is
// folded into one comma-joined value. Content-Type is re-asserted from the
// backend when present.
func Relay(resp *model.BackendResponse) *model.RelayedResponse {
	out := make(model.Header, 0, len(resp.Header))
	for _, f := range resp.Header {
		name := http.CanonicalHeaderKey(f.Name)
		switch {
		case droppedResponseHeaders[name]:
			continue
		case name == "Set-Cookie":
			out.Add(name, f.Value)
		case out.Has(name):
			out.Set(name, out.Get(name)+", "+f.Value)
		default:
			out.Add(name, f.Value)
		}
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		out.Set("Content-Type", ct)
	}

	return &model.RelayedResponse{
		StatusCode: resp.StatusCode,
		StatusText: resp.StatusText,
		Header:     out,
		Body:       resp.Body,
	}
}
