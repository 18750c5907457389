// Package client provides the HTTP client used to reach the backend API.
package client

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang/gddo/httputil/header"
	"go.uber.org/multierr"

	"api-bridge-go/internal/config"
	"api-bridge-go/internal/metrics"
	"api-bridge-go/internal/model"
)

// decodableCodings are the content-codings Do can remove from a body.
var decodableCodings = map[string]bool{
	"gzip":     true,
	"x-gzip":   true,
	"deflate":  true,
	"identity": true,
}

// BackendClient sends single-attempt requests to the backend and buffers
// the responses.
type BackendClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewBackendClient creates a BackendClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable backend metrics recording.
func NewBackendClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *BackendClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Backend.IdleConnections,
		MaxIdleConnsPerHost: cfg.Backend.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	hc := &http.Client{
		Transport: transport,
		Timeout:   time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
	}
	if !cfg.Backend.FollowRedirects {
		hc.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &BackendClient{
		httpClient: hc,
		logger:     logger.With("component", "backend_client"),
		metrics:    m,
	}
}

// Do executes out against the backend and returns the fully buffered
// response. The provided context controls the lifetime of the call: when it
// is canceled (e.g. the caller disconnects) the backend call is canceled too.
//
// Bodies in a decodable content-coding are returned decoded, with their
// Content-Encoding and Content-Length headers removed.
func (c *BackendClient) Do(ctx context.Context, out *model.OutboundRequest) (*model.BackendResponse, error) {
	var body io.Reader
	if out.Body != nil {
		body = bytes.NewReader(out.Body)
	}
	req, err := http.NewRequestWithContext(ctx, out.Method, out.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	req.Header = out.Header.HTTP()
	narrowAcceptEncoding(req.Header)

	c.logger.Debug("backend request",
		"method", req.Method,
		"path", req.URL.Path,
		"body_bytes", len(out.Body),
	)

	method := metrics.NormalizeMethod(req.Method)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(method, 0, time.Since(start))
		return nil, fmt.Errorf("backend request: %w", err)
	}

	raw, err := io.ReadAll(resp.Body)
	err = multierr.Append(err, resp.Body.Close())
	c.observe(method, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("read backend response: %w", err)
	}

	hdr := resp.Header.Clone()
	if !resp.Uncompressed {
		raw, err = c.decode(hdr, raw)
		if err != nil {
			return nil, fmt.Errorf("decode backend response: %w", err)
		}
	}

	return &model.BackendResponse{
		StatusCode: resp.StatusCode,
		StatusText: statusText(resp),
		Header:     model.HeaderFromHTTP(hdr),
		Body:       raw,
	}, nil
}

// observe records latency and outcome. A zero status marks a transport failure.
func (c *BackendClient) observe(method string, status int, d time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.BackendDuration.WithLabelValues(method).Observe(d.Seconds())
	if status == 0 {
		c.metrics.BackendErrors.WithLabelValues(method).Inc()
		return
	}
	c.metrics.BackendResponses.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// decode removes a gzip or deflate content-coding from body and updates hdr
// to describe the decoded representation. Unknown codings are left alone.
func (c *BackendClient) decode(hdr http.Header, body []byte) ([]byte, error) {
	codings := header.ParseList(hdr, "Content-Encoding")
	if len(codings) == 0 {
		return body, nil
	}
	if len(codings) > 1 {
		c.logger.Warn("stacked content-coding not decoded", "content_encoding", strings.Join(codings, ", "))
		return body, nil
	}

	coding := strings.ToLower(codings[0])
	if !decodableCodings[coding] {
		c.logger.Warn("unsupported content-coding not decoded", "content_encoding", codings[0])
		return body, nil
	}
	// identity, or a HEAD/204 that carries the header without a payload.
	if coding == "identity" || len(body) == 0 {
		hdr.Del("Content-Encoding")
		hdr.Del("Content-Length")
		return body, nil
	}

	var (
		r   io.ReadCloser
		err error
	)
	if coding == "deflate" {
		r, err = zlib.NewReader(bytes.NewReader(body))
	} else {
		r, err = gzip.NewReader(bytes.NewReader(body))
	}
	if err != nil {
		return nil, err
	}

	decoded, err := io.ReadAll(r)
	err = multierr.Append(err, r.Close())
	if err != nil {
		return nil, err
	}

	hdr.Del("Content-Encoding")
	hdr.Del("Content-Length")
	return decoded, nil
}

// narrowAcceptEncoding restricts Accept-Encoding to codings decode can undo.
// When nothing acceptable is left the header is removed, and the transport
// then negotiates and decodes gzip on its own.
func narrowAcceptEncoding(h http.Header) {
	if _, ok := h["Accept-Encoding"]; !ok {
		return
	}

	var keep []string
	for _, spec := range header.ParseAccept(h, "Accept-Encoding") {
		coding := strings.ToLower(spec.Value)
		if !decodableCodings[coding] || spec.Q == 0 {
			continue
		}
		if spec.Q < 1 {
			keep = append(keep, coding+";q="+strconv.FormatFloat(spec.Q, 'g', 3, 64))
			continue
		}
		keep = append(keep, coding)
	}

	if len(keep) == 0 {
		h.Del("Accept-Encoding")
		return
	}
	h.Set("Accept-Encoding", strings.Join(keep, ", "))
}

// statusText returns the backend's reason phrase, falling back to the
// standard text for the code.
func statusText(resp *http.Response) string {
	if text, ok := strings.CutPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); ok && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
