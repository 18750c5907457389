package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"api-bridge-go/internal/config"
	"api-bridge-go/internal/metrics"
	"api-bridge-go/internal/model"
	"api-bridge-go/internal/service"
)

// ProxyHandler forwards requests on the configured route families to the
// backend and relays the answer.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProxyHandler creates a ProxyHandler. m may be nil.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
		metrics: m,
	}
}

// Route returns the handler for one route family. Every failure to reach the
// backend is answered with 500 and rt.Error; backend 4xx/5xx are relayed.
func (h *ProxyHandler) Route(rt config.RouteConfig) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()

		segments, ok := wildcardSegments(req.URL.EscapedPath(), rt.Prefix)
		if !ok {
			return echo.ErrNotFound
		}

		body, kind, err := service.CaptureBody(req.Method, req.Header.Get(echo.HeaderContentType), req.Body)
		if err != nil {
			// BodyLimit reports an oversized body through the reader.
			var he *echo.HTTPError
			if errors.As(err, &he) {
				return he
			}
			return h.fail(c, rt, err)
		}
		if kind != model.BodyNone && h.metrics != nil {
			h.metrics.BodyBytes.WithLabelValues(kind.String()).Observe(float64(len(body)))
		}

		in := &model.InboundRequest{
			Method:   req.Method,
			Prefix:   rt.Prefix,
			Segments: segments,
			RawQuery: req.URL.RawQuery,
			Header:   model.HeaderFromHTTP(req.Header),
			Cookie:   strings.Join(req.Header.Values("Cookie"), "; "),
			Body:     body,
			BodyKind: kind,
		}

		resp, err := h.service.Forward(req.Context(), in)
		if err != nil {
			return h.fail(c, rt, err)
		}

		// Fields already set by middleware, such as X-Request-Id, win over
		// the backend's.
		dst := c.Response().Header()
		preset := make(map[string]bool, len(dst))
		for name := range dst {
			preset[http.CanonicalHeaderKey(name)] = true
		}
		for _, f := range resp.Header {
			if preset[f.Name] {
				continue
			}
			dst.Add(f.Name, f.Value)
		}
		c.Response().WriteHeader(resp.StatusCode)
		if _, err := c.Response().Write(resp.Body); err != nil {
			h.logger.Error("writing response body",
				"err", err,
				"path", req.URL.Path,
			)
		}
		return nil
	}
}

// fail answers with the route's generic error. A caller that went away is
// not counted as a backend failure.
func (h *ProxyHandler) fail(c echo.Context, rt config.RouteConfig, err error) error {
	req := c.Request()
	attrs := []any{
		"err", err,
		"method", req.Method,
		"path", req.URL.Path,
		"route", rt.Prefix,
	}
	if errors.Is(err, context.Canceled) {
		h.logger.Info("client disconnected", attrs...)
	} else {
		h.logger.Error("proxy error", attrs...)
		if h.metrics != nil {
			h.metrics.ProxyFailures.WithLabelValues(rt.Prefix).Inc()
		}
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error": rt.Error,
	})
}

// wildcardSegments returns the escaped path segments below prefix. Empty
// segments are dropped; ok is false when nothing is left.
func wildcardSegments(escapedPath, prefix string) ([]string, bool) {
	rest, found := strings.CutPrefix(escapedPath, prefix+"/")
	if !found {
		return nil, false
	}
	var segments []string
	for s := range strings.SplitSeq(rest, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments, len(segments) > 0
}

// methodNotAllowed answers methods a route family does not mount, so they
// are not picked up by a shorter enclosing prefix.
func methodNotAllowed(methods []string) echo.HandlerFunc {
	allow := strings.Join(methods, ", ")
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderAllow, allow)
		return echo.ErrMethodNotAllowed
	}
}
