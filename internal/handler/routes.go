package handler

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"api-bridge-go/internal/config"
	"api-bridge-go/internal/metrics"
)

var standardMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, proxy *ProxyHandler, health *HealthHandler, cfg *config.Config, m *metrics.Metrics) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	for _, rt := range cfg.Routes {
		path := rt.Prefix + "/*"
		methods := mountedMethods(rt.Methods)
		e.Match(methods, path, proxy.Route(rt))

		var rest []string
		for _, method := range standardMethods {
			if !slices.Contains(methods, method) {
				rest = append(rest, method)
			}
		}
		if len(rest) > 0 {
			e.Match(rest, path, methodNotAllowed(methods))
		}
	}
}

// mountedMethods returns methods with HEAD added right after GET when a
// family serves GET but does not list HEAD.
func mountedMethods(methods []string) []string {
	i := slices.Index(methods, http.MethodGet)
	if i < 0 || slices.Contains(methods, http.MethodHead) {
		return methods
	}
	return slices.Insert(slices.Clone(methods), i+1, http.MethodHead)
}
