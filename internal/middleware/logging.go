// Package middleware provides the bridge's Echo middleware: request logging,
// metrics and header hygiene.
package middleware

import (
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
)

// RequestLogger returns an Echo middleware that logs each request with slog.
// Server-side failures are logged at warn level.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()
			status := responseStatus(c, err)

			level := slog.LevelInfo
			if status >= 500 {
				level = slog.LevelWarn
			}

			logger.LogAttrs(req.Context(), level, "request",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.String("route", c.Path()),
				slog.Int("status", status),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
				slog.String("remote_ip", c.RealIP()),
				slog.Int64("bytes_out", res.Size),
				slog.String("size", humanize.Bytes(uint64(max(res.Size, 0)))),
			)

			return err
		}
	}
}
