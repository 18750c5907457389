package middleware

import (
	"net/http"

	"github.com/golang/gddo/httputil/header"
	"github.com/labstack/echo/v4"
)

// hopByHopHeaders are meaningful only for a single transport-level
// connection and are never forwarded.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// SecurityHeaders returns an Echo middleware that strips hop-by-hop request
// headers, including any named in Connection, and adds nosniff and DENY
// framing headers to responses that do not already carry them.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			StripHopByHop(c.Request().Header)

			res := c.Response()
			res.Before(func() {
				setDefault(res.Header(), "X-Content-Type-Options", "nosniff")
				setDefault(res.Header(), "X-Frame-Options", "DENY")
			})

			return next(c)
		}
	}
}

// StripHopByHop removes hop-by-hop fields from h. Tokens listed in
// Connection are read before Connection itself is removed.
func StripHopByHop(h http.Header) {
	for _, name := range header.ParseList(h, "Connection") {
		h.Del(name)
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

func setDefault(h http.Header, key, value string) {
	if h.Get(key) == "" {
		h.Set(key, value)
	}
}
