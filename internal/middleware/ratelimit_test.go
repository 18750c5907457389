package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

func newLimitedEcho(rps float64) *echo.Echo {
	e := echo.New()
	store := echomw.NewRateLimiterMemoryStore(rate.Limit(rps))
	e.Use(echomw.RateLimiter(store))
	e.GET("/api/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return e
}

func requestFrom(e *echo.Echo, remoteAddr string) int {
	req := httptest.NewRequest(http.MethodGet, "/api/tasks", http.NoBody)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimiter_PerClientIP(t *testing.T) {
	e := newLimitedEcho(1)

	if code := requestFrom(e, "10.0.0.1:5000"); code != http.StatusOK {
		t.Fatalf("first request: status = %d, want %d", code, http.StatusOK)
	}

	got429 := false
	for range 10 {
		if requestFrom(e, "10.0.0.1:5000") == http.StatusTooManyRequests {
			got429 = true
			break
		}
	}
	if !got429 {
		t.Error("expected at least one 429 response after burst, got none")
	}

	// A different client has its own bucket.
	if code := requestFrom(e, "10.0.0.2:5000"); code != http.StatusOK {
		t.Errorf("other client: status = %d, want %d", code, http.StatusOK)
	}
}
