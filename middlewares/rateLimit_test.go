package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestLocalLimiter(t *testing.T) {
	l := newLocalLimiter()
	limit := PerHour(3)
	for i := 0; i < 3; i++ {
		if res := l.allow("ip:1.2.3.4", limit); res.Allowed != 1 {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	res := l.allow("ip:1.2.3.4", limit)
	if res.Allowed != 0 {
		t.Fatalf("fourth request should be limited")
	}
	if res.RetryAfter <= 0 || res.Remaining != 0 {
		t.Fatalf("limited result: %+v", res)
	}
	if res := l.allow("ip:5.6.7.8", limit); res.Allowed != 1 {
		t.Fatalf("keys are limited independently")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitMiddleware(2))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		if i == 2 && w.Header().Get("Retry-After") == "" {
			t.Fatalf("limited response should carry Retry-After")
		}
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("status codes: %v", codes)
	}
}

func TestCheckRateLimitDisabled(t *testing.T) {
	if err := CheckRateLimit(t.Context(), "order:1", 0, "too many"); err != nil {
		t.Fatalf("zero limit disables the check: %v", err)
	}
}
