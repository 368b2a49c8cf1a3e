package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestFixedWindow_ExhaustsAndDenies(t *testing.T) {
	l := New()
	defer l.Stop()

	cfg := Config{MaxRequests: 3, Window: time.Minute}
	key := Key("ana@example.com", "login")

	for i := 0; i < 3; i++ {
		res := l.Check(key, cfg)
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if res.Remaining != 3-(i+1) {
			t.Errorf("request %d: remaining = %d, want %d", i+1, res.Remaining, 3-(i+1))
		}
	}

	res := l.Check(key, cfg)
	if res.Allowed {
		t.Fatal("4th request should be denied")
	}
	if res.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", res.Remaining)
	}
	if res.ResetAt.Before(time.Now()) {
		t.Error("resetAt should be in the future")
	}
}

func TestFixedWindow_Reset(t *testing.T) {
	l := New()
	defer l.Stop()

	cfg := Config{MaxRequests: 1, Window: time.Minute}
	key := Key("ana@example.com", "login")

	if !l.Check(key, cfg).Allowed {
		t.Fatal("first request should be allowed")
	}
	if l.Check(key, cfg).Allowed {
		t.Fatal("second request should be denied")
	}

	l.Reset(key)

	if !l.Check(key, cfg).Allowed {
		t.Fatal("request after reset should be allowed")
	}
}

func TestFixedWindow_WindowExpiry(t *testing.T) {
	l := New()
	defer l.Stop()

	cfg := Config{MaxRequests: 1, Window: 20 * time.Millisecond}
	key := Key("10.0.0.1", "register")

	if !l.Check(key, cfg).Allowed {
		t.Fatal("first request should be allowed")
	}
	if l.Check(key, cfg).Allowed {
		t.Fatal("second request should be denied")
	}

	time.Sleep(30 * time.Millisecond)

	if !l.Check(key, cfg).Allowed {
		t.Fatal("request in the next window should be allowed")
	}
}

func TestKey(t *testing.T) {
	if Key("Ana@Example.COM", "login") != "ana@example.com:login" {
		t.Error("identity should be lowercased")
	}
	if Key("ana@example.com", "login") == Key("ana@example.com", "register") {
		t.Error("different actions must not share a budget")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	l := New()
	defer l.Stop()

	router := gin.New()
	router.POST("/login", Middleware(l, "login", Config{MaxRequests: 2, Window: time.Minute}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		return w
	}

	if w := do(); w.Code != http.StatusOK {
		t.Fatalf("first request: status = %d", w.Code)
	}
	if w := do(); w.Code != http.StatusOK {
		t.Fatalf("second request: status = %d", w.Code)
	}

	w := do()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response should carry Retry-After")
	}
}
