package csrf

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newRequest(method, host, origin, referer string) *http.Request {
	r := httptest.NewRequest(method, "http://"+host+"/x", nil)
	r.Host = host
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	if referer != "" {
		r.Header.Set("Referer", referer)
	}
	return r
}

func TestValidator_Validate(t *testing.T) {
	v := NewValidator(false)

	tests := []struct {
		name    string
		method  string
		host    string
		origin  string
		referer string
		want    bool
	}{
		{"get without origin passes", "GET", "kaledsoft.tech", "", "", true},
		{"same host", "POST", "kaledsoft.tech", "https://kaledsoft.tech", "", true},
		{"subdomain posting to shared origin", "POST", "kaledsoft.tech", "https://acme.kaledsoft.tech", "", true},
		{"cross site", "POST", "kaledsoft.tech", "https://evil.com", "", false},
		{"lookalike suffix", "POST", "kaledsoft.tech", "https://evilkaledsoft.tech", "", false},
		{"nested subdomain", "POST", "kaledsoft.tech", "https://a.b.kaledsoft.tech", "", false},
		{"no origin on mutation", "POST", "kaledsoft.tech", "", "", false},
		{"referer fallback", "POST", "kaledsoft.tech", "", "https://acme.kaledsoft.tech/form", true},
		{"cross site referer", "DELETE", "kaledsoft.tech", "", "https://evil.com/form", false},
		{"host with port", "POST", "kaledsoft.tech:8080", "https://kaledsoft.tech", "", true},
		{"origin with port", "PUT", "kaledsoft.tech", "https://acme.kaledsoft.tech:3000", "", true},
		{"garbage origin", "POST", "kaledsoft.tech", "://not a url", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(newRequest(tt.method, tt.host, tt.origin, tt.referer))
			if got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidator_Disabled(t *testing.T) {
	v := NewValidator(true)
	if !v.Validate(newRequest("POST", "kaledsoft.tech", "https://evil.com", "")) {
		t.Error("disabled validator should pass everything")
	}
}

func TestSameSite(t *testing.T) {
	if !SameSite("ACME.Kaledsoft.Tech", "kaledsoft.tech") {
		t.Error("hostname comparison should be case-insensitive")
	}
	if SameSite("kaledsoft.tech", "acme.kaledsoft.tech") {
		t.Error("parent must not pass as subdomain of child")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(NewValidator(false).Middleware())
	router.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/x", nil)
	req.Host = "kaledsoft.tech"
	req.Header.Set("Origin", "https://evil.com")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("cross-site POST: status = %d, want 403", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/x", nil)
	req.Host = "kaledsoft.tech"
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET: status = %d, want 200", w.Code)
	}
}
