package httpapi

import (
	"net/http/httptest"
	"testing"
)

func TestExtractToken(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		query   string
		want    string
	}{
		{"bearer header", map[string]string{"Authorization": "Bearer abc123"}, "", "abc123"},
		{"bearer lowercase", map[string]string{"Authorization": "bearer abc123"}, "", "abc123"},
		{"bearer padded", map[string]string{"Authorization": "Bearer   abc123  "}, "", "abc123"},
		{"fallback header", map[string]string{"X-Access-Token": "xyz"}, "", "xyz"},
		{"query param", nil, "access_token=qrs", "qrs"},
		{"header beats query", map[string]string{"X-Access-Token": "xyz"}, "access_token=qrs", "xyz"},
		{"bearer beats fallback header", map[string]string{
			"Authorization": "Bearer abc123", "X-Access-Token": "xyz",
		}, "", "abc123"},
		{"non-bearer scheme yields nothing", map[string]string{
			"Authorization": "Basic dXNlcjpwYXNz", "X-Access-Token": "xyz",
		}, "", ""},
		{"empty request", nil, "", ""},
	}
	for _, tc := range cases {
		target := "/v1/auth/me"
		if tc.query != "" {
			target += "?" + tc.query
		}
		r := httptest.NewRequest("GET", target, nil)
		for k, v := range tc.headers {
			r.Header.Set(k, v)
		}
		if got := extractToken(r); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.7:5120"
	if got := clientIP(r); got != "192.0.2.7" {
		t.Fatalf("got %q", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(r); got != "203.0.113.9" {
		t.Fatalf("got %q", got)
	}
}
