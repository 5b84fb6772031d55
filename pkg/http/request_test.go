package http_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	pkghttp "github.com/BradenHooton/consensus/pkg/http"
	"github.com/stretchr/testify/assert"
)

func TestClientIP_UntrustedPeerIgnoresHeaders(t *testing.T) {
	req := httptest.NewRequest("POST", "/auth/login", nil)
	req.RemoteAddr = "203.0.113.10:54321"
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	req.Header.Set("X-Real-IP", "192.168.1.1")

	res := pkghttp.NewIPResolver([]string{"10.0.0.0/8", "127.0.0.1/32"})

	assert.Equal(t, "203.0.113.10", res.ClientIP(req))
}

func TestClientIP_TrustedProxy(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"first forwarded entry", "10.0.0.5:443", "203.0.113.50, 10.0.0.1", "", "203.0.113.50"},
		{"skips garbage entries", "10.0.0.5:443", "not-an-ip, 198.51.100.7", "", "198.51.100.7"},
		{"falls back to real ip", "10.0.0.5:443", "", "198.51.100.9", "198.51.100.9"},
		{"falls back to peer", "10.0.0.5:443", "garbage", "also-garbage", "10.0.0.5"},
		{"ipv6 proxy", "[fd00::1]:443", "2001:db8::7", "", "2001:db8::7"},
	}

	res := pkghttp.NewIPResolver([]string{"10.0.0.0/8", "fd00::/8"})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/auth/login", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, res.ClientIP(req))
		})
	}
}

func TestClientIP_NoTrustedProxies(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "127.0.0.1:8080"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")

	assert.Equal(t, "127.0.0.1", pkghttp.NewIPResolver(nil).ClientIP(req))
	assert.Equal(t, "127.0.0.1", pkghttp.NewIPResolver([]string{"not-a-cidr"}).ClientIP(req))

	var nilResolver *pkghttp.IPResolver
	assert.Equal(t, "127.0.0.1", nilResolver.ClientIP(req))
}

func TestClientIP_RemoteAddrWithoutPort(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.1"

	assert.Equal(t, "192.0.2.1", pkghttp.NewIPResolver(nil).ClientIP(req))
}

func TestUserAgent_Truncates(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("User-Agent", strings.Repeat("a", 400))

	assert.Len(t, pkghttp.UserAgent(req), 255)
}
