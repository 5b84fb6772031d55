package http

import (
	"net"
	"net/http"
	"strings"
)

const maxUserAgentLen = 255

// IPResolver finds the client address of a request. Forwarding headers are
// honoured only when the direct peer is inside a trusted proxy range.
type IPResolver struct {
	trusted []*net.IPNet
}

// NewIPResolver parses the trusted proxy CIDRs, skipping invalid entries
func NewIPResolver(trustedProxies []string) *IPResolver {
	res := &IPResolver{}
	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			continue
		}
		res.trusted = append(res.trusted, ipNet)
	}
	return res
}

// ClientIP returns the first valid X-Forwarded-For entry, then X-Real-IP,
// when the peer is a trusted proxy. Otherwise the peer address is used.
func (res *IPResolver) ClientIP(r *http.Request) string {
	peer := peerAddr(r)

	if res == nil || !res.isTrusted(peer) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, ip := range strings.Split(xff, ",") {
			ip = strings.TrimSpace(ip)
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}

	return peer
}

func (res *IPResolver) isTrusted(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, ipNet := range res.trusted {
		if ipNet.Contains(parsed) {
			return true
		}
	}
	return false
}

// peerAddr strips the port from RemoteAddr
func peerAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

// UserAgent returns the request user agent cut to the login log column size
func UserAgent(r *http.Request) string {
	ua := r.UserAgent()
	if len(ua) > maxUserAgentLen {
		ua = ua[:maxUserAgentLen]
	}
	return ua
}
