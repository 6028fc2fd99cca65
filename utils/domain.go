package utils

import (
	"net"
	"net/http"
	"strings"
)

// CookieDomain returns the registrable domain of the request host so a
// cookie set on api.example.com is also sent to app.example.com. Bare hosts
// such as localhost and IP addresses return "" (host-only cookie).
func CookieDomain(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" || net.ParseIP(host) != nil {
		return ""
	}
	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return ""
	}
	n := len(parts)
	return parts[n-2] + "." + parts[n-1]
}

func splitComma(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
