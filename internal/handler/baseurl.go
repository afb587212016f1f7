package handler

import (
	"net/http"
	"strings"
)

// BaseURL returns configured when set. Otherwise it derives scheme://host
// from the request, honoring TLS and X-Forwarded-Proto.
func BaseURL(r *http.Request, configured string) string {
	if configured != "" {
		return configured
	}

	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func isSecure(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
