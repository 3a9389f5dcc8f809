package models

import (
	"net"
	"net/url"
	"strings"

	dErrors "webdir/pkg/domain-errors"
)

const maxURLLength = 2048

// NormalizeURL canonicalizes a submitted URL so the same site always maps to one row.
// It returns the normalized URL and the registrable host (without "www.").
//
// Rules: scheme defaults to https and must be http or https; the host is
// lower-cased; default ports, fragments and user info are dropped; a trailing
// slash is removed from non-root paths; the query string is kept verbatim.
func NormalizeURL(raw string) (string, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", dErrors.New(dErrors.CodeValidation, "url is required")
	}
	if len(raw) > maxURLLength {
		return "", "", dErrors.New(dErrors.CodeValidation, "url is too long")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", "", dErrors.New(dErrors.CodeValidation, "url is malformed")
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", dErrors.New(dErrors.CodeValidation, "url scheme must be http or https")
	}

	host := strings.ToLower(u.Hostname())
	if host == "" || strings.ContainsAny(host, " _") || strings.HasPrefix(host, ".") || strings.HasSuffix(host, ".") {
		return "", "", dErrors.New(dErrors.CodeValidation, "url host is invalid")
	}
	if net.ParseIP(host) == nil && !strings.Contains(host, ".") && host != "localhost" {
		return "", "", dErrors.New(dErrors.CodeValidation, "url host is invalid")
	}

	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	hostPort := host
	if strings.Contains(host, ":") {
		hostPort = "[" + host + "]"
	}
	if port != "" {
		hostPort += ":" + port
	}

	path := u.EscapedPath()
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "/" {
		path = ""
	}

	normalized := scheme + "://" + hostPort + path
	if u.RawQuery != "" {
		normalized += "?" + u.RawQuery
	}
	return normalized, strings.TrimPrefix(host, "www."), nil
}
