package tools

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ErrBlockedDomain is returned when a web tool targets a blocked domain.
var ErrBlockedDomain = errors.New("domain is blocked")

// domainGuard is an http.RoundTripper that refuses requests to blocked
// domains and their subdomains before forwarding to base.
type domainGuard struct {
	blocked []string
	base    http.RoundTripper
}

func newDomainGuard(blocked []string, base http.RoundTripper) (*domainGuard, error) {
	g := &domainGuard{base: base}
	for _, raw := range blocked {
		domain, err := normalizeDomain(raw)
		if err != nil {
			return nil, fmt.Errorf("blocked domain: %w", err)
		}
		g.blocked = append(g.blocked, domain)
	}
	return g, nil
}

// RoundTrip forwards req unless its host is blocked.
func (g *domainGuard) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("request URL is required")
	}
	host := strings.TrimSuffix(strings.ToLower(req.URL.Hostname()), ".")
	for _, blocked := range g.blocked {
		if domainMatches(blocked, host) {
			return nil, fmt.Errorf("%w: %s", ErrBlockedDomain, host)
		}
	}

	base := g.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

func normalizeDomain(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", errors.New("domain is required")
	}
	if !strings.Contains(value, "://") {
		value = "https://" + value
	}

	parsed, err := url.Parse(value)
	if err != nil {
		return "", fmt.Errorf("parse domain %q: %w", raw, err)
	}
	host := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(parsed.Hostname())), ".")
	if host == "" {
		return "", fmt.Errorf("invalid domain %q", raw)
	}
	return host, nil
}

func domainMatches(blocked, host string) bool {
	return host == blocked || strings.HasSuffix(host, "."+blocked)
}
