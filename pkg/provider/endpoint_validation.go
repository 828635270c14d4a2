package provider

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidateEndpoint validates a model endpoint URL before a client is built
// for it.
//
// This is intentionally conservative: it rejects userinfo and fragments
// and, unless explicitly allowed, loopback/private/link-local hosts
// (common SSRF targets). A query string is permitted because some
// endpoints carry routing parameters.
func ValidateEndpoint(raw string, allowPrivate bool) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid endpoint scheme %q (must be http or https)", u.Scheme)
	}

	if u.Hostname() == "" {
		return fmt.Errorf("invalid endpoint host %q", u.Host)
	}

	if u.User != nil {
		return fmt.Errorf("endpoint must not contain userinfo")
	}

	if u.Fragment != "" {
		return fmt.Errorf("endpoint must not contain fragment")
	}

	if !allowPrivate && isPrivateOrLoopbackHost(u.Hostname()) {
		return fmt.Errorf("endpoint host %q is private/loopback (set allow_private_endpoints to override)", u.Hostname())
	}

	return nil
}

func isPrivateOrLoopbackHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "localhost" || strings.HasSuffix(h, ".localhost") {
		return true
	}

	ip := net.ParseIP(h)
	if ip == nil {
		return false
	}

	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}

	// Reject other non-global unicast ranges (e.g. multicast).
	return !ip.IsGlobalUnicast()
}
