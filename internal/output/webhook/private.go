package webhook

import (
	"net/netip"
	"net/url"
	"strings"
)

// IsPrivateDestination reports whether the webhook host is local or on a private
// network: localhost, loopback, unspecified and RFC 1918 addresses. Such
// destinations are unreachable from a hosted deployment and go through the relay.
func IsPrivateDestination(webhookURL string) bool {
	u, err := url.Parse(webhookURL)
	if err != nil {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}

	addr = addr.Unmap()

	return addr.IsLoopback() || addr.IsUnspecified() || addr.IsPrivate()
}
