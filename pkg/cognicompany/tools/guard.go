package tools

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// HostGuard decides which hosts web_scrape and transcribe may fetch.
type HostGuard struct {
	// AllowedHosts restricts fetching to these hosts. "*.example.com"
	// matches example.com and its subdomains; "*" or an empty list allows
	// every host.
	AllowedHosts []string

	// BlockPrivate rejects hosts that resolve to loopback, private,
	// link-local or unspecified addresses.
	BlockPrivate bool

	// lookup resolves host names. Replaced in tests.
	lookup func(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Check returns an error when host may not be fetched.
func (g *HostGuard) Check(ctx context.Context, host string) error {
	if g == nil {
		return nil
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))

	if !g.allowed(host) {
		return fmt.Errorf("host %q not in allowed list", host)
	}
	if !g.BlockPrivate {
		return nil
	}

	var addrs []net.IPAddr
	if ip := net.ParseIP(host); ip != nil {
		addrs = []net.IPAddr{{IP: ip}}
	} else {
		lookup := g.lookup
		if lookup == nil {
			lookup = net.DefaultResolver.LookupIPAddr
		}
		var err error
		if addrs, err = lookup(ctx, host); err != nil {
			return fmt.Errorf("resolving %s: %w", host, err)
		}
	}

	for _, a := range addrs {
		if restricted(a.IP) {
			return fmt.Errorf("host %q resolves to a non-public address", host)
		}
	}
	return nil
}

// CheckURL parses raw as an absolute http or https URL and checks its host.
// A nil guard only validates the URL.
func (g *HostGuard) CheckURL(ctx context.Context, raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &ArgumentError{Field: "url", Value: raw, Message: "must be an absolute http or https URL"}
	}
	if err := g.Check(ctx, u.Hostname()); err != nil {
		return nil, err
	}
	return u, nil
}

func (g *HostGuard) allowed(host string) bool {
	if len(g.AllowedHosts) == 0 {
		return true
	}
	for _, pattern := range g.AllowedHosts {
		pattern = strings.ToLower(pattern)
		if pattern == "*" || pattern == host {
			return true
		}
		// *.example.com also matches example.com.
		if strings.HasPrefix(pattern, "*.") {
			if strings.HasSuffix(host, pattern[1:]) || host == pattern[2:] {
				return true
			}
		}
	}
	return false
}

func restricted(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// summarize shortens tool arguments and results for the audit log.
func summarize(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "...[truncated]"
}
