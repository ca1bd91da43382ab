// Package endpoint validates provider URLs read from the environment.
package endpoint

import (
	"fmt"
	"net/url"
	"strings"
)

// Rule describes what an endpoint variable may hold.
type Rule struct {
	// Name is the environment variable, used in error messages.
	Name string
	// Hosts restricts the host when non-empty. Entries may carry a scheme,
	// port or trailing slash; only the host name is compared.
	Hosts []string
	// HostsFrom names the variable Hosts was read from, if any.
	HostsFrom string
	// AllowHTTP admits plain http, for local object stores.
	AllowHTTP bool
	// AllowQuery admits a query string, for webhooks that carry a token.
	AllowQuery bool
}

// Validate checks that raw is an absolute URL without credentials that
// satisfies r.
func Validate(raw string, r Rule) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", r.Name, err)
	}
	if !u.IsAbs() || u.Hostname() == "" {
		return fmt.Errorf("invalid %s %q: absolute URL with host is required", r.Name, raw)
	}
	if u.User != nil {
		return fmt.Errorf("invalid %s %q: userinfo is not allowed", r.Name, raw)
	}
	if u.Fragment != "" || (u.RawQuery != "" && !r.AllowQuery) {
		if r.AllowQuery {
			return fmt.Errorf("invalid %s %q: fragment is not allowed", r.Name, raw)
		}
		return fmt.Errorf("invalid %s %q: query and fragment are not allowed", r.Name, raw)
	}

	switch strings.ToLower(u.Scheme) {
	case "https":
	case "http":
		if !r.AllowHTTP {
			return fmt.Errorf("invalid %s %q: https is required", r.Name, raw)
		}
	default:
		return fmt.Errorf("invalid %s %q: unsupported scheme %q", r.Name, raw, u.Scheme)
	}

	if len(r.Hosts) == 0 {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	if _, ok := HostSet(r.Hosts)[host]; !ok {
		if r.HostsFrom != "" {
			return fmt.Errorf("invalid %s %q: host %q is not in %s", r.Name, raw, host, r.HostsFrom)
		}
		return fmt.Errorf("invalid %s %q: host %q is not allowed", r.Name, raw, host)
	}
	return nil
}

// HostSet normalizes a host list: lower case, no scheme, port or slashes.
// Blank entries are dropped.
func HostSet(hosts []string) map[string]struct{} {
	out := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		v := strings.ToLower(strings.TrimSpace(h))
		v = strings.TrimPrefix(v, "http://")
		v = strings.TrimPrefix(v, "https://")
		v = strings.Trim(v, "/")
		if i := strings.IndexAny(v, ":/"); i >= 0 {
			v = v[:i]
		}
		if v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}
