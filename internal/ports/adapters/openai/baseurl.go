package openai

import (
	"net/url"
	"strings"

	"github.com/forPelevin/aishorts/internal/endpoint"
)

const defaultBaseURL = "https://api.openai.com/v1"

// DefaultHosts are accepted when no allowlist is configured.
var DefaultHosts = []string{"api.openai.com", "openrouter.ai"}

// apiRoots completes a bare host to the path its chat completions API lives
// under.
var apiRoots = map[string]string{
	"api.openai.com": "/v1",
	"openrouter.ai":  "/api/v1",
}

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return defaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Path != "" {
		return baseURL
	}
	if root, ok := apiRoots[strings.ToLower(u.Hostname())]; ok {
		u.Path = root
		return u.String()
	}
	return baseURL
}

// ValidateBaseURL checks OPENAI_BASE_URL: https only, and a host from
// allowedHosts, or from DefaultHosts when allowedHosts is blank.
func ValidateBaseURL(baseURL string, allowedHosts []string) error {
	if len(endpoint.HostSet(allowedHosts)) == 0 {
		allowedHosts = DefaultHosts
	}
	return endpoint.Validate(normalizeBaseURL(baseURL), endpoint.Rule{
		Name:      "OPENAI_BASE_URL",
		Hosts:     allowedHosts,
		HostsFrom: "OPENAI_ALLOWED_HOSTS",
	})
}
