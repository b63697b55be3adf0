package extract

import (
	"net/url"
	"regexp"
	"strings"

	"later/internal/core"
)

var (
	domainPattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)*$`)
	ipv4Pattern   = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
)

// PrepareURL validates and normalizes user input into a fetchable URL.
// A missing scheme defaults to https.
func PrepareURL(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", &core.ValidationError{Param: "url", Reason: "URL is required"}
	}
	if !strings.HasPrefix(candidate, "http://") && !strings.HasPrefix(candidate, "https://") {
		candidate = "https://" + candidate
	}

	parsed, err := url.Parse(candidate)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", &core.ValidationError{Param: "url", Reason: "please enter a valid URL"}
	}

	host := parsed.Hostname()
	// localhost and bare IPs are allowed for development
	if host != "localhost" && !ipv4Pattern.MatchString(host) {
		if !domainPattern.MatchString(host) || !strings.Contains(host, ".") {
			return "", &core.ValidationError{Param: "url", Reason: "please enter a valid URL with a proper domain"}
		}
	}
	return candidate, nil
}

// normalizeURL resolves value against base and keeps only http(s) results.
func normalizeURL(value string, base *url.URL) string {
	if value == "" {
		return ""
	}
	ref, err := url.Parse(value)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if (resolved.Scheme != "http" && resolved.Scheme != "https") || resolved.Host == "" {
		return ""
	}
	return resolved.String()
}

// FaviconURL derives the conventional favicon location for a page URL.
func FaviconURL(u *url.URL) string {
	if u == nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/favicon.ico"}).String()
}
