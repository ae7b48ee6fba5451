package common

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// NormalizeProfileURL canonicalizes a profile URL: lower-case scheme and host,
// default ports dropped, empty path replaced by "/", fragment removed.
// Only http and https URLs are accepted. A bare host such as "example.com"
// is treated as https.
func NormalizeProfileURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("profile url is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("profile url %q: %w", raw, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("profile url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("profile url %q: missing host", raw)
	}
	if u.User != nil {
		return "", fmt.Errorf("profile url %q: must not contain credentials", raw)
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = host + ":" + port
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}

	if u.Path == "" {
		u.Path = "/"
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}
