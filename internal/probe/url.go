package probe

import (
	"errors"
	"net/url"
	"strings"
)

var ErrEmptyHost = errors.New("url has no host")

// SanitizeURL parses a submitted URL. When no scheme is given, https is used
// for an explicit :443 port and http otherwise.
func SanitizeURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		u, err := url.Parse("http://" + raw)
		if err != nil {
			return nil, err
		}
		if u.Port() == "443" {
			u.Scheme = "https"
		}
		if u.Hostname() == "" {
			return nil, ErrEmptyHost
		}
		return u, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Hostname() == "" {
		return nil, ErrEmptyHost
	}
	return u, nil
}

// Host returns the hostname a URL points at, or raw itself when it cannot be parsed.
func Host(raw string) string {
	u, err := SanitizeURL(raw)
	if err != nil {
		return raw
	}
	return u.Hostname()
}
