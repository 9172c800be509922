package device

import (
	"fmt"
	"net/url"
	"strings"
)

// Address is a parsed device location.
// Examples: 192.168.86.68, esp32.local:8080, http://10.0.0.7
type Address struct {
	// Raw is the original input string.
	Raw string
	// Scheme is http or https; bare hosts default to http.
	Scheme string
	// Host is host or host:port.
	Host string
}

// SupportedSchemes lists the schemes the parser accepts.
var SupportedSchemes = map[string]struct{}{
	"http":  {},
	"https": {},
}

// Parse turns a user supplied address into an Address.
func Parse(raw string) (Address, error) {
	a := Address{Raw: raw}
	s := strings.TrimSpace(raw)
	if s == "" {
		return a, fmt.Errorf("device address must not be empty; expected e.g. '192.168.86.68'")
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return a, fmt.Errorf("invalid device address %q: %w", raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if _, ok := SupportedSchemes[scheme]; !ok {
		return a, fmt.Errorf("unsupported device address scheme %q", u.Scheme)
	}
	if u.Host == "" || u.Hostname() == "" {
		return a, fmt.Errorf("device address %q has no host", raw)
	}
	if p := strings.Trim(u.Path, "/"); p != "" || u.RawQuery != "" {
		return a, fmt.Errorf("device address %q must not contain a path or query", raw)
	}
	a.Scheme = scheme
	a.Host = u.Host
	return a, nil
}

// BaseURL returns scheme://host without a trailing slash.
func (a Address) BaseURL() string {
	return a.Scheme + "://" + a.Host
}

// String returns the form shown to users: the bare host for http, the full URL otherwise.
func (a Address) String() string {
	if a.Scheme == "http" && a.Host != "" {
		return a.Host
	}
	if a.Host != "" {
		return a.BaseURL()
	}
	return a.Raw
}
