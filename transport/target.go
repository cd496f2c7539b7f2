package transport

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// Target is where outbound requests are posted.
type Target struct {
	Scheme string
	Host   string
	Port   int
	// Path includes the encoded query string, if any.
	Path string
}

// ParseTarget parses a URL such as "http://localhost:8080/api" and merges the extra
// query parameters into its path. Extra parameters replace same-named ones already in
// the URL. The port defaults to 80 (443 for https) and the path to "/".
func ParseTarget(raw string, query map[string]string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("parse target %q: %w", raw, err)
	}
	if u.Host == "" {
		return Target{}, fmt.Errorf("parse target %q: missing host", raw)
	}
	t := Target{
		Scheme: u.Scheme,
		Host:   u.Hostname(),
		Path:   u.EscapedPath(),
	}
	switch t.Scheme {
	case "":
		t.Scheme = "http"
	case "http", "https":
	default:
		return Target{}, fmt.Errorf("parse target %q: unsupported scheme %s", raw, t.Scheme)
	}
	switch p := u.Port(); {
	case p != "":
		if t.Port, err = strconv.Atoi(p); err != nil {
			return Target{}, fmt.Errorf("parse target %q: bad port: %w", raw, err)
		}
	case t.Scheme == "https":
		t.Port = 443
	default:
		t.Port = 80
	}
	if t.Path == "" {
		t.Path = "/"
	}

	values := u.Query()
	for k, v := range query {
		values.Set(k, v)
	}
	if len(values) > 0 {
		t.Path += "?" + values.Encode()
	}
	return t, nil
}

// IsZero reports whether the target has not been configured.
func (t Target) IsZero() bool {
	return t.Host == ""
}

// URL renders the target as an absolute URL.
func (t Target) URL() string {
	return t.Scheme + "://" + net.JoinHostPort(t.Host, strconv.Itoa(t.Port)) + t.Path
}

func (t Target) String() string {
	return t.URL()
}
