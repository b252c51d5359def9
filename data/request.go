package data

import (
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Request is the normalized view of an inbound HTTP request the decision engine works on.
// Header names are canonicalized by net/http, so lookups are case-insensitive and
// multiple values keep their arrival order.
type Request struct {
	Method        string      `json:"method"`
	Path          string      `json:"path"`
	RawQuery      string      `json:"query"`
	Host          string      `json:"host"`
	Header        http.Header `json:"header"`
	ClientIP      string      `json:"client_ip"`
	ContentLength int64       `json:"content_length"`
	Time          time.Time   `json:"time"`

	// RawPath is the path as the client sent it, percent-encoding intact. Rules match on Path
	RawPath string `json:"raw_path,omitempty"`

	// Body can only be read once. The relay is its only consumer
	Body io.Reader `json:"-"`
}

// NewRequest creates a Request from an incoming http.Request.
// If trustForwarded is set the client address is taken from X-Forwarded-For or X-Real-IP
func NewRequest(r *http.Request, trustForwarded bool) *Request {
	req := &Request{
		Method:        r.Method,
		Path:          r.URL.Path,
		RawPath:       r.URL.EscapedPath(),
		RawQuery:      r.URL.RawQuery,
		Host:          r.Host,
		Header:        r.Header,
		ClientIP:      clientIP(r, trustForwarded),
		ContentLength: r.ContentLength,
		Time:          time.Now(),
		Body:          r.Body,
	}

	if req.Header == nil {
		req.Header = http.Header{}
	}

	return req
}

// EscapedPath returns the path in its escaped form. Requests built without RawPath get Path escaped
func (r *Request) EscapedPath() string {
	if r.RawPath != "" {
		return r.RawPath
	}
	return (&url.URL{Path: r.Path}).EscapedPath()
}

// UserAgent returns the first User-Agent header value or an empty string
func (r *Request) UserAgent() string {
	return r.Header.Get("User-Agent")
}

// HasUserAgent reports whether the request carries a non-empty User-Agent header
func (r *Request) HasUserAgent() bool {
	return r.UserAgent() != ""
}

// AnyMetadata reports whether match returns true for any piece of request metadata:
// method, path, query, host, client address and every header name and value
func (r *Request) AnyMetadata(match func(field string) bool) bool {
	for _, v := range []string{r.Method, r.Path, r.RawQuery, r.Host, r.ClientIP} {
		if match(v) {
			return true
		}
	}

	for name, values := range r.Header {
		if match(name) {
			return true
		}
		for _, v := range values {
			if match(v) {
				return true
			}
		}
	}

	return false
}

func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if idx := strings.Index(xff, ","); idx >= 0 {
				xff = xff[:idx]
			}
			if ip := strings.TrimSpace(xff); ip != "" {
				return ip
			}
		}
		if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" {
			return xrip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
