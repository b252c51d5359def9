package davcloak

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/scraperwall/davcloak/data"
	log "github.com/sirupsen/logrus"
)

// hop-by-hop headers aren't forwarded to the origin
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// UpstreamError is returned when the origin can't be reached or doesn't answer
type UpstreamError struct {
	URL string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %s", e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Relay forwards requests to the configured origin and streams the responses back verbatim
type Relay struct {
	target *url.URL
	base   string
	client *http.Client
}

// NewRelay creates a relay for the target base URL
func NewRelay(target string, timeout time.Duration) (*Relay, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("relay target: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("relay target %q must be an absolute http(s) URL", target)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableCompression = true

	return &Relay{
		target: u,
		base:   strings.TrimRight(target, "/"),
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Target returns the origin's base URL
func (rl *Relay) Target() string {
	return rl.base
}

// URL returns the upstream URL for a request: target + the path as the client sent it,
// followed by the query if there is one
func (rl *Relay) URL(r *data.Request) string {
	u := rl.base + r.EscapedPath()
	if r.RawQuery != "" {
		u += "?" + r.RawQuery
	}
	return u
}

// Forward sends the request to the origin. The body is read up to the declared content length,
// requests without a content length are sent without a body. The caller must close the response body
func (rl *Relay) Forward(ctx context.Context, r *data.Request) (*http.Response, error) {
	upstreamURL := rl.URL(r)

	var body io.Reader
	if r.ContentLength > 0 && r.Body != nil {
		body = io.LimitReader(r.Body, r.ContentLength)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, upstreamURL, body)
	if err != nil {
		return nil, &UpstreamError{URL: upstreamURL, Err: err}
	}
	if body != nil {
		req.ContentLength = r.ContentLength
	}

	for name, values := range r.Header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	for _, h := range hopHeaders {
		req.Header.Del(h)
	}
	req.Host = rl.target.Host

	resp, err := rl.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{URL: upstreamURL, Err: err}
	}

	return resp, nil
}

// Relay forwards the request and copies status, headers and body of the origin's response to w
func (rl *Relay) Relay(ctx context.Context, w http.ResponseWriter, r *data.Request) error {
	resp, err := rl.Forward(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	n, err := io.Copy(w, resp.Body)
	log.Infof("relayed %s %s -> %s (%s)", r.Method, rl.URL(r), resp.Status, humanize.Bytes(uint64(n)))
	if err != nil {
		// the status line has already been sent
		log.Warnf("relaying the response body of %s failed: %s", rl.URL(r), err)
	}

	return nil
}
