package davcloak

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/scraperwall/davcloak/data"
)

func echoUpstream(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := ioutil.ReadAll(r.Body)
		if err != nil {
			t.Errorf("upstream failed to read the body: %s", err)
		}

		w.Header().Set("X-Seen-Host", r.Host)
		w.Header().Set("X-Seen-Length", fmt.Sprintf("%d", r.ContentLength))
		w.Header().Set("X-Seen-Agent", r.Header.Get("User-Agent"))
		w.Header().Set("X-Seen-Connection", r.Header.Get("Proxy-Connection"))
		w.Header().Add("Set-Cookie", "a=1")
		w.Header().Add("Set-Cookie", "b=2")
		w.WriteHeader(http.StatusTeapot)
		fmt.Fprintf(w, "%s %s|%s", r.Method, r.URL.RequestURI(), body)
	}))
}

func TestRelayURL(t *testing.T) {
	rl, err := NewRelay("https://origin.example.com/base/", time.Second)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path    string
		rawPath string
		query   string
		url     string
	}{
		{"/", "", "", "https://origin.example.com/base/"},
		{"/a/b.txt", "", "", "https://origin.example.com/base/a/b.txt"},
		{"/search", "", "q=1&r=2", "https://origin.example.com/base/search?q=1&r=2"},
		{"/100%", "/100%25", "", "https://origin.example.com/base/100%25"},
		{"/a?b", "/a%3Fb", "c=1", "https://origin.example.com/base/a%3Fb?c=1"},
		{"/a/b", "/a%2Fb", "", "https://origin.example.com/base/a%2Fb"},
		{"/100%", "", "", "https://origin.example.com/base/100%25"},
		{"/my file.txt", "", "", "https://origin.example.com/base/my%20file.txt"},
	}

	for _, tt := range tests {
		if u := rl.URL(&data.Request{Path: tt.path, RawPath: tt.rawPath, RawQuery: tt.query}); u != tt.url {
			t.Errorf("expected %s, got %s", tt.url, u)
		}
	}
}

func TestRelayEscapedPaths(t *testing.T) {
	upstream := echoUpstream(t)
	defer upstream.Close()

	rl, err := NewRelay(upstream.URL, time.Second)
	if err != nil {
		t.Fatal(err)
	}

	for _, uri := range []string{"/100%25", "/a%3Fb", "/a%2Fb", "/dir/%7Euser/x%20y.txt", "/a%3Fb?q=%26&r=1"} {
		r := httptest.NewRequest(http.MethodGet, uri, nil)
		req := data.NewRequest(r, false)

		w := httptest.NewRecorder()
		if err := rl.Relay(context.Background(), w, req); err != nil {
			t.Errorf("%s: relay failed: %s", uri, err)
			continue
		}

		if expected := "GET " + uri + "|"; w.Body.String() != expected {
			t.Errorf("%s: the origin must see the path as sent, expected %q, got %q", uri, expected, w.Body.String())
		}
	}
}

func TestRelayInvalidTarget(t *testing.T) {
	for _, target := range []string{"", "origin.example.com", "ftp://origin.example.com", "http://", "://bad"} {
		if _, err := NewRelay(target, time.Second); err == nil {
			t.Errorf("expected an error for target %q", target)
		}
	}
}

func TestRelayForward(t *testing.T) {
	upstream := echoUpstream(t)
	defer upstream.Close()

	rl, err := NewRelay(upstream.URL, time.Second)
	if err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest(http.MethodPost, "http://files.example.org/upload?x=1", strings.NewReader("0123456789"))
	r.Header.Set("User-Agent", "sqlmap/1.5")
	r.Header.Set("Proxy-Connection", "keep-alive")
	req := data.NewRequest(r, false)
	req.ContentLength = 4

	w := httptest.NewRecorder()
	if err := rl.Relay(context.Background(), w, req); err != nil {
		t.Fatal(err)
	}

	if w.Code != http.StatusTeapot {
		t.Errorf("expected the origin's status, got %d", w.Code)
	}
	if w.Body.String() != "POST /upload?x=1|0123" {
		t.Errorf("the body must be bounded by the content length, got %q", w.Body.String())
	}

	h := w.Header()
	if h.Get("X-Seen-Host") != strings.TrimPrefix(upstream.URL, "http://") {
		t.Errorf("the Host header must name the origin, got %q", h.Get("X-Seen-Host"))
	}
	if h.Get("X-Seen-Length") != "4" {
		t.Errorf("expected content length 4, got %s", h.Get("X-Seen-Length"))
	}
	if h.Get("X-Seen-Agent") != "sqlmap/1.5" {
		t.Errorf("the request headers must be forwarded, got useragent %q", h.Get("X-Seen-Agent"))
	}
	if h.Get("X-Seen-Connection") != "" {
		t.Error("hop-by-hop headers must not be forwarded")
	}
	if cookies := h.Values("Set-Cookie"); len(cookies) != 2 {
		t.Errorf("repeated response headers must be kept, got %v", cookies)
	}
}

func TestRelayWithoutContentLength(t *testing.T) {
	upstream := echoUpstream(t)
	defer upstream.Close()

	rl, err := NewRelay(upstream.URL, time.Second)
	if err != nil {
		t.Fatal(err)
	}

	req := &data.Request{
		Method:        http.MethodPut,
		Path:          "/file",
		Header:        http.Header{},
		Body:          strings.NewReader("ignored"),
		ContentLength: -1,
	}

	resp, err := rl.Forward(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := ioutil.ReadAll(resp.Body)
	if string(body) != "PUT /file|" {
		t.Errorf("a request without content length must be sent without a body, got %q", body)
	}
}

func TestRelayNoRedirects(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer upstream.Close()

	rl, err := NewRelay(upstream.URL, time.Second)
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	if err := rl.Relay(context.Background(), w, &data.Request{Method: http.MethodGet, Path: "/", Header: http.Header{}}); err != nil {
		t.Fatal(err)
	}

	if w.Code != http.StatusFound || w.Header().Get("Location") != "/elsewhere" {
		t.Errorf("redirects must be passed to the client, got %d to %q", w.Code, w.Header().Get("Location"))
	}
}

func TestRelayUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer upstream.Close()

	slow, err := NewRelay(upstream.URL, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	closed := httptest.NewServer(http.NotFoundHandler())
	unreachable, err := NewRelay(closed.URL, time.Second)
	closed.Close()
	if err != nil {
		t.Fatal(err)
	}

	for name, rl := range map[string]*Relay{"timeout": slow, "unreachable": unreachable} {
		w := httptest.NewRecorder()
		err := rl.Relay(context.Background(), w, &data.Request{Method: http.MethodGet, Path: "/x", Header: http.Header{}})

		var upstreamErr *UpstreamError
		if !errors.As(err, &upstreamErr) {
			t.Errorf("%s: expected an UpstreamError, got %v", name, err)
			continue
		}
		if !strings.HasSuffix(upstreamErr.URL, "/x") {
			t.Errorf("%s: the error must name the upstream URL, got %s", name, upstreamErr.URL)
		}
		if w.Code != http.StatusOK || w.Body.Len() != 0 {
			t.Errorf("%s: nothing must be written on failure", name)
		}
	}
}
