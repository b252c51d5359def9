package davcloak

import (
	"bufio"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/satyrius/gonx"
	"github.com/scraperwall/davcloak/data"
	log "github.com/sirupsen/logrus"
)

// DefaultLogFormat is the nginx combined log format
const DefaultLogFormat = `$remote_addr - $remote_user [$time_local] "$request" $status $body_bytes_sent "$http_referer" "$http_user_agent"`

const timeLocalLayout = "02/Jan/2006:15:04:05 -0700"

var requestLineRegexp = regexp.MustCompile(`^([A-Z]+)\s+(.+?)\s+(HTTP/\d+\.\d+)$`)

// LogReplay classifies every request of an access log without serving anything.
// Lines that can't be parsed are skipped. It returns the number of requests per route
func (g *Gateway) LogReplay(logfile, format string) (data.Stats, error) {
	var stats data.Stats

	fh, err := os.Open(logfile)
	if err != nil {
		return stats, fmt.Errorf("log replay: %w", err)
	}
	defer fh.Close()

	if format == "" {
		format = DefaultLogFormat
	}
	p := gonx.NewParser(format)

	lines, skipped := 0, 0
	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		lines++

		req, err := parseLogLine(p, scanner.Text())
		if err != nil {
			skipped++
			log.Tracef("log replay line %d: %s", lines, err)
			continue
		}

		v := g.engine.Classify(g.ctx, req)
		g.record(req, v)
		stats.Add(v.Route)
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("log replay %s: %w", logfile, err)
	}

	log.Infof("log replay of %s: %d lines, %d skipped", logfile, lines, skipped)
	return stats, nil
}

func parseLogLine(p *gonx.Parser, line string) (*data.Request, error) {
	entry, err := p.ParseString(line)
	if err != nil {
		return nil, err
	}

	remote, err := entry.Field("remote_addr")
	if err != nil || remote == "" {
		return nil, fmt.Errorf("no remote address")
	}

	if xff, err := entry.Field("http_x_forwarded_for"); err == nil && xff != "" && xff != "-" {
		remote = xff
	}

	// only use the first host in case there are multiple hosts in the log
	if cidx := strings.Index(remote, ","); cidx >= 0 {
		remote = remote[0:cidx]
	}

	requestLine, err := entry.Field("request")
	if err != nil {
		return nil, err
	}

	reqData := requestLineRegexp.FindStringSubmatch(requestLine)
	if len(reqData) < 4 {
		return nil, fmt.Errorf("malformed request line %q", requestLine)
	}

	uri, err := url.ParseRequestURI(reqData[2])
	if err != nil {
		return nil, err
	}

	req := &data.Request{
		Method:   reqData[1],
		Path:     uri.Path,
		RawPath:  uri.EscapedPath(),
		RawQuery: uri.RawQuery,
		Header:   http.Header{},
		ClientIP: strings.TrimSpace(remote),
		Time:     time.Now(),
	}

	if host, err := entry.Field("host"); err == nil && host != "" {
		req.Host = host
	}

	if ua, err := entry.Field("http_user_agent"); err == nil && ua != "" && ua != "-" {
		req.Header.Set("User-Agent", ua)
	}

	if ref, err := entry.Field("http_referer"); err == nil && ref != "" && ref != "-" {
		req.Header.Set("Referer", ref)
	}

	if tl, err := entry.Field("time_local"); err == nil {
		if t, err := time.Parse(timeLocalLayout, tl); err == nil {
			req.Time = t
		}
	}

	return req, nil
}
