package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultService is the geolocation service queried by the HTTPResolver
const DefaultService = "http://ip-api.com"

// maximum size of a geolocation response body
const maxResponseSize = 64 << 10

// Resolver resolves a client address to an ISO 3166-1 alpha-2 country code.
// ok is false whenever no country could be determined
type Resolver interface {
	Country(ctx context.Context, ip string) (code string, ok bool)
}

// ResolverFunc turns a function into a Resolver
type ResolverFunc func(ctx context.Context, ip string) (string, bool)

// Country calls f
func (f ResolverFunc) Country(ctx context.Context, ip string) (string, bool) {
	return f(ctx, ip)
}

// HTTPResolver queries an ip-api compatible web service: GET <service>/json/<ip>
// It sends exactly one request per lookup. Results are neither cached nor retried
type HTTPResolver struct {
	service string
	client  *http.Client
}

// NewHTTPResolver creates a resolver for the given service base URL. A timeout of 0 keeps the
// http.Client default
func NewHTTPResolver(service string, timeout time.Duration) *HTTPResolver {
	if service == "" {
		service = DefaultService
	}

	return &HTTPResolver{
		service: strings.TrimRight(service, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type lookupResponse struct {
	Status      string `json:"status"`
	CountryCode string `json:"countryCode"`
}

// Country implements Resolver
func (r *HTTPResolver) Country(ctx context.Context, ip string) (string, bool) {
	code, err := r.lookup(ctx, ip)
	if err != nil {
		log.Warnf("geo lookup for %s failed: %s", ip, err)
		return "", false
	}

	return code, true
}

func (r *HTTPResolver) lookup(ctx context.Context, ip string) (string, error) {
	if ip == "" {
		return "", fmt.Errorf("empty address")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/json/%s", r.service, url.PathEscape(ip)), nil)
	if err != nil {
		return "", err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	var res lookupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&res); err != nil {
		return "", fmt.Errorf("malformed response: %w", err)
	}

	code := strings.ToUpper(strings.TrimSpace(res.CountryCode))
	if code == "" {
		return "", fmt.Errorf("no country code in response (status %q)", res.Status)
	}

	return code, nil
}
