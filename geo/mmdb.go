package geo

import (
	"context"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
	log "github.com/sirupsen/logrus"
)

// MMDBResolver looks up countries in a local MaxMind or DB-IP country/city database
type MMDBResolver struct {
	reader *geoip2.Reader
}

// NewMMDBResolver opens the database file
func NewMMDBResolver(file string) (*MMDBResolver, error) {
	reader, err := geoip2.Open(file)
	if err != nil {
		return nil, err
	}

	return &MMDBResolver{
		reader: reader,
	}, nil
}

// Country implements Resolver
func (r *MMDBResolver) Country(_ context.Context, ip string) (string, bool) {
	addr := net.ParseIP(ip)
	if addr == nil {
		log.Warnf("geo lookup: %q is not a valid IP address", ip)
		return "", false
	}

	rec, err := r.reader.Country(addr)
	if err != nil {
		log.Warnf("geo lookup for %s failed: %s", ip, err)
		return "", false
	}

	code := strings.ToUpper(rec.Country.IsoCode)
	if code == "" {
		return "", false
	}

	return code, true
}

// Close closes the database
func (r *MMDBResolver) Close() error {
	return r.reader.Close()
}
