package davcloak

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/scraperwall/davcloak/geo"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "davcloak_requests_total",
			Help: "Requests by route and the rule that decided it",
		},
		[]string{"route", "rule"},
	)

	geoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "davcloak_geo_lookups_total",
			Help: "Country lookups by result",
		},
		[]string{"result"},
	)

	geoLookupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "davcloak_geo_lookup_seconds",
		Help:    "Duration of country lookups",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	upstreamErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "davcloak_upstream_errors_total",
		Help: "Relayed requests that failed because the origin could not be reached",
	})

	droppedVerdicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "davcloak_dropped_verdicts_total",
		Help: "Verdicts that were not written to the history because its queue was full",
	})
)

// instrumentedResolver records lookup durations and failures of a geo.Resolver
type instrumentedResolver struct {
	geo.Resolver
}

func (r instrumentedResolver) Country(ctx context.Context, ip string) (string, bool) {
	start := time.Now()
	code, ok := r.Resolver.Country(ctx, ip)
	geoLookupDuration.Observe(time.Since(start).Seconds())

	if ok {
		geoLookups.WithLabelValues("resolved").Inc()
	} else {
		geoLookups.WithLabelValues("failed").Inc()
	}

	return code, ok
}
