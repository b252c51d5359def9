package davcloak

import (
	"context"
	"errors"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fvbock/endless"
	"github.com/google/uuid"
	"github.com/scraperwall/asndb/v2"
	"github.com/scraperwall/davcloak/config"
	"github.com/scraperwall/davcloak/data"
	"github.com/scraperwall/davcloak/geo"
	"github.com/scraperwall/davcloak/plugins"
	"github.com/scraperwall/davcloak/store"
	log "github.com/sirupsen/logrus"
)

// Gateway classifies every incoming request and dispatches it to the decoy page, the origin
// or the WebDAV filesystem
type Gateway struct {
	config     *config.Config
	resources  *Resources
	engine     *Engine
	keywords   *Keywords
	decoy      *Decoy
	relay      *Relay
	filesystem http.Handler
	headers    HeaderSet
	stats      *StatsWindows
	recent     *RecentVerdicts
	history    *History
	api        *API
	plugins    []Plugin

	ctx context.Context
}

// New creates a new Gateway. All configuration files are loaded here, any error is fatal
func New(ctx context.Context, config *config.Config) (*Gateway, error) {
	var err error

	if err = config.Validate(); err != nil {
		return nil, err
	}

	resources := NewResources()

	g := &Gateway{
		config:    config,
		resources: resources,
		plugins:   make([]Plugin, 0),
		ctx:       ctx,
	}

	// Disguise profile
	//
	resources.Profiles, err = LoadProfiles(config.ProfilesFile)
	if err != nil {
		return nil, err
	}
	g.headers, err = resources.Profiles.Get(config.ServerType)
	if err != nil {
		return nil, err
	}

	// Blocked keywords
	//
	if config.KeywordsFile != "" {
		g.keywords, err = NewKeywords(ctx, config.KeywordsFile, config.Watch)
		if err != nil {
			return nil, err
		}
	} else {
		g.keywords = NewStaticKeywords()
	}

	// Decoy page
	//
	g.decoy, err = NewDecoy(ctx, config.DecoyPage, config.Watch)
	if err != nil {
		return nil, err
	}

	// Relay
	//
	if config.RelayTarget != "" {
		g.relay, err = NewRelay(config.RelayTarget, config.RelayTimeout)
		if err != nil {
			return nil, err
		}
	}

	// Geo resolver
	//
	var resolver geo.Resolver
	if config.GeoIPDBFile != "" {
		mmdb, err := geo.NewMMDBResolver(config.GeoIPDBFile)
		if err != nil {
			return nil, err
		}
		go func() {
			<-ctx.Done()
			mmdb.Close()
		}()
		resolver = mmdb
		log.Infof("geoip database %s loaded", config.GeoIPDBFile)
	} else {
		resolver = geo.NewHTTPResolver(config.GeoService, config.GeoTimeout)
	}
	resources.Geo = instrumentedResolver{resolver}

	// ASN Database
	//
	if config.ASNDBFile != "" {
		resources.ASNDB, err = asndb.New(config.ASNDBFile)
		if err != nil {
			return nil, err
		}
		log.Infof("asndb loaded with %d records", resources.ASNDB.Size())
	}

	// Decision history
	//
	if config.BadgerPath != "" {
		resources.Store, err = NewBadgerDB(ctx, config.BadgerPath)
		if err != nil {
			return nil, err
		}
		go func(kv store.KVStore) {
			<-ctx.Done()
			kv.Close()
		}(resources.Store)
		g.history = NewHistory(ctx, resources, config.HistoryTTL)

		resources.Resolver = NewResolver(ctx, resources, config)
		resolvChan := make(chan *IPResolv, 1000)
		if err = resources.Resolver.StartWorkers(resolvChan); err != nil {
			g.closeStore()
			return nil, err
		}

		go g.historyWorker()
		go g.resolvWorker(resolvChan)
	}

	// Event bus
	//
	if config.NatsURL != "" || config.NatsEmbedded {
		resources.Events, err = NewEvents(ctx, config)
		if err != nil {
			g.closeStore()
			return nil, err
		}
	}

	// Decision engine
	//
	g.engine = NewEngine(EngineOptions{
		Extended:          config.Extended(),
		Keywords:          g.keywords,
		Countries:         NewCountryFilter(config.AllowedCountries, config.BlockedCountries),
		AllowedUserAgents: NewUserAgentAllowList(config.AllowedUserAgents),
		HasRelay:          g.relay != nil,
		Resolver:          resources.Geo,
	})

	g.filesystem = NewFilesystem(config.Root, config.DavPrefix, config.ReadOnly)

	g.stats = NewStatsWindows(config.WindowSize, config.NumWindows, resources.Store)
	g.recent = NewRecentVerdicts(config.KeepRecent, config.WindowSize*time.Duration(config.NumWindows))

	g.plugins = append(g.plugins, plugins.NewIPMeta(resources.ASNDB, resources.Geo))

	// API
	//
	if config.APIAddress != "" {
		g.api = NewAPI(ctx, config, g)
		g.api.Run()
	}

	if config.LogMemoryStats {
		go g.logMemoryStats()
	}
	go g.statsWorker()

	g.logSummary()

	return g, nil
}

// closeStore releases the history store when New fails after it was opened
func (g *Gateway) closeStore() {
	if g.resources.Store == nil {
		return
	}
	if err := g.resources.Store.Close(); err != nil {
		log.Warnf("failed to close the history store: %s", err)
	}
}

// Engine returns the decision engine
func (g *Gateway) Engine() *Engine {
	return g.engine
}

// ListenAndServe serves the gateway on the configured listen address
func (g *Gateway) ListenAndServe() error {
	log.Infof("listening on %s", g.config.ListenAddress)
	return endless.ListenAndServe(g.config.ListenAddress, g)
}

// ServeHTTP classifies the request and dispatches it
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := data.NewRequest(r, g.config.TrustForwarded)
	log.Infof("received request from %s, useragent %q", req.ClientIP, req.UserAgent())

	verdict := g.engine.Classify(r.Context(), req)
	g.record(req, verdict)

	switch verdict.Route {
	case data.Forward:
		if g.relay == nil {
			g.decoy.Render(w, g.headers)
			return
		}
		if err := g.relay.Relay(r.Context(), w, req); err != nil {
			g.badGateway(w, err)
		}
	case data.Filesystem:
		g.headers.Apply(w.Header())
		g.filesystem.ServeHTTP(w, r)
	default:
		g.decoy.Render(w, g.headers)
	}
}

// badGateway answers relay failures with the disguise headers and status 502
func (g *Gateway) badGateway(w http.ResponseWriter, err error) {
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		log.Errorf("relay to %s failed: %s", upstreamErr.URL, upstreamErr.Err)
	} else {
		log.Errorf("relay failed: %s", err)
	}
	upstreamErrors.Inc()

	g.headers.Apply(w.Header())
	w.WriteHeader(http.StatusBadGateway)
}

// record updates metrics, statistics and the recent verdicts and hands decoyed and forwarded
// requests on to the history and the event bus
func (g *Gateway) record(req *data.Request, v Verdict) {
	switch v.Rule {
	case "missing-useragent", "blocked-keyword", "country":
		log.Warnf("%s %s %s -> %s: %s", req.ClientIP, req.Method, req.Path, v.Route, v.Reason)
	default:
		log.Infof("%s %s %s -> %s: %s", req.ClientIP, req.Method, req.Path, v.Route, v.Reason)
	}

	requestsTotal.WithLabelValues(v.Route.String(), v.Rule).Inc()
	g.stats.Add(v.Route, req.Time)

	msg := &data.VerdictMessage{
		ID:        uuid.New().String(),
		IP:        req.ClientIP,
		Route:     v.Route,
		Rule:      v.Rule,
		Reason:    v.Reason,
		Country:   v.Country,
		Method:    req.Method,
		Path:      req.Path,
		UserAgent: req.UserAgent(),
		Time:      req.Time,
	}
	g.recent.Add(msg)

	if g.resources.Events != nil {
		if err := g.resources.Events.Publish(msg); err != nil {
			log.Warnf("failed to publish verdict %s: %s", msg.ID, err)
		}
	}

	if g.history != nil && v.Route != data.Filesystem {
		select {
		case g.resources.VerdictChan <- msg:
		default:
			droppedVerdicts.Inc()
		}
	}
}

func (g *Gateway) historyWorker() {
	for {
		select {
		case <-g.ctx.Done():
			return
		case msg := <-g.resources.VerdictChan:
			_, isNew, err := g.history.Record(msg)
			if err != nil {
				log.Errorf("failed to write the verdict for %s to the history: %s", msg.IP, err)
				continue
			}
			if isNew {
				g.resources.Resolver.Resolve(net.ParseIP(msg.IP))
			}
		}
	}
}

func (g *Gateway) resolvWorker(resolvChan chan *IPResolv) {
	for {
		select {
		case <-g.ctx.Done():
			return
		case rip := <-resolvChan:
			if rip.Err != "" {
				log.Tracef("failed to resolve %s: %s", rip.IP, rip.Err)
				continue
			}
			if err := g.history.SetHostname(rip.IP.String(), rip.Host); err != nil {
				log.Tracef("failed to store hostname %s for %s: %s", rip.Host, rip.IP, err)
			}
		}
	}
}

func (g *Gateway) statsWorker() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			g.stats.Expire()
			g.recent.Expire()

			s := g.stats.Totals()
			log.Infof("stats :: %s requests / %s decoy / %s forward / %s filesystem",
				humanize.Comma(s.Total),
				humanize.Comma(s.Decoy),
				humanize.Comma(s.Forward),
				humanize.Comma(s.Filesystem))
		}
	}
}

func (g *Gateway) logMemoryStats() {
	interval := g.config.WindowSize
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)

			log.Infof("-=- alloc: %s, in_use: %s, objs: %s, idle: %s, released: %s, stack: %s, goroutines: %s",
				humanize.Bytes(m.Alloc),
				humanize.Bytes(m.HeapInuse),
				humanize.FormatInteger("#,###.", int(m.HeapObjects)),
				humanize.Bytes(m.HeapIdle),
				humanize.Bytes(m.HeapReleased),
				humanize.Bytes(m.StackInuse),
				humanize.FormatInteger("#,###.", runtime.NumGoroutine()))
		}
	}
}

func (g *Gateway) logSummary() {
	c := g.config

	log.Infof("server type %s, %s variant, rules: %v", c.ServerType, c.Variant, g.engine.Rules())
	log.Infof("serving %s at %s (read-only: %v)", c.Root, c.DavPrefix, c.ReadOnly)

	if len(c.AllowedCountries) > 0 {
		log.Infof("allowed countries: %v", c.AllowedCountries)
	} else {
		log.Warn("no allowed countries configured: all countries are allowed")
	}

	if len(c.BlockedCountries) > 0 {
		log.Infof("blocked countries: %v", c.BlockedCountries)
	}

	if g.relay != nil {
		log.Infof("blocked requests are relayed to %s", g.relay.Target())
	} else {
		log.Warn("no relay target configured: blocked requests get the decoy page")
	}

	if c.Extended() {
		if len(c.AllowedUserAgents) > 0 {
			log.Infof("allowed useragents: %q", c.AllowedUserAgents)
		} else {
			log.Warn("no allowed useragents configured")
		}
	}
}
