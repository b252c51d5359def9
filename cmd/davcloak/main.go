package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/namsral/flag"
	"github.com/scraperwall/davcloak"
	"github.com/scraperwall/davcloak/config"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// stringList collects the values of a flag that may be given more than once
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ", ")
}

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	config := config.Config{}

	var allowedCountries, blockedCountries string
	var allowedUserAgents stringList

	fs := flag.NewFlagSetWithEnvPrefix(os.Args[0], "DAVCLOAK", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] [decoy-page]\n", os.Args[0])
		fs.PrintDefaults()
	}

	fs.StringVar(&config.ListenAddress, "listen", "0.0.0.0:8080", "listen on this address")
	fs.StringVar(&config.DecoyPage, "decoy-page", "", "the HTML page served to everyone who isn't let through")
	fs.StringVar(&config.Root, "root", ".", "the directory served through WebDAV")
	fs.StringVar(&config.DavPrefix, "dav-prefix", "/", "mount the WebDAV filesystem at this path")
	fs.BoolVar(&config.ReadOnly, "read-only", false, "reject all modifying WebDAV requests")
	fs.StringVar(&config.ServerType, "server-type", "nginx", "the server product to imitate")
	fs.StringVar(&config.ProfilesFile, "profiles", "", "TOML file with disguise profiles. Empty uses the built-in profiles")
	fs.StringVar(&config.KeywordsFile, "keywords", "blocked_keywords.txt", "file with one blocked keyword per line. Empty disables keyword blocking")
	fs.StringVar(&allowedCountries, "allowed-countries", "", "comma-separated ISO country codes that may access the filesystem")
	fs.StringVar(&blockedCountries, "blocked-countries", "", "comma-separated ISO country codes that are always blocked")
	fs.Var(&allowedUserAgents, "allowed-useragent", "a useragent that is let through verbatim. May be given multiple times")
	fs.StringVar(&config.RelayTarget, "relay", "", "forward blocked requests to this origin instead of showing the decoy")
	fs.DurationVar(&config.RelayTimeout, "relay-timeout", 60*time.Second, "timeout for requests to the origin")
	fs.StringVar(&config.Variant, "variant", "extended", "the decision engine variant: base or extended")
	fs.BoolVar(&config.TrustForwarded, "trust-forwarded", false, "take the client address from X-Forwarded-For or X-Real-IP")
	fs.BoolVar(&config.Watch, "watch", true, "reload the decoy page and the keywords when they change")
	fs.StringVar(&config.GeoService, "geo-service", "", "base URL of the IP geolocation service")
	fs.DurationVar(&config.GeoTimeout, "geo-timeout", 10*time.Second, "timeout for geolocation lookups")
	fs.StringVar(&config.GeoIPDBFile, "geoip-db", "", "resolve countries from this MaxMind database instead of the geolocation service")
	fs.StringVar(&config.ASNDBFile, "asndb", "", "the ASN database used to enrich the decision history")
	fs.DurationVar(&config.WindowSize, "window-size", time.Minute, "size of one statistics window")
	fs.IntVar(&config.NumWindows, "num-windows", 60, "number of statistics windows")
	fs.IntVar(&config.KeepRecent, "keep-recent", 100, "keep this many most recent verdicts")
	fs.StringVar(&config.DNSServer, "dns-server", "8.8.8.8:53", "the DNS server to use")
	fs.StringVar(&config.BadgerPath, "badger-path", "", "keep the decision history in this directory. Empty disables the history")
	fs.DurationVar(&config.HistoryTTL, "history-ttl", 24*time.Hour, "forget addresses that haven't been seen this long")
	fs.StringVar(&config.NatsURL, "nats-url", "", "publish verdicts to this NATS server")
	fs.BoolVar(&config.NatsEmbedded, "nats-embedded", false, "start an embedded NATS server")
	fs.StringVar(&config.NatsAddr, "nats-addr", "0.0.0.0", "bind the embedded NATS server to this IP")
	fs.IntVar(&config.NatsPort, "nats-port", 4223, "the port on which the embedded NATS server listens")
	fs.StringVar(&config.NatsUser, "nats-user", "", "the NATS user")
	fs.StringVar(&config.NatsPassword, "nats-password", "", "the NATS password")
	fs.IntVar(&config.ResolverWorkers, "resolver-workers", 10, "number of DNS resolver workers")
	fs.DurationVar(&config.ResolverTTL, "resolver-ttl", 3*30*24*time.Hour, "cache reverse hostnames this long")
	fs.StringVar(&config.LogLevel, "loglevel", "info", "the log level")
	fs.StringVar(&config.LogFormat, "log-format", "text", "the log format: text or json")
	fs.StringVar(&config.LogFile, "log-file", "server.log", "also write the log to this file. Empty logs to stdout only")
	fs.IntVar(&config.LogMaxSize, "log-max-size", 100, "rotate the log file after this many megabytes")
	fs.IntVar(&config.LogMaxBackups, "log-max-backups", 5, "keep this many rotated log files")
	fs.IntVar(&config.LogMaxAge, "log-max-age", 28, "remove rotated log files after this many days")
	fs.BoolVar(&config.LogCompress, "log-compress", true, "gzip rotated log files")
	fs.StringVar(&config.LogReplay, "log-replay", "", "classify the requests of this access log and exit")
	fs.StringVar(&config.LogReplayFormat, "log-replay-format", davcloak.DefaultLogFormat, "the format of the access log")
	fs.StringVar(&config.APIAddress, "api-address", "", "serve the admin API on this address")
	fs.BoolVar(&config.LogMemoryStats, "log-memory-stats", false, "periodically log memory statistics")

	fs.String(flag.DefaultConfigFlagname, "", "read flags from this file")

	fs.Parse(os.Args[1:])

	if fs.NArg() > 0 {
		config.DecoyPage = fs.Arg(0)
	}
	config.AllowedCountries = []string{allowedCountries}
	config.BlockedCountries = []string{blockedCountries}
	config.AllowedUserAgents = allowedUserAgents

	if err := setupLogging(&config); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	g, err := davcloak.New(ctx, &config)
	if err != nil {
		log.Fatal(err)
	}

	if config.LogReplay != "" {
		stats, err := g.LogReplay(config.LogReplay, config.LogReplayFormat)
		cancel()
		if err != nil {
			log.Fatal(err)
		}

		fmt.Printf("%s requests: %s decoy, %s forward, %s filesystem\n",
			humanize.Comma(stats.Total),
			humanize.Comma(stats.Decoy),
			humanize.Comma(stats.Forward),
			humanize.Comma(stats.Filesystem))
		return
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		<-quit
		log.Println("exiting...")
		cancel()
	}()

	if err := g.ListenAndServe(); err != nil {
		log.Error(err)
	}
	cancel()
}

func setupLogging(config *config.Config) error {
	level, err := log.ParseLevel(config.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	switch config.LogFormat {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", config.LogFormat)
	}

	if config.LogFile != "" {
		log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   config.LogFile,
			MaxSize:    config.LogMaxSize,
			MaxBackups: config.LogMaxBackups,
			MaxAge:     config.LogMaxAge,
			Compress:   config.LogCompress,
		}))
	}

	return nil
}
