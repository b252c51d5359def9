package davcloak

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	natsd "github.com/nats-io/nats-server/v2/server"
	nats "github.com/nats-io/nats.go"
	"github.com/scraperwall/davcloak/config"
	"github.com/scraperwall/davcloak/data"
	log "github.com/sirupsen/logrus"
)

// VerdictsSubject is the NATS subject verdicts are published on
const VerdictsSubject = "verdicts"

// Events publishes verdicts on NATS
type Events struct {
	server *natsd.Server
	conn   *nats.Conn
	jsonc  *nats.EncodedConn
}

type natsAuth struct {
	User     string
	Password string
}

func (na *natsAuth) Check(c natsd.ClientAuthentication) bool {
	return c.GetOpts().Username == na.User && c.GetOpts().Password == na.Password
}

// NewEvents connects to the NATS server at config.NatsURL. If config.NatsEmbedded is set, a NATS server
// is started in-process and the connection goes there instead
func NewEvents(ctx context.Context, config *config.Config) (*Events, error) {
	var err error
	e := &Events{}

	url := config.NatsURL
	if config.NatsEmbedded {
		nopts := &natsd.Options{
			Host:    config.NatsAddr,
			Port:    config.NatsPort,
			MaxConn: 1 << 12,
			NoSigs:  true,
		}
		if config.NatsUser != "" {
			nopts.CustomClientAuthentication = &natsAuth{
				User:     config.NatsUser,
				Password: config.NatsPassword,
			}
		}

		e.server = natsd.New(nopts)
		go e.server.Start()
		if !e.server.ReadyForConnections(2 * time.Second) {
			e.server.Shutdown()
			return nil, errors.New("nats server failed to startup")
		}

		port := config.NatsPort
		if addr, ok := e.server.Addr().(*net.TCPAddr); ok {
			port = addr.Port
		}
		url = fmt.Sprintf("nats://127.0.0.1:%d/", port)
		log.Infof("embedded nats server listening on %s:%d", config.NatsAddr, port)
	}

	opts := []nats.Option{
		nats.Name("davcloak"),
		nats.ErrorHandler(func(c *nats.Conn, s *nats.Subscription, err error) {
			log.Warnf("nats error: %s", err)
		}),
	}
	if config.NatsUser != "" {
		opts = append(opts, nats.UserInfo(config.NatsUser, config.NatsPassword))
	}

	e.conn, err = nats.Connect(url, opts...)
	if err != nil {
		e.shutdownServer()
		return nil, fmt.Errorf("nats %s: %w", url, err)
	}

	e.jsonc, err = nats.NewEncodedConn(e.conn, nats.JSON_ENCODER)
	if err != nil {
		e.conn.Close()
		e.shutdownServer()
		return nil, err
	}

	go func() {
		<-ctx.Done()
		e.Close()
	}()

	return e, nil
}

// Publish sends a verdict to VerdictsSubject
func (e *Events) Publish(msg *data.VerdictMessage) error {
	return e.jsonc.Publish(VerdictsSubject, msg)
}

// Subscribe calls handler for every verdict published on VerdictsSubject
func (e *Events) Subscribe(handler func(msg *data.VerdictMessage)) (*nats.Subscription, error) {
	return e.jsonc.Subscribe(VerdictsSubject, handler)
}

// Close drains the connection and stops the embedded server
func (e *Events) Close() {
	if err := e.conn.Drain(); err != nil {
		log.Warnf("nats drain: %s", err)
	}
	e.shutdownServer()
}

func (e *Events) shutdownServer() {
	if e.server != nil {
		e.server.Shutdown()
	}
}
