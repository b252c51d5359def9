package davcloak

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/mssola/user_agent"
	"github.com/scraperwall/davcloak/data"
	log "github.com/sirupsen/logrus"
)

const historyNamespace = "hist:ip"

// History keeps a record of every client address that was sent to the decoy or the origin
type History struct {
	resources *Resources
	ttl       time.Duration
	mutex     sync.Mutex
	ctx       context.Context
}

// NewHistory creates a new History. Records expire ttl after the last request of an address
func NewHistory(ctx context.Context, resources *Resources, ttl time.Duration) *History {
	return &History{
		resources: resources,
		ttl:       ttl,
		mutex:     sync.Mutex{},
		ctx:       ctx,
	}
}

// Record adds a verdict to the record of its client address. isNew is true if the address had no record yet
func (h *History) Record(msg *data.VerdictMessage) (rec *data.IPRecord, isNew bool, err error) {
	if msg.IP == "" {
		return nil, false, errors.New("IP is empty")
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	rec, err = h.Get(msg.IP)
	if err == h.resources.Store.ErrNotFound() {
		isNew = true
		rec = h.newRecord(msg)
	} else if err != nil {
		return nil, false, err
	}

	rec.Hits++
	rec.Routes[msg.Route.String()]++
	if msg.UserAgent != "" {
		rec.UserAgents[msg.UserAgent]++
	}
	rec.LastRule = msg.Rule
	rec.LastReason = msg.Reason
	if msg.Country != "" {
		rec.Country = msg.Country
	}
	rec.LastSeen = msg.Time

	if err = h.save(rec); err != nil {
		return nil, false, err
	}

	return rec, isNew, nil
}

// SetHostname stores the reverse hostname of an address
func (h *History) SetHostname(ip, hostname string) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	rec, err := h.Get(ip)
	if err != nil {
		return err
	}

	rec.Hostname = hostname
	return h.save(rec)
}

// Get retrieves the record of an address. If there is none, the store's ErrNotFound() is returned
func (h *History) Get(ip string) (*data.IPRecord, error) {
	raw, err := h.resources.Store.Get([]byte(historyNamespace), []byte(ip))
	if err != nil {
		return nil, err
	}

	var rec data.IPRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// All returns all records, most recently seen first
func (h *History) All() ([]*data.IPRecord, error) {
	res := make([]*data.IPRecord, 0)

	err := h.resources.Store.Each([]byte(historyNamespace), []byte{}, func(v []byte) {
		var rec data.IPRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			log.Warnf("failed to unmarshal history record: %s", err)
			return
		}
		res = append(res, &rec)
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(res, func(a, b int) bool {
		return res[a].LastSeen.After(res[b].LastSeen)
	})

	return res, nil
}

// Count returns the number of recorded addresses
func (h *History) Count() int {
	c, _ := h.resources.Store.Count([]byte(historyNamespace), []byte{})
	return c
}

// Clear removes all records
func (h *History) Clear() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.resources.Store.Clear([]byte(historyNamespace))
}

func (h *History) newRecord(msg *data.VerdictMessage) *data.IPRecord {
	rec := &data.IPRecord{
		IP:         msg.IP,
		Routes:     make(map[string]int),
		UserAgents: make(map[string]int),
		FirstSeen:  msg.Time,
	}

	if h.resources.ASNDB != nil {
		if ip := net.ParseIP(msg.IP); ip != nil {
			if asn := h.resources.ASNDB.Lookup(ip); asn != nil {
				rec.ASN = asn.ASN
				rec.Organization = asn.Organization
			}
		}
	}

	if msg.UserAgent != "" {
		ua := user_agent.New(msg.UserAgent)
		rec.Browser, _ = ua.Browser()
		rec.OS = ua.OS()
		rec.Bot = ua.Bot()
	}

	return rec
}

func (h *History) save(rec *data.IPRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return h.resources.Store.SetEx([]byte(historyNamespace), []byte(rec.IP), raw, h.ttl)
}
