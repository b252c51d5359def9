package davcloak

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/scraperwall/davcloak/data"
)

func newTestHistory(t *testing.T) (*History, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	resources := NewResources()
	kv, err := NewBadgerDB(ctx, "")
	if err != nil {
		cancel()
		t.Fatal(err)
	}
	resources.Store = kv

	return NewHistory(ctx, resources, time.Hour), func() {
		kv.Close()
		cancel()
	}
}

func TestHistoryRecord(t *testing.T) {
	h, done := newTestHistory(t)
	defer done()

	first := time.Now().Add(-time.Minute)
	msg := &data.VerdictMessage{
		ID:        gofakeit.UUID(),
		IP:        "203.0.113.9",
		Route:     data.Decoy,
		Rule:      "bot",
		Reason:    "bot useragent",
		Country:   "DE",
		UserAgent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		Time:      first,
	}

	rec, isNew, err := h.Record(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !isNew {
		t.Error("the first verdict of an address must create a new record")
	}
	if !rec.Bot {
		t.Error("the useragent must be recognized as a bot")
	}

	msg.Route = data.Forward
	msg.Rule = "blocked-keyword"
	msg.Time = time.Now()
	rec, isNew, err = h.Record(msg)
	if err != nil {
		t.Fatal(err)
	}
	if isNew {
		t.Error("the second verdict must update the existing record")
	}
	if rec.Hits != 2 || rec.Routes["decoy"] != 1 || rec.Routes["forward"] != 1 {
		t.Errorf("unexpected counters: hits %d, routes %v", rec.Hits, rec.Routes)
	}
	if rec.LastRule != "blocked-keyword" || rec.Country != "DE" {
		t.Errorf("unexpected record %+v", rec)
	}
	if !rec.FirstSeen.Equal(first) {
		t.Errorf("the first seen time must not change, got %s", rec.FirstSeen)
	}

	if _, _, err := h.Record(&data.VerdictMessage{}); err == nil {
		t.Error("a verdict without an address must be rejected")
	}
}

func TestHistoryHostname(t *testing.T) {
	h, done := newTestHistory(t)
	defer done()

	if err := h.SetHostname("203.0.113.10", "scanner.example.net"); err == nil {
		t.Error("setting the hostname of an unknown address must fail")
	}

	if _, _, err := h.Record(&data.VerdictMessage{IP: "203.0.113.10", Route: data.Decoy, Time: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := h.SetHostname("203.0.113.10", "scanner.example.net"); err != nil {
		t.Fatal(err)
	}

	rec, err := h.Get("203.0.113.10")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Hostname != "scanner.example.net" {
		t.Errorf("expected the hostname to be stored, got %q", rec.Hostname)
	}
}

func TestHistoryAllAndClear(t *testing.T) {
	h, done := newTestHistory(t)
	defer done()

	gofakeit.Seed(5)
	now := time.Now()
	ips := make(map[string]bool)
	for i := 0; i < 25; i++ {
		ip := gofakeit.IPv4Address()
		ips[ip] = true
		msg := &data.VerdictMessage{
			IP:        ip,
			Route:     data.Decoy,
			UserAgent: gofakeit.UserAgent(),
			Time:      now.Add(time.Duration(i) * time.Second),
		}
		if _, _, err := h.Record(msg); err != nil {
			t.Fatal(err)
		}
	}

	records, err := h.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != len(ips) || h.Count() != len(ips) {
		t.Fatalf("expected %d records, got %d (count %d)", len(ips), len(records), h.Count())
	}
	for i := 1; i < len(records); i++ {
		if records[i].LastSeen.After(records[i-1].LastSeen) {
			t.Errorf("records must be sorted by last seen, newest first")
			break
		}
	}

	if err := h.Clear(); err != nil {
		t.Fatal(err)
	}
	if h.Count() != 0 {
		t.Errorf("expected no records after clearing, got %d", h.Count())
	}
}
