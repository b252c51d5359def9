package data

import (
	"time"
)

// VerdictMessage describes a single routing decision. It is published on the event bus and kept in the
// recent verdicts window
type VerdictMessage struct {
	ID        string    `json:"id"`
	IP        string    `json:"ip"`
	Route     Route     `json:"route"`
	Rule      string    `json:"rule"`
	Reason    string    `json:"reason"`
	Country   string    `json:"country,omitempty"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	UserAgent string    `json:"useragent"`
	Time      time.Time `json:"time"`
}

// IPRecord aggregates the decoyed and forwarded requests of a single client address
type IPRecord struct {
	IP           string         `json:"ip"`
	Hostname     string         `json:"hostname,omitempty"`
	Country      string         `json:"country,omitempty"`
	ASN          int            `json:"asn,omitempty"`
	Organization string         `json:"organization,omitempty"`
	Browser      string         `json:"browser,omitempty"`
	OS           string         `json:"os,omitempty"`
	Bot          bool           `json:"bot"`
	Hits         int            `json:"hits"`
	Routes       map[string]int `json:"routes"`
	LastRule     string         `json:"last_rule"`
	LastReason   string         `json:"last_reason"`
	UserAgents   map[string]int `json:"useragents"`
	FirstSeen    time.Time      `json:"first_seen"`
	LastSeen     time.Time      `json:"last_seen"`
}
