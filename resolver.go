/*
	davcloak - a disguised WebDAV gateway by ScraperWall
	Copyright (C) 2021 ScraperWall, Tobias von Dewitz <tobias@scraperwall.com>

	This program is free software: you can redistribute it and/or modify it
	under the terms of the GNU Affero General Public License as published by
	the Free Software Foundation, either version 3 of the License, or (at your
	option) any later version.

	This program is distributed in the hope that it will be useful, but WITHOUT
	ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
	FITNESS FOR A PARTICULAR PURPOSE. See the GNU Affero General Public License
	for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program. If not, see <https://www.gnu.org/licenses/>.
*/

package davcloak

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ReneKroon/ttlcache/v2"
	"github.com/miekg/dns"
	"github.com/scraperwall/davcloak/config"
	log "github.com/sirupsen/logrus"
)

const resolveNamespace = "rl:ip"

// Resolver looks up the reverse hostnames of decoyed and forwarded client addresses
type Resolver struct {
	config    *config.Config
	resources *Resources
	inChan    chan *IPResolv
	outChan   chan *IPResolv
	pending   *ttlcache.Cache
	ctx       context.Context
}

// IPResolv contains an IP address and its corresponding reverse hostname
type IPResolv struct {
	IP     net.IP    `json:"ip"`
	Host   string    `json:"host"`
	Err    string    `json:"err"`
	TEnd   time.Time `json:"tend"`
	TStart time.Time `json:"tstart"`
}

// NewIPResolv creates a new IP that needs to be resolved
func NewIPResolv(ip net.IP) *IPResolv {
	return &IPResolv{
		IP:     ip,
		TStart: time.Now(),
	}
}

// TimeTaken returns the amount of time it has taken to resolve the IP
func (rip *IPResolv) TimeTaken() time.Duration {
	if rip.TEnd.After(rip.TStart) {
		return rip.TEnd.Sub(rip.TStart)
	}

	return time.Since(rip.TStart)
}

// NewResolver creates a new Resolver item
func NewResolver(ctx context.Context, resources *Resources, config *config.Config) *Resolver {
	pending := ttlcache.NewCache()
	pending.SetTTL(time.Minute)
	pending.SkipTTLExtensionOnHit(true)

	r := &Resolver{
		config:    config,
		resources: resources,
		ctx:       ctx,
		inChan:    make(chan *IPResolv, 1000),
		pending:   pending,
	}

	go func() {
		<-ctx.Done()
		log.Infof("resolver exiting")
		pending.Close()
	}()

	return r
}

// StartWorkers starts the resolver workers. They pull IPs from the input queue and
// send the results over outChan
func (r *Resolver) StartWorkers(outChan chan *IPResolv) error {
	if r.outChan != nil {
		return errors.New("workers have already been started")
	}
	r.outChan = outChan

	workers := r.config.ResolverWorkers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		go r.worker(i)
	}

	return nil
}

// Resolve queues an IP to be resolved. IPs that have been queued within the last minute are skipped.
// It returns false if the IP wasn't queued
func (r *Resolver) Resolve(ip net.IP) bool {
	if ip == nil {
		return false
	}

	key := ip.String()
	if _, err := r.pending.Get(key); err == nil {
		return false
	}
	r.pending.Set(key, true)

	select {
	case r.inChan <- NewIPResolv(ip):
		return true
	default:
		log.Warnf("resolver queue is full, dropping %s", ip)
		return false
	}
}

func (r *Resolver) worker(id int) {
	count := 0
	for {
		select {
		case <-r.ctx.Done():
			log.Tracef("resolver worker #%d exiting", id)
			return
		case rip := <-r.inChan:
			count++
			log.Tracef("worker %d #%d - resolving %s", id, count, rip.IP)
			r.reverseLookup(rip)
		}
	}
}

func (r *Resolver) reverseLookup(rip *IPResolv) {
	ipKey := []byte(rip.IP.String())

	// does the reverse hostname already exist in our cache?
	if r.resources.Store != nil {
		host, err := r.resources.Store.Get([]byte(resolveNamespace), ipKey)
		if err == nil && len(host) > 0 {
			rip.Host = string(host)
			rip.TEnd = time.Now()
			log.Tracef("kvstore %s = %s", rip.IP, rip.Host)
			r.send(rip)
			return
		}
	}

	hostname, err := r.reverseDNSLookup(rip.IP)
	rip.TEnd = time.Now()
	if err != nil {
		rip.Err = err.Error()
		r.send(rip)
		return
	}

	log.Tracef("dns %s -> %s (%v)", rip.IP, hostname, rip.TimeTaken())
	rip.Host = hostname

	if r.resources.Store != nil {
		err = r.resources.Store.SetEx([]byte(resolveNamespace), ipKey, []byte(hostname), r.config.ResolverTTL)
		if err != nil {
			log.Errorf("failed to write %s (%s) to the cache: %s", rip.IP, rip.Host, err)
		}
	}

	r.send(rip)
}

func (r *Resolver) send(rip *IPResolv) {
	select {
	case r.outChan <- rip:
	case <-r.ctx.Done():
	}
}

func (r *Resolver) reverseDNSLookup(ip net.IP) (string, error) {
	if ip == nil {
		return "", fmt.Errorf("ip is nil")
	}

	reverse, err := dns.ReverseAddr(ip.String())
	if err != nil {
		return "", err
	}

	dnsClient := new(dns.Client)
	dnsClient.Timeout = 2500 * time.Millisecond

	p := new(dns.Msg)
	p.Id = dns.Id()
	p.RecursionDesired = true
	p.SetQuestion(reverse, dns.TypePTR)

	resp, _, err := dnsClient.Exchange(p, r.config.DNSServer)
	if err != nil {
		log.Warnf("dns exchange error for %s: %s", ip, err)
		return "", err
	}

	hostname := ip.String()
	for _, a := range resp.Answer {
		if t, ok := a.(*dns.PTR); ok && len(t.Ptr) > 1 {
			hostname = t.Ptr[0 : len(t.Ptr)-1]
			break
		}
	}

	return hostname, nil
}
