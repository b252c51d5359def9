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

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Variants of the decision engine
const (
	VariantBase     = "base"
	VariantExtended = "extended"
)

// Config contains all configurable bits and pieces the davcloak application needs
// The configuration gets passed on to all parts of the application that need to access it.
// It must not be modified after the gateway has been created.
type Config struct {
	ListenAddress     string
	DecoyPage         string
	Root              string
	DavPrefix         string
	ReadOnly          bool
	ServerType        string
	ProfilesFile      string
	KeywordsFile      string
	AllowedCountries  []string
	BlockedCountries  []string
	AllowedUserAgents []string
	RelayTarget       string
	RelayTimeout      time.Duration
	Variant           string
	TrustForwarded    bool
	Watch             bool
	GeoService        string
	GeoTimeout        time.Duration
	GeoIPDBFile       string
	ASNDBFile         string
	WindowSize        time.Duration
	NumWindows        int
	KeepRecent        int
	DNSServer         string
	BadgerPath        string
	HistoryTTL        time.Duration
	NatsURL           string
	NatsEmbedded      bool
	NatsAddr          string
	NatsPort          int
	NatsUser          string
	NatsPassword      string
	ResolverWorkers   int
	ResolverTTL       time.Duration
	LogLevel          string
	LogFormat         string
	LogFile           string
	LogMaxSize        int
	LogMaxBackups     int
	LogMaxAge         int
	LogCompress       bool
	LogReplay         string
	LogReplayFormat   string
	APIAddress        string
	LogMemoryStats    bool
}

// Extended returns true if the fail-closed engine variant is configured
func (c *Config) Extended() bool {
	return c.Variant != VariantBase
}

// Validate normalizes list values and checks the settings the gateway can't start without
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Variant)) {
	case "", VariantExtended:
		c.Variant = VariantExtended
	case VariantBase:
		c.Variant = VariantBase
	default:
		return fmt.Errorf("unknown variant %q (use %s or %s)", c.Variant, VariantBase, VariantExtended)
	}

	if c.ServerType == "" {
		return errors.New("a server type is required")
	}
	c.ServerType = strings.ToLower(c.ServerType)

	if c.DecoyPage == "" {
		return errors.New("the path to the decoy HTML page is required")
	}

	if c.DavPrefix == "" {
		c.DavPrefix = "/"
	}

	c.AllowedCountries = NormalizeCountries(c.AllowedCountries)
	c.BlockedCountries = NormalizeCountries(c.BlockedCountries)

	return nil
}

// NormalizeCountries upper-cases country codes and removes empty entries. Entries may contain comma-separated lists
func NormalizeCountries(in []string) []string {
	res := make([]string, 0, len(in))
	for _, entry := range in {
		for _, code := range strings.Split(entry, ",") {
			code = strings.ToUpper(strings.TrimSpace(code))
			if code == "" {
				continue
			}
			res = append(res, code)
		}
	}
	return res
}
