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
	"github.com/scraperwall/asndb/v2"
	"github.com/scraperwall/davcloak/data"
	"github.com/scraperwall/davcloak/geo"
	"github.com/scraperwall/davcloak/store"
)

// Resources holds the shared external resources of the gateway. Optional resources are nil
// when they aren't configured
type Resources struct {
	ASNDB       *asndb.DB
	Geo         geo.Resolver
	Store       store.KVStore
	Events      *Events
	Resolver    *Resolver
	Profiles    Profiles
	VerdictChan chan *data.VerdictMessage
}

// NewResources creates an empty Resources item
func NewResources() *Resources {
	return &Resources{
		VerdictChan: make(chan *data.VerdictMessage, 1000),
	}
}
