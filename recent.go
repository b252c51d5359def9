package davcloak

import (
	"container/list"
	"sync"
	"time"

	"github.com/scraperwall/davcloak/data"
	log "github.com/sirupsen/logrus"
)

// RecentVerdicts contains the most recent verdicts
// The number of verdicts is limited by a maximum number of entries the list may contain (maxSize) and
// ttl, the time verdicts stay in the list before they expire and are removed
type RecentVerdicts struct {
	data    *list.List
	maxSize int
	ttl     time.Duration
	mutex   sync.RWMutex
}

// NewRecentVerdicts creates a new RecentVerdicts window
func NewRecentVerdicts(maxSize int, ttl time.Duration) *RecentVerdicts {
	return &RecentVerdicts{
		data:    list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		mutex:   sync.RWMutex{},
	}
}

// Add adds a single verdict
func (rv *RecentVerdicts) Add(v *data.VerdictMessage) {
	if rv.maxSize <= 0 {
		return
	}

	rv.mutex.Lock()
	defer rv.mutex.Unlock()

	rv.data.PushFront(v)
	if rv.data.Len() > rv.maxSize {
		rv.data.Remove(rv.data.Back())
	}
}

// Verdicts returns all verdicts in the list, newest first
func (rv *RecentVerdicts) Verdicts() []*data.VerdictMessage {
	rv.mutex.RLock()
	defer rv.mutex.RUnlock()

	res := make([]*data.VerdictMessage, 0, rv.data.Len())
	for e := rv.data.Front(); e != nil; e = e.Next() {
		res = append(res, e.Value.(*data.VerdictMessage))
	}

	return res
}

// Len returns the number of verdicts in the list
func (rv *RecentVerdicts) Len() int {
	rv.mutex.RLock()
	defer rv.mutex.RUnlock()

	return rv.data.Len()
}

// Expire removes expired verdicts from the list and returns the number of verdicts left
func (rv *RecentVerdicts) Expire() int {
	now := time.Now()

	rv.mutex.Lock()
	defer rv.mutex.Unlock()

	for {
		oldest := rv.data.Back()
		if oldest == nil {
			break
		}

		v := oldest.Value.(*data.VerdictMessage)
		if now.Sub(v.Time) <= rv.ttl {
			break
		}

		rv.data.Remove(oldest)
		log.Tracef("expiring verdict %s for %s (%v)", v.ID, v.IP, now.Sub(v.Time))
	}

	return rv.data.Len()
}
