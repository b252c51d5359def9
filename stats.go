package davcloak

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/scraperwall/davcloak/data"
	"github.com/scraperwall/davcloak/store"
	log "github.com/sirupsen/logrus"
)

const statsNamespace = "stats"

// WindowStats contains the route counters of a single time window
type WindowStats struct {
	data.Stats
	Time      time.Time `json:"time"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatsWindows counts routes in consecutive time windows. Windows older than NumWindows * WindowSize expire.
// Completed windows are written to the store if there is one
type StatsWindows struct {
	data.Stats
	Map        *treemap.Map
	windowSize time.Duration
	numWindows int
	store      store.KVStore
	mutex      sync.RWMutex
}

// NewStatsWindows creates new statistics windows. kv may be nil
func NewStatsWindows(windowSize time.Duration, numWindows int, kv store.KVStore) *StatsWindows {
	if windowSize <= 0 {
		windowSize = time.Minute
	}
	if numWindows <= 0 {
		numWindows = 1
	}

	return &StatsWindows{
		Map:        treemap.NewWith(utils.TimeComparator),
		windowSize: windowSize,
		numWindows: numWindows,
		store:      kv,
		mutex:      sync.RWMutex{},
	}
}

// Add counts a request with the given route at time t
func (s *StatsWindows) Add(r data.Route, t time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	k := s.keyFor(t)
	var stats WindowStats

	statsRaw, ok := s.Map.Get(k)
	if !ok {
		// store the previous window
		if s.Map.Size() > 0 && s.store != nil {
			latestKey, latestValue := s.Map.Max()
			s.persist(latestKey.(time.Time), latestValue.(WindowStats))
		}

		stats = WindowStats{
			Time: k,
		}
	} else {
		stats = statsRaw.(WindowStats)
	}

	stats.Add(r)
	s.Stats.Add(r)
	stats.UpdatedAt = time.Now()

	s.Map.Put(k, stats)
}

// Totals returns the counters of all current windows
func (s *StatsWindows) Totals() data.Stats {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.Stats
}

// All returns all windows, oldest first
func (s *StatsWindows) All() []WindowStats {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	res := make([]WindowStats, 0, s.Map.Size())

	iter := s.Map.Iterator()
	for iter.Next() {
		res = append(res, iter.Value().(WindowStats))
	}

	return res
}

// Expire removes all windows that are older than the configured time span
func (s *StatsWindows) Expire() {
	threshold := time.Now().Add(s.windowSize * -time.Duration(s.numWindows))

	s.mutex.Lock()
	defer s.mutex.Unlock()

	expired := make([]time.Time, 0)

	iter := s.Map.Iterator()
	for iter.Next() {
		key := iter.Key().(time.Time)
		if key.After(threshold) {
			break
		}

		s.Stats.Sub(iter.Value().(WindowStats).Stats)
		expired = append(expired, key)
	}

	for _, key := range expired {
		s.Map.Remove(key)
	}
}

func (s *StatsWindows) persist(key time.Time, stats WindowStats) {
	statsBytes, err := json.Marshal(stats)
	if err != nil {
		log.Errorf("json encoding error of stats: %s", err)
		return
	}

	ttl := s.windowSize * time.Duration(s.numWindows) * 24
	err = s.store.SetEx([]byte(statsNamespace), []byte(fmt.Sprintf("%d", key.UnixNano())), statsBytes, ttl)
	if err != nil {
		log.Errorf("failed to store stats window %s: %s", key, err)
	}
}

func (s *StatsWindows) keyFor(t time.Time) time.Time {
	return t.Truncate(s.windowSize)
}
