package data

// Stats contains route counters
type Stats struct {
	Total      int64 `json:"total"`
	Decoy      int64 `json:"decoy"`
	Forward    int64 `json:"forward"`
	Filesystem int64 `json:"filesystem"`
}

// Add counts a single request for the given route
func (s *Stats) Add(r Route) {
	s.Total++
	switch r {
	case Decoy:
		s.Decoy++
	case Forward:
		s.Forward++
	case Filesystem:
		s.Filesystem++
	}
}

// Sub removes the counters of other from s
func (s *Stats) Sub(other Stats) {
	s.Total -= other.Total
	s.Decoy -= other.Decoy
	s.Forward -= other.Forward
	s.Filesystem -= other.Filesystem
}
