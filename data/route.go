package data

import "fmt"

// Route is the destination a request is dispatched to
type Route int

const (
	// Decoy serves the static decoy page with the disguise headers
	Decoy Route = iota
	// Forward relays the request to the configured origin
	Forward
	// Filesystem hands the request to the WebDAV handler
	Filesystem
)

var routeNames = [...]string{"decoy", "forward", "filesystem"}

// Routes lists all routes
var Routes = []Route{Decoy, Forward, Filesystem}

func (r Route) String() string {
	if r < 0 || int(r) >= len(routeNames) {
		return fmt.Sprintf("route(%d)", int(r))
	}
	return routeNames[r]
}

// MarshalText implements encoding.TextMarshaler
func (r Route) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (r *Route) UnmarshalText(text []byte) error {
	for i, name := range routeNames {
		if name == string(text) {
			*r = Route(i)
			return nil
		}
	}
	return fmt.Errorf("unknown route %q", text)
}
