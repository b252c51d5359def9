package davcloak

import (
	_ "embed"
	"fmt"
	"io/ioutil"
	"net/http"
	"sort"

	"github.com/pelletier/go-toml"
)

//go:embed server_headers.toml
var defaultProfiles []byte

// Header is a single response header of a disguise profile
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HeaderSet is an ordered list of response headers imitating a server product.
// A loaded HeaderSet is a template: use Clone or With before adding response specific entries
type HeaderSet []Header

// Clone returns a copy of the header set that doesn't share its backing array
func (hs HeaderSet) Clone() HeaderSet {
	res := make(HeaderSet, len(hs))
	copy(res, hs)
	return res
}

// With returns a copy of the header set with an additional header appended
func (hs HeaderSet) With(name, value string) HeaderSet {
	res := make(HeaderSet, len(hs), len(hs)+1)
	copy(res, hs)
	return append(res, Header{Name: name, Value: value})
}

// Apply adds all headers to h in order, keeping duplicates
func (hs HeaderSet) Apply(h http.Header) {
	for _, hdr := range hs {
		h.Add(hdr.Name, hdr.Value)
	}
}

// Profiles maps server types to their disguise headers
type Profiles map[string]HeaderSet

// LoadProfiles reads the disguise profiles from a TOML file. An empty filename loads the built-in profiles
func LoadProfiles(filename string) (Profiles, error) {
	if filename == "" {
		return ParseProfiles(defaultProfiles)
	}

	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("server profiles: %w", err)
	}

	profiles, err := ParseProfiles(data)
	if err != nil {
		return nil, fmt.Errorf("server profiles %s: %w", filename, err)
	}

	return profiles, nil
}

// ParseProfiles parses a TOML profile table. Each server type is an array of tables with a name and a value
func ParseProfiles(data []byte) (Profiles, error) {
	tree, err := toml.LoadBytes(data)
	if err != nil {
		return nil, err
	}

	profiles := make(Profiles)
	for _, serverType := range tree.Keys() {
		entries, ok := tree.Get(serverType).([]*toml.Tree)
		if !ok {
			return nil, fmt.Errorf("%s must be an array of tables", serverType)
		}

		hs := make(HeaderSet, 0, len(entries))
		for i, e := range entries {
			name, _ := e.Get("name").(string)
			value, _ := e.Get("value").(string)
			if name == "" {
				return nil, fmt.Errorf("%s: header #%d has no name", serverType, i+1)
			}
			hs = append(hs, Header{Name: name, Value: value})
		}

		profiles[serverType] = hs
	}

	return profiles, nil
}

// Get returns the header set for the server type
func (p Profiles) Get(serverType string) (HeaderSet, error) {
	hs, ok := p[serverType]
	if !ok {
		return nil, fmt.Errorf("unknown server type %q (available: %v)", serverType, p.Names())
	}
	return hs, nil
}

// Names returns the sorted server types
func (p Profiles) Names() []string {
	names := make([]string, 0, len(p))
	for n := range p {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
