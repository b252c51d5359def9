package davcloak

import (
	"fmt"

	"github.com/scraperwall/davcloak/data"
	"github.com/scraperwall/davcloak/matchers"
)

// IndexPath is the only path browsers may fetch from the filesystem in the base variant
const IndexPath = "/index.html"

// MissingUserAgentRule sends requests without a useragent to the decoy
type MissingUserAgentRule struct{}

// Name implements Rule
func (MissingUserAgentRule) Name() string { return "missing-useragent" }

// Eval implements Rule
func (MissingUserAgentRule) Eval(ev *Evaluation) (data.Route, string, bool) {
	if ev.Request().HasUserAgent() {
		return 0, "", false
	}
	return data.Decoy, "useragent missing", true
}

// KeywordRule diverts requests containing a blocked keyword in any header name or value or other request metadata
type KeywordRule struct {
	Keywords *Keywords
	Blocked  data.Route
}

// Name implements Rule
func (*KeywordRule) Name() string { return "blocked-keyword" }

// Eval implements Rule
func (r *KeywordRule) Eval(ev *Evaluation) (data.Route, string, bool) {
	set := r.Keywords.Set()
	if set.Len() == 0 {
		return 0, "", false
	}

	var keyword string
	hit := ev.Request().AnyMetadata(func(field string) bool {
		k, ok := set.Match(field)
		if ok {
			keyword = k
		}
		return ok
	})
	if !hit {
		return 0, "", false
	}

	return r.Blocked, fmt.Sprintf("blocked keyword %q", keyword), true
}

// CountryRule diverts requests whose client address resolves to a country the filter doesn't permit.
// Addresses that can't be resolved are treated like a disallowed country
type CountryRule struct {
	Filter  *CountryFilter
	Blocked data.Route
}

// Name implements Rule
func (*CountryRule) Name() string { return "country" }

// Eval implements Rule
func (r *CountryRule) Eval(ev *Evaluation) (data.Route, string, bool) {
	code, ok := ev.Country()
	if r.Filter.Permits(code, ok) {
		return 0, "", false
	}

	if !ok {
		return r.Blocked, fmt.Sprintf("country of %s could not be resolved", ev.Request().ClientIP), true
	}
	return r.Blocked, fmt.Sprintf("country %s is not allowed", code), true
}

// AllowedUserAgentRule lets useragents that are explicitly allowed through to the filesystem
type AllowedUserAgentRule struct {
	Allowed UserAgentAllowList
}

// Name implements Rule
func (AllowedUserAgentRule) Name() string { return "allowed-useragent" }

// Eval implements Rule
func (r AllowedUserAgentRule) Eval(ev *Evaluation) (data.Route, string, bool) {
	if !r.Allowed.Contains(ev.Request().UserAgent()) {
		return 0, "", false
	}
	return data.Filesystem, "useragent is allowed", true
}

// BrowserRule handles browser useragents. The base variant only lets browsers fetch IndexPath from the
// filesystem, the extended variant never does
type BrowserRule struct {
	Extended bool
}

// Name implements Rule
func (BrowserRule) Name() string { return "browser" }

// Eval implements Rule
func (r BrowserRule) Eval(ev *Evaluation) (data.Route, string, bool) {
	req := ev.Request()
	if !matchers.IsBrowser(req.UserAgent()) {
		return 0, "", false
	}

	if !r.Extended && req.Path == IndexPath {
		return data.Filesystem, "browser requested the index page", true
	}
	return data.Decoy, "browser useragent", true
}

// BotRule sends bots, crawlers and scanners to the decoy
type BotRule struct{}

// Name implements Rule
func (BotRule) Name() string { return "bot" }

// Eval implements Rule
func (BotRule) Eval(ev *Evaluation) (data.Route, string, bool) {
	if !matchers.IsBot(ev.Request().UserAgent()) {
		return 0, "", false
	}
	return data.Decoy, "bot useragent", true
}

// DefaultRule routes everything else to the filesystem
type DefaultRule struct{}

// Name implements Rule
func (DefaultRule) Name() string { return "default" }

// Eval implements Rule
func (DefaultRule) Eval(*Evaluation) (data.Route, string, bool) {
	return data.Filesystem, "default", true
}

// CountryFilter holds the allowed and blocked country codes
type CountryFilter struct {
	allowed map[string]bool
	blocked map[string]bool
}

// NewCountryFilter creates a filter. Codes are expected in upper case (see config.NormalizeCountries)
func NewCountryFilter(allowed, blocked []string) *CountryFilter {
	cf := &CountryFilter{
		allowed: make(map[string]bool),
		blocked: make(map[string]bool),
	}
	for _, c := range allowed {
		cf.allowed[c] = true
	}
	for _, c := range blocked {
		cf.blocked[c] = true
	}
	return cf
}

// Permits reports whether a request from the country may pass. An empty allow list allows every country,
// an empty block list blocks none. A country that couldn't be resolved is never permitted
func (cf *CountryFilter) Permits(code string, resolved bool) bool {
	if !resolved {
		return false
	}
	if len(cf.allowed) > 0 && !cf.allowed[code] {
		return false
	}
	if len(cf.blocked) > 0 && cf.blocked[code] {
		return false
	}
	return true
}

// UserAgentAllowList contains useragents that are compared verbatim
type UserAgentAllowList map[string]bool

// NewUserAgentAllowList creates an allow list. Empty entries are ignored
func NewUserAgentAllowList(uas []string) UserAgentAllowList {
	l := make(UserAgentAllowList)
	for _, ua := range uas {
		if ua != "" {
			l[ua] = true
		}
	}
	return l
}

// Contains reports whether ua is on the list
func (l UserAgentAllowList) Contains(ua string) bool {
	return ua != "" && l[ua]
}
