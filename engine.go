package davcloak

import (
	"context"

	"github.com/scraperwall/davcloak/data"
	"github.com/scraperwall/davcloak/geo"
	log "github.com/sirupsen/logrus"
)

// Verdict is the outcome of classifying a request
type Verdict struct {
	Route   data.Route `json:"route"`
	Rule    string     `json:"rule"`
	Reason  string     `json:"reason"`
	Country string     `json:"country,omitempty"`
}

// Rule is a single step of the decision chain. Eval returns the route and a human readable reason
// if the rule applies to the request
type Rule interface {
	Name() string
	Eval(ev *Evaluation) (route data.Route, reason string, ok bool)
}

// Evaluation carries a request through the decision chain. The client's country is resolved
// at most once and only when a rule asks for it
type Evaluation struct {
	ctx       context.Context
	req       *data.Request
	resolver  geo.Resolver
	resolved  bool
	country   string
	countryOK bool
}

// Request returns the request under evaluation
func (ev *Evaluation) Request() *data.Request {
	return ev.req
}

// Country returns the country of the client address. ok is false if it couldn't be resolved
func (ev *Evaluation) Country() (code string, ok bool) {
	if !ev.resolved {
		ev.resolved = true
		if ev.resolver != nil {
			ev.country, ev.countryOK = ev.resolver.Country(ev.ctx, ev.req.ClientIP)
		}
	}
	return ev.country, ev.countryOK
}

// Engine routes requests through an ordered list of rules. The first rule that applies decides
type Engine struct {
	rules    []Rule
	resolver geo.Resolver
}

// EngineOptions contains the read-only state the rules are built from
type EngineOptions struct {
	Extended          bool
	Keywords          *Keywords
	Countries         *CountryFilter
	AllowedUserAgents UserAgentAllowList
	HasRelay          bool
	Resolver          geo.Resolver
}

// NewEngine builds the decision chain for the configured variant:
//
//	missing-useragent (extended only), blocked-keyword, country,
//	allowed-useragent (extended only), browser, bot, default
func NewEngine(opts EngineOptions) *Engine {
	blocked := data.Decoy
	if opts.HasRelay {
		blocked = data.Forward
	}

	keywords := opts.Keywords
	if keywords == nil {
		keywords = NewStaticKeywords()
	}

	countries := opts.Countries
	if countries == nil {
		countries = NewCountryFilter(nil, nil)
	}

	rules := make([]Rule, 0, 7)
	if opts.Extended {
		rules = append(rules, MissingUserAgentRule{})
	}
	rules = append(rules,
		&KeywordRule{Keywords: keywords, Blocked: blocked},
		&CountryRule{Filter: countries, Blocked: blocked},
	)
	if opts.Extended {
		rules = append(rules, AllowedUserAgentRule{Allowed: opts.AllowedUserAgents})
	}
	rules = append(rules,
		BrowserRule{Extended: opts.Extended},
		BotRule{},
		DefaultRule{},
	)

	return NewEngineWithRules(opts.Resolver, rules...)
}

// NewEngineWithRules creates an engine from an explicit rule list
func NewEngineWithRules(resolver geo.Resolver, rules ...Rule) *Engine {
	return &Engine{
		rules:    rules,
		resolver: resolver,
	}
}

// Classify determines the route of a request. Requests no rule applies to are routed to the decoy
func (e *Engine) Classify(ctx context.Context, r *data.Request) Verdict {
	ev := &Evaluation{
		ctx:      ctx,
		req:      r,
		resolver: e.resolver,
	}

	for _, rule := range e.rules {
		route, reason, ok := rule.Eval(ev)
		if !ok {
			continue
		}

		v := Verdict{
			Route:  route,
			Rule:   rule.Name(),
			Reason: reason,
		}
		if ev.resolved {
			v.Country = ev.country
		}

		log.Tracef("%s %s %s -> %s (%s: %s)", r.ClientIP, r.Method, r.Path, route, v.Rule, reason)
		return v
	}

	return Verdict{
		Route:  data.Decoy,
		Rule:   "none",
		Reason: "no rule matched",
	}
}

// Rules returns the names of all rules in evaluation order
func (e *Engine) Rules() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name()
	}
	return names
}
