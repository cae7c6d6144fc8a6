// Package sources defines the configured news origins and the per-host URL
// acceptance rules used by the extractors. The defaults cover the four
// shipping outlets the digest is built from; a YAML file can replace them.
package sources

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source describes one configured news origin.
type Source struct {
	Name    string
	URL     string
	FeedURL string
}

// Rule is the URL acceptance policy for one hostname. A URL passes when its
// host is allowed, its path avoids every excluded prefix and, if patterns
// are present, matches at least one of them.
type Rule struct {
	AllowHosts      []string
	ExcludePrefixes []string
	AllowPatterns   []*regexp.Regexp
}

// Set bundles the source list with the rule table keyed by hostname.
type Set struct {
	Sources []Source
	rules   map[string]*Rule
}

// Defaults returns the built-in shipping source table.
func Defaults() *Set {
	return &Set{
		Sources: []Source{
			{Name: "Splash 247", URL: "https://splash247.com/"},
			{Name: "Ship & Bunker", URL: "https://shipandbunker.com/news/world"},
			{Name: "信德海事网", URL: "https://xindemarinenews.com/"},
			{Name: "gCaptain", URL: "https://gcaptain.com/", FeedURL: "https://gcaptain.com/feed/"},
		},
		rules: map[string]*Rule{
			"splash247.com": {
				AllowHosts:      []string{"splash247.com"},
				ExcludePrefixes: []string{"/category/", "/region/", "/publications/", "/magazines/", "/events/", "/jobs/", "/sector/", "/renewables/", "/offshore/", "/piracy/"},
				AllowPatterns:   compilePatterns(`^/[^/]+/?$`),
			},
			"shipandbunker.com": {
				AllowHosts:      []string{"shipandbunker.com"},
				ExcludePrefixes: []string{"/prices", "/bi", "/compliance-costs", "/features"},
				AllowPatterns:   compilePatterns(`^/news/(world|am|emea|asia|ap|asiapacific)/\d`, `^/news/(world|am|emea|asia|ap|asiapacific)/`),
			},
			"xindemarinenews.com": {
				AllowHosts:      []string{"xindemarinenews.com"},
				ExcludePrefixes: []string{"/category/", "/tag/", "/about", "/contact", "/login"},
				AllowPatterns:   compilePatterns(`^/[^/]+/\d`, `^/[^/]+/`),
			},
			"gcaptain.com": {
				AllowHosts:      []string{"gcaptain.com"},
				ExcludePrefixes: []string{"/about", "/contact", "/jobs", "/advertise", "/privacy", "/category/", "/tag/"},
				AllowPatterns:   compilePatterns(`^/[^/]+/?$`),
			},
		},
	}
}

func compilePatterns(exprs ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		res = append(res, regexp.MustCompile(e))
	}
	return res
}

// RuleFor returns the rule for a hostname, or nil when the host has none
// (meaning: generic extraction, no URL-based filtering).
func (s *Set) RuleFor(host string) *Rule {
	return s.rules[strings.ToLower(host)]
}

// FeedFor returns the configured fallback feed URL for a hostname, or "".
func (s *Set) FeedFor(host string) string {
	host = strings.ToLower(host)
	for _, src := range s.Sources {
		if Host(src.URL) == host && src.FeedURL != "" {
			return src.FeedURL
		}
	}
	return ""
}

// Host extracts the lowercased hostname from a URL, "" when unparseable.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Allowed checks a candidate link against a rule. Malformed URLs fail
// closed. A nil rule accepts everything (the caller decided no policy
// applies to this host).
func Allowed(rawURL string, r *Rule) bool {
	if r == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	ok := false
	for _, h := range r.AllowHosts {
		if host == h {
			ok = true
			break
		}
	}
	if !ok {
		return false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	for _, pref := range r.ExcludePrefixes {
		if strings.HasPrefix(path, pref) {
			return false
		}
	}
	if len(r.AllowPatterns) > 0 {
		for _, pat := range r.AllowPatterns {
			if pat.MatchString(path) {
				return true
			}
		}
		return false
	}
	return true
}

// yamlConfig mirrors the optional override file:
//
//	sources:
//	  - name: Splash 247
//	    url: https://splash247.com/
//	    feed: ""
//	rules:
//	  splash247.com:
//	    allow_hosts: [splash247.com]
//	    exclude_prefixes: [/category/]
//	    allow_patterns: ['^/[^/]+/?$']
type yamlConfig struct {
	Sources []struct {
		Name string `yaml:"name"`
		URL  string `yaml:"url"`
		Feed string `yaml:"feed"`
	} `yaml:"sources"`
	Rules map[string]struct {
		AllowHosts      []string `yaml:"allow_hosts"`
		ExcludePrefixes []string `yaml:"exclude_prefixes"`
		AllowPatterns   []string `yaml:"allow_patterns"`
	} `yaml:"rules"`
}

// Load reads a source table from a YAML file. An empty path returns the
// defaults.
func Load(path string) (*Set, error) {
	if path == "" {
		return Defaults(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sources config: %w", err)
	}
	defer f.Close()

	var cfg yamlConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode sources config: %w", err)
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("sources config %s lists no sources", path)
	}

	set := &Set{rules: make(map[string]*Rule)}
	for _, s := range cfg.Sources {
		set.Sources = append(set.Sources, Source{Name: s.Name, URL: s.URL, FeedURL: s.Feed})
	}
	for host, r := range cfg.Rules {
		rule := &Rule{
			AllowHosts:      r.AllowHosts,
			ExcludePrefixes: r.ExcludePrefixes,
		}
		for _, expr := range r.AllowPatterns {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("rule for %s: invalid pattern %q: %w", host, expr, err)
			}
			rule.AllowPatterns = append(rule.AllowPatterns, re)
		}
		set.rules[strings.ToLower(host)] = rule
	}
	return set, nil
}
