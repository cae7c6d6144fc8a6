// Package extract turns raw page content into filtered headline candidates.
// Three tiers share one contract: ordered candidates, noise-filtered,
// deduplicated within the call by normalization key, capped at max.
package extract

import (
	"regexp"
	"strings"

	"shipnews/internal/headline"
	"shipnews/internal/sources"
)

var (
	inlineLinkRe = regexp.MustCompile(`\[([^\]]+?)\]\((https?://[^)]+)\)`)

	// Generic markdown structures, tried per line in priority order.
	genericPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\s*[-*+]\s+(.+)$`),         // unordered list item
		regexp.MustCompile(`^\s*\d+[.、]\s*(.+)$`),       // ordered list item
		regexp.MustCompile(`^\s*#{1,3}\s+(.+)$`),        // heading level 1-3
		regexp.MustCompile(`^\s*\[(.+?)\]\([^)]+\)\s*$`), // link-only line
	}
)

// FromMarkdown is the rule-based tier: it scans for inline links and
// validates each against the source's host rule. Hosts without a rule
// delegate to Generic. When strict extraction under-delivers (< max/2) the
// result is topped up from Generic output.
func FromMarkdown(md string, src sources.Source, set *sources.Set, max int) []headline.Candidate {
	if md == "" || max <= 0 {
		return nil
	}
	rule := set.RuleFor(sources.Host(src.URL))
	if rule == nil {
		return Generic(md, src, max)
	}

	var cands []headline.Candidate
	seen := map[string]bool{}

	for _, raw := range strings.Split(md, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "![") {
			continue
		}
		m := inlineLinkRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		title, link := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		if headline.IsNoise(title) {
			continue
		}
		if !sources.Allowed(link, rule) {
			continue
		}
		key := headline.Normalize(title)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		cands = append(cands, headline.Candidate{Title: title, URL: link, Source: src.Name})
		if len(cands) >= max {
			break
		}
	}

	// Strict rules can be too strict on a redesigned page; top up from the
	// structure-based pass without duplicating.
	if len(cands) < max/2 {
		for _, c := range Generic(md, src, max) {
			key := headline.Normalize(c.Title)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			cands = append(cands, headline.Candidate{Title: c.Title, Source: src.Name})
			if len(cands) >= max {
				break
			}
		}
	}
	return cands
}

// Generic is the source-agnostic markdown tier: list items, headings and
// link-only lines, falling back to any inline link's anchor text. Candidates
// carry no URL.
func Generic(md string, src sources.Source, max int) []headline.Candidate {
	if md == "" || max <= 0 {
		return nil
	}
	var cands []headline.Candidate
	seen := map[string]bool{}

	for _, raw := range strings.Split(md, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "![") {
			// Image syntax embeds an inline link; alt text is not a headline.
			continue
		}
		var candidate string
		for _, pat := range genericPatterns {
			if m := pat.FindStringSubmatch(line); m != nil {
				candidate = strings.TrimSpace(m[1])
				break
			}
		}
		if candidate == "" {
			if m := inlineLinkRe.FindStringSubmatch(line); m != nil {
				candidate = strings.TrimSpace(m[1])
			}
		} else if m := inlineLinkRe.FindStringSubmatch(candidate); m != nil {
			// List items and headings often wrap a link; keep the anchor text.
			candidate = strings.TrimSpace(m[1])
		}
		if candidate == "" || headline.IsNoise(candidate) {
			continue
		}
		key := headline.Normalize(candidate)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		cands = append(cands, headline.Candidate{Title: candidate, Source: src.Name})
		if len(cands) >= max {
			break
		}
	}
	return cands
}
