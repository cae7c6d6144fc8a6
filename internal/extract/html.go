package extract

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"shipnews/internal/headline"
	"shipnews/internal/logger"
	"shipnews/internal/sources"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// HTMLExtractor is the last-resort tier: it fetches the page itself and
// walks anchor elements. Any network or parse failure yields an empty list.
type HTMLExtractor struct {
	client *http.Client
}

func NewHTMLExtractor(timeout time.Duration) *HTMLExtractor {
	return &HTMLExtractor{client: &http.Client{Timeout: timeout}}
}

// Extract downloads src.URL and collects anchor texts whose resolved links
// pass the source's host rule (or anything, when the host has no rule),
// with the shared filter/dedup/cap discipline.
func (e *HTMLExtractor) Extract(ctx context.Context, src sources.Source, set *sources.Set, max int) []headline.Candidate {
	if max <= 0 {
		return nil
	}
	base, err := url.Parse(src.URL)
	if err != nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", browserUA)

	resp, err := e.client.Do(req)
	if err != nil {
		logger.Debug("html fallback fetch failed", "source", src.Name, "error", err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		logger.Debug("html fallback got non-200", "source", src.Name, "status", resp.StatusCode)
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxHTMLBytes))
	if err != nil {
		return nil
	}

	rule := set.RuleFor(sources.Host(src.URL))

	var cands []headline.Candidate
	seen := map[string]bool{}

	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, ok := a.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		link := base.ResolveReference(ref).String()

		title := strings.Join(strings.Fields(a.Text()), " ")
		if headline.IsNoise(title) {
			return true
		}
		if !sources.Allowed(link, rule) {
			return true
		}
		key := headline.Normalize(title)
		if key == "" || seen[key] {
			return true
		}
		seen[key] = true
		cands = append(cands, headline.Candidate{Title: title, URL: link, Source: src.Name})
		return len(cands) < max
	})

	return cands
}

const maxHTMLBytes = 5 * 1024 * 1024
