// Package feed provides the syndication fallback used when a source's page
// extraction under-delivers.
package feed

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"shipnews/internal/headline"
	"shipnews/internal/logger"
	"shipnews/internal/sources"
)

const maxFeedBytes = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fallback fetches and parses the configured feed for a hostname.
type Fallback struct {
	client HTTPClient
	set    *sources.Set
}

func New(client HTTPClient, set *sources.Set) *Fallback {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Fallback{client: client, set: set}
}

// FromFeed returns up to max filtered candidates from the hostname's feed.
// Hosts without a configured feed, and any fetch or parse failure, yield an
// empty list.
func (f *Fallback) FromFeed(ctx context.Context, host, sourceName string, max int) []headline.Candidate {
	feedURL := f.set.FeedFor(host)
	if feedURL == "" || max <= 0 {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", "shipnews/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		logger.Debug("feed fetch failed", "host", host, "error", err)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		logger.Debug("feed fetch got non-200", "host", host, "status", resp.StatusCode)
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		logger.Debug("feed parse failed", "host", host, "error", err)
		return nil
	}

	var cands []headline.Candidate
	for _, item := range parsed.Items {
		if item == nil || item.Title == "" || item.Link == "" {
			continue
		}
		if headline.IsNoise(item.Title) {
			continue
		}
		cands = append(cands, headline.Candidate{Title: item.Title, URL: item.Link, Source: sourceName})
		if len(cands) >= max {
			break
		}
	}
	return cands
}
