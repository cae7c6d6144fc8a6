package digest

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"shipnews/internal/extract"
	"shipnews/internal/fetch"
	"shipnews/internal/headline"
	"shipnews/internal/logger"
	"shipnews/internal/metrics"
	"shipnews/internal/sources"
)

// feedFallback is the per-host syndication fallback tier.
type feedFallback interface {
	FromFeed(ctx context.Context, host, sourceName string, max int) []headline.Candidate
}

// htmlFallback is the last-resort anchor-scraping tier.
type htmlFallback interface {
	Extract(ctx context.Context, src sources.Source, set *sources.Set, max int) []headline.Candidate
}

// Builder runs the aggregation pipeline. All collaborators are injected so
// tests can substitute them.
type Builder struct {
	set        *sources.Set
	fetcher    fetch.Fetcher
	feeds      feedFallback
	html       htmlFallback
	translator Translator
	cache      Cache

	timeout   time.Duration
	retention int
	now       func() time.Time
	log       *slog.Logger
}

type Option func(*Builder)

// WithClock overrides the builder's clock (tests).
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithTimeout bounds one whole aggregation run. Per-call timeouts exist on
// every network hop but do not compose into a total bound on their own.
func WithTimeout(d time.Duration) Option {
	return func(b *Builder) { b.timeout = d }
}

// WithRetention sets the cache retention in days.
func WithRetention(days int) Option {
	return func(b *Builder) { b.retention = days }
}

func NewBuilder(set *sources.Set, fetcher fetch.Fetcher, feeds feedFallback, html htmlFallback, translator Translator, cache Cache, opts ...Option) *Builder {
	b := &Builder{
		set:        set,
		fetcher:    fetcher,
		feeds:      feeds,
		html:       html,
		translator: translator,
		cache:      cache,
		timeout:    90 * time.Second,
		retention:  3,
		now:        time.Now,
		log:        logger.With("component", "digest"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns today's digest, from cache when a valid same-day entry
// exists. The boolean reports a cache hit. Per-source failures degrade to
// zero candidates; a run with nothing at all produces the placeholder
// digest rather than an error.
func (b *Builder) Build(ctx context.Context) (*Digest, bool, error) {
	key := DateKey(b.now())
	if d, ok := b.cache.Get(key); ok {
		metrics.Global.IncrementCacheHits()
		return d, true, nil
	}
	metrics.Global.IncrementCacheMisses()

	start := time.Now()
	defer func() {
		metrics.Global.RecordBuildTime(time.Since(start))
		metrics.Global.SetLastRun()
	}()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	pages := b.fetchAll(ctx)
	collected := b.collect(ctx, pages)

	now := b.now()
	if len(collected) == 0 {
		b.log.Warn("no candidates from any source, serving placeholder")
		metrics.Global.IncrementPlaceholders()
		d := placeholderDigest(now)
		b.store(key, d, now)
		return d, false, nil
	}

	ranked := rank(collected)
	if len(ranked) > TopN {
		ranked = ranked[:TopN]
	}

	items := make([]Item, 0, len(ranked))
	for _, c := range ranked {
		items = append(items, Item{Title: c.Title, URL: c.URL, Source: c.Source})
	}
	label := DateLabel(now)
	d := &Digest{
		Items:     items,
		Formatted: Format(items, label),
		DateLabel: label,
	}

	b.store(key, d, now)
	metrics.Global.IncrementDigestsBuilt()
	b.log.Info("digest built", "items", len(items), "candidates", len(collected))
	return d, false, nil
}

// Refresh deletes today's cache entry and rebuilds, guaranteeing a network
// fetch.
func (b *Builder) Refresh(ctx context.Context) (*Digest, error) {
	key := DateKey(b.now())
	if err := b.cache.Delete(key); err != nil {
		b.log.Warn("failed to delete cache entry before refresh", "key", key, "error", err)
	}
	d, _, err := b.Build(ctx)
	return d, err
}

// fetchAll issues one fetch per source concurrently. The result slice is
// indexed by source position so configured order survives completion order;
// a failed source leaves a nil page.
func (b *Builder) fetchAll(ctx context.Context) []*fetch.Page {
	pages := make([]*fetch.Page, len(b.set.Sources))
	var wg sync.WaitGroup

	for i, src := range b.set.Sources {
		wg.Add(1)
		go func(i int, src sources.Source) {
			defer wg.Done()
			page, err := b.fetcher.Fetch(ctx, src.URL)
			if err != nil {
				b.log.Warn("source fetch failed", "source", src.Name, "error", err)
				metrics.Global.AddSourceFailures(1)
				return
			}
			metrics.Global.AddSourcesFetched(1)
			pages[i] = page
		}(i, src)
	}

	wg.Wait()
	return pages
}

// extractSource runs the tier cascade for one source: rule-based markdown,
// then the feed fallback, then the HTML anchor tier, each tried only while
// the previous one stays under the sufficiency threshold.
func (b *Builder) extractSource(ctx context.Context, src sources.Source, page *fetch.Page) []headline.Candidate {
	var cands []headline.Candidate
	if page != nil && page.Markdown != "" {
		cands = extract.FromMarkdown(page.Markdown, src, b.set, perSourceMax)
	}
	if len(cands) < minSufficient && b.feeds != nil {
		if fromFeed := b.feeds.FromFeed(ctx, sources.Host(src.URL), src.Name, perSourceMax); len(fromFeed) > 0 {
			cands = fromFeed
		}
	}
	if len(cands) < minSufficient && b.html != nil {
		if fromHTML := b.html.Extract(ctx, src, b.set, perSourceMax); len(fromHTML) > 0 {
			cands = fromHTML
		}
	}
	return cands
}

// collect walks sources in configured order, translating candidates and
// deduplicating globally by normalization key, first seen wins, until the
// global cap.
func (b *Builder) collect(ctx context.Context, pages []*fetch.Page) []headline.Candidate {
	seen := map[string]bool{}
	var collected []headline.Candidate

	for i, src := range b.set.Sources {
		perSource := b.extractSource(ctx, src, pages[i])
		metrics.Global.AddCandidatesExtracted(len(perSource))
		b.log.Debug("source extraction finished", "source", src.Name, "candidates", len(perSource))

		for _, c := range perSource {
			title, _ := b.translator.ToChinese(ctx, c.Title)
			key := headline.Normalize(title)
			if key == "" {
				continue
			}
			if seen[key] {
				metrics.Global.IncrementDuplicatesFiltered()
				continue
			}
			seen[key] = true
			collected = append(collected, headline.Candidate{Title: title, URL: c.URL, Source: c.Source})
			if len(collected) >= globalCap {
				break
			}
		}
		if len(collected) >= globalCap {
			break
		}
	}

	metrics.Global.AddCandidatesKept(len(collected))
	return collected
}

// rank sorts by score descending; equal scores keep insertion order.
func rank(cands []headline.Candidate) []headline.Candidate {
	ranked := make([]headline.Candidate, len(cands))
	copy(ranked, cands)
	sort.SliceStable(ranked, func(i, j int) bool {
		return Score(ranked[i].Title) > Score(ranked[j].Title)
	})
	return ranked
}

func (b *Builder) store(key string, d *Digest, now time.Time) {
	if err := b.cache.Put(key, d, now); err != nil {
		// The in-memory digest is still served; only persistence failed.
		b.log.Error("failed to write digest cache", "key", key, "error", err)
	}
	b.cache.Prune(b.retention)
}
