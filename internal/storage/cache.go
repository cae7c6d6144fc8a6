package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"shipnews/internal/digest"
	"shipnews/internal/logger"
)

// Entry is the on-disk representation of one day's digest.
type Entry struct {
	Formatted  string        `json:"formatted_news"`
	Items      []digest.Item `json:"news_items"`
	DateLabel  string        `json:"date_str"`
	CachedTime string        `json:"cached_time"`
	CacheDate  string        `json:"cache_date"`
}

// Summary is a lightweight listing of one cached day, used by history
// endpoints.
type Summary struct {
	Date      string `json:"date"`
	DateLabel string `json:"date_str"`
	ItemCount int    `json:"item_count"`
	CachedAt  string `json:"cached_at"`
}

// DigestCache stores one JSON file per calendar day under a directory.
// Entries self-record their date; a file whose recorded date disagrees with
// the requested key is treated as a miss.
type DigestCache struct {
	dir string
	now func() time.Time
	mu  sync.RWMutex
}

func NewDigestCache(dir string) *DigestCache {
	return &DigestCache{dir: dir, now: time.Now}
}

// NewDigestCacheWithClock is for tests.
func NewDigestCacheWithClock(dir string, now func() time.Time) *DigestCache {
	return &DigestCache{dir: dir, now: now}
}

func (c *DigestCache) path(key string) string {
	return filepath.Join(c.dir, "news_"+key+".json")
}

// Get returns the digest cached under key, or false on any miss: missing
// file, unreadable JSON, or a stale entry recorded for a different date.
func (c *DigestCache) Get(key string) (*digest.Digest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, err := c.readEntry(key)
	if err != nil {
		return nil, false
	}
	if entry.CacheDate != key {
		return nil, false
	}
	return &digest.Digest{
		Items:     entry.Items,
		Formatted: entry.Formatted,
		DateLabel: entry.DateLabel,
	}, true
}

// Put writes the digest for key, creating the cache directory on first use.
func (c *DigestCache) Put(key string, d *digest.Digest, createdAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	entry := Entry{
		Formatted:  d.Formatted,
		Items:      d.Items,
		DateLabel:  d.DateLabel,
		CachedTime: createdAt.Format("2006-01-02 15:04:05"),
		CacheDate:  key,
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := os.WriteFile(c.path(key), data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return nil
}

// Delete removes the entry for key. A missing file is not an error.
func (c *DigestCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := os.Remove(c.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache file: %w", err)
	}
	return nil
}

// Prune removes entries older than retentionDays whole days, judged by the
// date embedded in the filename. Returns the number of files removed.
func (c *DigestCache) Prune(retentionDays int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.listKeys()
	if err != nil {
		return 0
	}

	// Compare calendar dates, not instants: the filename key is a plain
	// date while the clock carries a zone, and mixing them shifts the
	// boundary by the UTC offset.
	y, m, d := c.now().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	removed := 0
	for _, key := range keys {
		day, err := time.Parse("2006-01-02", key)
		if err != nil {
			continue
		}
		age := int(today.Sub(day).Hours() / 24)
		if age > retentionDays {
			if err := os.Remove(c.path(key)); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		logger.Info("pruned expired cache entries", "removed", removed)
	}
	return removed
}

// History lists cached days newest first.
func (c *DigestCache) History() []Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys, err := c.listKeys()
	if err != nil {
		return nil
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	summaries := make([]Summary, 0, len(keys))
	for _, key := range keys {
		entry, err := c.readEntry(key)
		if err != nil {
			continue
		}
		summaries = append(summaries, Summary{
			Date:      key,
			DateLabel: entry.DateLabel,
			ItemCount: len(entry.Items),
			CachedAt:  entry.CachedTime,
		})
	}
	return summaries
}

// GetEntry returns the full cached entry for a specific date key.
func (c *DigestCache) GetEntry(key string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, err := c.readEntry(key)
	if err != nil {
		return nil, false
	}
	return entry, true
}

func (c *DigestCache) readEntry(key string) (*Entry, error) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to parse cache file %s: %w", c.path(key), err)
	}
	return &entry, nil
}

func (c *DigestCache) listKeys() ([]string, error) {
	files, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, f := range files {
		name := f.Name()
		if !strings.HasPrefix(name, "news_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(strings.TrimPrefix(name, "news_"), ".json"))
	}
	return keys, nil
}
