package metrics

import (
	"sync"
	"time"
)

// Metrics tracks pipeline counters for the /metrics and /healthz endpoints.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	SourcesFetched         int64
	SourceFailures         int64
	CandidatesExtracted    int64
	CandidatesKept         int64
	DuplicatesFiltered     int64
	TranslationsDone       int64
	TranslationPassthrough int64
	CacheHits              int64
	CacheMisses            int64
	DigestsBuilt           int64
	PlaceholderDigests     int64
	AudioGenerated         int64

	// Timings
	LastBuildTime    time.Duration
	AverageBuildTime time.Duration
	totalBuildTime   time.Duration
	buildCount       int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) add(field *int64, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*field += n
}

func (m *Metrics) AddSourcesFetched(n int)      { m.add(&m.SourcesFetched, int64(n)) }
func (m *Metrics) AddSourceFailures(n int)      { m.add(&m.SourceFailures, int64(n)) }
func (m *Metrics) AddCandidatesExtracted(n int) { m.add(&m.CandidatesExtracted, int64(n)) }
func (m *Metrics) AddCandidatesKept(n int)      { m.add(&m.CandidatesKept, int64(n)) }
func (m *Metrics) IncrementDuplicatesFiltered() { m.add(&m.DuplicatesFiltered, 1) }
func (m *Metrics) IncrementTranslationsDone()   { m.add(&m.TranslationsDone, 1) }
func (m *Metrics) IncrementPassthrough()        { m.add(&m.TranslationPassthrough, 1) }
func (m *Metrics) IncrementCacheHits()          { m.add(&m.CacheHits, 1) }
func (m *Metrics) IncrementCacheMisses()        { m.add(&m.CacheMisses, 1) }
func (m *Metrics) IncrementDigestsBuilt()       { m.add(&m.DigestsBuilt, 1) }
func (m *Metrics) IncrementPlaceholders()       { m.add(&m.PlaceholderDigests, 1) }
func (m *Metrics) IncrementAudioGenerated()     { m.add(&m.AudioGenerated, 1) }

func (m *Metrics) RecordBuildTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastBuildTime = duration
	m.totalBuildTime += duration
	m.buildCount++

	if m.buildCount > 0 {
		m.AverageBuildTime = m.totalBuildTime / time.Duration(m.buildCount)
	}
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"sources_fetched":         m.SourcesFetched,
		"source_failures":         m.SourceFailures,
		"candidates_extracted":    m.CandidatesExtracted,
		"candidates_kept":         m.CandidatesKept,
		"duplicates_filtered":     m.DuplicatesFiltered,
		"translations_done":       m.TranslationsDone,
		"translation_passthrough": m.TranslationPassthrough,
		"cache_hits":              m.CacheHits,
		"cache_misses":            m.CacheMisses,
		"digests_built":           m.DigestsBuilt,
		"placeholder_digests":     m.PlaceholderDigests,
		"audio_generated":         m.AudioGenerated,
		"last_build_time_ms":      m.LastBuildTime.Milliseconds(),
		"average_build_time_ms":   m.AverageBuildTime.Milliseconds(),
		"last_run_time":           m.LastRunTime.Format(time.RFC3339),
		"last_error_time":         m.LastErrorTime.Format(time.RFC3339),
		"last_error":              m.LastError,
		"is_healthy":              m.IsHealthy,
	}
}
