package session

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// Config holds per-session speech and weather preferences. Zero values are
// never served; sessions start from DefaultConfig.
type Config struct {
	GroupID         string  `json:"group_id"`
	APIKey          string  `json:"api_key"`
	Model           string  `json:"model"`
	VoiceID         string  `json:"voice_id"`
	Speed           float64 `json:"speed"`
	Pitch           int     `json:"pitch"`
	Vol             float64 `json:"vol"`
	Emotion         string  `json:"emotion"`
	SampleRate      int     `json:"sample_rate"`
	Bitrate         int     `json:"bitrate"`
	Format          string  `json:"format"`
	WeatherLocation string  `json:"weather_location"`
}

func DefaultConfig() Config {
	return Config{
		Model:           "speech-2.5-hd-preview",
		VoiceID:         "female-shaonv",
		Speed:           1.0,
		Pitch:           0,
		Vol:             1.0,
		Emotion:         "neutral",
		SampleRate:      32000,
		Bitrate:         128000,
		Format:          "mp3",
		WeatherLocation: "上海",
	}
}

// Patch carries a partial config update; nil fields keep their current
// value.
type Patch struct {
	GroupID         *string  `json:"group_id"`
	APIKey          *string  `json:"api_key"`
	Model           *string  `json:"model"`
	VoiceID         *string  `json:"voice_id"`
	Speed           *float64 `json:"speed"`
	Pitch           *int     `json:"pitch"`
	Vol             *float64 `json:"vol"`
	Emotion         *string  `json:"emotion"`
	SampleRate      *int     `json:"sample_rate"`
	Bitrate         *int     `json:"bitrate"`
	Format          *string  `json:"format"`
	WeatherLocation *string  `json:"weather_location"`
}

// Apply overlays the patch's set fields onto cfg.
func (p Patch) Apply(cfg *Config) {
	if p.GroupID != nil {
		cfg.GroupID = *p.GroupID
	}
	if p.APIKey != nil {
		cfg.APIKey = *p.APIKey
	}
	if p.Model != nil {
		cfg.Model = *p.Model
	}
	if p.VoiceID != nil {
		cfg.VoiceID = *p.VoiceID
	}
	if p.Speed != nil {
		cfg.Speed = *p.Speed
	}
	if p.Pitch != nil {
		cfg.Pitch = *p.Pitch
	}
	if p.Vol != nil {
		cfg.Vol = *p.Vol
	}
	if p.Emotion != nil {
		cfg.Emotion = *p.Emotion
	}
	if p.SampleRate != nil {
		cfg.SampleRate = *p.SampleRate
	}
	if p.Bitrate != nil {
		cfg.Bitrate = *p.Bitrate
	}
	if p.Format != nil {
		cfg.Format = *p.Format
	}
	if p.WeatherLocation != nil {
		cfg.WeatherLocation = *p.WeatherLocation
	}
}

type entry struct {
	cfg      Config
	lastSeen time.Time
}

// Store keeps per-session configs in memory with idle expiry. Expired
// sessions transparently restart from defaults.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	stop    chan struct{}
}

func NewStore(ttl time.Duration) *Store {
	s := &Store{
		entries: make(map[string]*entry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Get returns the config for id, creating it from defaults when absent or
// expired. Access refreshes the idle timer.
func (s *Store) Get(id string) Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || time.Since(e.lastSeen) > s.ttl {
		e = &entry{cfg: DefaultConfig()}
		s.entries[id] = e
	}
	e.lastSeen = time.Now()
	return e.cfg
}

// Update applies a patch to the session's config and returns the result.
func (s *Store) Update(id string, p Patch) Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || time.Since(e.lastSeen) > s.ttl {
		e = &entry{cfg: DefaultConfig()}
		s.entries[id] = e
	}
	p.Apply(&e.cfg)
	e.lastSeen = time.Now()
	return e.cfg
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the background cleanup loop.
func (s *Store) Close() {
	close(s.stop)
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stop:
			return
		}
	}
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if time.Since(e.lastSeen) > s.ttl {
			delete(s.entries, id)
		}
	}
}

// NewID generates a random session identifier.
func NewID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))[:32]
	}
	return hex.EncodeToString(b)
}
