package server

import (
	"context"
	"net/http"
	"time"

	"shipnews/internal/digest"
	"shipnews/internal/logger"
	"shipnews/internal/session"
	"shipnews/internal/storage"
	"shipnews/internal/tts"
	"shipnews/internal/weather"
)

const sessionCookie = "session_id"

// DigestService produces the daily digest, cache-first or forced.
type DigestService interface {
	Build(ctx context.Context) (*digest.Digest, bool, error)
	Refresh(ctx context.Context) (*digest.Digest, error)
}

// HistoryStore exposes the cached-digest archive.
type HistoryStore interface {
	History() []storage.Summary
	GetEntry(key string) (*storage.Entry, bool)
}

// SpeechService synthesizes audio from text with session settings.
type SpeechService interface {
	Generate(ctx context.Context, text string, cfg session.Config) (*tts.Result, error)
}

// WeatherService fetches a location briefing.
type WeatherService interface {
	Fetch(ctx context.Context, location string) (*weather.Briefing, error)
}

// Server holds the HTTP surface and its collaborators.
type Server struct {
	digests   DigestService
	history   HistoryStore
	sessions  *session.Store
	speech    SpeechService
	weather   WeatherService
	staticDir string
	mux       *http.ServeMux
}

func New(digests DigestService, history HistoryStore, sessions *session.Store, speech SpeechService, weather WeatherService, staticDir string) *Server {
	s := &Server{
		digests:   digests,
		history:   history,
		sessions:  sessions,
		speech:    speech,
		weather:   weather,
		staticDir: staticDir,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/news", s.handleNews)
	s.mux.HandleFunc("POST /api/refresh-news", s.handleRefresh)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	s.mux.HandleFunc("GET /api/history/{date}", s.handleHistoryDetail)
	s.mux.HandleFunc("GET /api/config", s.handleGetConfig)
	s.mux.HandleFunc("POST /api/config", s.handleUpdateConfig)
	s.mux.HandleFunc("POST /api/generate-audio", s.handleGenerateAudio)
	s.mux.HandleFunc("POST /api/download-audio", s.handleDownloadAudio)
	s.mux.HandleFunc("GET /api/weather", s.handleWeather)
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.staticDir))))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	logger.Debug("request handled", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
}

// sessionID returns the request's session id, setting a fresh cookie when
// none is present.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := session.NewID()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// ListenAndServe starts the server on addr.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 3 * time.Minute,
	}
	logger.Info("server listening", "addr", addr)
	return srv.ListenAndServe()
}
