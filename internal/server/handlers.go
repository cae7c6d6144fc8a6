package server

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"shipnews/internal/logger"
	"shipnews/internal/metrics"
	"shipnews/internal/session"
)

var dateKeyRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   msg,
	})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	d, fromCache, err := s.digests.Build(r.Context())
	if err != nil {
		logger.Error("digest build failed", "error", err)
		metrics.Global.SetError(err.Error())
		writeError(w, http.StatusInternalServerError, "failed to build news digest")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"content":    d.Formatted,
		"items":      d.Items,
		"date_str":   d.DateLabel,
		"timestamp":  time.Now().Format("2006-01-02 15:04:05"),
		"from_cache": fromCache,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	d, err := s.digests.Refresh(r.Context())
	if err != nil {
		logger.Error("digest refresh failed", "error", err)
		metrics.Global.SetError(err.Error())
		writeError(w, http.StatusInternalServerError, "failed to refresh news digest")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"content":    d.Formatted,
		"items":      d.Items,
		"date_str":   d.DateLabel,
		"timestamp":  time.Now().Format("2006-01-02 15:04:05"),
		"from_cache": false,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history := s.history.History()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"history": history,
		"count":   len(history),
	})
}

func (s *Server) handleHistoryDetail(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if !dateKeyRe.MatchString(date) {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	entry, ok := s.history.GetEntry(date)
	if !ok {
		writeError(w, http.StatusNotFound, "no digest cached for "+date)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"date":        date,
		"content":     entry.Formatted,
		"items":       entry.Items,
		"date_str":    entry.DateLabel,
		"cached_time": entry.CachedTime,
	})
}

// maskKey hides everything after the first ten characters of an API key so
// the config endpoint never echoes a full credential.
func maskKey(key string) string {
	if len(key) > 10 {
		return key[:10] + "..."
	}
	return key
}

func configResponse(cfg session.Config) map[string]interface{} {
	return map[string]interface{}{
		"group_id":         cfg.GroupID,
		"api_key":          maskKey(cfg.APIKey),
		"model":            cfg.Model,
		"voice_id":         cfg.VoiceID,
		"speed":            cfg.Speed,
		"pitch":            cfg.Pitch,
		"vol":              cfg.Vol,
		"emotion":          cfg.Emotion,
		"sample_rate":      cfg.SampleRate,
		"bitrate":          cfg.Bitrate,
		"format":           cfg.Format,
		"weather_location": cfg.WeatherLocation,
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	cfg := s.sessions.Get(id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"config":  configResponse(cfg),
	})
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	var patch session.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg := s.sessions.Update(id, patch)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"config":  configResponse(cfg),
	})
}

func (s *Server) handleGenerateAudio(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	text := strings.ReplaceAll(strings.ReplaceAll(req.Text, "\r", ""), "\n", " ")
	text = strings.TrimSpace(text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	cfg := s.sessions.Get(id)
	result, err := s.speech.Generate(r.Context(), text, cfg)
	if err != nil {
		logger.Error("audio generation failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"audio_data": base64.StdEncoding.EncodeToString(result.Audio),
		"filename":   result.Filename,
		"share_url":  result.ShareURL,
	})
}

// filenameRe keeps download names to a plain basename so the Content-
// Disposition header cannot be used for path tricks.
var filenameRe = regexp.MustCompile(`^[\w.\-]+$`)

func (s *Server) handleDownloadAudio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AudioData string `json:"audio_data"`
		Filename  string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AudioData == "" {
		writeError(w, http.StatusBadRequest, "audio_data is required")
		return
	}
	audio, err := base64.StdEncoding.DecodeString(req.AudioData)
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio_data is not valid base64")
		return
	}
	name := req.Filename
	if name == "" || !filenameRe.MatchString(name) {
		name = "shipping_news.mp3"
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if _, err := w.Write(audio); err != nil {
		logger.Error("failed to stream audio download", "error", err)
	}
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	location := r.URL.Query().Get("location")
	if location == "" {
		location = s.sessions.Get(id).WeatherLocation
	}
	briefing, err := s.weather.Fetch(r.Context(), location)
	if err != nil {
		logger.Error("weather fetch failed", "location", location, "error", err)
		writeError(w, http.StatusBadGateway, "failed to fetch weather")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"weather": briefing,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metrics.Global.GetStats())
}
