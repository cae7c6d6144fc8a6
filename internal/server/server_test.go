package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"shipnews/internal/digest"
	"shipnews/internal/metrics"
	"shipnews/internal/session"
	"shipnews/internal/storage"
	"shipnews/internal/tts"
	"shipnews/internal/weather"
)

type fakeDigests struct {
	digest    *digest.Digest
	fromCache bool
	err       error
	refreshes int
}

func (f *fakeDigests) Build(context.Context) (*digest.Digest, bool, error) {
	return f.digest, f.fromCache, f.err
}

func (f *fakeDigests) Refresh(context.Context) (*digest.Digest, error) {
	f.refreshes++
	return f.digest, f.err
}

type fakeHistory struct {
	summaries []storage.Summary
	entries   map[string]*storage.Entry
}

func (f *fakeHistory) History() []storage.Summary { return f.summaries }

func (f *fakeHistory) GetEntry(key string) (*storage.Entry, bool) {
	e, ok := f.entries[key]
	return e, ok
}

type fakeSpeech struct {
	result *tts.Result
	err    error
	text   string
}

func (f *fakeSpeech) Generate(_ context.Context, text string, _ session.Config) (*tts.Result, error) {
	f.text = text
	return f.result, f.err
}

type fakeWeather struct {
	briefing *weather.Briefing
	err      error
	location string
}

func (f *fakeWeather) Fetch(_ context.Context, location string) (*weather.Briefing, error) {
	f.location = location
	return f.briefing, f.err
}

func testDigest() *digest.Digest {
	return &digest.Digest{
		Items:     []digest.Item{{Title: "天津港吞吐量创新高", URL: "https://example.com/a", Source: "Splash 247"}},
		Formatted: "2025年03月09日 航运早报\n\n1、天津港吞吐量创新高",
		DateLabel: "2025年03月09日",
	}
}

func newTestServer(t *testing.T, digests DigestService, history HistoryStore, speech SpeechService, wx WeatherService) *Server {
	t.Helper()
	sessions := session.NewStore(time.Hour)
	t.Cleanup(sessions.Close)
	return New(digests, history, sessions, speech, wx, t.TempDir())
}

func doJSON(t *testing.T, s *Server, method, path, body string, cookies []*http.Cookie) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for _, c := range cookies {
		r.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)

	var parsed map[string]interface{}
	if ct := w.Header().Get("Content-Type"); strings.Contains(ct, "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &parsed); err != nil {
			t.Fatalf("response not JSON: %v\n%s", err, w.Body.String())
		}
	}
	return w, parsed
}

func TestGetNews(t *testing.T) {
	digests := &fakeDigests{digest: testDigest(), fromCache: true}
	s := newTestServer(t, digests, &fakeHistory{}, &fakeSpeech{}, &fakeWeather{})

	w, resp := doJSON(t, s, http.MethodGet, "/api/news", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp["success"] != true || resp["from_cache"] != true {
		t.Errorf("unexpected envelope: %v", resp)
	}
	if !strings.Contains(resp["content"].(string), "航运早报") {
		t.Errorf("content missing digest: %v", resp["content"])
	}
	if resp["date_str"] != "2025年03月09日" {
		t.Errorf("date_str = %v", resp["date_str"])
	}
}

func TestGetNewsFailure(t *testing.T) {
	digests := &fakeDigests{err: errors.New("all sources down")}
	s := newTestServer(t, digests, &fakeHistory{}, &fakeSpeech{}, &fakeWeather{})

	w, resp := doJSON(t, s, http.MethodGet, "/api/news", "", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if resp["success"] != false {
		t.Errorf("unexpected envelope: %v", resp)
	}

	// The failure is recorded for /metrics.
	stats := metrics.Global.GetStats()
	if stats["is_healthy"] != false {
		t.Errorf("expected unhealthy after a failed build: %v", stats["is_healthy"])
	}
	if got, _ := stats["last_error"].(string); !strings.Contains(got, "all sources down") {
		t.Errorf("last_error = %q", got)
	}
}

func TestRefreshNews(t *testing.T) {
	digests := &fakeDigests{digest: testDigest()}
	s := newTestServer(t, digests, &fakeHistory{}, &fakeSpeech{}, &fakeWeather{})

	w, resp := doJSON(t, s, http.MethodPost, "/api/refresh-news", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if digests.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", digests.refreshes)
	}
	if resp["from_cache"] != false {
		t.Errorf("refresh must report from_cache=false: %v", resp)
	}
}

func TestHistory(t *testing.T) {
	history := &fakeHistory{
		summaries: []storage.Summary{
			{Date: "2025-03-09", DateLabel: "2025年03月09日", ItemCount: 10},
			{Date: "2025-03-08", DateLabel: "2025年03月08日", ItemCount: 2},
		},
	}
	s := newTestServer(t, &fakeDigests{digest: testDigest()}, history, &fakeSpeech{}, &fakeWeather{})

	w, resp := doJSON(t, s, http.MethodGet, "/api/history", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp["count"] != float64(2) {
		t.Errorf("count = %v", resp["count"])
	}
}

func TestHistoryDetail(t *testing.T) {
	history := &fakeHistory{entries: map[string]*storage.Entry{
		"2025-03-09": {
			Formatted:  "2025年03月09日 航运早报",
			Items:      []digest.Item{{Title: "天津港吞吐量创新高"}},
			DateLabel:  "2025年03月09日",
			CachedTime: "2025-03-09 08:00:00",
			CacheDate:  "2025-03-09",
		},
	}}
	s := newTestServer(t, &fakeDigests{digest: testDigest()}, history, &fakeSpeech{}, &fakeWeather{})

	w, resp := doJSON(t, s, http.MethodGet, "/api/history/2025-03-09", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp["cached_time"] != "2025-03-09 08:00:00" {
		t.Errorf("cached_time = %v", resp["cached_time"])
	}

	if w, _ := doJSON(t, s, http.MethodGet, "/api/history/2025-01-01", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing date: status = %d, want 404", w.Code)
	}
	if w, _ := doJSON(t, s, http.MethodGet, "/api/history/not-a-date", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("malformed date: status = %d, want 400", w.Code)
	}
}

func TestConfigRoundtripAndMasking(t *testing.T) {
	s := newTestServer(t, &fakeDigests{digest: testDigest()}, &fakeHistory{}, &fakeSpeech{}, &fakeWeather{})

	w, resp := doJSON(t, s, http.MethodGet, "/api/config", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected a session cookie to be set")
	}
	cfg := resp["config"].(map[string]interface{})
	if cfg["model"] != "speech-2.5-hd-preview" {
		t.Errorf("default model = %v", cfg["model"])
	}

	body := `{"api_key":"sk-abcdefghijklmnop","speed":1.3}`
	_, resp = doJSON(t, s, http.MethodPost, "/api/config", body, cookies)
	cfg = resp["config"].(map[string]interface{})
	if cfg["api_key"] != "sk-abcdefg..." {
		t.Errorf("api key not masked: %v", cfg["api_key"])
	}
	if cfg["speed"] != 1.3 {
		t.Errorf("speed = %v", cfg["speed"])
	}

	// Same cookie sees the update, a fresh session does not.
	_, resp = doJSON(t, s, http.MethodGet, "/api/config", "", cookies)
	if resp["config"].(map[string]interface{})["speed"] != 1.3 {
		t.Error("update lost across requests on the same session")
	}
	_, resp = doJSON(t, s, http.MethodGet, "/api/config", "", nil)
	if resp["config"].(map[string]interface{})["speed"] != 1.0 {
		t.Error("fresh session should start from defaults")
	}
}

func TestGenerateAudio(t *testing.T) {
	speech := &fakeSpeech{result: &tts.Result{
		Audio:    []byte("mp3 bytes"),
		Filename: "shipping_news_20250309_083015.mp3",
		ShareURL: "/static/audio/shipping_news_20250309_083015.mp3",
	}}
	s := newTestServer(t, &fakeDigests{digest: testDigest()}, &fakeHistory{}, speech, &fakeWeather{})

	body := `{"text":"第一行\n第二行"}`
	w, resp := doJSON(t, s, http.MethodPost, "/api/generate-audio", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", w.Code, resp)
	}
	if speech.text != "第一行 第二行" {
		t.Errorf("newlines should flatten to spaces, got %q", speech.text)
	}
	decoded, err := base64.StdEncoding.DecodeString(resp["audio_data"].(string))
	if err != nil || string(decoded) != "mp3 bytes" {
		t.Errorf("audio_data roundtrip failed: %v", err)
	}
	if resp["share_url"] != "/static/audio/shipping_news_20250309_083015.mp3" {
		t.Errorf("share_url = %v", resp["share_url"])
	}
}

func TestGenerateAudioValidation(t *testing.T) {
	s := newTestServer(t, &fakeDigests{digest: testDigest()}, &fakeHistory{}, &fakeSpeech{}, &fakeWeather{})

	if w, _ := doJSON(t, s, http.MethodPost, "/api/generate-audio", `{"text":"  "}`, nil); w.Code != http.StatusBadRequest {
		t.Errorf("blank text: status = %d, want 400", w.Code)
	}
	if w, _ := doJSON(t, s, http.MethodPost, "/api/generate-audio", `not json`, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad body: status = %d, want 400", w.Code)
	}
}

func TestGenerateAudioUpstreamFailure(t *testing.T) {
	speech := &fakeSpeech{err: errors.New("speech credentials are not configured")}
	s := newTestServer(t, &fakeDigests{digest: testDigest()}, &fakeHistory{}, speech, &fakeWeather{})

	w, resp := doJSON(t, s, http.MethodPost, "/api/generate-audio", `{"text":"播报内容"}`, nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(resp["error"].(string), "credentials") {
		t.Errorf("error should surface the cause: %v", resp["error"])
	}
}

func TestDownloadAudio(t *testing.T) {
	s := newTestServer(t, &fakeDigests{digest: testDigest()}, &fakeHistory{}, &fakeSpeech{}, &fakeWeather{})

	encoded := base64.StdEncoding.EncodeToString([]byte("mp3 bytes"))
	body := `{"audio_data":"` + encoded + `","filename":"briefing.mp3"}`
	w, _ := doJSON(t, s, http.MethodPost, "/api/download-audio", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "audio/mpeg" {
		t.Errorf("content type = %q", got)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "briefing.mp3") {
		t.Errorf("disposition = %q", w.Header().Get("Content-Disposition"))
	}
	if w.Body.String() != "mp3 bytes" {
		t.Error("audio bytes not streamed back")
	}
}

func TestDownloadAudioSanitizesFilename(t *testing.T) {
	s := newTestServer(t, &fakeDigests{digest: testDigest()}, &fakeHistory{}, &fakeSpeech{}, &fakeWeather{})

	encoded := base64.StdEncoding.EncodeToString([]byte("mp3"))
	body := `{"audio_data":"` + encoded + `","filename":"../../etc/passwd"}`
	w, _ := doJSON(t, s, http.MethodPost, "/api/download-audio", body, nil)
	if strings.Contains(w.Header().Get("Content-Disposition"), "..") {
		t.Errorf("path characters leaked: %q", w.Header().Get("Content-Disposition"))
	}
}

func TestWeather(t *testing.T) {
	wx := &fakeWeather{briefing: &weather.Briefing{Location: "渤海湾", Temp: "18", Beaufort: 5}}
	s := newTestServer(t, &fakeDigests{digest: testDigest()}, &fakeHistory{}, &fakeSpeech{}, wx)

	w, resp := doJSON(t, s, http.MethodGet, "/api/weather?location=天津", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if wx.location != "天津" {
		t.Errorf("location = %q", wx.location)
	}
	if resp["weather"].(map[string]interface{})["location"] != "渤海湾" {
		t.Errorf("unexpected briefing: %v", resp["weather"])
	}
}

func TestWeatherDefaultsToSessionLocation(t *testing.T) {
	wx := &fakeWeather{briefing: &weather.Briefing{Location: "上海"}}
	s := newTestServer(t, &fakeDigests{digest: testDigest()}, &fakeHistory{}, &fakeSpeech{}, wx)

	if w, _ := doJSON(t, s, http.MethodGet, "/api/weather", "", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if wx.location != "上海" {
		t.Errorf("expected the session default location, got %q", wx.location)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &fakeDigests{digest: testDigest()}, &fakeHistory{}, &fakeSpeech{}, &fakeWeather{})

	w, resp := doJSON(t, s, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp["status"] != "healthy" {
		t.Errorf("status field = %v", resp["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeDigests{digest: testDigest()}, &fakeHistory{}, &fakeSpeech{}, &fakeWeather{})

	w, resp := doJSON(t, s, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if _, ok := resp["digests_built"]; !ok {
		t.Errorf("metrics payload missing counters: %v", resp)
	}
}
