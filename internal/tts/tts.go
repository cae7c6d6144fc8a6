package tts

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"shipnews/internal/logger"
	"shipnews/internal/metrics"
	"shipnews/internal/retry"
	"shipnews/internal/session"
)

const defaultBaseURL = "https://api.minimax.chat"

// Result holds one synthesized clip: the raw audio bytes plus where it was
// written and how it can be fetched over HTTP.
type Result struct {
	Audio    []byte
	Filename string
	ShareURL string
}

// Client synthesizes speech through the Minimax t2a_v2 endpoint and stores
// clips under a local audio directory.
type Client struct {
	http     *http.Client
	baseURL  string
	audioDir string
	retry    retry.Config
	now      func() time.Time
}

func NewClient(audioDir string, timeout time.Duration) *Client {
	return &Client{
		http:     &http.Client{Timeout: timeout},
		baseURL:  defaultBaseURL,
		audioDir: audioDir,
		retry:    retry.Config{MaxAttempts: 2, Delay: 2 * time.Second, Backoff: true},
		now:      time.Now,
	}
}

// SetBaseURL overrides the API endpoint (tests).
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

// SetClock overrides the filename clock (tests).
func (c *Client) SetClock(now func() time.Time) { c.now = now }

type requestPayload struct {
	Model         string        `json:"model"`
	Text          string        `json:"text"`
	TimberWeights []voiceWeight `json:"timber_weights"`
	VoiceSetting  voiceSetting  `json:"voice_setting"`
	AudioSetting  audioSetting  `json:"audio_setting"`
	LanguageBoost string        `json:"language_boost"`
}

type voiceWeight struct {
	VoiceID string `json:"voice_id"`
	Weight  int    `json:"weight"`
}

type voiceSetting struct {
	VoiceID   string  `json:"voice_id"`
	Speed     float64 `json:"speed"`
	Pitch     int     `json:"pitch"`
	Vol       float64 `json:"vol"`
	Emotion   string  `json:"emotion"`
	LatexRead bool    `json:"latex_read"`
}

type audioSetting struct {
	SampleRate int    `json:"sample_rate"`
	Bitrate    int    `json:"bitrate"`
	Format     string `json:"format"`
}

type responsePayload struct {
	Data struct {
		Audio string `json:"audio"`
	} `json:"data"`
	BaseResp struct {
		StatusCode int    `json:"status_code"`
		StatusMsg  string `json:"status_msg"`
	} `json:"base_resp"`
}

// Generate synthesizes text using the session's voice settings, writes the
// clip to the audio directory, and returns it with its share path.
func (c *Client) Generate(ctx context.Context, text string, cfg session.Config) (*Result, error) {
	if cfg.GroupID == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("speech credentials are not configured")
	}
	if text == "" {
		return nil, fmt.Errorf("no text to synthesize")
	}

	payload := requestPayload{
		Model: cfg.Model,
		Text:  text,
		TimberWeights: []voiceWeight{
			{VoiceID: cfg.VoiceID, Weight: 100},
		},
		VoiceSetting: voiceSetting{
			VoiceID:   cfg.VoiceID,
			Speed:     cfg.Speed,
			Pitch:     cfg.Pitch,
			Vol:       cfg.Vol,
			Emotion:   cfg.Emotion,
			LatexRead: false,
		},
		AudioSetting: audioSetting{
			SampleRate: cfg.SampleRate,
			Bitrate:    cfg.Bitrate,
			Format:     cfg.Format,
		},
		LanguageBoost: "auto",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode speech request: %w", err)
	}

	var audio []byte
	err = retry.Do(ctx, c.retry, func() error {
		audio, err = c.callAPI(ctx, body, cfg)
		return err
	})
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("shipping_news_%s.%s", c.now().Format("20060102_150405"), cfg.Format)
	if err := c.save(filename, audio); err != nil {
		return nil, err
	}

	metrics.Global.IncrementAudioGenerated()
	logger.Info("audio generated", "file", filename, "bytes", len(audio))

	return &Result{
		Audio:    audio,
		Filename: filename,
		ShareURL: "/static/audio/" + filename,
	}, nil
}

func (c *Client) callAPI(ctx context.Context, body []byte, cfg session.Config) ([]byte, error) {
	url := fmt.Sprintf("%s/v1/t2a_v2?GroupId=%s", c.baseURL, cfg.GroupID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 50<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read speech response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("speech API returned status %d", resp.StatusCode)
	}

	var parsed responsePayload
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse speech response: %w", err)
	}
	if parsed.BaseResp.StatusCode != 0 {
		return nil, fmt.Errorf("speech API error %d: %s", parsed.BaseResp.StatusCode, parsed.BaseResp.StatusMsg)
	}
	if parsed.Data.Audio == "" {
		return nil, fmt.Errorf("speech response contained no audio")
	}

	audio, err := hex.DecodeString(parsed.Data.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio payload: %w", err)
	}
	return audio, nil
}

func (c *Client) save(filename string, audio []byte) error {
	if err := os.MkdirAll(c.audioDir, 0o755); err != nil {
		return fmt.Errorf("failed to create audio directory: %w", err)
	}
	path := filepath.Join(c.audioDir, filename)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}
	return nil
}
