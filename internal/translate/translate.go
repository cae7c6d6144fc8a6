// Package translate turns English headlines into Chinese on a best-effort
// basis. Failure is never visible to the caller: the original text comes
// back unchanged. Successful translations are memoized for the life of the
// process.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"shipnews/internal/headline"
	"shipnews/internal/logger"
	"shipnews/internal/metrics"
)

const defaultEndpoint = "https://translate.googleapis.com/translate_a/single"

// memoLimit caps the memo so a long-lived process cannot grow it without
// bound; daily candidate volume stays far below this.
const memoLimit = 4096

// Translator translates short texts to Simplified Chinese with a free
// endpoint first and OpenAI as fallback when a key is configured.
type Translator struct {
	client      *http.Client
	endpoint    string
	openaiKey   string
	maxRequests int

	mu      sync.Mutex
	memo    map[string]string
	used    int
	resetAt time.Time
}

func New(timeout time.Duration, openaiKey string, maxRequests int) *Translator {
	return &Translator{
		client:      &http.Client{Timeout: timeout},
		endpoint:    defaultEndpoint,
		openaiKey:   openaiKey,
		maxRequests: maxRequests,
		memo:        make(map[string]string),
		resetAt:     time.Now().Add(24 * time.Hour),
	}
}

// ToChinese returns the translated text and whether a translation actually
// happened (false means pass-through: already Chinese, too short, budget
// exhausted, or every provider failed).
func (t *Translator) ToChinese(ctx context.Context, text string) (string, bool) {
	if text == "" || headline.HasCJK(text) {
		return text, false
	}
	// One or two words is a proper noun or label, not worth a network call.
	if len(strings.Fields(text)) <= 2 {
		return text, false
	}

	if cached, ok := t.fromMemo(text); ok {
		metrics.Global.IncrementTranslationsDone()
		return cached, true
	}
	if !t.takeRequest() {
		metrics.Global.IncrementPassthrough()
		return text, false
	}

	if result, err := t.viaEndpoint(ctx, text); err == nil && result != "" && result != text {
		t.remember(text, result)
		metrics.Global.IncrementTranslationsDone()
		return result, true
	} else if err != nil {
		logger.Debug("endpoint translation failed", "error", err)
	}

	if t.openaiKey != "" {
		if result, err := t.viaOpenAI(ctx, text); err == nil && result != "" && result != text {
			t.remember(text, result)
			metrics.Global.IncrementTranslationsDone()
			return result, true
		} else if err != nil {
			logger.Debug("openai translation failed", "error", err)
		}
	}

	metrics.Global.IncrementPassthrough()
	return text, false
}

func (t *Translator) fromMemo(text string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.memo[text]
	return v, ok
}

func (t *Translator) remember(text, result string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.memo) >= memoLimit {
		// Drop everything rather than track recency for a cache this small.
		t.memo = make(map[string]string)
	}
	t.memo[text] = result
}

// takeRequest enforces the daily outbound-call budget. The counter resets
// 24h after the previous window started.
func (t *Translator) takeRequest() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if time.Now().After(t.resetAt) {
		t.used = 0
		t.resetAt = time.Now().Add(24 * time.Hour)
	}
	if t.maxRequests > 0 && t.used >= t.maxRequests {
		logger.Warn("translation request budget exhausted", "used", t.used, "max", t.maxRequests)
		return false
	}
	t.used++
	return true
}

// viaEndpoint uses the free gtx translate endpoint.
func (t *Translator) viaEndpoint(ctx context.Context, text string) (string, error) {
	params := url.Values{}
	params.Set("client", "gtx")
	params.Set("sl", "en")
	params.Set("tl", "zh-CN")
	params.Set("dt", "t")
	params.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate endpoint returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return parseEndpointResponse(body)
}

// parseEndpointResponse unpacks the nested-array response format: the first
// element holds segment arrays whose first element is the translated text.
func parseEndpointResponse(body []byte) (string, error) {
	var response []interface{}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", err
	}
	if len(response) == 0 {
		return "", errors.New("empty translate response")
	}
	segments, ok := response[0].([]interface{})
	if !ok {
		return "", errors.New("unexpected translate response format")
	}

	var result strings.Builder
	for _, seg := range segments {
		if parts, ok := seg.([]interface{}); ok && len(parts) > 0 {
			if translated, ok := parts[0].(string); ok {
				result.WriteString(translated)
			}
		}
	}
	return result.String(), nil
}

func (t *Translator) viaOpenAI(ctx context.Context, text string) (string, error) {
	client := openai.NewClient(t.openaiKey)

	prompt := fmt.Sprintf(`Translate the following shipping-industry news headline into Simplified Chinese.
Keep it short and in news-headline register. Return only the translation.

Headline:
%s`, text)

	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: openai.GPT3Dot5Turbo,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxCompletionTokens: 200,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
