// Package fetch retrieves source pages and renders them into the markdown
// projection the extractors work on: headings, list items and anchors in
// document order, with links resolved against the page origin.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"shipnews/internal/retry"
)

// Browser-like identity; several of the shipping sites serve bot UAs a
// stripped page.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

const maxBodyBytes = 5 * 1024 * 1024

// Page is the renderable content of one fetched source page.
type Page struct {
	Markdown string
	HTML     string
}

// Fetcher retrieves a page for extraction.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*Page, error)
}

// Client is the HTTP-backed Fetcher.
type Client struct {
	http  *http.Client
	retry retry.Config
}

func NewClient(timeout time.Duration, attempts int, retryDelay time.Duration) *Client {
	return &Client{
		http:  &http.Client{Timeout: timeout},
		retry: retry.Config{MaxAttempts: attempts, Delay: retryDelay, Backoff: true},
	}
}

// Fetch downloads a page and returns both the raw HTML and its markdown
// projection.
func (c *Client) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	var body []byte
	err := retry.Do(ctx, c.retry, func() error {
		b, err := c.fetchOnce(ctx, pageURL)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	return &Page{
		Markdown: renderMarkdown(doc, base),
		HTML:     string(body),
	}, nil
}

func (c *Client) fetchOnce(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// renderMarkdown walks headings, list items and anchors in document order
// and emits one markdown line per element. Anchors already emitted as part
// of their list item are not repeated.
func renderMarkdown(doc *goquery.Document, base *url.URL) string {
	var b strings.Builder
	emitted := map[*html.Node]bool{}

	doc.Find("h1, h2, h3, li, a").Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "h1", "h2", "h3":
			text := squash(s.Text())
			if text == "" {
				return
			}
			level := int(goquery.NodeName(s)[1] - '0')
			b.WriteString(strings.Repeat("#", level) + " " + text + "\n")
		case "li":
			if a := s.Find("a").First(); a.Length() > 0 {
				if line, ok := anchorLine(a, base); ok {
					emitted[a.Get(0)] = true
					b.WriteString("- " + line + "\n")
					return
				}
			}
			if text := squash(s.Text()); text != "" {
				b.WriteString("- " + text + "\n")
			}
		case "a":
			if emitted[s.Get(0)] {
				return
			}
			if line, ok := anchorLine(s, base); ok {
				b.WriteString(line + "\n")
			}
		}
	})

	return b.String()
}

func anchorLine(a *goquery.Selection, base *url.URL) (string, bool) {
	href, exists := a.Attr("href")
	href = strings.TrimSpace(href)
	if !exists || href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return "", false
	}
	text := squash(a.Text())
	if text == "" {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref).String()
	return fmt.Sprintf("[%s](%s)", text, abs), true
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
