package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const samplePage = `<!DOCTYPE html>
<html><body>
<h1>Daily maritime briefing</h1>
<h2>Top stories</h2>
<ul>
  <li><a href="/ulcc-sale/">ULCC sale shocks the tanker market</a></li>
  <li>Plain list item without a link</li>
</ul>
<a href="/grain-tonnage/">Owners rush to fix grain tonnage</a>
<a href="#comments">Jump to comments</a>
<a href="javascript:void(0)">Open menu</a>
</body></html>`

func TestFetchRendersMarkdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); !strings.Contains(got, "Mozilla") {
			t.Errorf("expected browser user agent, got %q", got)
		}
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, 1, time.Millisecond)
	page, err := c.Fetch(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}

	md := page.Markdown
	for _, want := range []string{
		"# Daily maritime briefing",
		"## Top stories",
		"- [ULCC sale shocks the tanker market](" + srv.URL + "/ulcc-sale/)",
		"- Plain list item without a link",
		"[Owners rush to fix grain tonnage](" + srv.URL + "/grain-tonnage/)",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	for _, reject := range []string{"#comments", "javascript:"} {
		if strings.Contains(md, reject) {
			t.Errorf("markdown should not carry %q:\n%s", reject, md)
		}
	}
	if !strings.Contains(page.HTML, "<h1>Daily maritime briefing</h1>") {
		t.Error("raw HTML not preserved")
	}
}

func TestFetchDoesNotRepeatListAnchors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, 1, time.Millisecond)
	page, err := c.Fetch(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(page.Markdown, "ULCC sale shocks the tanker market"); n != 1 {
		t.Errorf("list anchor emitted %d times, want 1:\n%s", n, page.Markdown)
	}
}

func TestFetchRetriesThenFails(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, 2, time.Millisecond)
	if _, err := c.Fetch(context.Background(), srv.URL+"/"); err == nil {
		t.Fatal("expected error after retries")
	}
	if hits != 2 {
		t.Errorf("expected 2 attempts, got %d", hits)
	}
}

func TestFetchRecoversOnRetry(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, 2, time.Millisecond)
	page, err := c.Fetch(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("expected recovery on second attempt: %v", err)
	}
	if page.Markdown == "" {
		t.Error("expected rendered markdown after recovery")
	}
}
