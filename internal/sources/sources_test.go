package sources

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAllowed(t *testing.T) {
	set := Defaults()
	splash := set.RuleFor("splash247.com")
	bunker := set.RuleFor("shipandbunker.com")

	tests := []struct {
		name string
		url  string
		rule *Rule
		want bool
	}{
		{"article slug passes", "https://splash247.com/ulcc-sale-shocks-tanker-market/", splash, true},
		{"category page excluded", "https://splash247.com/category/sector/tankers/", splash, false},
		{"jobs page excluded", "https://splash247.com/jobs/broker-wanted/", splash, false},
		{"foreign host rejected", "https://example.com/ulcc-sale/", splash, false},
		{"deep path fails pattern", "https://splash247.com/2024/06/01/story/", splash, false},
		{"bunker news article passes", "https://shipandbunker.com/news/world/123456-ifo380-spreads-widen", bunker, true},
		{"bunker prices excluded", "https://shipandbunker.com/prices/apac/sin-singapore", bunker, false},
		{"nil rule accepts anything", "https://anything.example/whatever", nil, true},
		{"malformed url fails closed", "https://splash247.com/%zz", splash, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Allowed(tt.url, tt.rule); got != tt.want {
				t.Errorf("Allowed(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestHost(t *testing.T) {
	if got := Host("https://GCaptain.com/feed/"); got != "gcaptain.com" {
		t.Errorf("Host() = %q, want gcaptain.com", got)
	}
	if got := Host("://broken"); got != "" {
		t.Errorf("Host() on malformed url = %q, want empty", got)
	}
}

func TestFeedFor(t *testing.T) {
	set := Defaults()
	if got := set.FeedFor("gcaptain.com"); got != "https://gcaptain.com/feed/" {
		t.Errorf("FeedFor(gcaptain.com) = %q", got)
	}
	if got := set.FeedFor("splash247.com"); got != "" {
		t.Errorf("FeedFor(splash247.com) = %q, want empty", got)
	}
}

func TestLoadDefaultsOnEmptyPath(t *testing.T) {
	set, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") returned error: %v", err)
	}
	if len(set.Sources) != 4 {
		t.Errorf("expected 4 default sources, got %d", len(set.Sources))
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := `sources:
  - name: Example Maritime
    url: https://maritime.example/
    feed: https://maritime.example/rss
rules:
  maritime.example:
    allow_hosts: [maritime.example]
    exclude_prefixes: [/tag/]
    allow_patterns: ['^/news/']
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	set, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(set.Sources) != 1 || set.Sources[0].Name != "Example Maritime" {
		t.Fatalf("unexpected sources: %+v", set.Sources)
	}
	if set.FeedFor("maritime.example") != "https://maritime.example/rss" {
		t.Error("feed URL not carried over from YAML")
	}

	rule := set.RuleFor("maritime.example")
	if rule == nil {
		t.Fatal("expected rule for maritime.example")
	}
	if !Allowed("https://maritime.example/news/new-terminal-opens", rule) {
		t.Error("expected news path to pass the loaded rule")
	}
	if Allowed("https://maritime.example/tag/dredging", rule) {
		t.Error("expected excluded prefix to be rejected")
	}
}

func TestLoadRejectsEmptySourceList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte("rules: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for config without sources")
	}
}

func TestLoadRejectsBadPattern(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := `sources:
  - name: Broken
    url: https://broken.example/
rules:
  broken.example:
    allow_patterns: ['[']
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
