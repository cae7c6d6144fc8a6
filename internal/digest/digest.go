// Package digest builds the daily shipping-news digest: concurrent source
// fetch, tiered extraction, cross-source dedup, relevance ranking and
// formatting, backed by a date-keyed cache.
package digest

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Item is one ranked headline in a finished digest.
type Item struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Source string `json:"source"`
}

// Digest is the finalized daily output.
type Digest struct {
	Items     []Item
	Formatted string
	DateLabel string
}

const (
	// TopN is the number of headlines a digest carries.
	TopN = 10
	// perSourceMax caps raw candidates taken from one source.
	perSourceMax = 12
	// globalCap bounds the merged pool collected for ranking.
	globalCap = 40
	// minSufficient is the threshold below which the next extraction tier
	// is tried.
	minSufficient = 2
)

// Tier-1 keywords: Tianjin and the Bohai-rim ports, weighted heaviest.
var tier1Keywords = []string{
	"天津", "天津港", "渤海", "渤海湾", "环渤海", "滨海新区",
	"唐山", "曹妃甸", "秦皇岛", "黄骅", "曹妃甸港", "秦皇岛港",
	"大连", "营口", "锦州", "青岛", "烟台", "日照",
}

// Tier-2 keywords: Chinese ports and port logistics generally.
var tier2Keywords = []string{
	"中国", "国内", "港口", "码头", "航道", "疏浚", "北方港",
	"上港", "宁波舟山", "厦门港", "深圳港", "广州港", "连云港", "福州港", "海关", "铁路集疏运",
}

// Advisory lines served when no source yields anything.
var placeholderLines = []string{
	"今日未获取到航运新闻，请稍后重试或点击刷新。",
	"如长期无结果，请检查服务器网络与抓取配置。",
}

// Score sums keyword weights over a title: 10 per tier-1 keyword present,
// 3 per tier-2. Substring match, case-sensitive.
func Score(title string) int {
	s := 0
	for _, kw := range tier1Keywords {
		if strings.Contains(title, kw) {
			s += 10
		}
	}
	for _, kw := range tier2Keywords {
		if strings.Contains(title, kw) {
			s += 3
		}
	}
	return s
}

// DateLabel renders the digest's human-readable date header.
func DateLabel(t time.Time) string {
	return t.Format("2006年01月02日")
}

// DateKey renders the calendar-date cache key.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// Format renders the digest body: dated header, numbered items with inline
// links and origin annotations, blank line between items, no trailing
// blank.
func Format(items []Item, dateLabel string) string {
	var b strings.Builder
	b.WriteString(dateLabel + " 航运早报\n\n")
	for i, it := range items {
		switch {
		case it.URL != "":
			fmt.Fprintf(&b, "%d、<a href=\"%s\" target=\"_blank\" rel=\"noopener\">%s</a>（来源：%s）\n\n", i+1, it.URL, it.Title, it.Source)
		case it.Source != "":
			fmt.Fprintf(&b, "%d、%s（来源：%s）\n\n", i+1, it.Title, it.Source)
		default:
			fmt.Fprintf(&b, "%d、%s\n\n", i+1, it.Title)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func placeholderDigest(now time.Time) *Digest {
	items := make([]Item, 0, len(placeholderLines))
	for _, line := range placeholderLines {
		items = append(items, Item{Title: line})
	}
	label := DateLabel(now)
	return &Digest{
		Items:     items,
		Formatted: Format(items, label),
		DateLabel: label,
	}
}

// Cache is the date-keyed digest store the builder reads and writes.
// Writes that fail must be reported, not panic; the builder treats them as
// non-fatal.
type Cache interface {
	Get(dateKey string) (*Digest, bool)
	Put(dateKey string, d *Digest, createdAt time.Time) error
	Delete(dateKey string) error
	Prune(retentionDays int) int
}

// Translator enriches a headline, reporting whether translation happened.
type Translator interface {
	ToChinese(ctx context.Context, text string) (string, bool)
}
