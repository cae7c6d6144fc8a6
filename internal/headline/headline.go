// Package headline holds the candidate type and the title cleaning
// primitives shared by every extraction tier: the noise filter that throws
// away navigation/boilerplate text and the normalizer that produces
// deduplication keys.
package headline

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Candidate is a single extracted headline before cross-source dedup.
// URL is empty when the extractor could not attach a link.
type Candidate struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Source string `json:"source"`
}

// Boilerplate terms that mark a line as site chrome rather than news.
// Single short tokens ("x", "rss") are matched on word boundaries so they
// don't fire inside ordinary words.
var boilerplateTerms = []string{
	"facebook", "x", "twitter", "linkedin", "youtube", "apple", "google play",
	"rss", "subscribe", "follow", "jobs", "login", "sign in", "sign up",
	"注册", "登录", "关于我们", "contact", "联系我们", "privacy", "cookie", "terms",
	"advertise", "advertising", "广告", "专题", "导航", "menu", "newsletter",
	"get daily email", "archive", "news archive", "版权", "copyright",
	"homepage", "home", "sector", "region", "categories", "category",
	"search", "recent", "publications", "magazines", "events", "splash extra",
	"news & features", "bunker prices", "prices", "compliance costs",
}

// Bare brand names that show up as standalone nav links.
var siteNames = map[string]bool{
	"splash247":        true,
	"splash 247":       true,
	"ship & bunker":    true,
	"ship and bunker":  true,
	"gcaptain":         true,
	"信德海事网":            true,
	"xinde marine":     true,
	"xindemarinenews":  true,
}

var (
	wordTokenRe = regexp.MustCompile(`[A-Za-z0-9]+`)
	punctRe     = regexp.MustCompile(`[\[\]()（）【】“”"'’‘《》<>:：,，.;。!！?？•·\-—–]+`)

	// Word-boundary matchers for the short ASCII boilerplate terms,
	// compiled once at init.
	shortTermRes []*regexp.Regexp
)

func init() {
	for _, term := range boilerplateTerms {
		if isASCII(term) && !strings.Contains(term, " ") && utf8.RuneCountInString(term) <= 3 {
			shortTermRes = append(shortTermRes, regexp.MustCompile(`\b`+regexp.QuoteMeta(term)+`\b`))
		}
	}
}

// IsNoise reports whether a candidate title is navigation, boilerplate or
// otherwise not a genuine headline. Checks short-circuit in order.
func IsNoise(title string) bool {
	t := strings.TrimSpace(title)
	if t == "" || strings.HasPrefix(t, "![") {
		return true
	}
	tl := strings.ToLower(t)
	if containsBoilerplate(tl) {
		return true
	}
	if siteNames[tl] {
		return true
	}
	// English nav fragments: very few words and short, with no CJK text.
	if !HasCJK(t) {
		words := wordTokenRe.FindAllString(t, -1)
		if len(words) < 3 && utf8.RuneCountInString(t) < 20 {
			return true
		}
	}
	return utf8.RuneCountInString(t) < 8
}

func containsBoilerplate(lower string) bool {
	for _, re := range shortTermRes {
		if re.MatchString(lower) {
			return true
		}
	}
	for _, term := range boilerplateTerms {
		if isASCII(term) && !strings.Contains(term, " ") && utf8.RuneCountInString(term) <= 3 {
			continue // already checked on word boundaries
		}
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// Normalize projects a title onto its deduplication key: punctuation and
// bracket characters become spaces, whitespace runs collapse to one space,
// the result is trimmed and lowercased. An empty key means the title is
// unusable for dedup.
func Normalize(title string) string {
	cleaned := punctRe.ReplaceAllString(title, " ")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	return strings.ToLower(cleaned)
}

// HasCJK reports whether the text contains at least one Han character.
func HasCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
