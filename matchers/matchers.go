package matchers

import (
	"bufio"
	"io"
	"strings"
)

var (
	// BrowserSignatures are the lowercase fragments that identify a browser useragent
	BrowserSignatures = []string{"mozilla", "chrome", "safari"}
	// BotSignatures are the lowercase fragments that identify an automated client
	BotSignatures = []string{"bot", "crawler", "spider", "shodan", "scanner"}
)

// IsBrowser returns true if the useragent contains a browser signature
func IsBrowser(ua string) bool {
	return containsAny(strings.ToLower(ua), BrowserSignatures)
}

// IsBot returns true if the useragent contains a bot signature
func IsBot(ua string) bool {
	return containsAny(strings.ToLower(ua), BotSignatures)
}

func containsAny(s string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}

// KeywordSet is an immutable set of lowercase keywords that are searched for in request metadata
type KeywordSet struct {
	keywords []string
}

// NewKeywordSet creates a KeywordSet. Keywords are trimmed and lowercased, empty ones and duplicates are dropped
func NewKeywordSet(keywords []string) *KeywordSet {
	seen := make(map[string]bool)
	ks := &KeywordSet{
		keywords: make([]string, 0, len(keywords)),
	}

	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		ks.keywords = append(ks.keywords, k)
	}

	return ks
}

// ReadKeywordSet reads one keyword per line
func ReadKeywordSet(r io.Reader) (*KeywordSet, error) {
	lines := make([]string, 0)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return NewKeywordSet(lines), nil
}

// Match returns the first keyword contained in s, compared case-insensitively
func (ks *KeywordSet) Match(s string) (string, bool) {
	if ks == nil || len(ks.keywords) == 0 || s == "" {
		return "", false
	}

	s = strings.ToLower(s)
	for _, k := range ks.keywords {
		if strings.Contains(s, k) {
			return k, true
		}
	}

	return "", false
}

// Len returns the number of keywords
func (ks *KeywordSet) Len() int {
	if ks == nil {
		return 0
	}
	return len(ks.keywords)
}

// Keywords returns a copy of all keywords
func (ks *KeywordSet) Keywords() []string {
	if ks == nil {
		return []string{}
	}
	res := make([]string, len(ks.keywords))
	copy(res, ks.keywords)
	return res
}
