package matchers

import (
	"strings"
	"testing"
)

func TestSignatures(t *testing.T) {
	browsers := []string{
		"Mozilla/5.0 (X11; Linux x86_64)",
		"Chrome/120.0",
		"AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	}
	for _, ua := range browsers {
		if !IsBrowser(ua) {
			t.Errorf("%s should be detected as a browser", ua)
		}
	}

	bots := []string{"Googlebot/2.1", "SomeCrawler", "Baiduspider", "Shodan", "Nessus Scanner", "BOT"}
	for _, ua := range bots {
		if !IsBot(ua) {
			t.Errorf("%s should be detected as a bot", ua)
		}
	}

	for _, ua := range []string{"curl/7.68.0", "Wget/1.21", ""} {
		if IsBrowser(ua) || IsBot(ua) {
			t.Errorf("%s should be neither browser nor bot", ua)
		}
	}
}

func TestKeywordSet(t *testing.T) {
	ks, err := ReadKeywordSet(strings.NewReader("  SQLMap \n\nnikto\nsqlmap\n"))
	if err != nil {
		t.Fatal(err)
	}

	if ks.Len() != 2 {
		t.Errorf("keyword set should contain 2 keywords but has %d: %v", ks.Len(), ks.Keywords())
	}

	if k, ok := ks.Match("python-requests sqlmap/1.5"); !ok || k != "sqlmap" {
		t.Errorf("expected a match for sqlmap, got %q %v", k, ok)
	}

	if _, ok := ks.Match("Mozilla/5.0 NIKTO"); !ok {
		t.Error("keyword matching must be case-insensitive")
	}

	if _, ok := ks.Match("curl/7.68.0"); ok {
		t.Error("curl should not match any keyword")
	}

	var empty *KeywordSet
	if _, ok := empty.Match("anything"); ok {
		t.Error("a nil keyword set must not match")
	}
}

func TestKeywordSetBlankLines(t *testing.T) {
	ks, err := ReadKeywordSet(strings.NewReader("\n   \n\t\n"))
	if err != nil {
		t.Fatal(err)
	}

	if ks.Len() != 0 {
		t.Errorf("blank lines must not become keywords, got %v", ks.Keywords())
	}
	if _, ok := ks.Match("Mozilla/5.0"); ok {
		t.Error("a file of blank lines must not match any request")
	}
}
