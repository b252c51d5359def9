package davcloak

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"
)

func TestKeywords(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "keywords.txt")
	if err := ioutil.WriteFile(fn, []byte("sqlmap\n\n  Nikto \nsqlmap\n"), 0644); err != nil {
		t.Fatal(err)
	}

	k, err := NewKeywords(context.Background(), fn, false)
	if err != nil {
		t.Fatal(err)
	}

	if k.Set().Len() != 2 {
		t.Errorf("expected 2 keywords, got %d: %v", k.Set().Len(), k.Set().Keywords())
	}
	if _, ok := k.Set().Match("Mozilla/5.0 NIKTO"); !ok {
		t.Error("keywords must match case-insensitively")
	}
	if k.UpdatedAt().IsZero() {
		t.Error("the load time must be set")
	}
}

func TestKeywordsMissingFile(t *testing.T) {
	if _, err := NewKeywords(context.Background(), filepath.Join(t.TempDir(), "missing.txt"), false); err == nil {
		t.Error("expected an error for a missing keyword file")
	}
}

func TestStaticKeywords(t *testing.T) {
	empty := NewStaticKeywords()
	if empty.Set().Len() != 0 {
		t.Errorf("expected no keywords, got %v", empty.Set().Keywords())
	}
	if _, ok := empty.Set().Match("anything"); ok {
		t.Error("an empty keyword list must not match")
	}

	k := NewStaticKeywords("scan", "SCAN", "")
	if k.Set().Len() != 1 {
		t.Errorf("expected 1 keyword, got %v", k.Set().Keywords())
	}
}

func TestKeywordsReload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fn := filepath.Join(t.TempDir(), "keywords.txt")
	if err := ioutil.WriteFile(fn, []byte("sqlmap\n"), 0644); err != nil {
		t.Fatal(err)
	}

	k, err := NewKeywords(ctx, fn, true)
	if err != nil {
		t.Fatal(err)
	}

	before := k.Set()
	if err := ioutil.WriteFile(fn, []byte("sqlmap\nnikto\nmasscan\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for k.Set().Len() != 3 {
		if time.Now().After(deadline) {
			t.Fatalf("the keywords weren't reloaded: %v", k.Set().Keywords())
		}
		time.Sleep(20 * time.Millisecond)
	}

	if before.Len() != 1 {
		t.Errorf("a reload must not modify a set that is in use, it has %d keywords", before.Len())
	}
}
