package davcloak

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"
)

func writeDecoy(t *testing.T, content string) string {
	t.Helper()

	fn := filepath.Join(t.TempDir(), "decoy.html")
	if err := ioutil.WriteFile(fn, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return fn
}

func TestDecoyRender(t *testing.T) {
	d, err := NewDecoy(context.Background(), writeDecoy(t, testDecoyPage), false)
	if err != nil {
		t.Fatal(err)
	}

	headers := HeaderSet{{"Server", "nginx/1.18.0 (Ubuntu)"}, {"Connection", "keep-alive"}}
	template := headers.Clone()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			w := httptest.NewRecorder()
			d.Render(w, headers)

			if w.Code != http.StatusOK {
				t.Errorf("expected status 200, got %d", w.Code)
			}
			if w.Body.String() != testDecoyPage {
				t.Errorf("unexpected body %q", w.Body.String())
			}
			if ct := w.Header().Values("Content-Type"); !reflect.DeepEqual(ct, []string{"text/html"}) {
				t.Errorf("expected a single Content-Type text/html, got %v", ct)
			}
			if w.Header().Get("Server") != "nginx/1.18.0 (Ubuntu)" {
				t.Errorf("the disguise headers are missing: %v", w.Header())
			}
		}()
	}
	wg.Wait()

	if !reflect.DeepEqual(headers, template) {
		t.Errorf("rendering modified the disguise headers: %v", headers)
	}
}

func TestDecoyMissing(t *testing.T) {
	if _, err := NewDecoy(context.Background(), filepath.Join(t.TempDir(), "missing.html"), false); err == nil {
		t.Error("expected an error for a missing decoy page")
	}
}

func TestDecoyReload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fn := writeDecoy(t, "first")
	d, err := NewDecoy(ctx, fn, true)
	if err != nil {
		t.Fatal(err)
	}

	if string(d.Page()) != "first" {
		t.Fatalf("unexpected page %q", d.Page())
	}

	if err := ioutil.WriteFile(fn, []byte("second"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for string(d.Page()) != "second" {
		if time.Now().After(deadline) {
			t.Fatalf("the decoy page wasn't reloaded, still %q", d.Page())
		}
		time.Sleep(20 * time.Millisecond)
	}
}
