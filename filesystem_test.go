package davcloak

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestRoot(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	if err := ioutil.WriteFile(filepath.Join(root, "notes.txt"), []byte("some notes"), 0644); err != nil {
		t.Fatal(err)
	}
	return root
}

func davRequest(h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestFilesystem(t *testing.T) {
	root := newTestRoot(t)
	fs := NewFilesystem(root, "/", false)

	w := davRequest(fs, http.MethodGet, "/notes.txt", "", nil)
	if w.Code != http.StatusOK || w.Body.String() != "some notes" {
		t.Errorf("GET: unexpected response %d %q", w.Code, w.Body.String())
	}

	w = davRequest(fs, "PROPFIND", "/", "", map[string]string{"Depth": "1"})
	if w.Code != http.StatusMultiStatus {
		t.Errorf("PROPFIND: expected status 207, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "notes.txt") {
		t.Errorf("PROPFIND must list notes.txt: %s", w.Body.String())
	}

	w = davRequest(fs, http.MethodPut, "/upload.txt", "uploaded", nil)
	if w.Code != http.StatusCreated {
		t.Errorf("PUT: expected status 201, got %d", w.Code)
	}
	if content, err := ioutil.ReadFile(filepath.Join(root, "upload.txt")); err != nil || string(content) != "uploaded" {
		t.Errorf("PUT: the file wasn't written: %q %v", content, err)
	}

	w = davRequest(fs, "MKCOL", "/folder", "", nil)
	if w.Code != http.StatusCreated {
		t.Errorf("MKCOL: expected status 201, got %d", w.Code)
	}
	if fi, err := os.Stat(filepath.Join(root, "folder")); err != nil || !fi.IsDir() {
		t.Errorf("MKCOL: the directory wasn't created: %v", err)
	}
}

func TestFilesystemPrefix(t *testing.T) {
	fs := NewFilesystem(newTestRoot(t), "/dav/", false)

	if w := davRequest(fs, http.MethodGet, "/dav/notes.txt", "", nil); w.Body.String() != "some notes" {
		t.Errorf("expected the file below the prefix, got %d %q", w.Code, w.Body.String())
	}
	if w := davRequest(fs, http.MethodGet, "/notes.txt", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("paths outside the prefix must not be served, got %d", w.Code)
	}
}

func TestFilesystemReadOnly(t *testing.T) {
	root := newTestRoot(t)
	fs := NewFilesystem(root, "/", true)

	if w := davRequest(fs, http.MethodGet, "/notes.txt", "", nil); w.Code != http.StatusOK {
		t.Errorf("reading must still work, got %d", w.Code)
	}

	tests := []struct {
		method string
		path   string
		header map[string]string
	}{
		{http.MethodPut, "/notes.txt", nil},
		{"MKCOL", "/folder", nil},
		{http.MethodDelete, "/notes.txt", nil},
		{"MOVE", "/notes.txt", map[string]string{"Destination": "/moved.txt"}},
	}

	for _, tt := range tests {
		if w := davRequest(fs, tt.method, tt.path, "changed", tt.header); w.Code < 400 {
			t.Errorf("%s %s must fail on a read-only filesystem, got %d", tt.method, tt.path, w.Code)
		}
	}

	if content, _ := ioutil.ReadFile(filepath.Join(root, "notes.txt")); string(content) != "some notes" {
		t.Errorf("the file was modified: %q", content)
	}
	if _, err := os.Stat(filepath.Join(root, "folder")); !os.IsNotExist(err) {
		t.Error("the directory must not have been created")
	}
}
