package davcloak

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Decoy serves the static decoy page
type Decoy struct {
	filename string
	page     atomic.Value
}

// NewDecoy reads the decoy page. A missing or unreadable page is a configuration error.
// If watch is set, the page is reloaded whenever the file changes
func NewDecoy(ctx context.Context, filename string, watch bool) (*Decoy, error) {
	d := &Decoy{
		filename: filename,
	}

	if err := d.Load(); err != nil {
		return nil, err
	}

	if watch {
		if err := reloadOnChanges(ctx, filename, d.Load); err != nil {
			return nil, fmt.Errorf("decoy page: %w", err)
		}
	}

	return d, nil
}

// Load (re)reads the decoy page
func (d *Decoy) Load() error {
	page, err := ioutil.ReadFile(d.filename)
	if err != nil {
		return fmt.Errorf("decoy page: %w", err)
	}

	d.page.Store(page)
	log.Infof("decoy page %s loaded (%d bytes)", d.filename, len(page))

	return nil
}

// Page returns the current decoy page
func (d *Decoy) Page() []byte {
	page, _ := d.page.Load().([]byte)
	return page
}

// Render writes the decoy page with status 200. The response headers are a copy of the
// disguise headers followed by Content-Type: text/html. headers itself is never modified
func (d *Decoy) Render(w http.ResponseWriter, headers HeaderSet) {
	page := d.Page()

	headers.With("Content-Type", "text/html").Apply(w.Header())
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(page); err != nil {
		log.Tracef("failed to write decoy page: %s", err)
	}
}
