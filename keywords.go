package davcloak

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/scraperwall/davcloak/matchers"
	log "github.com/sirupsen/logrus"
)

// Keywords holds the blocked keywords loaded from a line-delimited file.
// Reloading swaps in a new immutable set, readers never see a partially loaded list
type Keywords struct {
	filename  string
	set       atomic.Value
	updatedAt atomic.Value
}

// NewKeywords loads the keyword file. If watch is set, the file is reloaded whenever it changes
func NewKeywords(ctx context.Context, filename string, watch bool) (*Keywords, error) {
	k := &Keywords{
		filename: filename,
	}

	if err := k.Load(); err != nil {
		return nil, err
	}

	if watch {
		if err := reloadOnChanges(ctx, filename, k.Load); err != nil {
			return nil, fmt.Errorf("keywords: %w", err)
		}
	}

	return k, nil
}

// NewStaticKeywords creates a keyword list that isn't backed by a file
func NewStaticKeywords(keywords ...string) *Keywords {
	k := &Keywords{}
	k.set.Store(matchers.NewKeywordSet(keywords))
	k.updatedAt.Store(time.Now())
	return k
}

// Load (re)reads the keyword file
func (k *Keywords) Load() error {
	fh, err := os.Open(k.filename)
	if err != nil {
		return fmt.Errorf("keywords: %w", err)
	}
	defer fh.Close()

	set, err := matchers.ReadKeywordSet(fh)
	if err != nil {
		return fmt.Errorf("keywords %s: %w", k.filename, err)
	}

	k.set.Store(set)
	k.updatedAt.Store(time.Now())

	log.Infof("%d blocked keywords loaded from %s", set.Len(), k.filename)
	return nil
}

// Set returns the current keyword set
func (k *Keywords) Set() *matchers.KeywordSet {
	set, _ := k.set.Load().(*matchers.KeywordSet)
	return set
}

// UpdatedAt returns the time the keywords were loaded
func (k *Keywords) UpdatedAt() time.Time {
	t, _ := k.updatedAt.Load().(time.Time)
	return t
}
