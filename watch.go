package davcloak

import (
	"context"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	fsnotify "gopkg.in/fsnotify.v1"
)

// reloadOnChanges calls reload whenever filename is written or replaced.
// The watcher observes the parent directory so that editors which replace the file on save are noticed as well
func reloadOnChanges(ctx context.Context, filename string, reload func() error) error {
	abs, err := filepath.Abs(filename)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				log.Tracef("watcher for %s exiting", filename)
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := reload(); err != nil {
					log.Errorf("failed to reload %s: %s", filename, err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("watcher error event for %s: %s", filename, err)
			}
		}
	}()

	return nil
}
