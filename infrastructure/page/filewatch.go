package page

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/AzielCF/az-compare/pkg/ratelimit"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const reloadSettle = 50 * time.Millisecond

// Watch reloads doc whenever its backing file changes and then calls
// onReload. Bursts of writes collapse into one reload. It returns once the
// watcher is set up; watching stops when ctx is done.
func Watch(ctx context.Context, doc *Document, onReload func()) error {
	if doc.Path() == "" {
		return fmt.Errorf("document has no backing file")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	// Editors often replace the file, so the directory is watched.
	dir := filepath.Dir(doc.Path())
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(doc.Path())
	reload := ratelimit.NewDebouncer(reloadSettle, func(string) {
		if err := doc.Reload(); err != nil {
			logrus.Warnf("[PAGE] Reload failed: %v", err)
			return
		}
		if onReload != nil {
			onReload()
		}
	})

	go func() {
		defer w.Close()
		defer reload.Cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
					reload.Trigger(ev.Name)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logrus.Warnf("[PAGE] Watcher error: %v", err)
			}
		}
	}()

	logrus.Infof("[PAGE] Watching %s", doc.Path())
	return nil
}
