package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce absorbs editor write bursts before a rebuild fires.
const watchDebounce = 500 * time.Millisecond

// WatchSources watches the sources directory and reruns the full pipeline
// whenever a source file changes. It blocks until the context is canceled.
// Run errors are logged, not returned: a broken file should not stop the
// watch, the next save gets another chance.
func (p *Pipeline) WatchSources(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(p.sourcesDir); err != nil {
		return err
	}

	p.logger.Info("watching sources", "dir", p.sourcesDir)

	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return nil

		case event := <-watcher.Events:
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".csv" {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watchDebounce, func() {
				p.logger.Info("source changed, rebuilding", "file", filepath.Base(event.Name))
				if _, err := p.Run(ctx); err != nil {
					p.logger.Error("rebuild failed", "error", err)
				}
			})

		case err := <-watcher.Errors:
			p.logger.Error("watcher error", "error", err)
		}
	}
}
