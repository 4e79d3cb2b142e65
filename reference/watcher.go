package reference

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates the loader's chunk cache when reference files change
// on disk, so edited curriculum material is picked up without a restart.
type Watcher struct {
	loader  *Loader
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewWatcher creates a watcher over docsDir feeding invalidations to loader.
func NewWatcher(docsDir string, loader *Loader, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(docsDir); err != nil {
		fsw.Close()
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		loader:  loader,
		watcher: fsw,
		logger:  logger,
	}, nil
}

// Start processes filesystem events until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		defer w.watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					w.loader.Invalidate(event.Name)
					w.logger.Debug("Reference file changed, cache invalidated",
						"path", event.Name, "op", event.Op.String())
				}

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("Reference watcher error", "error", err)
			}
		}
	}()
}
