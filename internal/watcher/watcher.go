package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"faq-rag/internal/helper"
)

const defaultDebounce = 250 * time.Millisecond

// Reloader re-reads a persisted index. Reload reports false when the file on
// disk is the one already in memory.
type Reloader interface {
	Reload(ctx context.Context) (bool, error)
}

// Watcher follows the FAQ source and the index file. A new index file written
// by another process is loaded; a changed source only marks the knowledge base
// as stale, it never triggers a rebuild.
type Watcher struct {
	source   string
	index    string
	reloader Reloader
	fs       *fsnotify.Watcher
	stale    atomic.Bool
	debounce time.Duration
}

// New starts watching the directories holding sourcePath and indexFile.
// reloader may be nil when the index does not live in a file.
func New(sourcePath, indexFile string, reloader Reloader) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		source:   filepath.Clean(sourcePath),
		reloader: reloader,
		fs:       fsw,
		debounce: defaultDebounce,
	}

	dirs := []string{filepath.Dir(w.source)}
	if reloader != nil && indexFile != "" {
		w.index = filepath.Clean(indexFile)
		indexDir := filepath.Dir(w.index)
		if err := helper.CreateFolder(indexDir); err != nil {
			_ = fsw.Close()
			return nil, err
		}
		if indexDir != dirs[0] {
			dirs = append(dirs, indexDir)
		}
	}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		log.Debug().Str("dir", dir).Msg("Watching")
	}
	return w, nil
}

// Stale reports whether the source changed since the last build.
func (w *Watcher) Stale() bool {
	return w.stale.Load()
}

// MarkFresh clears the stale flag; call it after every successful build.
func (w *Watcher) MarkFresh() {
	if w.stale.Swap(false) {
		log.Info().Str("source", w.source).Msg("Knowledge base is up to date")
	}
}

func (w *Watcher) Close() error {
	return w.fs.Close()
}

// Run handles file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	var reload <-chan time.Time
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			switch filepath.Clean(event.Name) {
			case w.source:
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					w.markStale(event)
				}
			case w.index:
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					if timer == nil {
						timer = time.NewTimer(w.debounce)
					} else {
						timer.Reset(w.debounce)
					}
					reload = timer.C
				}
			}

		case <-reload:
			reload = nil
			reloaded, err := w.reloader.Reload(ctx)
			if err != nil {
				log.Error().Err(err).Str("file", w.index).Msg("Failed to reload index")
				continue
			}
			if !reloaded {
				continue
			}
			log.Info().Str("file", w.index).Msg("Reloaded index after external change")

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				log.Warn().Err(err).Msg("File events dropped")
				continue
			}
			log.Error().Err(err).Msg("File watcher error")
		}
	}
}

func (w *Watcher) markStale(event fsnotify.Event) {
	if !w.stale.Swap(true) {
		log.Warn().Str("source", w.source).Str("op", event.Op.String()).Msg("knowledge base is stale")
	}
}
