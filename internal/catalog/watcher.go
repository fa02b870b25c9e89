package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/metrics"
)

// #region source

// Source yields the catalog currently in force.
type Source interface {
	Current() *Catalog
}

// Static is a Source that never changes.
type Static struct{ C *Catalog }

// Current returns the wrapped catalog.
func (s Static) Current() *Catalog { return s.C }

// #endregion source

// #region watcher

// Watcher keeps a catalog file loaded and swaps it atomically when the file
// changes. A reload that fails validation keeps the previous catalog.
type Watcher struct {
	path     string
	debounce time.Duration
	current  atomic.Pointer[Catalog]
	onReload func(*Catalog)

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewWatcher loads path once and returns a Watcher serving it. onReload, if
// non-nil, is called after each successful reload.
func NewWatcher(path string, onReload func(*Catalog)) (*Watcher, error) {
	c, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:     path,
		debounce: 200 * time.Millisecond,
		onReload: onReload,
	}
	w.current.Store(c)
	return w, nil
}

// Current returns the most recently loaded valid catalog.
func (w *Watcher) Current() *Catalog {
	return w.current.Load()
}

// Start begins watching the catalog's directory. Non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: editors replace files rather than writing in place.
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	w.fsw = fsw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true
	go w.run(ctx)
	log.Info().Str("component", "catalog").Str("path", w.path).Msg("watching catalog")
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh
	if err := w.fsw.Close(); err != nil {
		log.Warn().Err(err).Str("component", "catalog").Msg("close watcher")
	}
}

// Reload re-reads the file now.
func (w *Watcher) Reload() error {
	c, err := LoadFile(w.path)
	if err != nil {
		return err
	}
	w.current.Store(c)
	if w.onReload != nil {
		w.onReload(c)
	}
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	var timer *time.Timer
	var fire <-chan time.Time
	target := filepath.Clean(w.path)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("component", "catalog").Msg("watch error")
		case <-fire:
			fire = nil
			if err := w.Reload(); err != nil {
				metrics.CatalogReloads.WithLabelValues("rejected").Inc()
				log.Warn().Err(err).Str("component", "catalog").Msg("reload rejected, keeping previous catalog")
				continue
			}
			metrics.CatalogReloads.WithLabelValues("ok").Inc()
			log.Info().Str("component", "catalog").Int("interventions", len(w.Current().Interventions)).Msg("catalog reloaded")
		}
	}
}

// #endregion watcher
