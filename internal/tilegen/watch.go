package tilegen

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher regenerates tiles when GeoTIFFs in the orthos directory change.
// Bursts of events (a large file being copied in) are coalesced: onChange
// fires once the directory has been quiet for the debounce interval.
type Watcher struct {
	log      zerolog.Logger
	dir      string
	debounce time.Duration
	onChange func(ctx context.Context) error
}

func NewWatcher(log zerolog.Logger, dir string, debounce time.Duration, onChange func(ctx context.Context) error) *Watcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		log:      log.With().Str("component", "watcher").Logger(),
		dir:      dir,
		debounce: debounce,
		onChange: onChange,
	}
}

// Run blocks until ctx is done. onChange errors are logged, never fatal.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.log.Info().Str("dir", w.dir).Dur("debounce", w.debounce).Msg("watching for GeoTIFF changes")

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			w.log.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("change detected")
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watcher error")

		case <-timer.C:
			w.log.Info().Msg("GeoTIFFs changed; regenerating")
			if err := w.onChange(ctx); err != nil && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("regeneration failed")
			}
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if !isGeoTIFF(ev.Name) {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}
