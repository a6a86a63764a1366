package config

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// debounceDuration coalesces the burst of events an editor's save
// typically produces into a single reload.
const debounceDuration = 300 * time.Millisecond

// Holder provides atomic, thread-safe access to a Config, with an
// optional file watcher that hot-reloads only Secret.Value and
// Distributor.HealthCheckInterval. Every other field requires a process
// restart to take effect — reloading them live would mean rebinding a
// listener socket or swapping a queue's retry goroutine mid-flight, which
// is out of scope for a config watcher.
type Holder struct {
	log zerolog.Logger

	mu      sync.RWMutex
	current *Config
	path    string

	watcher *fsnotify.Watcher
}

// NewHolder wraps an already-loaded Config. path is the file that was used
// to load it, if any; an empty path disables the watcher.
func NewHolder(log zerolog.Logger, initial *Config, path string) *Holder {
	return &Holder{
		log:     log.With().Str("component", "config").Logger(),
		current: initial,
		path:    path,
	}
}

// Get returns the current Config. Callers must not mutate the returned
// value; take Clone() first if a mutable copy is needed.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Watch starts watching the config file, if one was given, and applies a
// debounced reload whenever it changes. It blocks until ctx is cancelled.
func (h *Holder) Watch(ctx context.Context) error {
	if h.path == "" {
		h.log.Info().Msg("no config file in use, hot-reload disabled")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	h.watcher = watcher
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(h.path); err != nil {
		return err
	}
	h.log.Info().Str("path", h.path).Msg("watching config file for changes")

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDuration, h.reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.log.Error().Err(err).Msg("config watcher error")
		}
	}
}

// reload re-reads the file and, if it parses and validates, applies the
// two hot-reloadable fields to the live config. A broken file never
// clobbers the running config — it is logged and left in place.
func (h *Holder) reload() {
	next := Default()
	if err := next.mergeFile(h.path); err != nil {
		h.log.Error().Err(err).Msg("config reload failed, keeping previous config")
		return
	}
	next.mergeEnv()
	next.normalize()
	if err := next.Validate(); err != nil {
		h.log.Error().Err(err).Msg("reloaded config failed validation, keeping previous config")
		return
	}

	h.mu.Lock()
	old := h.current
	updated := old.Clone()
	changed := false
	if updated.Secret.Value != next.Secret.Value {
		updated.Secret.Value = next.Secret.Value
		changed = true
	}
	if updated.Distributor.HealthCheckInterval != next.Distributor.HealthCheckInterval {
		updated.Distributor.HealthCheckInterval = next.Distributor.HealthCheckInterval
		changed = true
	}
	h.current = updated
	h.mu.Unlock()

	if changed {
		h.log.Info().Msg("config reloaded: secret and/or healthcheck-interval updated")
	}
}
