package catalog

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-proposal/internal/obs"
)

// Reloader refreshes a Store from a catalog file.
type Reloader struct {
	store    *Store
	path     string
	interval time.Duration
	logger   zerolog.Logger
	load     func(string) (*Catalog, error)
}

// ReloaderConfig configures a Reloader.
type ReloaderConfig struct {
	Store    *Store
	Path     string
	Interval time.Duration
	Logger   zerolog.Logger
}

// NewReloader constructs a Reloader. An empty path reloads the embedded catalog.
func NewReloader(cfg ReloaderConfig) *Reloader {
	return &Reloader{
		store:    cfg.Store,
		path:     cfg.Path,
		interval: cfg.Interval,
		logger:   cfg.Logger,
		load:     Load,
	}
}

// ReloadOnce loads the catalog and publishes it only when it builds cleanly.
// It reports whether the active snapshot changed.
func (r *Reloader) ReloadOnce() (bool, error) {
	next, err := r.load(r.path)
	if err != nil {
		obs.ObserveCatalogReload("error")
		r.logger.Error().Err(err).Str("path", r.path).Msg("catalog reload failed; keeping previous snapshot")
		return false, err
	}
	for _, w := range next.Warnings() {
		r.logger.Warn().Err(w).Str("version", next.Version()).Msg("catalog integrity gap")
	}
	prev := r.store.Swap(next)
	if prev != nil && prev.Fingerprint() == next.Fingerprint() {
		obs.ObserveCatalogReload("unchanged")
		return false, nil
	}
	obs.ObserveCatalogReload("ok")
	r.logger.Info().
		Str("version", next.Version()).
		Str("fingerprint", next.Fingerprint()).
		Int("variants", next.VariantCount()).
		Msg("catalog loaded")
	return true, nil
}

// Run reloads on every tick until ctx is done. A non-positive interval disables polling.
func (r *Reloader) Run(ctx context.Context) {
	if r.interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = r.ReloadOnce()
		}
	}
}
