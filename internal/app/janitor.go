package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Janitor proactively reclaims expired sessions so memory is not held until
// the next lazy access. Purely an optimization: every access path already
// checks expiry itself, and the sweep goes through the same per-session
// eviction as the lazy path.
type Janitor struct {
	Lifecycle *Lifecycle
	Interval  time.Duration
}

func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	log.Info().Str("module", "app.janitor").Dur("interval", j.Interval).Msg("janitor started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.janitor").Msg("janitor stopped")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	for _, id := range j.Lifecycle.Registry.ActiveIDs() {
		j.Lifecycle.Expire(ctx, id)
	}
}
