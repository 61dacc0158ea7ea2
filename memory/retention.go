package memory

import (
	"context"
	"time"
)

// RetentionPolicy describes which memories a sweep may remove. Records are
// immutable, so retention is expressed purely as deletes.
type RetentionPolicy struct {
	// MaxAge is how old a record must be before the sweep removes it.
	MaxAge time.Duration
	// Types limits the sweep to the listed memory types. Empty means all
	// types; the usual configuration sweeps only episodic memories.
	Types []MemoryType
}

// Sweep deletes records older than the policy's MaxAge and returns how many
// were removed. A zero or negative MaxAge disables the sweep.
func (m *Manager) Sweep(ctx context.Context, policy RetentionPolicy) (int64, error) {
	if policy.MaxAge <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-policy.MaxAge)

	var removed int64
	err := m.withRetry(ctx, func() error {
		var sweepErr error
		removed, sweepErr = m.index.DeleteOlderThan(ctx, cutoff, policy.Types)
		return sweepErr
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		m.logger.Info().
			Int64("removed", removed).
			Time("cutoff", cutoff).
			Msg("Retention sweep removed expired memories")
	} else {
		m.logger.Debug().Time("cutoff", cutoff).Msg("Retention sweep found nothing to remove")
	}
	return removed, nil
}
