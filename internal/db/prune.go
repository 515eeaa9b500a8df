package db

import (
	"context"
	"fmt"
	"time"
)

// RetentionPolicy controls ledger cleanup.
type RetentionPolicy struct {
	KeepLast int
	KeepDays int
}

// PruneResult summarizes a prune operation.
type PruneResult struct {
	Considered int
	Kept       int
	Deleted    int
}

// PruneSweeps deletes old sweep rows with their runs and events. Running
// sweeps are always kept. Run records on disk are left alone.
func (s *Store) PruneSweeps(ctx context.Context, policy RetentionPolicy, dryRun bool) (PruneResult, error) {
	if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
		return PruneResult{}, nil
	}
	cutoff := time.Time{}
	if policy.KeepDays > 0 {
		cutoff = s.now().UTC().Add(-time.Duration(policy.KeepDays) * 24 * time.Hour)
	}
	sweeps, err := s.ListSweeps(ctx, 0)
	if err != nil {
		return PruneResult{}, err
	}

	res := PruneResult{Considered: len(sweeps)}
	for idx, sw := range sweeps {
		keep := sw.Status == SweepRunning
		if !keep && policy.KeepLast > 0 && idx < policy.KeepLast {
			keep = true
		}
		if !keep && policy.KeepDays > 0 && (sw.CreatedAt.IsZero() || sw.CreatedAt.After(cutoff)) {
			keep = true
		}
		if keep {
			res.Kept++
			continue
		}
		if !dryRun {
			if _, err := s.db.ExecContext(ctx, `DELETE FROM sweeps WHERE sweep_id=?`, sw.ID); err != nil {
				return res, fmt.Errorf("delete sweep %s: %w", sw.ID, err)
			}
		}
		res.Deleted++
	}
	return res, nil
}
