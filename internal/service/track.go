package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/infobloxopen/cq-source-bulk/internal/operation"
)

// TrackAll tracks ops concurrently, at most Config.Concurrency at a time. The
// first failure cancels the remaining waits and is returned. Statuses are
// returned in the order of ops.
func (m *Manager) TrackAll(ctx context.Context, ops []*operation.Operation, progress func(*operation.Operation, operation.Status)) ([]*operation.Status, error) {
	statuses := make([]*operation.Status, len(ops))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)
	for i, op := range ops {
		g.Go(func() error {
			var pf operation.ProgressFunc
			if progress != nil {
				pf = func(s operation.Status) { progress(op, s) }
			}
			s, err := op.Track(gctx, pf)
			if err != nil {
				return err
			}
			statuses[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return statuses, err
	}
	return statuses, nil
}
