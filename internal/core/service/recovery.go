package service

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yndnr/pairmesh-go/internal/core/domain"
)

// RecoveryReport summarizes a RecoverAll run.
type RecoveryReport struct {
	Total   int
	Started int
	Skipped int
	Failed  int
	Elapsed time.Duration
}

// RecoverAll starts every identity with active stored credentials that is
// not already live. One identity failing never stops the others.
func (s *Supervisor) RecoverAll(ctx context.Context) (RecoveryReport, error) {
	start := time.Now()

	ids, err := s.cfg.Store.ListActive(ctx)
	if err != nil {
		s.logger.Error("session recovery aborted: could not list stored sessions", "error", err)
		return RecoveryReport{}, err
	}

	var (
		started atomic.Int64
		skipped atomic.Int64
		failed  atomic.Int64
	)

	var g errgroup.Group
	g.SetLimit(s.cfg.RecoveryConcurrency)

	for _, id := range ids {
		if s.registry.Has(id) {
			skipped.Add(1)
			continue
		}

		g.Go(func() error {
			status, err := s.Start(ctx, id)
			switch {
			case err != nil:
				failed.Add(1)
				s.logger.Error("session recovery failed", "identity", id, "error", err)
			case status == domain.StatusAlreadyConnected:
				skipped.Add(1)
			default:
				started.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := RecoveryReport{
		Total:   len(ids),
		Started: int(started.Load()),
		Skipped: int(skipped.Load()),
		Failed:  int(failed.Load()),
		Elapsed: time.Since(start),
	}

	s.logger.Info("session recovery completed",
		"total", report.Total,
		"started", report.Started,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"elapsed", report.Elapsed)

	return report, nil
}
