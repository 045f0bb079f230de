package reconcile

import (
	"context"
	"time"

	"immichporter/pkg/config"
	"immichporter/pkg/logger"
	"immichporter/pkg/ratelimit"
	"immichporter/pkg/store"
)

// MatchStore is the slice of the record store the reconciler needs
type MatchStore interface {
	PhotosWithoutAsset(ctx context.Context) ([]store.Photo, error)
	ApplyMatches(ctx context.Context, matches []store.AssetMatch) error
}

// Summary reports one reconcile run
type Summary struct {
	Scanned   int
	Matched   int
	Unmatched int
	Ambiguous int
	Errors    int
}

// Reconciler feeds unmatched photos through the pool and writes matches
// back in batches.
type Reconciler struct {
	store  MatchStore
	client AssetSearcher
	cfg    *config.ReconcileConfig
	log    logger.Logger
}

func New(st MatchStore, client AssetSearcher, cfg *config.ReconcileConfig, log logger.Logger) *Reconciler {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Reconciler{store: st, client: client, cfg: cfg, log: log}
}

// Run matches every photo without an asset id. Matches are flushed to
// the store in batches, each batch as one transaction, so an interrupted
// run keeps everything flushed so far.
func (r *Reconciler) Run(ctx context.Context) (*Summary, error) {
	photos, err := r.store.PhotosWithoutAsset(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Scanned: len(photos)}
	if len(photos) == 0 {
		r.log.Info("nothing to reconcile")
		return summary, nil
	}

	limiter := ratelimit.NewTokenBucket(r.cfg.RequestsPerMinute, time.Minute)
	pool := NewWorkerPool(r.cfg.Workers, r.client, limiter, r.log)
	pool.Start()

	go func() {
		defer pool.Stop()
		for _, photo := range photos {
			if ctx.Err() != nil {
				return
			}
			if err := pool.Submit(Job{Photo: photo}); err != nil {
				return
			}
		}
	}()

	batch := make([]store.AssetMatch, 0, r.cfg.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.store.ApplyMatches(ctx, batch); err != nil {
			return err
		}
		r.log.InfoWithFields("matches applied", map[string]interface{}{
			"count": len(batch),
		})
		batch = batch[:0]
		return nil
	}

	for result := range pool.Results() {
		switch {
		case result.Error != nil:
			summary.Errors++
		case result.Match != nil:
			summary.Matched++
			batch = append(batch, *result.Match)
			if len(batch) >= r.cfg.BatchSize {
				if err := flush(); err != nil {
					return summary, err
				}
			}
		case result.Candidates > 1:
			summary.Ambiguous++
		default:
			summary.Unmatched++
		}
	}
	if err := flush(); err != nil {
		return summary, err
	}

	r.log.InfoWithFields("reconcile run finished", map[string]interface{}{
		"scanned":   summary.Scanned,
		"matched":   summary.Matched,
		"unmatched": summary.Unmatched,
		"ambiguous": summary.Ambiguous,
		"errors":    summary.Errors,
	})

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}
