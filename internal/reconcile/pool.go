// Package reconcile matches scraped photo records against assets already
// present on the destination server, so re-uploads can be skipped and
// album membership can be rebuilt from what is actually there.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"immichporter/pkg/immich"
	"immichporter/pkg/logger"
	"immichporter/pkg/ratelimit"
	"immichporter/pkg/store"
)

// Job is one photo row to match
type Job struct {
	Photo store.Photo
}

// Result is the outcome of matching one photo
type Result struct {
	Photo store.Photo
	// Match is set when exactly one asset satisfied the query
	Match *store.AssetMatch
	// Candidates is how many assets the query returned
	Candidates int
	Error      error
	Duration   time.Duration
}

// AssetSearcher finds assets on the destination server
type AssetSearcher interface {
	SearchAssets(ctx context.Context, filename string, after, before *time.Time) ([]immich.Asset, error)
}

// WorkerPool runs concurrent asset lookups
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	client      AssetSearcher
	rateLimiter ratelimit.Limiter
	logger      logger.Logger
}

// NewWorkerPool creates a matching pool
func NewWorkerPool(numWorkers int, client AssetSearcher, rateLimiter ratelimit.Limiter, log logger.Logger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	if log == nil {
		log = logger.GetLogger()
	}

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		client:      client,
		rateLimiter: rateLimiter,
		logger:      log,
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.logger.InfoWithFields("starting reconcile pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the job queue, drains the workers and closes the result
// queue
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()
	wp.logger.Info("reconcile pool stopped")
}

// Submit queues one photo for matching
func (wp *WorkerPool) Submit(job Job) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("reconcile pool is shutting down")
	}
}

// Results returns the channel the outcomes arrive on
func (wp *WorkerPool) Results() <-chan Result {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		select {
		case <-wp.ctx.Done():
			return
		default:
		}

		result := wp.processJob(job, id)

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			return
		}
	}
}

// processJob runs one metadata search. A photo matches only when the
// query comes back with exactly one asset: zero means not uploaded yet,
// several means the filename plus window is not selective enough to
// trust.
func (wp *WorkerPool) processJob(job Job, workerID int) Result {
	start := time.Now()
	result := Result{Photo: job.Photo}

	if !wp.rateLimiter.Allow() {
		wp.rateLimiter.Wait()
	}

	var after, before *time.Time
	if job.Photo.DateTaken != nil {
		a, b := immich.TakenWindow(*job.Photo.DateTaken)
		after, before = &a, &b
	}

	assets, err := wp.client.SearchAssets(wp.ctx, job.Photo.Filename, after, before)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = fmt.Errorf("asset search failed: %w", err)
		wp.logger.ErrorWithFields("worker failed to search assets", map[string]interface{}{
			"worker_id": workerID,
			"filename":  job.Photo.Filename,
			"error":     err.Error(),
		})
		return result
	}

	result.Candidates = len(assets)
	switch len(assets) {
	case 0:
		wp.logger.DebugWithFields("no asset for photo", map[string]interface{}{
			"worker_id": workerID,
			"filename":  job.Photo.Filename,
		})
	case 1:
		result.Match = &store.AssetMatch{
			PhotoID:  job.Photo.ID,
			ImmichID: assets[0].ID,
		}
		wp.logger.DebugWithFields("photo matched to asset", map[string]interface{}{
			"worker_id": workerID,
			"filename":  job.Photo.Filename,
			"asset_id":  assets[0].ID,
		})
	default:
		wp.logger.WarnWithFields("ambiguous asset match skipped", map[string]interface{}{
			"worker_id":  workerID,
			"filename":   job.Photo.Filename,
			"candidates": len(assets),
		})
	}

	return result
}
