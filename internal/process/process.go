package process

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"reelsaver/server/internal/ingest"
)

const defaultProgressInterval = 30 * time.Second

// Ingester runs one reel through the ingest pipeline.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// Failure records a request that could not be ingested.
type Failure struct {
	Index int // position in the submitted batch
	URL   string
	Err   error
}

// Stats summarizes a bulk run.
type Stats struct {
	Created  int64
	Existing int64
	Failed   int64
}

type job struct {
	index int
	req   ingest.Request
}

// BulkIngester handles parallel ingestion of many reels
type BulkIngester struct {
	ingester    Ingester
	WorkerCount int

	workerWg      sync.WaitGroup
	created       atomic.Int64
	existing      atomic.Int64
	failed        atomic.Int64
	activeWorkers atomic.Int32

	mu       sync.Mutex
	failures []Failure

	progressInterval time.Duration
}

// NewBulkIngester creates a bulk ingester on top of a pipeline.
func NewBulkIngester(ingester Ingester, workerCount int) (*BulkIngester, error) {
	if ingester == nil {
		return nil, errors.New("ingester cannot be nil")
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	return &BulkIngester{
		ingester:         ingester,
		WorkerCount:      workerCount,
		progressInterval: defaultProgressInterval,
	}, nil
}

// Run ingests reqs with WorkerCount workers and waits for all of them.
// Per-reel failures are counted and kept in Failures, not returned. A
// cancelled context stops queueing and Run returns its error once the
// in-flight reels have finished.
func (p *BulkIngester) Run(ctx context.Context, reqs []ingest.Request) error {
	queue := make(chan job, p.WorkerCount*2)

	progressCtx, stopProgress := context.WithCancel(ctx)
	defer stopProgress()
	go p.logProgress(progressCtx, len(reqs), queue)

	for i := 0; i < p.WorkerCount; i++ {
		p.workerWg.Add(1)
		go p.worker(ctx, queue)
	}

	var queueErr error
queueLoop:
	for i, req := range reqs {
		select {
		case queue <- job{index: i, req: req}:
		case <-ctx.Done():
			log.Info().
				Err(ctx.Err()).
				Int("queued", i).
				Msg("Context cancelled during reel queuing")
			queueErr = ctx.Err()
			break queueLoop
		}
	}
	// Signal that no more reels will be added.
	close(queue)

	p.workerWg.Wait()

	s := p.Stats()
	log.Info().
		Int64("created", s.Created).
		Int64("existing", s.Existing).
		Int64("failed", s.Failed).
		Msg("Bulk ingest complete")

	if queueErr != nil {
		return fmt.Errorf("bulk ingest interrupted: %w", queueErr)
	}
	return nil
}

// worker receives jobs and runs them through the pipeline.
func (p *BulkIngester) worker(ctx context.Context, queue <-chan job) {
	defer p.workerWg.Done()
	p.activeWorkers.Add(1)
	defer p.activeWorkers.Add(-1)

	for j := range queue {
		if ctx.Err() != nil {
			p.recordFailure(j, ctx.Err())
			continue
		}

		res, err := p.ingester.Ingest(ctx, j.req)
		if err != nil {
			log.Warn().
				Err(err).
				Int("index", j.index).
				Str("url", j.req.URL).
				Msg("Failed to ingest reel")
			p.recordFailure(j, err)
			continue
		}

		switch res.Outcome {
		case ingest.OutcomeExists:
			p.existing.Add(1)
		default:
			p.created.Add(1)
			log.Info().
				Int("index", j.index).
				Str("url", j.req.URL).
				Str("filename", res.Filename).
				Msg("Reel imported")
		}
	}
}

func (p *BulkIngester) recordFailure(j job, err error) {
	p.failed.Add(1)
	p.mu.Lock()
	p.failures = append(p.failures, Failure{Index: j.index, URL: j.req.URL, Err: err})
	p.mu.Unlock()
}

func (p *BulkIngester) logProgress(ctx context.Context, total int, queue chan job) {
	ticker := time.NewTicker(p.progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s := p.Stats()
			log.Info().
				Int("total", total).
				Int64("created", s.Created).
				Int64("existing", s.Existing).
				Int64("failed", s.Failed).
				Int32("active_workers", p.activeWorkers.Load()).
				Int("queue_size", len(queue)).
				Msg("Import progress")
		case <-ctx.Done():
			return
		}
	}
}

// Stats returns the counters accumulated so far.
func (p *BulkIngester) Stats() Stats {
	return Stats{
		Created:  p.created.Load(),
		Existing: p.existing.Load(),
		Failed:   p.failed.Load(),
	}
}

// Failures returns the failed requests ordered by batch position.
func (p *BulkIngester) Failures() []Failure {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Failure, len(p.failures))
	copy(out, p.failures)
	slices.SortFunc(out, func(a, b Failure) int { return cmp.Compare(a.Index, b.Index) })
	return out
}
