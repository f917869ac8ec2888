package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"log/slog"

	"cmodel/internal/storage"
)

// JobType enumerates supported measurement categories.
type JobType string

const (
	JobMeasure JobType = "measure"
	JobForced  JobType = "forced"
)

// Job represents a single measurement request over one bundle.
type Job struct {
	ID         string
	Type       JobType
	BundlePath string
}

// Result captures the outcome of a Job.
type Result struct {
	Job      Job
	Error    error
	Measured int
	Failed   int
	Records  []storage.MeasurementRecord
}

// Processor executes a job and returns a Result.
type Processor interface {
	Process(ctx context.Context, job Job) Result
}

// Pipeline orchestrates job dispatch across workers.
type Pipeline struct {
	processor Processor
	log       *slog.Logger
	jobs      chan Job
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	stopOnce  sync.Once
	store     *storage.Store
	mu        sync.Mutex
	subs      map[int]chan Result
	nextSubID int
}

// New creates a Pipeline with the given concurrency and processor
// implementation.
func New(ctx context.Context, concurrency int, logger *slog.Logger, store *storage.Store, proc Processor) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pipeline{
		processor: proc,
		log:       logger,
		jobs:      make(chan Job, concurrency*2),
		cancel:    cancel,
		store:     store,
		subs:      make(map[int]chan Result),
	}

	for i := 0; i < concurrency; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	return p
}

// Submit adds a job to the processing queue.
func (p *Pipeline) Submit(job Job) error {
	if p.store != nil {
		_ = p.store.RecordJobQueued(storage.JobRecord{
			ID:     job.ID,
			Status: "queued",
			Source: job.BundlePath,
			Forced: job.Type == JobForced,
		})
	}

	select {
	case p.jobs <- job:
		return nil
	default:
		return errors.New("job queue is full")
	}
}

// Stop signals workers to exit and waits for completion.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		close(p.jobs)
		p.wg.Wait()
		p.mu.Lock()
		for id, ch := range p.subs {
			close(ch)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	})
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			start := time.Now()
			p.log.Info("job started", "type", job.Type, "id", job.ID, "bundle", job.BundlePath)

			if p.store != nil {
				_ = p.store.RecordJobStart(job.ID)
			}
			res := p.processor.Process(ctx, job)
			duration := time.Since(start)

			if res.Error != nil {
				p.log.Error("job failed",
					"type", job.Type,
					"id", job.ID,
					"duration_ms", duration.Milliseconds(),
					"error", res.Error.Error(),
				)
				if p.store != nil {
					_ = p.store.RecordJobResult(job.ID, "failed", res.Measured, res.Error.Error())
				}
			} else {
				p.log.Info("job completed",
					"type", job.Type,
					"id", job.ID,
					"duration_ms", duration.Milliseconds(),
					"measured", res.Measured,
					"failed", res.Failed,
				)
				if p.store != nil {
					_ = p.store.RecordJobResult(job.ID, "completed", res.Measured, "")
				}
			}

			p.broadcast(res)
		}
	}
}

// Subscribe returns a channel for receiving job results and an
// unsubscribe function.
func (p *Pipeline) Subscribe() (<-chan Result, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSubID
	p.nextSubID++
	ch := make(chan Result, 8)
	p.subs[id] = ch
	unsub := func() {
		p.mu.Lock()
		if c, ok := p.subs[id]; ok {
			close(c)
			delete(p.subs, id)
		}
		p.mu.Unlock()
	}
	return ch, unsub
}

func (p *Pipeline) broadcast(res Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- res:
		default:
			// slow subscribers drop results rather than stall workers
		}
	}
}
