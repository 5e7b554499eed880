package worker

import (
	"context"
	"fmt"
	"log"
	"sync"

	"contract-analyzer/internal/models"
	"contract-analyzer/internal/telemetry"
)

// DefaultMaxWorkers caps the concurrent execution slots of one pass.
const DefaultMaxWorkers = 8

// AnalyzerFactory constructs a fresh analysis client. The scheduler
// calls it once per dispatched job so concurrent pipelines never share
// provider-side connection or rate-limit state.
type AnalyzerFactory func() (Analyzer, error)

// Scheduler fetches eligible jobs and dispatches them across a bounded
// pool of execution slots. One call to RunOnce is one pass: fetch,
// process, return. External scheduling triggers the next pass.
type Scheduler struct {
	deps        Deps
	newAnalyzer AnalyzerFactory
	maxWorkers  int
	identities  *identityRegistry
}

// NewScheduler builds a scheduler over the shared dependency set.
func NewScheduler(deps Deps, newAnalyzer AnalyzerFactory, maxWorkers int) *Scheduler {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	return &Scheduler{
		deps:        deps,
		newAnalyzer: newAnalyzer,
		maxWorkers:  maxWorkers,
		identities:  newIdentityRegistry(),
	}
}

// RunOnce processes every currently eligible job and waits for all of
// them to finish. A failure inside one job's pipeline never aborts its
// siblings; the scheduler only logs per-job outcomes.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	jobs, err := s.deps.Store.FetchEligibleJobsWithOwners(ctx)
	if err != nil {
		return fmt.Errorf("fetch eligible jobs: %w", err)
	}
	telemetry.EligibleGauge.Set(float64(len(jobs)))
	if len(jobs) == 0 {
		log.Printf("[MAIN] No jobs pending.")
		return nil
	}

	slots := min(s.maxWorkers, len(jobs))
	log.Printf("[MAIN] Dispatching %d job(s) across %d slot(s).", len(jobs), slots)

	jobCh := make(chan models.Job)
	var wg sync.WaitGroup
	for slot := 0; slot < slots; slot++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			worker := s.identities.For(slot)
			for job := range jobCh {
				s.runJob(ctx, worker, job)
			}
		}(slot)
	}

	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)
	wg.Wait()
	return nil
}

// runJob claims and executes a single job, absorbing panics so one
// misbehaving pipeline cannot take down sibling slots.
func (s *Scheduler) runJob(ctx context.Context, worker string, job models.Job) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.JobsFailed.Inc()
			log.Printf("[%s] Job %s panicked: %v", worker, job.ID, r)
		}
	}()

	claimed, err := s.deps.Store.ClaimJob(ctx, job.ID)
	if err != nil {
		log.Printf("[%s] Failed to claim job %s: %v", worker, job.ID, err)
		return
	}
	if !claimed {
		log.Printf("[%s] Job %s already claimed elsewhere, skipping.", worker, job.ID)
		return
	}

	telemetry.InFlightGauge.Inc()
	defer telemetry.InFlightGauge.Dec()

	analyzer, err := s.newAnalyzer()
	if err != nil {
		// The pipeline fails the job at its analysis step.
		log.Printf("[%s] Failed to construct analyzer for job %s: %v", worker, job.ID, err)
		analyzer = nil
	}

	pipeline := NewPipeline(s.deps, worker, analyzer)
	if err := pipeline.Run(ctx, job); err != nil {
		telemetry.JobsFailed.Inc()
		log.Printf("[%s] Job %s failed: %v", worker, job.ID, err)
		return
	}
	telemetry.JobsCompleted.Inc()
}
