package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"contract-analyzer/internal/analysis"
	"contract-analyzer/internal/mail"
	"contract-analyzer/internal/models"
	"contract-analyzer/internal/retry"
	"contract-analyzer/internal/store"
	"contract-analyzer/internal/telemetry"
	"contract-analyzer/internal/trace"
)

// Store is the persistence surface the worker needs. *store.Store
// satisfies it; tests substitute fakes.
type Store interface {
	FetchEligibleJobsWithOwners(ctx context.Context) ([]models.Job, error)
	ClaimJob(ctx context.Context, id string) (bool, error)
	UpdateJob(ctx context.Context, id string, u store.JobUpdate) error
	CreateOrFetchReport(ctx context.Context, existingID *string, create store.ReportCreate) (models.Report, error)
	UpdateReport(ctx context.Context, id string, u store.ReportUpdate) error
}

// DocumentFetcher materializes a job's source document locally.
type DocumentFetcher interface {
	EnsureLocal(ctx context.Context, worker, bucketURL, destDir string) bool
}

// Analyzer runs the structured contract analysis.
type Analyzer interface {
	Run(ctx context.Context, contractText string) (analysis.Output, error)
}

// Mailer delivers review emails.
type Mailer interface {
	SendReviewEmail(ctx context.Context, email mail.ReviewEmail) error
}

// Alerter notifies the operations channel. Delivery is best effort.
type Alerter interface {
	Send(ctx context.Context, message string)
}

// Deps bundles the collaborators shared by every pipeline execution.
// It replaces process-global state: one Deps is built at startup and
// handed to each slot.
type Deps struct {
	Store         Store
	Docs          DocumentFetcher
	Mailer        Mailer
	Alerts        Alerter
	DocumentDir   string
	ReportVersion string
	RetryAttempts int
	RetryDelay    time.Duration
}

// Pipeline advances one claimed job from report creation to a terminal
// status. Each instance runs exactly one job under one worker identity.
type Pipeline struct {
	deps     Deps
	worker   string
	analyzer Analyzer
}

// NewPipeline builds the executor for one dispatched job. The analyzer
// is constructed per dispatch by the scheduler; nil means construction
// failed and the job takes the fail path at the analysis step.
func NewPipeline(deps Deps, worker string, analyzer Analyzer) *Pipeline {
	return &Pipeline{deps: deps, worker: worker, analyzer: analyzer}
}

// Run drives the job through the pipeline:
//
//	report-ready -> document-ready -> analyzed -> report-updated ->
//	notified -> job-updated -> trace persisted
//
// Any failure outside the per-recipient notification step lands the job
// in failed via the single fail path. The returned error mirrors what
// was recorded; callers only log it.
func (p *Pipeline) Run(ctx context.Context, job models.Job) error {
	rec := trace.NewRecorder(job.ID, p.worker)
	rec.Record("Beginning processing for job %s.", job.ID)

	// Step 1: report readiness. A resumed job reuses its report.
	rec.Record("Creating or fetching report for this job.")
	report, err := p.deps.Store.CreateOrFetchReport(ctx, job.ReportID, store.ReportCreate{
		JobID:   job.ID,
		Version: p.deps.ReportVersion,
		Status:  models.StatusQueued,
	})
	if err != nil {
		return p.fail(ctx, rec, job, fmt.Errorf("unable to create/fetch report: %w", err))
	}
	rec.SetReportID(report.ID)

	// Step 2: document acquisition.
	rec.Record("Downloading contract document if not present.")
	if ok := p.deps.Docs.EnsureLocal(ctx, p.worker, job.BucketURL, p.deps.DocumentDir); !ok {
		return p.fail(ctx, rec, job, fmt.Errorf("failed to retrieve contract document"))
	}
	localPath := filepath.Join(p.deps.DocumentDir, job.FileName)
	content, err := os.ReadFile(localPath)
	if err != nil {
		return p.fail(ctx, rec, job, fmt.Errorf("contract document missing after download: %w", err))
	}

	// Step 3: analysis.
	rec.Record("Running contract analysis.")
	if p.analyzer == nil {
		return p.fail(ctx, rec, job, fmt.Errorf("analysis provider unavailable"))
	}
	output, err := p.analyzer.Run(ctx, string(content))
	if err != nil {
		return p.fail(ctx, rec, job, fmt.Errorf("analysis failed: %w", err))
	}

	// Step 4: persist the structured result.
	rec.Record("Updating report with final analysis data.")
	finalReport := output.Report
	if finalReport == nil {
		finalReport = map[string]any{}
	}
	if output.EstimatedCost != nil {
		finalReport["estimated_cost"] = output.EstimatedCost
	}
	err = p.deps.Store.UpdateReport(ctx, report.ID, store.ReportUpdate{
		ContractContent: &output.ContractContent,
		FinalReport:     finalReport,
		Status:          ptr(models.StatusCompleted),
	})
	if err != nil {
		return p.fail(ctx, rec, job, fmt.Errorf("error updating report: %w", err))
	}

	// Step 5: notification. Per-recipient failures are logged into the
	// trace and never abort the pipeline; the analysis is already saved.
	p.notifyRecipients(ctx, rec, job)

	// Step 6: finalize the job row.
	rec.Record("Updating job status to 'completed'.")
	now := time.Now().UTC()
	err = p.deps.Store.UpdateJob(ctx, job.ID, store.JobUpdate{
		Status:          ptr(models.StatusCompleted),
		SendAt:          &now,
		Errors:          map[string]any{},
		ReportID:        &report.ID,
		ReportGenerated: ptr(true),
	})
	if err != nil {
		return p.fail(ctx, rec, job, fmt.Errorf("error updating job: %w", err))
	}

	// Step 7: attach the full trace to the report.
	rec.MarkFinal(models.StatusCompleted)
	rec.Record("Saving final trace to the report.")
	err = p.deps.Store.UpdateReport(ctx, report.ID, store.ReportUpdate{TraceBack: rec.JSON()})
	if err != nil {
		return p.fail(ctx, rec, job, fmt.Errorf("error persisting trace: %w", err))
	}

	rec.Record("Job %s completed successfully.", job.ID)
	return nil
}

func (p *Pipeline) notifyRecipients(ctx context.Context, rec *trace.Recorder, job models.Job) {
	if len(job.Recipients) == 0 {
		rec.Record("No recipients found for this job, skipping email sending.")
		return
	}
	if job.User == nil {
		rec.Record("Job has no resolved owner, skipping email sending.")
		return
	}

	for _, recipient := range job.Recipients {
		email := mail.ReviewEmail{
			SenderName:     job.User.Name,
			SenderEmail:    job.User.Email,
			RecipientName:  recipient.Name,
			RecipientEmail: recipient.Email,
			DocumentLink:   recipient.SigningURL,
			Message:        "Please review and sign this document using DocuInsight.",
			SignatureLine:  job.User.Name,
		}
		err := retry.Do(ctx, "send email", p.worker, p.deps.RetryAttempts, p.deps.RetryDelay, func() error {
			return p.deps.Mailer.SendReviewEmail(ctx, email)
		})
		if err != nil {
			telemetry.EmailFailures.Inc()
			rec.Record("Failed to send email to %s: %v", recipient.Email, err)
			continue
		}
		telemetry.EmailsSent.Inc()
		rec.Record("Email successfully sent to %s.", recipient.Email)
	}
}

// fail is the single failure path: mark the job failed, persist the
// partial trace when a report id is known, and alert. Every sub-step is
// guarded so a secondary failure here is logged, never escalated.
func (p *Pipeline) fail(ctx context.Context, rec *trace.Recorder, job models.Job, cause error) error {
	log.Printf("[%s] Failing job %s: %v", p.worker, job.ID, cause)
	rec.MarkFinal(models.StatusFailed)

	err := p.deps.Store.UpdateJob(ctx, job.ID, store.JobUpdate{
		Status: ptr(models.StatusFailed),
		Errors: map[string]any{"error_message": cause.Error()},
	})
	if err != nil {
		log.Printf("[%s] Failed to mark job %s failed: %v", p.worker, job.ID, err)
	}

	if rec.ReportID != "" {
		err := p.deps.Store.UpdateReport(ctx, rec.ReportID, store.ReportUpdate{TraceBack: rec.JSON()})
		if err != nil {
			log.Printf("[%s] Failed to persist failure trace for report %s: %v", p.worker, rec.ReportID, err)
		}
	}

	p.deps.Alerts.Send(ctx, fmt.Sprintf("Job failed (ID: %s). Reason: %s", job.ID, cause.Error()))
	return cause
}

func ptr[T any](v T) *T {
	return &v
}
