package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"contract-analyzer/internal/models"
)

// ErrNoRowsAffected is returned when an update or delete matched nothing.
// The store confirms every write by affected-row count; silence is failure.
var ErrNoRowsAffected = errors.New("store: no rows affected")

// ErrEmptyUpdate is returned when an update struct has no fields set.
var ErrEmptyUpdate = errors.New("store: no fields provided for update")

// Store wraps pgxpool for Postgres persistence.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const jobColumns = `id, user_id, bucket_url, file_name, report_id, report_generated, recipients, send_at, errors, status, created_at, updated_at`

// FetchEligibleJobsWithOwners returns jobs in queued/failed/retrying and
// joins each to its owning user via one batched lookup rather than one
// query per job.
func (s *Store) FetchEligibleJobsWithOwners(ctx context.Context) ([]models.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs WHERE status = ANY($1)
		ORDER BY created_at
	`, models.EligibleStatuses)
	if err != nil {
		return nil, fmt.Errorf("query eligible jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool, len(jobs))
	userIDs := make([]string, 0, len(jobs))
	for _, j := range jobs {
		if !seen[j.UserID] {
			seen[j.UserID] = true
			userIDs = append(userIDs, j.UserID)
		}
	}

	userRows, err := s.pool.Query(ctx, `
		SELECT id, name, email FROM users WHERE id = ANY($1)
	`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("query job owners: %w", err)
	}
	defer userRows.Close()

	userMap := make(map[string]models.User, len(userIDs))
	for userRows.Next() {
		var u models.User
		if err := userRows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		userMap[u.ID] = u
	}
	if err := userRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	for i := range jobs {
		if u, ok := userMap[jobs[i].UserID]; ok {
			owner := u
			jobs[i].User = &owner
		}
	}
	return jobs, nil
}

// ClaimJob conditionally flips an eligible job to running. It returns
// false without error when another scheduler pass already claimed it.
func (s *Store) ClaimJob(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`, id, models.StatusRunning, models.EligibleStatuses)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// JobUpdate is the set of job columns the pipeline may write. Nil fields
// are left untouched; anything outside this struct cannot be persisted.
type JobUpdate struct {
	ReportID        *string
	ReportGenerated *bool
	SendAt          *time.Time
	Errors          map[string]any
	Status          *string
}

// UpdateJob applies the non-nil fields of u to one job row.
func (s *Store) UpdateJob(ctx context.Context, id string, u JobUpdate) error {
	set := []string{"updated_at = NOW()"}
	args := []any{id}

	add := func(col string, val any) {
		args = append(args, val)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if u.ReportID != nil {
		add("report_id", *u.ReportID)
	}
	if u.ReportGenerated != nil {
		add("report_generated", *u.ReportGenerated)
	}
	if u.SendAt != nil {
		add("send_at", *u.SendAt)
	}
	if u.Errors != nil {
		raw, err := json.Marshal(u.Errors)
		if err != nil {
			return fmt.Errorf("marshal job errors: %w", err)
		}
		add("errors", raw)
	}
	if u.Status != nil {
		add("status", *u.Status)
	}
	if len(set) == 1 {
		return ErrEmptyUpdate
	}

	tag, err := s.pool.Exec(ctx, `UPDATE jobs SET `+joinSet(set)+` WHERE id = $1`, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %s: %w", id, ErrNoRowsAffected)
	}
	return nil
}

// ReportCreate carries the initial fields for a new report row.
type ReportCreate struct {
	JobID   string
	Version string
	Status  string
}

// CreateOrFetchReport returns the existing report when existingID points
// at one, so a resumed job never creates a duplicate. Otherwise it
// inserts a fresh queued report.
func (s *Store) CreateOrFetchReport(ctx context.Context, existingID *string, create ReportCreate) (models.Report, error) {
	if existingID != nil && *existingID != "" {
		report, err := s.getReport(ctx, *existingID)
		if err == nil {
			return report, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return models.Report{}, err
		}
		// Dangling reference: fall through and create a new report.
	}

	if create.Status == "" {
		create.Status = models.StatusQueued
	}
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reports (id, job_id, version, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, id, nilIfEmpty(create.JobID), create.Version, create.Status, now)
	if err != nil {
		return models.Report{}, fmt.Errorf("insert report: %w", err)
	}
	return models.Report{
		ID:        id,
		JobID:     nilIfEmpty(create.JobID),
		Version:   create.Version,
		Status:    create.Status,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *Store) getReport(ctx context.Context, id string) (models.Report, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, job_id, contract_content, final_report, trace_back, version, status, created_at, updated_at
		FROM reports WHERE id = $1
	`, id)

	var r models.Report
	var jobID, content pgtype.Text
	var finalJSON, traceJSON []byte
	if err := row.Scan(&r.ID, &jobID, &content, &finalJSON, &traceJSON, &r.Version, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Report{}, fmt.Errorf("report %s: %w", id, err)
		}
		return models.Report{}, fmt.Errorf("scan report: %w", err)
	}
	if jobID.Valid {
		r.JobID = &jobID.String
	}
	if content.Valid {
		r.ContractContent = content.String
	}
	if len(finalJSON) > 0 {
		if err := json.Unmarshal(finalJSON, &r.FinalReport); err != nil {
			return models.Report{}, fmt.Errorf("unmarshal final_report: %w", err)
		}
	}
	r.TraceBack = traceJSON
	return r, nil
}

// ReportUpdate is the set of report columns the pipeline may write.
type ReportUpdate struct {
	ContractContent *string
	FinalReport     map[string]any
	TraceBack       []byte
	Version         *string
	Status          *string
}

// UpdateReport applies the non-nil fields of u to one report row.
func (s *Store) UpdateReport(ctx context.Context, id string, u ReportUpdate) error {
	set := []string{"updated_at = NOW()"}
	args := []any{id}

	add := func(col string, val any) {
		args = append(args, val)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if u.ContractContent != nil {
		add("contract_content", *u.ContractContent)
	}
	if u.FinalReport != nil {
		raw, err := json.Marshal(u.FinalReport)
		if err != nil {
			return fmt.Errorf("marshal final_report: %w", err)
		}
		add("final_report", raw)
	}
	if u.TraceBack != nil {
		add("trace_back", u.TraceBack)
	}
	if u.Version != nil {
		add("version", *u.Version)
	}
	if u.Status != nil {
		add("status", *u.Status)
	}
	if len(set) == 1 {
		return ErrEmptyUpdate
	}

	tag, err := s.pool.Exec(ctx, `UPDATE reports SET `+joinSet(set)+` WHERE id = $1`, args...)
	if err != nil {
		return fmt.Errorf("update report %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update report %s: %w", id, ErrNoRowsAffected)
	}
	return nil
}

// CreateJobParams collects inputs required to insert a job via the API.
type CreateJobParams struct {
	UserID     string
	BucketURL  string
	FileName   string
	Recipients []models.Recipient
}

// CreateJob inserts a queued job row.
func (s *Store) CreateJob(ctx context.Context, p CreateJobParams) (models.Job, error) {
	recipientsJSON, err := json.Marshal(p.Recipients)
	if err != nil {
		return models.Job{}, fmt.Errorf("marshal recipients: %w", err)
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (id, user_id, bucket_url, file_name, report_generated, recipients, errors, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, '{}', $6, $7, $7)
	`, id, p.UserID, p.BucketURL, p.FileName, recipientsJSON, models.StatusQueued, now)
	if err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}

	return models.Job{
		ID:         id,
		UserID:     p.UserID,
		BucketURL:  p.BucketURL,
		FileName:   p.FileName,
		Recipients: p.Recipients,
		Errors:     map[string]any{},
		Status:     models.StatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Job{}, fmt.Errorf("job not found: %w", err)
		}
		return models.Job{}, err
	}
	return job, nil
}

// MarkCanceled sets a job to canceled unless it already reached a
// terminal state.
func (s *Store) MarkCanceled(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($3, $4)
	`, id, models.StatusCanceled, models.StatusCompleted, models.StatusFailed)
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("cancel job %s: %w", id, ErrNoRowsAffected)
	}
	return nil
}

// GetDocument fetches a document metadata row by id.
func (s *Store) GetDocument(ctx context.Context, id string) (models.Document, error) {
	var d models.Document
	err := s.pool.QueryRow(ctx, `
		SELECT id, bucket, file_name, created_at FROM documents WHERE id = $1
	`, id).Scan(&d.ID, &d.Bucket, &d.FileName, &d.CreatedAt)
	if err != nil {
		return models.Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	return d, nil
}

// DeleteDocumentRecord removes a document metadata row. Callers must
// delete the backing object first; see docstore.Purge.
func (s *Store) DeleteDocumentRecord(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete document %s: %w", id, ErrNoRowsAffected)
	}
	return nil
}

func scanJob(row pgx.Row) (models.Job, error) {
	var job models.Job
	var reportID pgtype.Text
	var sendAt pgtype.Timestamptz
	var recipientsJSON, errorsJSON []byte

	err := row.Scan(&job.ID, &job.UserID, &job.BucketURL, &job.FileName, &reportID,
		&job.ReportGenerated, &recipientsJSON, &sendAt, &errorsJSON, &job.Status,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return models.Job{}, err
	}
	if reportID.Valid {
		job.ReportID = &reportID.String
	}
	if sendAt.Valid {
		t := sendAt.Time
		job.SendAt = &t
	}
	if len(recipientsJSON) > 0 {
		if err := json.Unmarshal(recipientsJSON, &job.Recipients); err != nil {
			return models.Job{}, fmt.Errorf("unmarshal recipients: %w", err)
		}
	}
	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &job.Errors); err != nil {
			return models.Job{}, fmt.Errorf("unmarshal errors: %w", err)
		}
	}
	return job, nil
}

func joinSet(set []string) string {
	out := set[0]
	for _, s := range set[1:] {
		out += ", " + s
	}
	return out
}

func nilIfEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
