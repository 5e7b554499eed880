package models

import (
	"errors"
	"time"
)

// Job and report statuses persisted in Postgres (shared job_status enum).
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
	StatusRetrying  = "retrying"
)

// EligibleStatuses are the job statuses the scheduler will dispatch.
// running/completed/canceled jobs are never picked up.
var EligibleStatuses = []string{StatusQueued, StatusFailed, StatusRetrying}

// Job is one queued request to analyze a document and notify recipients.
type Job struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	BucketURL       string         `json:"bucket_url"`
	FileName        string         `json:"file_name"`
	ReportID        *string        `json:"report_id,omitempty"`
	ReportGenerated bool           `json:"report_generated"`
	Recipients      []Recipient    `json:"recipients"`
	SendAt          *time.Time     `json:"send_at,omitempty"`
	Errors          map[string]any `json:"errors,omitempty"`
	Status          string         `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`

	// User is the owning user, joined in by FetchEligibleJobsWithOwners.
	User *User `json:"user,omitempty"`
}

// Recipient is one party that receives a review email for a job.
type Recipient struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	SigningURL string `json:"signing_url"`
}

// User is the owner of a job.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Report is the durable analysis output and execution trace for one job.
// At most one report exists per job.
type Report struct {
	ID              string         `json:"id"`
	JobID           *string        `json:"job_id,omitempty"`
	ContractContent string         `json:"contract_content"`
	FinalReport     map[string]any `json:"final_report,omitempty"`
	TraceBack       []byte         `json:"trace_back,omitempty"`
	Version         string         `json:"version"`
	Status          string         `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Document is the metadata row for an uploaded contract artifact.
type Document struct {
	ID        string    `json:"id"`
	Bucket    string    `json:"bucket"`
	FileName  string    `json:"file_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the fields a job needs before it can be processed.
func (j Job) Validate() error {
	if j.UserID == "" {
		return errors.New("job requires user_id")
	}
	if j.BucketURL == "" {
		return errors.New("job requires bucket_url")
	}
	if j.FileName == "" {
		return errors.New("job requires file_name")
	}
	for _, r := range j.Recipients {
		if r.Email == "" {
			return errors.New("recipient requires email")
		}
	}
	return nil
}
