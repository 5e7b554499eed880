// Package trace records the ordered diagnostic log of one pipeline
// execution. The recorder buffers entries in memory and is flushed to
// the report exactly twice per job: once on success and once on failure.
package trace

import (
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// Entry is one recorded pipeline step.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
}

// Recorder accumulates trace entries for a single job execution. It is
// owned by exactly one pipeline run and is not safe for concurrent use.
type Recorder struct {
	JobID    string  `json:"job_id"`
	WorkerID string  `json:"worker_id"`
	ReportID string  `json:"report_id,omitempty"`
	Final    string  `json:"final_state,omitempty"`
	Steps    []Entry `json:"steps"`
}

// NewRecorder starts a trace for one job under one worker identity.
func NewRecorder(jobID, workerID string) *Recorder {
	return &Recorder{JobID: jobID, WorkerID: workerID}
}

// Record appends a timestamped entry and mirrors it to the process log.
func (r *Recorder) Record(format string, args ...any) {
	r.RecordData(nil, format, args...)
}

// RecordData is Record with an attached data payload.
func (r *Recorder) RecordData(data any, format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", r.WorkerID, fmt.Sprintf(format, args...))
	r.Steps = append(r.Steps, Entry{
		Timestamp: time.Now().UTC(),
		Message:   msg,
		Data:      data,
	})
	log.Print(msg)
}

// SetReportID notes the report this trace will be attached to.
func (r *Recorder) SetReportID(id string) {
	r.ReportID = id
}

// MarkFinal records the terminal state of the execution.
func (r *Recorder) MarkFinal(state string) {
	r.Final = state
}

// JSON serializes the full trace for persistence in reports.trace_back.
func (r *Recorder) JSON() []byte {
	raw, err := json.Marshal(r)
	if err != nil {
		// A trace is plain data; marshaling only fails if an entry
		// carries an unserializable payload. Degrade instead of losing
		// the whole trace.
		raw, _ = json.Marshal(map[string]string{
			"job_id":    r.JobID,
			"worker_id": r.WorkerID,
			"error":     fmt.Sprintf("trace serialization failed: %v", err),
		})
	}
	return raw
}
