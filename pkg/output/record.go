// Package output provides JSONL output for build status results.
//
// Output is structured as typed record envelopes containing jobs, poll
// ticks, wait results, downloads and errors. Each line is a self-contained
// JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: expobuild.<type>.v<version>
const (
	// TypeJob identifies build job records.
	TypeJob = "expobuild.job.v1"

	// TypePoll identifies wait loop tick records.
	TypePoll = "expobuild.poll.v1"

	// TypeResult identifies terminal wait or lookup records.
	TypeResult = "expobuild.result.v1"

	// TypeDownload identifies artifact download records.
	TypeDownload = "expobuild.download.v1"

	// TypeError identifies error records.
	TypeError = "expobuild.error.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field.
type Record struct {
	// Type identifies the record type (e.g., "expobuild.job.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID correlates every record emitted by one command invocation.
	RunID string `json:"run_id"`

	// Project is the project label ("@owner/slug" or the name).
	Project string `json:"project"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// JobRecord is the data payload for a build job.
type JobRecord struct {
	ID                 string `json:"id"`
	Platform           string `json:"platform"`
	Status             string `json:"status"`
	ArtifactURL        string `json:"artifact_url,omitempty"`
	FullExperienceName string `json:"full_experience_name,omitempty"`
	CreatedAt          string `json:"created_at,omitempty"`
}

// PollRecord is the data payload for one non-terminal poll of the wait loop.
type PollRecord struct {
	Attempt int    `json:"attempt"`
	JobID   string `json:"job_id,omitempty"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`

	// NextIn is the pause before the next poll.
	NextIn time.Duration `json:"next_in_ns"`
}

// ResultRecord is the data payload for a terminal outcome.
type ResultRecord struct {
	// Outcome is succeeded, aborted, timed_out, or for status checks
	// idle/building.
	Outcome     string        `json:"outcome"`
	JobID       string        `json:"job_id,omitempty"`
	Status      string        `json:"status,omitempty"`
	ArtifactURL string        `json:"artifact_url,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	Polls       int           `json:"polls,omitempty"`
	Elapsed     time.Duration `json:"elapsed_ns,omitempty"`
}

// DownloadRecord is the data payload for one artifact download.
type DownloadRecord struct {
	JobID    string `json:"job_id"`
	Platform string `json:"platform"`
	URL      string `json:"url,omitempty"`
	Path     string `json:"path,omitempty"`
	Bytes    int64  `json:"bytes"`

	// Location is where the artifact was mirrored, if anywhere.
	Location string `json:"location,omitempty"`
}

// ErrorRecord is the data payload for errors.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// JobID is the job related to this error, if applicable.
	JobID string `json:"job_id,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
