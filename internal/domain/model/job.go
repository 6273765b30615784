package model

import (
	"strings"
	"time"
)

// JobStatus is the remote batch service's job state. The service is not
// consistent about casing or even the exact word it uses for success, so
// statuses are normalized to lower case on entry and compared with Is.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusValidating JobStatus = "validating"
	JobStatusRunning    JobStatus = "running"
	JobStatusSuccess    JobStatus = "success"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusUnknown    JobStatus = "unknown"
)

// NormalizeStatus maps a raw remote status string onto the local vocabulary.
func NormalizeStatus(raw string) JobStatus {
	return JobStatus(strings.ToLower(strings.TrimSpace(raw)))
}

// Is compares statuses case-insensitively.
func (s JobStatus) Is(other JobStatus) bool {
	return strings.EqualFold(string(s), string(other))
}

// Terminal reports whether no further transition is expected from polling.
func (s JobStatus) Terminal() bool {
	switch NormalizeStatus(string(s)) {
	case JobStatusSuccess, JobStatusCompleted, JobStatusSucceeded,
		JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// SkipRefresh reports whether re-querying the remote service for this
// status is wasted work: terminal-success states cannot change, and a
// pending job has not started remote processing yet.
func (s JobStatus) SkipRefresh() bool {
	switch NormalizeStatus(string(s)) {
	case JobStatusSuccess, JobStatusCompleted, JobStatusSucceeded, JobStatusPending:
		return true
	}
	return false
}

// Job is the local record of one remote batch job. Exactly one Document
// owns it. ID is the remote service's opaque identifier.
type Job struct {
	ID            string
	DocumentID    string
	Status        JobStatus
	FileCount     int
	SubmittedAt   time.Time
	CompletedAt   *time.Time
	LastRefreshAt *time.Time
	// RawResponse holds the last remote payload verbatim for diagnostics.
	RawResponse []byte
}

// ApplyRemote overwrites the job from a fresh remote read. A fresher remote
// read always wins, including forcing cancelled over a terminal local state;
// callers must never feed a stale local read back through this.
func (j *Job) ApplyRemote(status JobStatus, raw []byte, at time.Time) {
	j.Status = NormalizeStatus(string(status))
	j.RawResponse = raw
	j.LastRefreshAt = &at
	if j.Status.Terminal() && j.CompletedAt == nil {
		t := at
		j.CompletedAt = &t
	}
}

// Document groups the jobs produced by one logical submission name.
// Immutable after creation; "most recent by name" resolution picks the
// latest CreatedAt deterministically.
type Document struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// ValidateJobID rejects ids that could never have come from the remote
// service before any network round trip is spent on them.
func ValidateJobID(id string) bool {
	if id == "" {
		return false
	}
	return !strings.ContainsAny(id, " \t\n\r")
}
