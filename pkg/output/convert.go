package output

import (
	"github.com/3leaps/expobuild/pkg/expo"
)

// NewJobRecord converts a build job into its record payload.
func NewJobRecord(job expo.Job) *JobRecord {
	return &JobRecord{
		ID:                 job.ID,
		Platform:           string(job.Platform),
		Status:             string(job.Status),
		ArtifactURL:        job.ArtifactURL(),
		FullExperienceName: job.FullExperienceName,
		CreatedAt:          job.CreatedAt,
	}
}

// NewPollRecord converts a wait loop tick into its record payload.
func NewPollRecord(tick expo.PollTick) *PollRecord {
	rec := &PollRecord{Attempt: tick.Attempt, NextIn: tick.NextIn}
	if tick.Job != nil {
		rec.JobID = tick.Job.ID
		rec.Status = string(tick.Job.Status)
	}
	if tick.Err != nil {
		rec.Error = tick.Err.Error()
	}
	return rec
}

// NewResultRecord converts a wait result into its record payload.
func NewResultRecord(res *expo.PollResult) *ResultRecord {
	rec := &ResultRecord{
		Outcome: string(res.Outcome),
		Reason:  res.Reason,
		Polls:   res.Polls,
		Elapsed: res.Elapsed,
	}
	if res.Job != nil {
		rec.JobID = res.Job.ID
		rec.Status = string(res.Job.Status)
		rec.ArtifactURL = res.Job.ArtifactURL()
	}
	return rec
}

// NewErrorRecord classifies err into an error record payload.
func NewErrorRecord(err error) *ErrorRecord {
	return &ErrorRecord{Code: expo.Classify(err), Message: err.Error()}
}
