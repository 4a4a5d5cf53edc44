// Package expo talks to the Expo build status API: it fetches job lists,
// waits for builds to finish, and resolves which artifact to fetch.
package expo

// Platform is the build target of a job.
type Platform string

// Known platforms. Any other value is carried through unchanged.
const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// UnknownExtension is the file extension used for unmapped platforms.
const UnknownExtension = "unknown"

// Extension returns the artifact file extension for the platform.
// The mapping is total: unmapped platforms yield UnknownExtension.
func (p Platform) Extension() string {
	switch p {
	case PlatformIOS:
		return "ipa"
	case PlatformAndroid:
		return "apk"
	default:
		return UnknownExtension
	}
}

// Status is the server-reported state of a job. The set is open.
type Status string

// Known statuses. Anything else is treated as unknown and never retried.
const (
	StatusFinished   Status = "finished"
	StatusInProgress Status = "in-progress"
)

// Known reports whether s is one of the statuses the poll engine understands.
func (s Status) Known() bool {
	return s == StatusFinished || s == StatusInProgress
}

// Artifacts describes a job's downloadable output.
type Artifacts struct {
	URL string `json:"url,omitempty"`
}

// Job is one build tracked by the remote service.
type Job struct {
	ID                 string     `json:"id"`
	Platform           Platform   `json:"platform"`
	Status             Status     `json:"status"`
	Artifacts          *Artifacts `json:"artifacts,omitempty"`
	FullExperienceName string     `json:"fullExperienceName,omitempty"`
	CreatedAt          string     `json:"createdAt,omitempty"`
}

// ArtifactURL returns the artifact URL, or "" when the job carries none.
func (j Job) ArtifactURL() string {
	if j.Artifacts == nil {
		return ""
	}
	return j.Artifacts.URL
}

// HasArtifact reports whether the job carries a downloadable URL.
func (j Job) HasArtifact() bool {
	return j.ArtifactURL() != ""
}

// StatusResponse is the decoded body of a status request. Jobs are in server
// order; the first is the most recent.
type StatusResponse struct {
	Jobs []Job `json:"jobs"`

	// Err carries an application error reported inside a successful response.
	Err string `json:"err,omitempty"`
}

// InProgress reports whether any job is still building.
func (r *StatusResponse) InProgress() bool {
	for _, j := range r.Jobs {
		if j.Status == StatusInProgress {
			return true
		}
	}
	return false
}
