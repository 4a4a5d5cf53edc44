package expo

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// LatestJob returns the most recent job, which the service lists first.
func LatestJob(jobs []Job) (Job, error) {
	if len(jobs) == 0 {
		return Job{}, ErrNoJobs
	}
	return jobs[0], nil
}

// LatestPerPlatform returns the most recent job of each platform whose name
// matches pattern, in first-seen order. Jobs are keyed by artifact extension,
// so platforms without a known extension share one slot and at most one job
// is returned per local file name. An empty pattern matches every platform.
// Patterns use doublestar syntax, e.g. "ios" or "{ios,android}".
func LatestPerPlatform(jobs []Job, pattern string) ([]Job, error) {
	if pattern == "" {
		pattern = "*"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid platform pattern %q", pattern)
	}

	seen := make(map[string]bool)
	var out []Job
	for _, j := range jobs {
		ext := j.Platform.Extension()
		if seen[ext] {
			continue
		}
		ok, err := doublestar.Match(pattern, string(j.Platform))
		if err != nil {
			return nil, fmt.Errorf("match platform pattern %q: %w", pattern, err)
		}
		if !ok {
			continue
		}
		seen[ext] = true
		out = append(out, j)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w (platform pattern %q)", ErrNoJobs, pattern)
	}
	return out, nil
}
