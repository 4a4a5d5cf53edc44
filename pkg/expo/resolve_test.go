package expo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestJob(t *testing.T) {
	_, err := LatestJob(nil)
	require.Error(t, err)
	assert.True(t, IsNoJobs(err))

	_, err = LatestJob([]Job{})
	assert.True(t, IsNoJobs(err))

	job, err := LatestJob([]Job{{ID: "first"}, {ID: "second"}})
	require.NoError(t, err)
	assert.Equal(t, "first", job.ID)
}

func TestLatestPerPlatform(t *testing.T) {
	jobs := []Job{
		{ID: "a1", Platform: PlatformAndroid},
		{ID: "i1", Platform: PlatformIOS},
		{ID: "a2", Platform: PlatformAndroid},
		{ID: "w1", Platform: "web"},
	}

	tests := []struct {
		name    string
		pattern string
		want    []string
		wantErr bool
	}{
		{name: "default matches all", pattern: "", want: []string{"a1", "i1", "w1"}},
		{name: "star", pattern: "*", want: []string{"a1", "i1", "w1"}},
		{name: "single platform", pattern: "ios", want: []string{"i1"}},
		{name: "alternation", pattern: "{ios,android}", want: []string{"a1", "i1"}},
		{name: "no match", pattern: "windows", wantErr: true},
		{name: "invalid pattern", pattern: "[", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LatestPerPlatform(jobs, tt.pattern)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			ids := make([]string, 0, len(got))
			for _, j := range got {
				ids = append(ids, j.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestLatestPerPlatform_EmptyList(t *testing.T) {
	_, err := LatestPerPlatform(nil, "*")
	require.Error(t, err)
	assert.True(t, IsNoJobs(err))
}

func TestLatestPerPlatform_UnmappedPlatformsShareOneFile(t *testing.T) {
	jobs := []Job{
		{ID: "web-1", Platform: "web"},
		{ID: "win-1", Platform: "windows"},
		{ID: "i1", Platform: PlatformIOS},
		{ID: "web-0", Platform: "web"},
	}

	got, err := LatestPerPlatform(jobs, "*")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "web-1", got[0].ID)
	assert.Equal(t, "i1", got[1].ID)

	exts := make(map[string]bool)
	for _, j := range got {
		ext := j.Platform.Extension()
		assert.False(t, exts[ext], "two jobs selected for app.%s", ext)
		exts[ext] = true
	}

	windowsOnly, err := LatestPerPlatform(jobs, "windows")
	require.NoError(t, err)
	require.Len(t, windowsOnly, 1)
	assert.Equal(t, "win-1", windowsOnly[0].ID)
}
