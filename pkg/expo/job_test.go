package expo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlatform_Extension(t *testing.T) {
	tests := []struct {
		platform Platform
		want     string
	}{
		{PlatformIOS, "ipa"},
		{PlatformAndroid, "apk"},
		{"web", "unknown"},
		{"", "unknown"},
		{"IOS", "unknown"},
	}

	for _, tt := range tests {
		t.Run(string(tt.platform), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.platform.Extension())
		})
	}
}

func TestStatus_Known(t *testing.T) {
	assert.True(t, StatusFinished.Known())
	assert.True(t, StatusInProgress.Known())
	assert.False(t, Status("errored").Known())
	assert.False(t, Status("").Known())
}

func TestJob_ArtifactURL(t *testing.T) {
	assert.Equal(t, "", Job{}.ArtifactURL())
	assert.False(t, Job{Artifacts: &Artifacts{}}.HasArtifact())
	assert.True(t, Job{Artifacts: &Artifacts{URL: "https://x/a.apk"}}.HasArtifact())
}

func TestStatusResponse_InProgress(t *testing.T) {
	assert.False(t, (&StatusResponse{}).InProgress())
	assert.False(t, (&StatusResponse{Jobs: []Job{{Status: StatusFinished}}}).InProgress())
	assert.True(t, (&StatusResponse{Jobs: []Job{{Status: StatusFinished}, {Status: StatusInProgress}}}).InProgress())
}
