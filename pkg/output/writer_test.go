package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/expobuild/pkg/expo"
)

func decodeRecord(t *testing.T, line []byte, payload any) Record {
	t.Helper()
	var record Record
	require.NoError(t, json.Unmarshal(line, &record))
	if payload != nil {
		require.NoError(t, json.Unmarshal(record.Data, payload))
	}
	return record
}

func TestNewJSONLWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "@acme/app")

	assert.NotNil(t, w)
	assert.Equal(t, "run-123", w.runID)
	assert.Equal(t, "@acme/app", w.project)
}

func TestJSONLWriter_WriteJob(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "@acme/app")

	job := expo.Job{
		ID:                 "job-1",
		Platform:           expo.PlatformIOS,
		Status:             expo.StatusFinished,
		Artifacts:          &expo.Artifacts{URL: "https://x/a.ipa"},
		FullExperienceName: "@acme/app",
	}
	require.NoError(t, w.WriteJob(context.Background(), NewJobRecord(job)))

	var data JobRecord
	record := decodeRecord(t, buf.Bytes(), &data)

	assert.Equal(t, TypeJob, record.Type)
	assert.Equal(t, "run-123", record.RunID)
	assert.Equal(t, "@acme/app", record.Project)
	assert.False(t, record.TS.IsZero())

	assert.Equal(t, "job-1", data.ID)
	assert.Equal(t, "ios", data.Platform)
	assert.Equal(t, "finished", data.Status)
	assert.Equal(t, "https://x/a.ipa", data.ArtifactURL)
}

func TestJSONLWriter_WritePoll(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "app")

	tick := expo.PollTick{
		Attempt: 2,
		Job:     &expo.Job{ID: "job-1", Status: expo.StatusInProgress},
		NextIn:  time.Minute,
	}
	require.NoError(t, w.WritePoll(context.Background(), NewPollRecord(tick)))

	var data PollRecord
	record := decodeRecord(t, buf.Bytes(), &data)
	assert.Equal(t, TypePoll, record.Type)
	assert.Equal(t, 2, data.Attempt)
	assert.Equal(t, "job-1", data.JobID)
	assert.Equal(t, "in-progress", data.Status)
	assert.Equal(t, time.Minute, data.NextIn)
	assert.Empty(t, data.Error)
}

func TestJSONLWriter_WritePollError(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "app")

	tick := expo.PollTick{Attempt: 1, Err: errors.New("connection reset"), NextIn: time.Second}
	require.NoError(t, w.WritePoll(context.Background(), NewPollRecord(tick)))

	var data PollRecord
	decodeRecord(t, buf.Bytes(), &data)
	assert.Equal(t, "connection reset", data.Error)
	assert.Empty(t, data.JobID)
}

func TestJSONLWriter_WriteResult(t *testing.T) {
	tests := []struct {
		name string
		res  *expo.PollResult
		want ResultRecord
	}{
		{
			name: "succeeded",
			res: &expo.PollResult{
				Outcome: expo.OutcomeSucceeded,
				Job:     &expo.Job{ID: "j", Status: expo.StatusFinished, Artifacts: &expo.Artifacts{URL: "https://x/a.apk"}},
				Polls:   3,
				Elapsed: 2 * time.Minute,
			},
			want: ResultRecord{Outcome: "succeeded", JobID: "j", Status: "finished", ArtifactURL: "https://x/a.apk", Polls: 3, Elapsed: 2 * time.Minute},
		},
		{
			name: "timed out",
			res:  &expo.PollResult{Outcome: expo.OutcomeTimedOut, Reason: "no finished build within 15m0s", Polls: 16},
			want: ResultRecord{Outcome: "timed_out", Reason: "no finished build within 15m0s", Polls: 16},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := NewJSONLWriter(&buf, "run", "app")
			require.NoError(t, w.WriteResult(context.Background(), NewResultRecord(tt.res)))

			var data ResultRecord
			record := decodeRecord(t, buf.Bytes(), &data)
			assert.Equal(t, TypeResult, record.Type)
			assert.Equal(t, tt.want, data)
		})
	}
}

func TestJSONLWriter_WriteDownload(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run", "app")

	dl := &DownloadRecord{
		JobID:    "j",
		Platform: "android",
		URL:      "https://x/a.apk",
		Path:     "/tmp/app.apk",
		Bytes:    1024,
		Location: "s3://builds/app.apk",
	}
	require.NoError(t, w.WriteDownload(context.Background(), dl))

	var data DownloadRecord
	record := decodeRecord(t, buf.Bytes(), &data)
	assert.Equal(t, TypeDownload, record.Type)
	assert.Equal(t, *dl, data)
}

func TestJSONLWriter_WriteError(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "app")

	require.NoError(t, w.WriteError(context.Background(), NewErrorRecord(fmt.Errorf("lookup: %w", expo.ErrNoJobs))))

	var data ErrorRecord
	record := decodeRecord(t, buf.Bytes(), &data)
	assert.Equal(t, TypeError, record.Type)
	assert.Equal(t, expo.CodeNoJobs, data.Code)
	assert.Contains(t, data.Message, "lookup")
}

func TestJSONLWriter_NewlineTerminated(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "app")

	require.NoError(t, w.WriteJob(context.Background(), &JobRecord{ID: "a"}))
	require.NoError(t, w.WriteJob(context.Background(), &JobRecord{ID: "b"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)

	for _, line := range lines {
		var record Record
		assert.NoError(t, json.Unmarshal([]byte(line), &record))
	}
}

func TestJSONLWriter_Close(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "app")

	require.NoError(t, w.Close())

	err := w.WriteJob(context.Background(), &JobRecord{ID: "a"})
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestJSONLWriter_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "app")

	const numWriters = 10
	const writesPerWriter = 100

	var wg sync.WaitGroup
	wg.Add(numWriters)

	for i := 0; i < numWriters; i++ {
		go func(writerID int) {
			defer wg.Done()
			for j := 0; j < writesPerWriter; j++ {
				_ = w.WriteDownload(context.Background(), &DownloadRecord{
					JobID: "job",
					Bytes: int64(writerID*writesPerWriter + j),
				})
			}
		}(i)
	}

	wg.Wait()

	// Verify all lines are complete JSON objects (no interleaving)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, numWriters*writesPerWriter)

	for i, line := range lines {
		var record Record
		err := json.Unmarshal([]byte(line), &record)
		assert.NoError(t, err, "line %d should be valid JSON: %s", i, line)
	}
}

func TestJSONLWriter_ContextCancellation(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "run-123", "app")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.WriteJob(ctx, &JobRecord{ID: "a"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, buf.String())
}

func TestJSONLWriter_WriteFailure(t *testing.T) {
	w := NewJSONLWriter(&failingWriter{err: errors.New("disk full")}, "run-123", "app")

	err := w.WriteJob(context.Background(), &JobRecord{ID: "a"})
	require.Error(t, err)

	var writeErr *WriteError
	assert.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "write", writeErr.Op)
}

// failingWriter is an io.Writer that always returns an error.
type failingWriter struct {
	err error
}

func (f *failingWriter) Write(p []byte) (n int, err error) {
	return 0, f.err
}

func TestJSONLWriter_ShortWrite(t *testing.T) {
	shortWriter := &shortWriteWriter{bytesPerWrite: 10}
	w := NewJSONLWriter(shortWriter, "run-123", "app")

	require.NoError(t, w.WriteJob(context.Background(), &JobRecord{ID: "job-with-a-long-id", Platform: "ios"}))

	lines := strings.Split(strings.TrimSpace(shortWriter.buf.String()), "\n")
	assert.Len(t, lines, 1)

	var record Record
	err := json.Unmarshal([]byte(lines[0]), &record)
	assert.NoError(t, err, "output should be valid JSON despite short writes")
	assert.Equal(t, TypeJob, record.Type)
}

func TestJSONLWriter_ZeroWrite(t *testing.T) {
	w := NewJSONLWriter(&zeroWriteWriter{}, "run-123", "app")

	err := w.WriteJob(context.Background(), &JobRecord{ID: "a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

// shortWriteWriter writes at most bytesPerWrite bytes per call, returning nil error.
type shortWriteWriter struct {
	buf           bytes.Buffer
	bytesPerWrite int
}

func (sw *shortWriteWriter) Write(p []byte) (n int, err error) {
	toWrite := len(p)
	if toWrite > sw.bytesPerWrite {
		toWrite = sw.bytesPerWrite
	}
	return sw.buf.Write(p[:toWrite])
}

// zeroWriteWriter always returns 0 bytes written with nil error.
type zeroWriteWriter struct{}

func (zw *zeroWriteWriter) Write(p []byte) (n int, err error) {
	return 0, nil
}

func TestWriteError(t *testing.T) {
	underlying := errors.New("underlying error")
	err := &WriteError{Op: "marshal", Err: underlying}

	assert.Equal(t, "output: marshal: underlying error", err.Error())
	assert.ErrorIs(t, err, underlying)
}

func TestRecord_JSONSerialization(t *testing.T) {
	record := Record{
		Type:    TypeResult,
		TS:      time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		RunID:   "abc123",
		Project: "@acme/app",
		Data:    json.RawMessage(`{"outcome":"succeeded"}`),
	}

	data, err := json.Marshal(record)
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))

	assert.Equal(t, TypeResult, parsed["type"])
	assert.Equal(t, "abc123", parsed["run_id"])
	assert.Equal(t, "@acme/app", parsed["project"])
	assert.Equal(t, "2024-01-15T10:30:00Z", parsed["ts"])
	assert.NotNil(t, parsed["data"])
}

func TestErrorRecord_OmitEmpty(t *testing.T) {
	data, err := json.Marshal(ErrorRecord{Code: expo.CodeInternal, Message: "Something went wrong"})
	require.NoError(t, err)

	assert.NotContains(t, string(data), "job_id")
	assert.NotContains(t, string(data), "details")
}

func TestJobRecord_OmitEmpty(t *testing.T) {
	data, err := json.Marshal(NewJobRecord(expo.Job{ID: "j", Status: expo.StatusInProgress}))
	require.NoError(t, err)

	assert.NotContains(t, string(data), "artifact_url")
	assert.NotContains(t, string(data), "created_at")
}

func BenchmarkJSONLWriter_WriteJob(b *testing.B) {
	w := NewJSONLWriter(io.Discard, "run-123", "@acme/app")
	rec := &JobRecord{ID: "job-1", Platform: "ios", Status: "finished", ArtifactURL: "https://x/a.ipa"}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = w.WriteJob(ctx, rec)
	}
}
