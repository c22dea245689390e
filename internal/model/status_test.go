package model

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferTaskType(t *testing.T) {
	tests := []struct {
		name     string
		taskName string
		want     TaskType
	}{
		{"document task", "tasks.document_processing.process_document", TaskTypeDocumentProcessing},
		{"process prefix", "processors.run", TaskTypeDocumentProcessing},
		{"embedding task", "tasks.generate_embeddings", TaskTypeEmbeddingGeneration},
		{"graph task", "tasks.graph_update", TaskTypeGraphSync},
		{"sync task", "tasks.sync_knowledge", TaskTypeGraphSync},
		{"crew task", "tasks.crew_run", TaskTypeAgenticWorkflow},
		{"agent task", "tasks.agent_execute", TaskTypeAgenticWorkflow},
		{"query task", "tasks.query_answer", TaskTypeQueryProcessing},
		{"batch task", "tasks.batch_reindex", TaskTypeBatchOperation},
		{"health task", "tasks.health_probe", TaskTypeHealthCheck},
		{"unknown task", "tasks.misc_cleanup", TaskTypeGeneric},
		{"case insensitive", "tasks.DOCUMENT_upload", TaskTypeDocumentProcessing},
		{"first match wins", "tasks.document_embedding", TaskTypeDocumentProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferTaskType(tt.taskName))
		})
	}
}

func TestNewProgress(t *testing.T) {
	tests := []struct {
		name       string
		current    int
		total      int
		wantErr    bool
		wantPct    float64
	}{
		{"half done", 50, 100, false, 50.0},
		{"complete", 100, 100, false, 100.0},
		{"zero of zero", 0, 0, false, 0.0},
		{"fractional", 1, 3, false, 33.33},
		{"current exceeds total", 11, 10, true, 0},
		{"negative current", -1, 100, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProgress(tt.current, tt.total, "msg")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPct, p.Percentage)
		})
	}
}

func TestProperty_PercentageDerivation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("percentage is derived and clamped to [0, 100]", prop.ForAll(
		func(current, total int) bool {
			pct := ComputePercentage(current, total)
			if total <= 0 {
				return pct == 0
			}
			return pct >= 0 && pct <= 100
		},
		gen.IntRange(0, 10000),
		gen.IntRange(-100, 10000),
	))

	properties.Property("valid progress keeps exact ratio", prop.ForAll(
		func(current int) bool {
			p, err := NewProgress(current, 200, "")
			if err != nil {
				return false
			}
			return p.Percentage == ComputePercentage(current, 200)
		},
		gen.IntRange(0, 200),
	))

	properties.TestingRun(t)
}

func TestProperty_FailureRetryabilityDerivation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("is_retryable equals retry_count < max_retries", prop.ForAll(
		func(retryCount, maxRetries int) bool {
			msg := NewFailureStatus("t1", "tasks.x", "ValueError", "boom", retryCount, maxRetries, "", nil)
			return msg.Error.IsRetryable == (retryCount < maxRetries)
		},
		gen.IntRange(0, 10),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}

func TestNewStartedStatus(t *testing.T) {
	msg := NewStartedStatus("t1", "tasks.document_processing.process",
		WithDocument("d1"), WithUser("u1"), WithSession("s1"))

	assert.Equal(t, TaskStateStarted, msg.Status)
	assert.Equal(t, TaskTypeDocumentProcessing, msg.TaskType)
	assert.Equal(t, "Task process started", msg.StatusMessage)
	require.NotNil(t, msg.Progress)
	assert.Equal(t, 0, msg.Progress.Current)
	assert.Equal(t, 100, msg.Progress.Total)
	assert.Equal(t, "Starting...", msg.Progress.Message)
	require.NotNil(t, msg.StartedAt)
	assert.Equal(t, "d1", msg.DocumentID)
	assert.Equal(t, "u1", msg.UserID)
	assert.Equal(t, "s1", msg.SessionID)
	assert.Equal(t, SchemaVersion, msg.SchemaVersion)
	assert.Equal(t, DefaultPriority, msg.Priority)
}

func TestNewProgressStatus(t *testing.T) {
	msg, err := NewProgressStatus("t1", "tasks.embed", 45, 100, "Processing page 5 of 11", StageExtractingMetadata)
	require.NoError(t, err)

	assert.Equal(t, TaskStateProgress, msg.Status)
	assert.Equal(t, 45.0, msg.Progress.Percentage)
	assert.Equal(t, StageExtractingMetadata, msg.Progress.Stage)

	_, err = NewProgressStatus("t1", "tasks.embed", 101, 100, "", "")
	assert.Error(t, err)
}

func TestNewSuccessStatus(t *testing.T) {
	runtime := 12.5
	msg := NewSuccessStatus("t1", "tasks.embed", map[string]interface{}{"chunks": 7}, &runtime)

	assert.Equal(t, TaskStateSuccess, msg.Status)
	require.NotNil(t, msg.Progress)
	assert.Equal(t, 100.0, msg.Progress.Percentage)
	assert.Equal(t, "Completed", msg.Progress.Message)
	require.NotNil(t, msg.CompletedAt)
	assert.Equal(t, &runtime, msg.RuntimeSeconds)
	assert.Equal(t, 7, msg.Result["chunks"])
}

func TestNewFailureStatusTruncatesStackTrace(t *testing.T) {
	trace := strings.Repeat("x", 5000)
	msg := NewFailureStatus("t1", "tasks.embed", "RuntimeError", "boom", 1, 3, trace, nil)

	assert.Len(t, msg.Error.StackTrace, maxStackTraceLen)
	assert.True(t, msg.Error.IsRetryable)
	require.NotNil(t, msg.CompletedAt)
}

func TestNewRetryStatus(t *testing.T) {
	msg := NewRetryStatus("t1", "tasks.embed", 1, 3, "timeout", 60)

	assert.Equal(t, TaskStateRetry, msg.Status)
	assert.Equal(t, "Retrying (2/3) in 60s: timeout", msg.StatusMessage)
	assert.True(t, msg.Error.IsRetryable)
	require.NotNil(t, msg.EstimatedRemainingSeconds)
	assert.Equal(t, 60.0, *msg.EstimatedRemainingSeconds)
	assert.Equal(t, 60, msg.Metadata["countdown_seconds"])
	assert.Equal(t, "Retry 2 of 3", msg.Progress.Message)
}

func TestNormalizeRederivesComputedFields(t *testing.T) {
	msg := NewFailureStatus("t1", "tasks.embed", "E", "boom", 3, 3, "", nil)
	assert.False(t, msg.Error.IsRetryable)

	// Tampering with derived fields must not survive normalization.
	msg.Error.IsRetryable = true
	msg.Normalize()
	assert.False(t, msg.Error.IsRetryable)

	retry := NewRetryStatus("t1", "tasks.embed", 3, 3, "boom", 10)
	retry.Error.IsRetryable = false
	retry.Normalize()
	assert.True(t, retry.Error.IsRetryable)

	progress, err := NewProgressStatus("t1", "tasks.embed", 10, 40, "", "")
	require.NoError(t, err)
	progress.Progress.Percentage = 99.0
	progress.Normalize()
	assert.Equal(t, 25.0, progress.Progress.Percentage)
}

func TestValidate(t *testing.T) {
	msg := NewStartedStatus("t1", "tasks.x")
	assert.NoError(t, msg.Validate())

	msg.TaskID = ""
	assert.Error(t, msg.Validate())

	msg = NewStartedStatus("t1", "tasks.x", WithPriority(10))
	assert.Error(t, msg.Validate())

	msg = NewStartedStatus("t1", "tasks.x")
	msg.Progress.Current = 200
	assert.Error(t, msg.Validate())
}

func TestStatusMessageJSONRoundTrip(t *testing.T) {
	msg := NewRetryStatus("t1", "tasks.embed", 0, 3, "timeout", 30, WithDocument("d1"))
	data, err := msg.ToJSON()
	require.NoError(t, err)

	var decoded TaskStatusMessage
	require.NoError(t, decoded.FromJSON(data))
	assert.Equal(t, msg.TaskID, decoded.TaskID)
	assert.Equal(t, msg.Status, decoded.Status)
	assert.Equal(t, msg.StatusMessage, decoded.StatusMessage)
	assert.Equal(t, msg.DocumentID, decoded.DocumentID)
	assert.Equal(t, msg.Error.RetryCount, decoded.Error.RetryCount)
}
