package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParsesLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, New("svc", "debug", "json").GetLevel())
	assert.Equal(t, logrus.InfoLevel, New("svc", "nonsense", "json").GetLevel())
}

func TestWithContextAddsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := New("contest", "info", "json")
	logger.SetOutput(&buf)

	ctx := WithUserID(WithTraceID(context.Background(), "trace-1"), "alice")
	logger.WithContext(ctx).Info("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "contest", line["service"])
	assert.Equal(t, "trace-1", line["trace_id"])
	assert.Equal(t, "alice", line["user_id"])
}

func TestLogRequestLevelByStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := New("contest", "info", "json")
	logger.SetOutput(&buf)

	logger.LogRequest(context.Background(), http.MethodGet, "/health", http.StatusServiceUnavailable, time.Millisecond)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.EqualValues(t, 503, line["status"])
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetUserID(ctx))
	assert.Empty(t, GetRole(ctx))

	ctx = WithRole(ctx, "admin")
	assert.Equal(t, "admin", GetRole(ctx))

	assert.NotEqual(t, NewTraceID(), NewTraceID())
}
