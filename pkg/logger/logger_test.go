package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo}).With(Component("coordinator"))

	log.Info("quiz submitted", UserID("u1"), XPAmount(20))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "INFO", got["level"])
	assert.Equal(t, "quiz submitted", got["message"])

	fields := got["fields"].(map[string]any)
	assert.Equal(t, "coordinator", fields["component"])
	assert.Equal(t, "u1", fields["user_id"])
	assert.EqualValues(t, 20, fields["xp_amount"])
}

func TestLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelWarn})

	log.Info("ignored")
	assert.Zero(t, buf.Len())

	log.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestFromContext(t *testing.T) {
	fallback := Nop()
	assert.Same(t, fallback, FromContext(context.Background(), fallback))

	attached := Default()
	ctx := WithContext(context.Background(), attached)
	assert.Same(t, attached, FromContext(ctx, fallback))
}

func TestLogger_CallerAndDuration(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelDebug, AddCaller: true})

	log.Debug("dial failed", Latency(1500*time.Millisecond), Err(nil))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Contains(t, got["caller"], "logger_test.go:")
	assert.Equal(t, "DEBUG", got["level"])
	assert.NotEmpty(t, got["timestamp"])

	fields := got["fields"].(map[string]any)
	assert.Equal(t, "1.5s", fields["latency"])
	assert.Contains(t, fields, "error")
}

func TestNop_WritesNothing(t *testing.T) {
	log := Nop().With(UserID("u1"))
	log.Error("dropped")
	assert.NotNil(t, log)
}
