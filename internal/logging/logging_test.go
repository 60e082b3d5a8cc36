package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, Config{Level: "warn"})

	l.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	l.Warn().Msg("shown")
	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "shown", event["message"])
	assert.Equal(t, "warn", event["level"])
	assert.Contains(t, event, "time")
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, Config{Level: "loud"})
	l.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
	l.Info().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := WithComponent(NewWithWriter(&buf, Config{}), "planner")
	l.Info().Msg("x")

	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "planner", event["component"])
}

func TestWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithRequestID(context.Background(), NewWithWriter(&buf, Config{}), "abc")
	assert.Equal(t, "abc", RequestID(ctx))

	zerolog.Ctx(ctx).Info().Msg("x")
	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "abc", event["req_id"])

	assert.Empty(t, RequestID(context.Background()))
}
