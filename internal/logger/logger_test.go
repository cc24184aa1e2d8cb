package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerCarriesContextFields(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "api", Output: &buf})

	ctx := logg.WithRequestID(context.Background(), "req-1")
	ctx = logg.WithFields(ctx, map[string]any{"order_id": 42})
	logg.Error(ctx, "checkout.failed", errors.New("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "api", entry["service"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.EqualValues(t, 42, entry["order_id"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "checkout.failed", entry["message"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
}

func TestLevelFiltersOutput(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "api", Level: "warn", Output: &buf})

	logg.Info(context.Background(), "hidden")
	assert.Zero(t, buf.Len())

	logg.Warn(context.Background(), "shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "api", Output: &buf})

	logg.Debug(context.Background(), "hidden")
	assert.Zero(t, buf.Len())

	logg.Info(context.Background(), "shown")
	assert.Contains(t, buf.String(), "shown")
}
