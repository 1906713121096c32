package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewJSONWritesStructuredLines(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := New(Options{Level: "debug", Format: "json"}, buf)
	require.NoError(t, err)

	log.Info().Str("component", "engine").Uint64("sequence", 7).Msg("ack ignored")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "info", line["level"])
	require.Equal(t, "engine", line["component"])
	require.Equal(t, "puppeteerd", line["service"])
	require.EqualValues(t, 7, line["sequence"])
}

func TestNewFiltersBelowLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := New(Options{Level: "warn", Format: "json"}, buf)
	require.NoError(t, err)

	log.Info().Msg("hidden")
	require.Zero(t, buf.Len())
	log.Warn().Msg("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"}, &bytes.Buffer{})
	require.Error(t, err)
}
