package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/endogpt/endokit/internal/logging"
)

func TestNewWriterLogger_JSONComponent(t *testing.T) {
	var buf bytes.Buffer
	l := logging.ComponentLogger(logging.NewWriterLogger(&buf, logging.FormatJSON, "debug"), "batch")
	l.Debug().Str("item", "1").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "batch", entry["component"])
	assert.Equal(t, "1", entry["item"])
	assert.Equal(t, "debug", entry["level"])
}

func TestNewWriterLogger_InvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := logging.NewWriterLogger(&buf, logging.FormatJSON, "loud")
	l.Debug().Msg("hidden")
	assert.Empty(t, buf.String())

	l.Info().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestFromContext(t *testing.T) {
	t.Run("empty context yields disabled logger", func(t *testing.T) {
		l := logging.FromContext(context.Background())
		require.NotNil(t, l)
	})

	t.Run("run id is attached", func(t *testing.T) {
		var buf bytes.Buffer
		base := logging.NewWriterLogger(&buf, logging.FormatJSON, "info")
		ctx := logging.WithRunID(base.WithContext(context.Background()), "01ABC")

		logging.FromContext(ctx).Info().Msg("run")
		assert.Contains(t, buf.String(), `"run_id":"01ABC"`)
	})
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "endokit.log")
	l, closer, err := logging.NewLogger(logging.Config{
		Level:  "info",
		Format: logging.FormatJSON,
		Output: logging.OutputFile,
		File:   path,
	})
	require.NoError(t, err)
	l.Info().Msg("to file")
	require.NoError(t, closer.Close())
	assert.FileExists(t, path)
}

func TestNewLogger_FileWithoutPath(t *testing.T) {
	_, closer, err := logging.NewLogger(logging.Config{Output: logging.OutputFile})
	require.Error(t, err)
	assert.NotNil(t, closer)
}
