package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSONOutsideDevelopment(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "production", "warn")

	log.Info().Msg("hidden")
	log.Warn().Str("pass", "compare").Msg("drift found")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "compare", entry["pass"])
	assert.Equal(t, "drift found", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNewWithWriter_ConsoleInDevelopment(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "development", "bogus")

	log.Info().Msg("rental registered")

	assert.Contains(t, buf.String(), "rental registered")
	assert.False(t, json.Valid(buf.Bytes()))
}
