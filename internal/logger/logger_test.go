package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestComponentLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	Initialize("debug", FormatJSON, &buf)
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	l := GetForComponent("keeper")
	l.Info().Str("job", "harvest").Msg("Keeper: job finished")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	require.Equal(t, "keeper", entry["component"])
	require.Equal(t, "harvest", entry["job"])
	require.Equal(t, "Keeper: job finished", entry["message"])
}

func TestInitializeLevels(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	Initialize("warn", FormatConsole)
	require.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	Initialize("bogus", FormatConsole)
	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	require.Equal(t, zerolog.ErrorLevel, parseLevel("error"))
	require.Equal(t, zerolog.InfoLevel, parseLevel(""))
	require.Equal(t, zerolog.InfoLevel, parseLevel("loud"))
}

func TestFileWriterReceivesLines(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)
	path := filepath.Join(t.TempDir(), "vault.log")

	w, err := FileWriter(path)
	require.NoError(t, err)
	defer w.(*os.File).Close()

	Initialize("info", FormatJSON, w)
	l := GetForComponent("web_server")
	l.Info().Msg("Starting vault web API")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"component":"web_server"`)
	require.Contains(t, string(data), "Starting vault web API")
}
