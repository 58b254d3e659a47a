package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/OCAP2/mapview/internal/config"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetGlobals() {
	viper.Reset()
	Logger = slog.Default()
	LogFile = nil
	OTelProvider = nil
	storageBackend = nil
	influxManager = nil
	eventDispatcher = nil
	monitorService = nil
}

func TestRun_RecordsLastAnalysisBeforeExport(t *testing.T) {
	t.Cleanup(resetGlobals)

	dir := t.TempDir()
	exports := filepath.Join(dir, "exports")
	cfg := fmt.Sprintf(`{
		"logsDir": %q,
		"status": {"enabled": false},
		"storage": {"type": "memory", "memory": {"outputDir": %q}}
	}`, filepath.Join(dir, "logs"), exports)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(cfg), 0644))

	opts := newOptions([]string{"-config", dir, "-session", "final"})
	in := strings.NewReader("MARKER:ADD 0,0.05\nMARKER:ADD 0,0\nBUFFER:ANALYZE 10\nQUIT\n")
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), opts, in, &out))
	assert.Contains(t, out.String(), "1 marker(s) found inside the buffer.")

	files, err := filepath.Glob(filepath.Join(exports, "final_*.geojson"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	assert.Len(t, fc.Features, 1, "the last analysis must be in the export")
}
