package memory

import (
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/OCAP2/mapview/internal/geo"
	"github.com/paulmach/orb/geojson"
)

// exportGeoJSON writes the session runs to <outputDir>/<name>_<start>.geojson[.gz].
// Callers hold b.mu.
func (b *Backend) exportGeoJSON() error {
	fc := b.buildExport()

	name := strings.NewReplacer(" ", "_", ":", "_", "/", "_").Replace(b.session.Name)
	if name == "" {
		name = "session"
	}
	timestamp := b.session.StartTime.Format("20060102_150405")

	filename := fmt.Sprintf("%s_%s.geojson", name, timestamp)
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}

	if b.cfg.CompressOutput {
		err = writeGzip(outputPath, data)
	} else {
		err = writeFile(outputPath, data)
	}
	if err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := range b.runs {
		f := geo.ResultFeature(&b.runs[i])
		f.Properties["sessionName"] = b.session.Name
		fc.Append(f)
	}
	fc.ExtraMembers = geojson.Properties{
		"sessionId": b.session.ID,
		"startTime": b.session.StartTime,
	}
	return fc
}

func writeFile(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func writeGzip(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	if _, err := gzWriter.Write(data); err != nil {
		gzWriter.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return gzWriter.Close()
}
