// Package export serializes readings to Parquet for offline analysis and
// archival.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/meteolog/internal/reading"
)

// Row is a reading in Parquet format. Timestamps are UTC Unix
// milliseconds, matching the storage schema.
type Row struct {
	TimestampMs int64   `parquet:"timestamp_ms"`
	Temperature float64 `parquet:"temperature"`
	SensorID    string  `parquet:"sensor_id,zstd"`
}

// ToRow converts a reading to its Parquet row.
func ToRow(r reading.Reading) Row {
	return Row{
		TimestampMs: r.Timestamp.UTC().UnixMilli(),
		Temperature: r.Temperature,
		SensorID:    r.SensorID,
	}
}

// FromRow converts a Parquet row back to a reading.
func FromRow(row Row) reading.Reading {
	return reading.Reading{
		Timestamp:   time.UnixMilli(row.TimestampMs).UTC(),
		Temperature: row.Temperature,
		SensorID:    row.SensorID,
	}
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// ParseCompression parses a compression name. Unknown names fall back to
// zstd.
func ParseCompression(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// Options configures the export.
type Options struct {
	Compression CompressionType
}

// DefaultOptions returns the default export options.
func DefaultOptions() Options {
	return Options{Compression: CompressionZstd}
}

// Write writes the readings as a Parquet file to w and returns the row
// count. An empty slice still produces a valid empty file.
func Write(w io.Writer, rs []reading.Reading, opts Options) (int, error) {
	pw := parquet.NewGenericWriter[Row](w, parquet.Compression(getCompression(opts.Compression)))

	written := 0
	if len(rs) > 0 {
		rows := make([]Row, len(rs))
		for i, r := range rs {
			rows[i] = ToRow(r)
		}
		n, err := pw.Write(rows)
		if err != nil {
			pw.Close()
			return 0, fmt.Errorf("write rows: %w", err)
		}
		written = n
	}

	if err := pw.Close(); err != nil {
		return 0, fmt.Errorf("close writer: %w", err)
	}
	return written, nil
}

// WriteFile writes the readings as a Parquet file at path, creating parent
// directories as needed.
func WriteFile(path string, rs []reading.Reading, opts Options) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}

	n, err := Write(f, rs, opts)
	if err != nil {
		f.Close()
		return 0, err
	}
	return n, f.Close()
}

// ReadFile reads all readings from a Parquet file at path.
func ReadFile(path string) ([]reading.Reading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	pr := parquet.NewGenericReader[Row](f)
	defer pr.Close()

	numRows := pr.NumRows()
	if numRows == 0 {
		return nil, nil
	}

	rows := make([]Row, numRows)
	n, err := pr.Read(rows)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	out := make([]reading.Reading, n)
	for i := 0; i < n; i++ {
		out[i] = FromRow(rows[i])
	}
	return out, nil
}
