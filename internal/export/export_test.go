package export

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtxerr/meteolog/internal/reading"
)

func testReadings(n int) []reading.Reading {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rs := make([]reading.Reading, n)
	for i := range rs {
		rs[i] = reading.Reading{
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
			Temperature: 15 + float64(i)*0.5,
			SensorID:    "sensor-1",
		}
	}
	return rs
}

func TestExport_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.parquet")
	want := testReadings(25)

	n, err := WriteFile(path, want, DefaultOptions())
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if n != 25 {
		t.Fatalf("expected 25 rows written, got %d", n)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d readings back, got %d", len(want), len(got))
	}
	for i := range want {
		if !got[i].Timestamp.Equal(want[i].Timestamp) {
			t.Errorf("reading %d: timestamp %v != %v", i, got[i].Timestamp, want[i].Timestamp)
		}
		if got[i].Temperature != want[i].Temperature {
			t.Errorf("reading %d: temperature %v != %v", i, got[i].Temperature, want[i].Temperature)
		}
		if got[i].SensorID != want[i].SensorID {
			t.Errorf("reading %d: sensor %q != %q", i, got[i].SensorID, want[i].SensorID)
		}
	}
}

func TestExport_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")

	n, err := WriteFile(path, nil, DefaultOptions())
	if err != nil {
		t.Fatalf("WriteFile with no readings failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 rows, got %d", n)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile of empty file failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no readings, got %d", len(got))
	}
}

func TestExport_WriteToBuffer(t *testing.T) {
	var buf bytes.Buffer
	n, err := Write(&buf, testReadings(10), Options{Compression: CompressionSnappy})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 10 {
		t.Errorf("expected 10 rows, got %d", n)
	}
	if buf.Len() == 0 {
		t.Error("expected Parquet bytes in the buffer")
	}
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in   string
		want CompressionType
	}{
		{"snappy", CompressionSnappy},
		{"zstd", CompressionZstd},
		{"lz4", CompressionLZ4},
		{"gzip", CompressionGzip},
		{"none", CompressionNone},
		{"", CompressionNone},
		{"bogus", CompressionZstd},
	}
	for _, tt := range tests {
		if got := ParseCompression(tt.in); got != tt.want {
			t.Errorf("ParseCompression(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
