package metrics

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/scanwalk/engine/pkg/core"
)

func pointToLine(p *influxdb2_write.Point) string {
	return influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
}

func backupManager(buf *bytes.Buffer) *Manager {
	m := NewManager(zerolog.Nop(), "")
	m.BackupWriter = gzip.NewWriter(buf)
	return m
}

func gunzip(t *testing.T, buf *bytes.Buffer) string {
	t.Helper()
	r, err := gzip.NewReader(buf)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("gunzip: %v", err)
	}
	return string(out)
}

func TestWriteVisit_BackupFile(t *testing.T) {
	var buf bytes.Buffer
	m := backupManager(&buf)

	err := m.WriteVisit(context.Background(), core.VisitEvent{
		TourName:      "museum",
		ViewpointID:   7,
		EnteredAt:     time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		Dwell:         42 * time.Second,
		ViaTransition: true,
	})
	if err != nil {
		t.Fatalf("WriteVisit failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	line := gunzip(t, &buf)
	if !strings.HasPrefix(line, "visit,") {
		t.Errorf("expected visit measurement, got %q", line)
	}
	if !strings.Contains(line, "tour=museum") || !strings.Contains(line, "viewpoint=7") {
		t.Errorf("missing tags in %q", line)
	}
	if !strings.Contains(line, "dwell_ms=42000i") {
		t.Errorf("missing dwell field in %q", line)
	}
}

func TestWriteTransition_BackupFile(t *testing.T) {
	var buf bytes.Buffer
	m := backupManager(&buf)

	err := m.WriteTransition(context.Background(), "museum", core.TransitionStats{
		FromID:    1,
		ToID:      2,
		Distance:  5,
		TargetFov: 63.75,
		Duration:  2800 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("WriteTransition failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	line := gunzip(t, &buf)
	if !strings.HasPrefix(line, "transition,") {
		t.Errorf("expected transition measurement, got %q", line)
	}
	if !strings.Contains(line, "from=1") || !strings.Contains(line, "to=2") {
		t.Errorf("missing endpoint tags in %q", line)
	}
	if !strings.Contains(line, "duration_ms=2800i") {
		t.Errorf("missing duration field in %q", line)
	}
}

func TestWritePoint_NoWriterNoBackup(t *testing.T) {
	m := NewManager(zerolog.Nop(), "")

	_, point, err := ProcessMetricData([]string{BucketFrameTiming, "frames", "field::int::count::5"})
	if err != nil {
		t.Fatalf("ProcessMetricData failed: %v", err)
	}
	if err := m.WritePoint(context.Background(), BucketFrameTiming, point); err == nil {
		t.Error("expected error with no client and no backup writer")
	}
}

func TestProcessMetricData_Valid(t *testing.T) {
	data := []string{
		BucketFrameTiming,
		"frames",
		"tag::tour::museum",
		"field::int::count::120",
		"field::float::elapsed::1.5",
		"field::string::note::steady",
	}

	bucket, point, err := ProcessMetricData(data)
	if err != nil {
		t.Fatalf("ProcessMetricData failed: %v", err)
	}
	if bucket != BucketFrameTiming {
		t.Errorf("expected bucket %s, got %s", BucketFrameTiming, bucket)
	}
	if point.Name() != "frames" {
		t.Errorf("expected measurement frames, got %s", point.Name())
	}

	line := strings.TrimSpace(pointToLine(point))
	if !strings.Contains(line, "tour=museum") {
		t.Errorf("missing tag in %q", line)
	}
	if !strings.Contains(line, "count=120i") || !strings.Contains(line, "elapsed=1.5") {
		t.Errorf("missing fields in %q", line)
	}
}

func TestProcessMetricData_TooShort(t *testing.T) {
	if _, _, err := ProcessMetricData([]string{BucketVisits}); err == nil {
		t.Error("expected error for short metric row")
	}
}

func TestProcessMetricData_BadIntField(t *testing.T) {
	data := []string{BucketVisits, "visit", "field::int::count::notanumber"}
	if _, _, err := ProcessMetricData(data); err == nil {
		t.Error("expected error for unparseable int field")
	}
}
