package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/tabkeeper/internal/dbopen"
	"github.com/hazyhaar/tabkeeper/internal/store"

	_ "modernc.org/sqlite"
)

// never lets the timer fire so tests control flushing via buffer size
// and Close.
const never = time.Hour

func newTestRecorder(t *testing.T, bufferSize int) *Recorder {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	r := NewRecorder(db, nil, bufferSize, never)
	return r
}

func TestRecordFlushesAtBufferSize(t *testing.T) {
	r := newTestRecorder(t, 3)
	defer r.Close()
	now := time.Now()

	for i := 0; i < 3; i++ {
		r.Record(&Point{Op: "snapshot", Session: "main", DurationMs: float64(i + 1), OK: true, RecordedAt: now})
	}

	pts, err := r.Query(context.Background(), "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) != 3 {
		t.Fatalf("expected 3 flushed points, got %d", len(pts))
	}
}

func TestCloseFlushesRemainder(t *testing.T) {
	r := newTestRecorder(t, 100)
	r.Record(&Point{Op: "navigate", Session: "main", DurationMs: 12.5, OK: true, RecordedAt: time.Now()})

	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	pts, err := r.Query(context.Background(), "navigate", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) != 1 || pts[0].DurationMs != 12.5 {
		t.Fatalf("unexpected points after close: %+v", pts)
	}
}

func TestObserveAndFlush(t *testing.T) {
	r := newTestRecorder(t, 100)
	defer r.Close()

	start := time.Now().Add(-20 * time.Millisecond)
	r.Observe("snapshot", "main", start, nil)
	r.Observe("snapshot", "main", start, errors.New("boom"))
	r.Flush()

	pts, err := r.Query(context.Background(), "snapshot", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) != 2 {
		t.Fatalf("expected 2 points, got %d", len(pts))
	}
	var okCount int
	for _, p := range pts {
		if p.DurationMs < 20 {
			t.Fatalf("duration too small: %v", p.DurationMs)
		}
		if p.OK {
			okCount++
		}
	}
	if okCount != 1 {
		t.Fatalf("expected exactly one ok point, got %d", okCount)
	}
}

func TestQueryFiltersByOp(t *testing.T) {
	r := newTestRecorder(t, 4)
	defer r.Close()
	now := time.Now()

	r.Record(&Point{Op: "snapshot", DurationMs: 1, OK: true, RecordedAt: now})
	r.Record(&Point{Op: "navigate", DurationMs: 2, OK: true, RecordedAt: now})
	r.Record(&Point{Op: "snapshot", DurationMs: 3, OK: true, RecordedAt: now})
	r.Record(&Point{Op: "pdf", DurationMs: 4, OK: true, RecordedAt: now})

	pts, err := r.Query(context.Background(), "snapshot", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) != 2 {
		t.Fatalf("expected 2 snapshot points, got %d", len(pts))
	}
	for _, p := range pts {
		if p.Op != "snapshot" {
			t.Fatalf("filter leaked op %q", p.Op)
		}
	}
}

func TestPrune(t *testing.T) {
	r := newTestRecorder(t, 2)
	defer r.Close()
	now := time.Now()

	r.Record(&Point{Op: "snapshot", DurationMs: 1, OK: true, RecordedAt: now.Add(-48 * time.Hour)})
	r.Record(&Point{Op: "snapshot", DurationMs: 2, OK: true, RecordedAt: now})

	removed, err := r.Prune(context.Background(), now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned point, got %d", removed)
	}

	pts, err := r.Query(context.Background(), "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) != 1 || pts[0].DurationMs != 2 {
		t.Fatalf("unexpected survivors: %+v", pts)
	}
}
