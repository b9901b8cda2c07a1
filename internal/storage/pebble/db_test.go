package pebblestore

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

type testMetrics struct {
	wrote        int
	read         int
	batchCommits int
	batchOps     int
}

func (m *testMetrics) ObserveWrite(_ time.Duration, bytes int) { m.wrote += bytes }
func (m *testMetrics) ObserveRead(_ time.Duration, bytes int)  { m.read += bytes }
func (m *testMetrics) ObserveBatchCommit(_ time.Duration, numOps int, _ int) {
	m.batchCommits++
	m.batchOps += numOps
}

func newTestDB(t *testing.T, mode FsyncMode) (*DB, *testMetrics) {
	t.Helper()
	metrics := &testMetrics{}
	db, err := Open(Options{
		DataDir:       t.TempDir(),
		Fsync:         mode,
		FsyncInterval: 2 * time.Millisecond,
		Metrics:       metrics,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, metrics
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	db, metrics := newTestDB(t, FsyncModeAlways)

	if err := db.Set(ctx, []byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := db.Get([]byte("k1"))
	if err != nil || string(got) != "v1" {
		t.Fatalf("get = %q, %v", got, err)
	}
	if metrics.wrote == 0 || metrics.read == 0 {
		t.Fatalf("metrics not observed: %+v", metrics)
	}
	if err := db.Delete(ctx, []byte("k1")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Get([]byte("k1")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := db.Delete(ctx, []byte("k1")); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestBatchCommitCountsOps(t *testing.T) {
	db, metrics := newTestDB(t, FsyncModeInterval)

	b := db.NewBatch()
	_ = b.Set([]byte("a"), []byte("1"), nil)
	_ = b.Set([]byte("b"), []byte("2"), nil)
	if err := db.CommitBatch(context.Background(), b); err != nil {
		t.Fatalf("commit: %v", err)
	}
	b.Close()

	if metrics.batchCommits != 1 || metrics.batchOps != 2 {
		t.Fatalf("unexpected metrics %+v", metrics)
	}
}

func TestCommitHonoursCancelledContext(t *testing.T) {
	db, _ := newTestDB(t, FsyncModeNever)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := db.Set(ctx, []byte("k"), []byte("v")); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if _, err := db.Get([]byte("k")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("write should not have landed: %v", err)
	}
}

func TestScanAndDeletePrefix(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t, FsyncModeAlways)

	for _, k := range []string{"p/b", "p/a", "p/c", "pz", "o/x"} {
		if err := db.Set(ctx, []byte(k), []byte("v:"+k)); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}

	var keys []string
	err := db.ScanPrefix(ctx, []byte("p/"), func(k, v []byte) error {
		if !bytes.Equal(v, []byte("v:"+string(k))) {
			t.Fatalf("value mismatch for %s", k)
		}
		keys = append(keys, string(k))
		return nil
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if want := []string{"p/a", "p/b", "p/c"}; len(keys) != 3 || keys[0] != want[0] || keys[2] != want[2] {
		t.Fatalf("scan keys = %v, want %v", keys, want)
	}

	if err := db.DeletePrefix(ctx, []byte("p/")); err != nil {
		t.Fatalf("delete prefix: %v", err)
	}
	n := 0
	_ = db.ScanPrefix(ctx, []byte("p"), func(k, _ []byte) error { n++; return nil })
	if n != 1 {
		t.Fatalf("only pz should remain under p, got %d", n)
	}
	if _, err := db.Get([]byte("o/x")); err != nil {
		t.Fatalf("unrelated key removed: %v", err)
	}
}

func TestScanStopsOnCallbackError(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t, FsyncModeNever)
	_ = db.Set(ctx, []byte("s/1"), []byte("x"))
	_ = db.Set(ctx, []byte("s/2"), []byte("x"))

	boom := errors.New("boom")
	calls := 0
	err := db.ScanPrefix(ctx, []byte("s/"), func(_, _ []byte) error { calls++; return boom })
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(Options{DataDir: dir, Fsync: FsyncModeAlways})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Set(context.Background(), []byte("k"), []byte("durable")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	db, err = Open(Options{DataDir: dir, Fsync: FsyncModeAlways})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	got, err := db.Get([]byte("k"))
	if err != nil || string(got) != "durable" {
		t.Fatalf("after reopen: %q, %v", got, err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestParseFsyncModeAndUpperBound(t *testing.T) {
	for in, want := range map[string]FsyncMode{"always": FsyncModeAlways, "": FsyncModeInterval, "NEVER": FsyncModeNever} {
		got, err := ParseFsyncMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseFsyncMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFsyncMode("sometimes"); err == nil {
		t.Fatalf("expected error")
	}
	if got := PrefixUpperBound([]byte{'a', 0xff}); !bytes.Equal(got, []byte{'b'}) {
		t.Fatalf("upper bound = %v", got)
	}
	if got := PrefixUpperBound([]byte{0xff, 0xff}); got != nil {
		t.Fatalf("all-0xff prefix has no upper bound, got %v", got)
	}
	if _, err := Open(Options{}); err == nil {
		t.Fatalf("expected error without data dir")
	}
}
