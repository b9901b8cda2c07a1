// Package pebblestore wraps Pebble with a fixed fsync policy, prefix scans
// and deletes, and a latency hook for metrics.
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: dir,
//	    Fsync:   pebblestore.FsyncModeAlways,
//	})
//	if err != nil { ... }
//	defer db.Close()
//
//	_ = db.Set(ctx, []byte("q/entry/lists::a"), record)
//	_ = db.ScanPrefix(ctx, []byte("q/entry/"), func(k, v []byte) error { ... })
package pebblestore
