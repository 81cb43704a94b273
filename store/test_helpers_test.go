package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/adonese/kaos/kaos_fields"
	"gonum.org/v1/gonum/spatial/r3"
)

var testNow = time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	db, err := OpenFromConfig("", filepath.Join(t.TempDir(), "kaos.db"), "sqlite")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	opts = append([]Option{WithClock(&kaos_fields.MockClock{Timestamp: testNow})}, opts...)
	return New(db, opts...)
}

func seedSatellite(t *testing.T, s *Store, name string) *kaos_fields.Satellite {
	t.Helper()
	sat := &kaos_fields.Satellite{PlatformName: name}
	if err := s.CreateSatellite(context.Background(), sat); err != nil {
		t.Fatalf("create satellite: %v", err)
	}
	return sat
}

func recordsAt(times ...float64) []kaos_fields.OrbitRecord {
	out := make([]kaos_fields.OrbitRecord, 0, len(times))
	for _, ts := range times {
		out = append(out, kaos_fields.NewOrbitRecord(ts, r3.Vec{X: 7e6, Y: ts, Z: 0}, r3.Vec{X: 0, Y: 7.5e3, Z: ts}))
	}
	return out
}
