package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/adonese/kaos/apperr"
	"github.com/adonese/kaos/kaos_fields"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// Store provides manual-SQL data access. A Store returned to a RunInTx
// callback runs every statement inside that transaction.
type Store struct {
	DB   *DB
	tx   *sqlx.Tx
	opts StoreOptions
}

func New(db *DB, opts ...Option) *Store {
	options := StoreOptions{BatchSize: defaultBatchSize}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = logrus.StandardLogger()
	}
	if options.Clock == nil {
		options.Clock = kaos_fields.SystemClock
	}
	return &Store{DB: db, opts: options}
}

func (s *Store) ensureDB() (sqlx.ExtContext, error) {
	if s == nil || s.DB == nil || s.DB.DB == nil {
		return nil, fmt.Errorf("nil db")
	}
	if s.tx != nil {
		return s.tx, nil
	}
	return s.DB.DB, nil
}

// RunInTx runs fn in a transaction. Nested calls reuse the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(tx *Store) error) error {
	if _, err := s.ensureDB(); err != nil {
		return err
	}
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	if err := fn(&Store{DB: s.DB, tx: tx, opts: s.opts}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(fmt.Errorf("commit: %w", err), apperr.ErrDatabase, "")
	}
	return nil
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(err, apperr.ErrNotFound, fmt.Sprintf("%s %v not found", what, id))
	}
	return apperr.Wrap(err, apperr.ErrDatabase, "")
}

func (s *Store) CreateSatellite(ctx context.Context, sat *kaos_fields.Satellite) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	sat.PlatformName = strings.TrimSpace(sat.PlatformName)
	if err := kaos_fields.ValidateStruct(sat); err != nil {
		return apperr.Wrap(err, apperr.WithFields(apperr.ErrValidation, kaos_fields.ValidationDetails(err)), "invalid satellite")
	}
	if sat.CoordinateSystem == "" {
		sat.CoordinateSystem = kaos_fields.FrameInertial
	}
	now := s.opts.Clock.Now().UTC()
	stmt := s.DB.Rebind(`INSERT INTO satellites(platform_name, maximum_altitude, coordinate_system, created_at)
		VALUES(?, ?, ?, ?) RETURNING platform_id`)
	var id int64
	if err := sqlx.GetContext(ctx, db, &id, stmt, sat.PlatformName, sat.MaximumAltitude, sat.CoordinateSystem, now); err != nil {
		return apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	sat.PlatformID = id
	sat.CreatedAt = now
	return nil
}

func (s *Store) GetSatellite(ctx context.Context, platformID int64) (*kaos_fields.Satellite, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	stmt := s.DB.Rebind("SELECT * FROM satellites WHERE platform_id = ?")
	var sat kaos_fields.Satellite
	if err := sqlx.GetContext(ctx, db, &sat, stmt, platformID); err != nil {
		return nil, notFound(err, "satellite", platformID)
	}
	return &sat, nil
}

func (s *Store) GetSatellitesByName(ctx context.Context, name string) ([]kaos_fields.Satellite, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	stmt := s.DB.Rebind("SELECT * FROM satellites WHERE platform_name = ? ORDER BY platform_id")
	sats := []kaos_fields.Satellite{}
	if err := sqlx.SelectContext(ctx, db, &sats, stmt, name); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	return sats, nil
}

func (s *Store) ListSatellites(ctx context.Context) ([]kaos_fields.Satellite, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	sats := []kaos_fields.Satellite{}
	if err := sqlx.SelectContext(ctx, db, &sats, "SELECT * FROM satellites ORDER BY platform_id"); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	return sats, nil
}

func (s *Store) UpdateMaximumAltitude(ctx context.Context, platformID int64, altitude float64) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	stmt := s.DB.Rebind("UPDATE satellites SET maximum_altitude = ? WHERE platform_id = ?")
	res, err := db.ExecContext(ctx, stmt, altitude, platformID)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(sql.ErrNoRows, "satellite", platformID)
	}
	return nil
}

// AddSegment stores records as a new segment of platformID. Segments that
// overlap an existing one, or repeat its bounds, are rejected with
// apperr.ErrConflict.
func (s *Store) AddSegment(ctx context.Context, platformID int64, records []kaos_fields.OrbitRecord) (*kaos_fields.OrbitSegment, error) {
	if len(records) == 0 {
		return nil, apperr.Wrap(errors.New("no records"), apperr.ErrValidation, "segment has no records")
	}
	seg := &kaos_fields.OrbitSegment{
		PlatformID: platformID,
		StartTime:  records[0].Time,
		EndTime:    records[len(records)-1].Time,
	}
	err := s.RunInTx(ctx, func(tx *Store) error {
		db, _ := tx.ensureDB()

		var overlapping int
		check := tx.DB.Rebind(`SELECT COUNT(*) FROM orbit_segments WHERE platform_id = ?
			AND ((? < end_time AND ? > start_time) OR (start_time = ? AND end_time = ?))`)
		if err := sqlx.GetContext(ctx, db, &overlapping, check, platformID, seg.StartTime, seg.EndTime, seg.StartTime, seg.EndTime); err != nil {
			return apperr.Wrap(err, apperr.ErrDatabase, "")
		}
		if overlapping > 0 {
			return apperr.Wrap(fmt.Errorf("segment (%f, %f) overlaps %d segments", seg.StartTime, seg.EndTime, overlapping),
				apperr.ErrConflict, "segment overlaps an existing segment")
		}

		insert := tx.DB.Rebind("INSERT INTO orbit_segments(platform_id, start_time, end_time) VALUES(?, ?, ?) RETURNING segment_id")
		if err := sqlx.GetContext(ctx, db, &seg.SegmentID, insert, platformID, seg.StartTime, seg.EndTime); err != nil {
			return apperr.Wrap(err, apperr.ErrDatabase, "")
		}
		return tx.insertRecords(ctx, db, seg, records)
	})
	if err != nil {
		return nil, err
	}
	return seg, nil
}

func (s *Store) insertRecords(ctx context.Context, db sqlx.ExtContext, seg *kaos_fields.OrbitSegment, records []kaos_fields.OrbitRecord) error {
	const stmt = `INSERT INTO orbit_records(platform_id, segment_id, time, pos_x, pos_y, pos_z, vel_x, vel_y, vel_z)
		VALUES(:platform_id, :segment_id, :time, :pos_x, :pos_y, :pos_z, :vel_x, :vel_y, :vel_z)`
	batch := make([]kaos_fields.OrbitRecord, 0, s.opts.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := sqlx.NamedExecContext(ctx, db, stmt, batch); err != nil {
			return apperr.Wrap(err, apperr.ErrDatabase, "")
		}
		batch = batch[:0]
		return nil
	}
	for _, rec := range records {
		rec.PlatformID = seg.PlatformID
		rec.SegmentID = seg.SegmentID
		batch = append(batch, rec)
		if len(batch) == s.opts.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	s.opts.Logger.WithFields(logrus.Fields{
		"platform_id": seg.PlatformID,
		"segment_id":  seg.SegmentID,
		"records":     len(records),
	}).Debug("stored orbit segment")
	return nil
}

// SegmentAt returns the segment of platformID covering t. At the boundary of
// two segments the later one wins.
func (s *Store) SegmentAt(ctx context.Context, platformID int64, t float64) (*kaos_fields.OrbitSegment, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	stmt := s.DB.Rebind(`SELECT * FROM orbit_segments WHERE platform_id = ? AND start_time <= ? AND end_time >= ?
		ORDER BY start_time DESC LIMIT 1`)
	var seg kaos_fields.OrbitSegment
	if err := sqlx.GetContext(ctx, db, &seg, stmt, platformID, t, t); err != nil {
		return nil, notFound(err, "segment at", t)
	}
	return &seg, nil
}

func (s *Store) SegmentRecords(ctx context.Context, segmentID int64) ([]kaos_fields.OrbitRecord, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	stmt := s.DB.Rebind("SELECT * FROM orbit_records WHERE segment_id = ? ORDER BY time")
	records := []kaos_fields.OrbitRecord{}
	if err := sqlx.SelectContext(ctx, db, &records, stmt, segmentID); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	return records, nil
}

func (s *Store) ListSegments(ctx context.Context, platformID int64) ([]kaos_fields.OrbitSegment, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	stmt := s.DB.Rebind("SELECT * FROM orbit_segments WHERE platform_id = ? ORDER BY start_time")
	segs := []kaos_fields.OrbitSegment{}
	if err := sqlx.SelectContext(ctx, db, &segs, stmt, platformID); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	return segs, nil
}

func (s *Store) CountRecords(ctx context.Context, platformID int64) (int64, error) {
	db, err := s.ensureDB()
	if err != nil {
		return 0, err
	}
	stmt := s.DB.Rebind("SELECT COUNT(*) FROM orbit_records WHERE platform_id = ?")
	var n int64
	if err := sqlx.GetContext(ctx, db, &n, stmt, platformID); err != nil {
		return 0, apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	return n, nil
}

// SaveResponse stores a rendered response and returns its history id.
func (s *Store) SaveResponse(ctx context.Context, response string) (int64, error) {
	db, err := s.ensureDB()
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(response) == "" {
		return 0, apperr.WithFields(apperr.ErrValidation, map[string]any{"response": "this field is required"})
	}
	stmt := s.DB.Rebind("INSERT INTO response_history(response, created_at) VALUES(?, ?) RETURNING uid")
	var id int64
	if err := sqlx.GetContext(ctx, db, &id, stmt, response, s.opts.Clock.Now().UTC()); err != nil {
		return 0, apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	return id, nil
}

// SaveResponseFunc reserves a history id and stores whatever render returns
// for it, so the stored response can carry its own id.
func (s *Store) SaveResponseFunc(ctx context.Context, render func(uid int64) (string, error)) (int64, error) {
	var id int64
	err := s.RunInTx(ctx, func(tx *Store) error {
		var err error
		if id, err = tx.SaveResponse(ctx, "{}"); err != nil {
			return err
		}
		response, err := render(id)
		if err != nil {
			return err
		}
		return tx.updateResponse(ctx, id, response)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) updateResponse(ctx context.Context, uid int64, response string) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	if strings.TrimSpace(response) == "" {
		return apperr.WithFields(apperr.ErrValidation, map[string]any{"response": "this field is required"})
	}
	stmt := s.DB.Rebind("UPDATE response_history SET response = ? WHERE uid = ?")
	if _, err := db.ExecContext(ctx, stmt, response, uid); err != nil {
		return apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	return nil
}

func (s *Store) GetResponse(ctx context.Context, uid int64) (*kaos_fields.ResponseHistory, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	stmt := s.DB.Rebind("SELECT * FROM response_history WHERE uid = ?")
	var h kaos_fields.ResponseHistory
	if err := sqlx.GetContext(ctx, db, &h, stmt, uid); err != nil {
		return nil, notFound(err, "response", uid)
	}
	return &h, nil
}
