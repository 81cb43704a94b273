package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/adonese/kaos/apperr"
	"github.com/adonese/kaos/kaos_fields"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSatellite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		sat     kaos_fields.Satellite
		wantErr *apperr.Error
	}{
		{"valid", kaos_fields.Satellite{PlatformName: "Aqua_27424"}, nil},
		{"fixed frame", kaos_fields.Satellite{PlatformName: "Radarsat2", CoordinateSystem: kaos_fields.FrameFixed}, nil},
		{"empty name", kaos_fields.Satellite{PlatformName: "  "}, apperr.ErrValidation},
		{"name too long", kaos_fields.Satellite{PlatformName: strings.Repeat("a", 51)}, apperr.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sat := tt.sat
			err := s.CreateSatellite(ctx, &sat)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, sat.PlatformID)

			got, err := s.GetSatellite(ctx, sat.PlatformID)
			require.NoError(t, err)
			assert.Equal(t, sat.PlatformName, got.PlatformName)
			assert.NotEmpty(t, got.CoordinateSystem)
			assert.Equal(t, tt.sat.CoordinateSystem == kaos_fields.FrameFixed, got.IsFixedFrame())
		})
	}
}

func TestGetSatelliteNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetSatellite(context.Background(), 99)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 404, apperr.Status(err))
}

func TestListSatellites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sats, err := s.ListSatellites(ctx)
	require.NoError(t, err)
	assert.Empty(t, sats)

	a := seedSatellite(t, s, "Aqua_27424")
	b := seedSatellite(t, s, "Radarsat2")
	c := seedSatellite(t, s, "Aqua_27424")

	sats, err = s.ListSatellites(ctx)
	require.NoError(t, err)
	require.Len(t, sats, 3)
	assert.Equal(t, []int64{a.PlatformID, b.PlatformID, c.PlatformID},
		[]int64{sats[0].PlatformID, sats[1].PlatformID, sats[2].PlatformID})

	byName, err := s.GetSatellitesByName(ctx, "Aqua_27424")
	require.NoError(t, err)
	require.Len(t, byName, 2)
	assert.Equal(t, a.PlatformID, byName[0].PlatformID)
	assert.Equal(t, c.PlatformID, byName[1].PlatformID)
}

func TestUpdateMaximumAltitude(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sat := seedSatellite(t, s, "Aqua_27424")

	require.NoError(t, s.UpdateMaximumAltitude(ctx, sat.PlatformID, 7.1e6))
	got, err := s.GetSatellite(ctx, sat.PlatformID)
	require.NoError(t, err)
	assert.Equal(t, 7.1e6, got.MaximumAltitude)

	assert.ErrorIs(t, s.UpdateMaximumAltitude(ctx, 1234, 1), apperr.ErrNotFound)
}

func TestAddSegmentOverlap(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name       string
		start, end float64
		wantErr    bool
	}{
		{"overlaps start", 5, 15, true},
		{"overlaps end", 15, 25, true},
		{"inside", 12, 18, true},
		{"covers", 0, 30, true},
		{"identical bounds", 10, 20, true},
		{"touches start", 0, 10, false},
		{"touches end", 20, 30, false},
		{"disjoint", 40, 50, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			sat := seedSatellite(t, s, "Aqua_27424")
			_, err := s.AddSegment(ctx, sat.PlatformID, recordsAt(10, 15, 20))
			require.NoError(t, err)

			_, err = s.AddSegment(ctx, sat.PlatformID, recordsAt(tt.start, tt.end))
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrConflict)
			} else {
				assert.NoError(t, err)
			}

			other := seedSatellite(t, s, "Radarsat2")
			_, err = s.AddSegment(ctx, other.PlatformID, recordsAt(tt.start, tt.end))
			assert.NoError(t, err, "segments of other platforms never conflict")
		})
	}
}

func TestAddSegmentBatches(t *testing.T) {
	s := newTestStore(t, WithBatchSize(2))
	ctx := context.Background()
	sat := seedSatellite(t, s, "Aqua_27424")

	seg, err := s.AddSegment(ctx, sat.PlatformID, recordsAt(1, 2, 3, 4, 5))
	require.NoError(t, err)
	assert.Equal(t, 1.0, seg.StartTime)
	assert.Equal(t, 5.0, seg.EndTime)

	n, err := s.CountRecords(ctx, sat.PlatformID)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	records, err := s.SegmentRecords(ctx, seg.SegmentID)
	require.NoError(t, err)
	require.Len(t, records, 5)
	for i, rec := range records {
		assert.Equal(t, float64(i+1), rec.Time)
		assert.Equal(t, seg.SegmentID, rec.SegmentID)
		assert.Equal(t, sat.PlatformID, rec.PlatformID)
		assert.Equal(t, rec.Time, rec.Velocity().Z)
	}

	_, err = s.AddSegment(ctx, sat.PlatformID, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSegmentAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sat := seedSatellite(t, s, "Aqua_27424")

	first, err := s.AddSegment(ctx, sat.PlatformID, recordsAt(0, 5, 10))
	require.NoError(t, err)
	second, err := s.AddSegment(ctx, sat.PlatformID, recordsAt(10, 15, 20))
	require.NoError(t, err)

	tests := []struct {
		at   float64
		want int64
	}{
		{0, first.SegmentID},
		{7, first.SegmentID},
		{10, second.SegmentID},
		{20, second.SegmentID},
	}
	for _, tt := range tests {
		got, err := s.SegmentAt(ctx, sat.PlatformID, tt.at)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.SegmentID, "t=%v", tt.at)
	}

	_, err = s.SegmentAt(ctx, sat.PlatformID, 21)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	segs, err := s.ListSegments(ctx, sat.PlatformID)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, first.SegmentID, segs[0].SegmentID)
}

func TestResponseHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.SaveResponse(ctx, `{"Opportunities":[]}`)
	require.NoError(t, err)

	got, err := s.GetResponse(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, `{"Opportunities":[]}`, got.Response)
	assert.True(t, got.CreatedAt.Equal(testNow))

	_, err = s.SaveResponse(ctx, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = s.GetResponse(ctx, id+1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRunInTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(tx *Store) error {
		sat := &kaos_fields.Satellite{PlatformName: "Aqua_27424"}
		if err := tx.CreateSatellite(ctx, sat); err != nil {
			return err
		}
		if _, err := tx.AddSegment(ctx, sat.PlatformID, recordsAt(1, 2)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	sats, err := s.ListSatellites(ctx)
	require.NoError(t, err)
	assert.Empty(t, sats)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, Migrate(context.Background(), s.DB))
}

func TestSaveResponseFunc(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.SaveResponseFunc(ctx, func(uid int64) (string, error) {
		return fmt.Sprintf(`{"Opportunities":[],"ResponseID":%d}`, uid), nil
	})
	require.NoError(t, err)
	got, err := s.GetResponse(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf(`{"Opportunities":[],"ResponseID":%d}`, id), got.Response)

	tests := []struct {
		name   string
		render func(int64) (string, error)
		want   error
	}{
		{"render fails", func(int64) (string, error) { return "", errors.New("boom") }, nil},
		{"empty response", func(int64) (string, error) { return " ", nil }, apperr.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.SaveResponseFunc(ctx, tt.render)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			var n int
			require.NoError(t, s.DB.DB.GetContext(ctx, &n, "SELECT COUNT(*) FROM response_history"))
			assert.Equal(t, 1, n)
		})
	}
}

func TestRunInTxWrapsCommitError(t *testing.T) {
	s := newTestStore(t)
	err := s.RunInTx(context.Background(), func(tx *Store) error {
		return tx.tx.Commit()
	})
	assert.ErrorIs(t, err, apperr.ErrDatabase)
	assert.ErrorIs(t, err, sql.ErrTxDone)
}
