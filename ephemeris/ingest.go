package ephemeris

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/adonese/kaos/apperr"
	"github.com/adonese/kaos/kaos_fields"
	"github.com/adonese/kaos/store"
	"github.com/adonese/kaos/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Result summarises one ingested file.
type Result struct {
	Satellite kaos_fields.Satellite
	Segments  int
	Skipped   int
	Records   int
}

// Ingest parses r and stores it as a new satellite named after filename.
// Segments overlapping an already stored segment of the same satellite are
// skipped. Everything is written in one transaction.
func Ingest(ctx context.Context, st *store.Store, filename string, r io.Reader, logger *logrus.Logger) (*Result, error) {
	ctx, span := otel.Tracer("kaos/ephemeris").Start(ctx, "ephemeris.Ingest")
	defer span.End()
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	eph, err := Parse(utils.FileStem(filename), r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse")
		return nil, err
	}

	res := &Result{}
	err = st.RunInTx(ctx, func(tx *store.Store) error {
		sat := kaos_fields.Satellite{
			PlatformName:     eph.Name,
			CoordinateSystem: eph.CoordinateSystem,
		}
		if err := tx.CreateSatellite(ctx, &sat); err != nil {
			return err
		}
		for _, records := range eph.Segments {
			_, err := tx.AddSegment(ctx, sat.PlatformID, records)
			if errors.Is(err, apperr.ErrConflict) {
				res.Skipped++
				logger.WithFields(logrus.Fields{
					"platform_id": sat.PlatformID,
					"start":       records[0].Time,
					"end":         records[len(records)-1].Time,
				}).Warn("skipping overlapping segment")
				continue
			}
			if err != nil {
				return err
			}
			res.Segments++
			res.Records += len(records)
		}
		if err := tx.UpdateMaximumAltitude(ctx, sat.PlatformID, eph.MaximumAltitude); err != nil {
			return err
		}
		sat.MaximumAltitude = eph.MaximumAltitude
		res.Satellite = sat
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store")
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("kaos.platform_id", res.Satellite.PlatformID),
		attribute.Int("kaos.segments", res.Segments),
		attribute.Int("kaos.records", res.Records),
	)
	logger.WithFields(logrus.Fields{
		"platform_id":      res.Satellite.PlatformID,
		"platform_name":    res.Satellite.PlatformName,
		"segments":         res.Segments,
		"skipped":          res.Skipped,
		"records":          res.Records,
		"maximum_altitude": res.Satellite.MaximumAltitude,
	}).Info("ingested ephemeris")
	return res, nil
}

// IngestFile ingests the ephemeris file at path.
func IngestFile(ctx context.Context, st *store.Store, path string, logger *logrus.Logger) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Ingest(ctx, st, path, f, logger)
}
