package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/adonese/kaos/kaos_fields"
	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(backfillUp, backfillDown)
}

// backfillUp upgrades databases written before the coordinate system was
// recorded, and fills in maximum altitudes that were never computed.
func backfillUp(ctx context.Context, tx *sql.Tx) error {
	driver := migrationDriver
	if driver == "" {
		driver = DriverSQLite
	}

	colDef := fmt.Sprintf("TEXT NOT NULL DEFAULT '%s'", kaos_fields.FrameInertial)
	if err := ensureColumn(ctx, tx, "satellites", "coordinate_system", colDef, driver); err != nil {
		return err
	}
	return backfillMaximumAltitude(ctx, tx, driver)
}

func backfillDown(ctx context.Context, tx *sql.Tx) error {
	_ = ctx
	_ = tx
	return nil
}

func backfillMaximumAltitude(ctx context.Context, tx *sql.Tx, driver string) error {
	ok, err := tableExists(ctx, tx, "orbit_records", driver)
	if err != nil || !ok {
		return err
	}
	rows, err := tx.QueryContext(ctx, `SELECT s.platform_id, MAX(r.pos_x*r.pos_x + r.pos_y*r.pos_y + r.pos_z*r.pos_z)
		FROM satellites s JOIN orbit_records r ON r.platform_id = s.platform_id
		WHERE s.maximum_altitude IS NULL OR s.maximum_altitude = 0
		GROUP BY s.platform_id`)
	if err != nil {
		return err
	}
	altitudes := map[int64]float64{}
	for rows.Next() {
		var id int64
		var sq sql.NullFloat64
		if err := rows.Scan(&id, &sq); err != nil {
			rows.Close()
			return err
		}
		if sq.Valid {
			altitudes[id] = math.Sqrt(sq.Float64)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	stmt := "UPDATE satellites SET maximum_altitude = ? WHERE platform_id = ?"
	if driver == DriverPostgres {
		stmt = "UPDATE satellites SET maximum_altitude = $1 WHERE platform_id = $2"
	}
	for id, alt := range altitudes {
		if _, err := tx.ExecContext(ctx, stmt, alt, id); err != nil {
			return err
		}
	}
	return nil
}

func ensureColumn(ctx context.Context, tx *sql.Tx, table, column, columnDef, driver string) error {
	ok, err := tableExists(ctx, tx, table, driver)
	if err != nil || !ok {
		return err
	}
	exists, err := columnExists(ctx, tx, table, column, driver)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, columnDef)
	_, err = tx.ExecContext(ctx, stmt)
	return err
}

func tableExists(ctx context.Context, tx *sql.Tx, table, driver string) (bool, error) {
	switch driver {
	case DriverPostgres:
		var exists bool
		err := tx.QueryRowContext(ctx, `SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)`, table).Scan(&exists)
		return exists, err
	default:
		var name string
		err := tx.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name = ?`, table).Scan(&name)
		if err == sql.ErrNoRows {
			return false, nil
		}
		return err == nil, err
	}
}

func columnExists(ctx context.Context, tx *sql.Tx, table, column, driver string) (bool, error) {
	switch driver {
	case DriverPostgres:
		var exists bool
		err := tx.QueryRowContext(ctx, `SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2
		)`, table, column).Scan(&exists)
		return exists, err
	default:
		rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
		if err != nil {
			return false, err
		}
		defer rows.Close()
		for rows.Next() {
			var cid int
			var name string
			var ctype string
			var notnull int
			var dflt sql.NullString
			var pk int
			if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
				return false, err
			}
			if name == column {
				return true, nil
			}
		}
		return false, rows.Err()
	}
}
