package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/xtxerr/meteolog/internal/errors"
	"github.com/xtxerr/meteolog/internal/reading"
)

// Conn is a dedicated database connection checked out of the pool. All
// methods are safe for the single goroutine that owns the checkout.
type Conn struct {
	sc *sql.Conn
}

// InsertReading stores one reading. The timestamp is persisted at
// millisecond resolution in UTC.
func (c *Conn) InsertReading(ctx context.Context, r reading.Reading) error {
	const q = `INSERT INTO readings (timestamp, temperature, sensor_id, created_at) VALUES (?, ?, ?, ?)`

	_, err := c.sc.ExecContext(ctx, q,
		r.Timestamp.UTC().UnixMilli(),
		r.Temperature,
		r.SensorID,
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return errors.NewStorage("insert reading", err)
	}
	return nil
}

// InsertReadings stores a batch of readings in a single transaction.
// Either all of them are persisted or none.
func (c *Conn) InsertReadings(ctx context.Context, rs []reading.Reading) error {
	if len(rs) == 0 {
		return nil
	}

	tx, err := c.sc.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorage("begin batch insert", err)
	}

	const q = `INSERT INTO readings (timestamp, temperature, sensor_id, created_at) VALUES (?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		tx.Rollback()
		return errors.NewStorage("prepare batch insert", err)
	}

	createdAt := time.Now().UTC().UnixMilli()
	for _, r := range rs {
		if _, err := stmt.ExecContext(ctx,
			r.Timestamp.UTC().UnixMilli(),
			r.Temperature,
			r.SensorID,
			createdAt,
		); err != nil {
			stmt.Close()
			tx.Rollback()
			return errors.NewStorage("insert batch reading", err)
		}
	}

	if err := stmt.Close(); err != nil {
		tx.Rollback()
		return errors.NewStorage("close batch statement", err)
	}
	if err := tx.Commit(); err != nil {
		return errors.NewStorage("commit batch insert", err)
	}
	return nil
}

// ReadingsBetween returns all readings with start <= timestamp <= end in
// ascending timestamp order.
func (c *Conn) ReadingsBetween(ctx context.Context, start, end time.Time) ([]reading.Reading, error) {
	const q = `
		SELECT timestamp, temperature, sensor_id
		FROM readings
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp`

	rows, err := c.sc.QueryContext(ctx, q, start.UTC().UnixMilli(), end.UTC().UnixMilli())
	if err != nil {
		return nil, errors.NewStorage("query range", err)
	}
	defer rows.Close()

	return scanReadings(rows)
}

// AverageBetween computes the mean temperature over start <= timestamp <= end
// in the database. The average is nil when the window holds no readings.
func (c *Conn) AverageBetween(ctx context.Context, start, end time.Time) (*float64, int64, error) {
	const q = `
		SELECT AVG(temperature), COUNT(*)
		FROM readings
		WHERE timestamp >= ? AND timestamp <= ?`

	var avg sql.NullFloat64
	var count int64
	err := c.sc.QueryRowContext(ctx, q, start.UTC().UnixMilli(), end.UTC().UnixMilli()).Scan(&avg, &count)
	if err != nil {
		return nil, 0, errors.NewStorage("query average", err)
	}

	if !avg.Valid {
		return nil, count, nil
	}
	v := avg.Float64
	return &v, count, nil
}

// RecentReadings returns the newest readings by timestamp, newest first.
func (c *Conn) RecentReadings(ctx context.Context, limit int) ([]reading.Reading, error) {
	const q = `
		SELECT timestamp, temperature, sensor_id
		FROM readings
		ORDER BY timestamp DESC
		LIMIT ?`

	rows, err := c.sc.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, errors.NewStorage("query recent", err)
	}
	defer rows.Close()

	return scanReadings(rows)
}

// LatestReading returns the single newest reading. The second return is
// false when the table is empty.
func (c *Conn) LatestReading(ctx context.Context) (reading.Reading, bool, error) {
	const q = `
		SELECT timestamp, temperature, sensor_id
		FROM readings
		ORDER BY timestamp DESC
		LIMIT 1`

	var ms int64
	var r reading.Reading
	err := c.sc.QueryRowContext(ctx, q).Scan(&ms, &r.Temperature, &r.SensorID)
	if err == sql.ErrNoRows {
		return reading.Reading{}, false, nil
	}
	if err != nil {
		return reading.Reading{}, false, errors.NewStorage("query latest", err)
	}
	r.Timestamp = time.UnixMilli(ms).UTC()
	return r, true, nil
}

// CountAll returns the total number of stored readings.
func (c *Conn) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := c.sc.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings`).Scan(&count)
	if err != nil {
		return 0, errors.NewStorage("count readings", err)
	}
	return count, nil
}

// DeleteAll removes every reading and reports how many were deleted.
func (c *Conn) DeleteAll(ctx context.Context) (int64, error) {
	res, err := c.sc.ExecContext(ctx, `DELETE FROM readings`)
	if err != nil {
		return 0, errors.NewStorage("delete readings", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		// DuckDB reports affected rows; treat a missing count as zero.
		return 0, nil
	}
	return n, nil
}

// Ping verifies the connection is still usable.
func (c *Conn) Ping(ctx context.Context) error {
	if err := c.sc.PingContext(ctx); err != nil {
		return errors.NewStorage("ping", err)
	}
	return nil
}

func scanReadings(rows *sql.Rows) ([]reading.Reading, error) {
	var out []reading.Reading
	for rows.Next() {
		var ms int64
		var r reading.Reading
		if err := rows.Scan(&ms, &r.Temperature, &r.SensorID); err != nil {
			return nil, errors.NewStorage("scan reading", err)
		}
		r.Timestamp = time.UnixMilli(ms).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage("iterate readings", err)
	}
	return out, nil
}
