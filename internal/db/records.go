package db

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/banshee-data/listeria.report/internal/samples"
)

const recordColumns = `id, sample_date, test_result, value, sub_area, before_during,
	fresh_smoked, week, point, location_code, x, y, description`

var _ samples.Store = (*DB)(nil)

// InsertRecords upserts records in one transaction. Records without an ID
// are given a random UUID. It returns the number of rows written.
func (db *DB) InsertRecords(ctx context.Context, records []samples.Record) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO samples (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		var date sql.NullString
		if r.SampleDate.Valid() {
			date = sql.NullString{String: r.SampleDate.String(), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			id, date, r.TestResult, nullFloat(r.Value), r.SubArea, r.BeforeDuring,
			r.FreshSmoked, r.Week, r.Point, r.LocationCode, nullFloat(r.X), nullFloat(r.Y), r.Description,
		); err != nil {
			return 0, fmt.Errorf("failed to insert record %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}
	return len(records), nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil || math.IsNaN(*f) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// Query returns every record matching f in insertion order.
func (db *DB) Query(ctx context.Context, f samples.Filter) ([]samples.Record, error) {
	var where []string
	var args []any
	if f.RequireLocation {
		where = append(where, "x IS NOT NULL", "y IS NOT NULL")
	}
	if f.FreshSmoked != "" {
		where = append(where, "fresh_smoked = ?")
		args = append(args, f.FreshSmoked)
	}
	if f.BeforeDuring != "" {
		where = append(where, "before_during = ?")
		args = append(args, f.BeforeDuring)
	}

	q := "SELECT " + recordColumns + " FROM samples"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY rowid"

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var out []samples.Record
	for rows.Next() {
		var (
			r        samples.Record
			date     sql.NullString
			value, x sql.NullFloat64
			y        sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &date, &r.TestResult, &value, &r.SubArea, &r.BeforeDuring,
			&r.FreshSmoked, &r.Week, &r.Point, &r.LocationCode, &x, &y, &r.Description); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		if date.Valid {
			if d, err := samples.ParseSampleDate(date.String); err == nil {
				r.SampleDate = d
			}
		}
		r.Value, r.X, r.Y = floatPtr(value), floatPtr(x), floatPtr(y)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountRecords returns the number of stored records.
func (db *DB) CountRecords(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM samples").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count samples: %w", err)
	}
	return n, nil
}

// DeleteAllRecords empties the samples table ahead of a full re-import.
func (db *DB) DeleteAllRecords(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM samples")
	if err != nil {
		return 0, fmt.Errorf("failed to delete samples: %w", err)
	}
	return res.RowsAffected()
}
