package cache

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"
)

const sqliteTable = "vegobjekter"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS vegobjekter (
	id       INTEGER PRIMARY KEY,
	name     TEXT NOT NULL,
	version  TEXT NOT NULL,
	polygon  TEXT NOT NULL,
	centroid TEXT
)`

// SQLite is a Store backed by a local single-file database.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens or creates the database at path and makes sure the
// table exists.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening cache database %s", path)
	}

	// Single writer. It also keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "error creating cache table")
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Find(ctx context.Context, id int64) (*Fence, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, version, polygon, centroid FROM "+sqliteTable+" WHERE id = ?", id)
	f, err := scanFence(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error reading fence %d", id)
	}
	return f, nil
}

func (s *SQLite) Insert(ctx context.Context, f *Fence) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO "+sqliteTable+" (id, name, version, polygon, centroid) VALUES (?, ?, ?, ?, ?)",
		f.ID, f.Name, formatVersion(f.Version), f.Polygon, nullString(formatCentroid(f.Centroid)))
	return errors.Wrapf(err, "error inserting fence %d", f.ID)
}

func (s *SQLite) Update(ctx context.Context, f *Fence) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE "+sqliteTable+" SET name = ?, version = ?, polygon = ?, centroid = ? WHERE id = ?",
		f.Name, formatVersion(f.Version), f.Polygon, nullString(formatCentroid(f.Centroid)), f.ID)
	if err != nil {
		return errors.Wrapf(err, "error updating fence %d", f.ID)
	}
	return requireAffected(res, f.ID)
}

func (s *SQLite) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+sqliteTable+" WHERE id = ?", id)
	if err != nil {
		return errors.Wrapf(err, "error deleting fence %d", id)
	}
	return requireAffected(res, id)
}

func (s *SQLite) All(ctx context.Context) ([]*Fence, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, version, polygon, centroid FROM "+sqliteTable+" ORDER BY id")
	if err != nil {
		return nil, errors.Wrap(err, "error listing fences")
	}
	defer rows.Close()

	fences := []*Fence{}
	for rows.Next() {
		f, err := scanFence(rows)
		if err != nil {
			return nil, errors.Wrap(err, "error listing fences")
		}
		fences = append(fences, f)
	}
	return fences, errors.Wrap(rows.Err(), "error listing fences")
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFence(row scanner) (*Fence, error) {
	var (
		f        = &Fence{}
		version  string
		centroid sql.NullString
	)
	if err := row.Scan(&f.ID, &f.Name, &version, &f.Polygon, &centroid); err != nil {
		return nil, err
	}
	var err error
	if f.Version, err = parseVersion(version); err != nil {
		return nil, err
	}
	if f.Centroid, err = parseCentroid(centroid.String); err != nil {
		return nil, err
	}
	return f, nil
}

func requireAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "fence %d", id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
