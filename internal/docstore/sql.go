package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// SQLStore keeps documents in a single (collection, id, fields-JSON)
// table. Predicates are evaluated client-side with the same matcher the
// memory backend uses, so every backend resolves a query identically; the
// collection scan itself is narrowed by pushing equality predicates into
// SQL.
type SQLStore struct {
	db     *sql.DB
	driver Driver
}

// OpenSQL opens the database and ensures the schema exists.
func OpenSQL(ctx context.Context, driver Driver, dsn string) (*SQLStore, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite"
		if dsn == "" {
			dsn = "file:openclass.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx"
		if dsn == "" {
			dsn = "postgres://localhost:5432/openclass?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schemaDocuments); err != nil {
		return nil, err
	}
	return &SQLStore{db: db, driver: driver}, nil
}

const schemaDocuments = `
CREATE TABLE IF NOT EXISTS documents (
  collection TEXT NOT NULL,
  id TEXT NOT NULL,
  fields TEXT NOT NULL,
  updated_at BIGINT NOT NULL,
  PRIMARY KEY (collection, id)
);
`

func (s *SQLStore) Get(ctx context.Context, collection, id string) (Doc, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT fields FROM documents WHERE collection=$1 AND id=$2`, collection, id)
	var buf string
	if err := row.Scan(&buf); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Doc{}, ErrNotFound
		}
		return Doc{}, err
	}
	var f Fields
	if err := json.Unmarshal([]byte(buf), &f); err != nil {
		return Doc{}, err
	}
	return Doc{Collection: collection, ID: id, Fields: f}, nil
}

func (s *SQLStore) Set(ctx context.Context, collection, id string, fields Fields, merge bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.applyTx(ctx, tx, WriteOp{Collection: collection, ID: id, Fields: fields, Merge: merge}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection=$1 AND id=$2`, collection, id)
	return err
}

func (s *SQLStore) BatchWrite(ctx context.Context, ops []WriteOp) error {
	if err := validateBatch(ops); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, op := range ops {
		if err := s.applyTx(ctx, tx, op); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStore) applyTx(ctx context.Context, tx *sql.Tx, op WriteOp) error {
	if op.Delete {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE collection=$1 AND id=$2`, op.Collection, op.ID)
		return err
	}
	now := time.Now().Unix()
	fields := resolveTimestamps(op.Fields, now)
	if op.Merge {
		row := tx.QueryRowContext(ctx,
			`SELECT fields FROM documents WHERE collection=$1 AND id=$2`, op.Collection, op.ID)
		var buf string
		switch err := row.Scan(&buf); {
		case err == nil:
			var existing Fields
			if err := json.Unmarshal([]byte(buf), &existing); err != nil {
				return err
			}
			for k, v := range fields {
				existing[k] = v
			}
			fields = existing
		case errors.Is(err, sql.ErrNoRows):
			// merge onto a missing doc creates it
		default:
			return err
		}
	}
	buf, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (collection, id, fields, updated_at)
		 VALUES ($1,$2,$3,$4)
		 ON CONFLICT (collection, id) DO UPDATE SET fields=EXCLUDED.fields, updated_at=EXCLUDED.updated_at`,
		op.Collection, op.ID, string(buf), now)
	return err
}

func (s *SQLStore) Run(ctx context.Context, q Query) ([]Doc, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	query := `SELECT id, fields FROM documents WHERE collection=$1`
	args := []interface{}{q.Collection}
	for _, w := range q.Wheres {
		// Narrow the scan on simple string equality; everything else is
		// resolved by the shared matcher below.
		if w.Op == OpEqual && w.Field != FieldID {
			if sv, ok := w.Value.(string); ok {
				args = append(args, w.Field, sv)
				query += fmt.Sprintf(" AND %s = $%d", jsonField(s.driver, len(args)-1), len(args))
			}
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Doc
	for rows.Next() {
		var id, buf string
		if err := rows.Scan(&id, &buf); err != nil {
			return nil, err
		}
		var f Fields
		if err := json.Unmarshal([]byte(buf), &f); err != nil {
			return nil, err
		}
		if matches(id, f, q.Wheres) {
			out = append(out, Doc{Collection: q.Collection, ID: id, Fields: f})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	applyOrderLimit(&out, q)
	return out, nil
}

func jsonField(driver Driver, argIdx int) string {
	if driver == DriverPostgres {
		return fmt.Sprintf("fields::jsonb ->> $%d", argIdx)
	}
	return fmt.Sprintf("json_extract(fields, '$.' || $%d)", argIdx)
}
