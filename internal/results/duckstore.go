package results

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/marcboeker/go-duckdb"

	"github.com/pdf-extractor/backend/internal/models"
)

// DuckOptions tunes the DuckDB connection.
type DuckOptions struct {
	MemoryLimit string
	Threads     int
}

// DuckStore persists result sets in a DuckDB file.
type DuckStore struct {
	db     *sql.DB
	dbPath string
	logger hclog.Logger
}

// NewDuckStore opens (or creates) the database at dbPath.
func NewDuckStore(dbPath string, opts DuckOptions, logger hclog.Logger) (*DuckStore, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if opts.MemoryLimit == "" {
		opts.MemoryLimit = "256MB"
	}
	if opts.Threads <= 0 {
		opts.Threads = 2
	}

	logger.Debug("opening results database", "path", dbPath)

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit),
			fmt.Sprintf("PRAGMA threads=%d", opts.Threads),
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	schema := []string{
		`CREATE TABLE IF NOT EXISTS result_sets (
			token      VARCHAR NOT NULL,
			query      VARCHAR NOT NULL,
			combined   VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS result_records (
			token       VARCHAR NOT NULL,
			position    INTEGER NOT NULL,
			document_id VARCHAR NOT NULL,
			name        VARCHAR NOT NULL,
			kind        VARCHAR NOT NULL,
			url         VARCHAR,
			data        VARCHAR NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}

	return &DuckStore{db: db, dbPath: dbPath, logger: logger}, nil
}

// Save writes a result set, replacing any previous set with the same token.
func (s *DuckStore) Save(ctx context.Context, set *models.ResultSet) error {
	if set == nil || set.Token == "" {
		return fmt.Errorf("result set has no token")
	}

	combined, err := json.Marshal(nonNil(set.Combined))
	if err != nil {
		return fmt.Errorf("encoding combined record: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := deleteToken(ctx, tx, set.Token); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO result_sets (token, query, combined, created_at) VALUES (?, ?, ?, ?)`,
		set.Token, set.Query, string(combined), set.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("inserting result set: %w", err)
	}

	for i, d := range set.Documents {
		data, err := json.Marshal(nonNil(d.Data))
		if err != nil {
			return fmt.Errorf("encoding record for %s: %w", d.DocumentID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO result_records (token, position, document_id, name, kind, url, data) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			set.Token, i, d.DocumentID, d.Name, string(d.Kind), d.URL, string(data),
		); err != nil {
			return fmt.Errorf("inserting record for %s: %w", d.DocumentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("result set saved", "token", set.Token, "documents", len(set.Documents))
	return nil
}

// Load reads a result set by token.
func (s *DuckStore) Load(ctx context.Context, token string) (*models.ResultSet, error) {
	set := &models.ResultSet{Token: token}

	var combined string
	err := s.db.QueryRowContext(ctx,
		`SELECT query, combined, created_at FROM result_sets WHERE token = ?`, token,
	).Scan(&set.Query, &combined, &set.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, token)
	}
	if err != nil {
		return nil, fmt.Errorf("loading result set: %w", err)
	}
	if err := json.Unmarshal([]byte(combined), &set.Combined); err != nil {
		return nil, fmt.Errorf("decoding combined record: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, name, kind, url, data FROM result_records WHERE token = ? ORDER BY position`, token)
	if err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}
	defer rows.Close()

	set.Documents = []models.DocumentResult{}
	for rows.Next() {
		var (
			d    models.DocumentResult
			kind string
			url  sql.NullString
			data string
		)
		if err := rows.Scan(&d.DocumentID, &d.Name, &kind, &url, &data); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		d.Kind = models.DocumentKind(kind)
		d.URL = url.String
		if err := json.Unmarshal([]byte(data), &d.Data); err != nil {
			return nil, fmt.Errorf("decoding record for %s: %w", d.DocumentID, err)
		}
		set.Documents = append(set.Documents, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return set, nil
}

// Delete removes a result set.
func (s *DuckStore) Delete(ctx context.Context, token string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := deleteToken(ctx, tx, token); err != nil {
		return err
	}
	return tx.Commit()
}

// Prune drops result sets created before cutoff.
func (s *DuckStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM result_records WHERE token IN (SELECT token FROM result_sets WHERE created_at < ?)`,
		cutoff.UTC(),
	); err != nil {
		return 0, fmt.Errorf("pruning records: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM result_sets WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("pruning result sets: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the database.
func (s *DuckStore) Close() error {
	return s.db.Close()
}

func deleteToken(ctx context.Context, tx *sql.Tx, token string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM result_records WHERE token = ?`, token); err != nil {
		return fmt.Errorf("deleting records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM result_sets WHERE token = ?`, token); err != nil {
		return fmt.Errorf("deleting result set: %w", err)
	}
	return nil
}

func nonNil(r models.Record) models.Record {
	if r == nil {
		return models.Record{}
	}
	return r
}
