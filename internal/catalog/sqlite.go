// Package catalog keeps a queryable SQLite record of what each job decided.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"stubgen/internal/symbol"
)

// ErrNotFound is returned when a job or entry has no stored record.
var ErrNotFound = errors.New("not found in catalog")

type SQLiteCatalog struct {
	db *sql.DB
}

var _ Catalog = (*SQLiteCatalog)(nil)

// NewSQLiteCatalog creates or opens a SQLite database.
func NewSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	c := &SQLiteCatalog{db: db}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return c, nil
}

func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

func (c *SQLiteCatalog) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			job TEXT PRIMARY KEY,
			output TEXT,
			artifact TEXT,
			digest TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS dispositions (
			job TEXT,
			name TEXT,
			base TEXT,
			kind TEXT,
			companion INTEGER,
			origin TEXT,
			signature JSON,
			disposition TEXT,
			target TEXT,
			reason TEXT,
			rule TEXT,
			note TEXT,
			PRIMARY KEY (job, name)
		);`,
		`CREATE TABLE IF NOT EXISTS inventory (
			job TEXT,
			name TEXT,
			PRIMARY KEY (job, name)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_dispositions_kind ON dispositions(job, disposition);`,
	}

	for _, q := range queries {
		if _, err := c.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun replaces the job's previous snapshot inside one transaction.
func (c *SQLiteCatalog) SaveRun(ctx context.Context, run Run) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM dispositions WHERE job = ?",
		"DELETE FROM inventory WHERE job = ?",
	} {
		if _, err := tx.ExecContext(ctx, q, run.Job); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (job, output, artifact, digest) VALUES (?, ?, ?, ?)
		ON CONFLICT(job) DO UPDATE SET
			output=excluded.output,
			artifact=excluded.artifact,
			digest=excluded.digest
	`, run.Job, run.Output, run.Artifact, run.Digest); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dispositions (job, name, base, kind, companion, origin, signature, disposition, target, reason, rule, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range run.Dispositions {
		e := d.Entry
		var sig []byte
		if e.Signature != nil {
			if sig, err = json.Marshal(e.Signature); err != nil {
				return err
			}
		}
		if _, err := stmt.ExecContext(ctx, run.Job, e.Name, e.Base, string(e.Kind), e.Companion, e.Origin, sig,
			string(d.Kind), d.Target, string(d.Reason), d.Rule, d.Note); err != nil {
			return fmt.Errorf("save %s: %w", e.Name, err)
		}
	}

	invStmt, err := tx.PrepareContext(ctx, `INSERT INTO inventory (job, name) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer invStmt.Close()

	for _, name := range run.Inventory.Sorted() {
		if _, err := invStmt.ExecContext(ctx, run.Job, name); err != nil {
			return err
		}
	}

	return tx.Commit()
}

const dispositionColumns = "name, base, kind, companion, origin, signature, disposition, target, reason, rule, note"

type scanner interface {
	Scan(dest ...any) error
}

func scanDisposition(row scanner) (symbol.Disposition, error) {
	var d symbol.Disposition
	var kind, disp, reason string
	var sig []byte
	if err := row.Scan(&d.Entry.Name, &d.Entry.Base, &kind, &d.Entry.Companion, &d.Entry.Origin, &sig,
		&disp, &d.Target, &reason, &d.Rule, &d.Note); err != nil {
		return d, err
	}
	d.Entry.Kind = symbol.Kind(kind)
	d.Kind = symbol.DispositionKind(disp)
	d.Reason = symbol.StubReason(reason)
	if len(sig) > 0 {
		d.Entry.Signature = &symbol.Signature{}
		if err := json.Unmarshal(sig, d.Entry.Signature); err != nil {
			return d, fmt.Errorf("decode signature of %s: %w", d.Entry.Name, err)
		}
	}
	return d, nil
}

func (c *SQLiteCatalog) LoadRun(ctx context.Context, job string) (*Run, error) {
	run := &Run{Job: job, Inventory: symbol.NewSet()}
	row := c.db.QueryRowContext(ctx, "SELECT output, artifact, digest FROM runs WHERE job = ?", job)
	if err := row.Scan(&run.Output, &run.Artifact, &run.Digest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", job, ErrNotFound)
		}
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, "SELECT "+dispositionColumns+" FROM dispositions WHERE job = ? ORDER BY name", job)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispositions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanDisposition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan disposition: %w", err)
		}
		run.Dispositions = append(run.Dispositions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	invRows, err := c.db.QueryContext(ctx, "SELECT name FROM inventory WHERE job = ?", job)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}
	defer invRows.Close()

	for invRows.Next() {
		var name string
		if err := invRows.Scan(&name); err != nil {
			return nil, err
		}
		run.Inventory.Add(name)
	}
	return run, invRows.Err()
}

func (c *SQLiteCatalog) FindDisposition(ctx context.Context, job string, name symbol.Name) (*symbol.Disposition, error) {
	row := c.db.QueryRowContext(ctx, "SELECT "+dispositionColumns+" FROM dispositions WHERE job = ? AND name = ?", job, name)
	d, err := scanDisposition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s in job %s: %w", name, job, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *SQLiteCatalog) Jobs(ctx context.Context) ([]JobSummary, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT r.job, r.output, r.artifact, r.digest,
			(SELECT COUNT(*) FROM inventory i WHERE i.job = r.job),
			(SELECT COUNT(*) FROM dispositions d WHERE d.job = r.job AND d.disposition = ?),
			(SELECT COUNT(*) FROM dispositions d WHERE d.job = r.job AND d.disposition = ?),
			(SELECT COUNT(*) FROM dispositions d WHERE d.job = r.job AND d.disposition = ?)
		FROM runs r ORDER BY r.job
	`, string(symbol.Satisfied), string(symbol.Forward), string(symbol.Stub))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobSummary
	for rows.Next() {
		var s JobSummary
		if err := rows.Scan(&s.Job, &s.Output, &s.Artifact, &s.Digest, &s.Inventory, &s.Satisfied, &s.Forwarded, &s.Stubbed); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
