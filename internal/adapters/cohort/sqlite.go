package cohort

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/okian/survcast/internal/domain/kaplanmeier"
	"github.com/okian/survcast/internal/domain/risk"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at dsn and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "cohort sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "cohort sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS cohort_records (
	patient_id      TEXT NOT NULL,
	risk_group      TEXT NOT NULL,
	duration_months REAL NOT NULL,
	event           INTEGER NOT NULL,
	imported_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_cohort_records_risk_group ON cohort_records(risk_group);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "cohort sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Import writes records in one transaction.
func (s *SQLiteStore) Import(ctx context.Context, records []Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return 0, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "cohort sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cohort_records (patient_id, risk_group, duration_months, event) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "cohort sqlite: prepare insert")
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.PatientID, string(r.Tier), r.DurationMonths, eventInt(r.Event)); err != nil {
			return 0, eris.Wrapf(err, "cohort sqlite: insert %s", r.PatientID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "cohort sqlite: commit")
	}
	return int64(len(records)), nil
}

// LoadTier implements Store.
func (s *SQLiteStore) LoadTier(ctx context.Context, tier risk.Tier) (kaplanmeier.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT duration_months, event FROM cohort_records WHERE risk_group = ? ORDER BY duration_months, patient_id`,
		string(tier),
	)
	if err != nil {
		return kaplanmeier.Group{}, eris.Wrapf(err, "cohort sqlite: query tier %s", tier)
	}
	defer rows.Close()

	g := kaplanmeier.Group{Label: string(tier)}
	for rows.Next() {
		var (
			d  float64
			ev int
		)
		if err := rows.Scan(&d, &ev); err != nil {
			return kaplanmeier.Group{}, eris.Wrap(err, "cohort sqlite: scan")
		}
		g.Durations = append(g.Durations, d)
		g.Events = append(g.Events, ev)
	}
	return g, eris.Wrap(rows.Err(), "cohort sqlite: iterate")
}

// Counts implements Store.
func (s *SQLiteStore) Counts(ctx context.Context) (map[risk.Tier]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT risk_group, COUNT(*) FROM cohort_records GROUP BY risk_group`)
	if err != nil {
		return nil, eris.Wrap(err, "cohort sqlite: count")
	}
	defer rows.Close()

	out := make(map[risk.Tier]int)
	for rows.Next() {
		var (
			tier string
			n    int
		)
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, eris.Wrap(err, "cohort sqlite: scan count")
		}
		out[risk.Tier(tier)] = n
	}
	return out, eris.Wrap(rows.Err(), "cohort sqlite: iterate counts")
}
