package cohort

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/okian/survcast/internal/domain/kaplanmeier"
	"github.com/okian/survcast/internal/domain/risk"
)

// Pool is the subset of *pgxpool.Pool the store needs.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool  Pool
	close func()
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres wraps an existing pool. Close is a no-op; the caller owns the
// pool.
func NewPostgres(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool, close: func() {}}
}

// ConnectPostgres opens a pool for dsn. Close releases it.
func ConnectPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "cohort postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "cohort postgres: ping")
	}
	return &PostgresStore{pool: pool, close: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS cohort_records (
	patient_id      TEXT NOT NULL,
	risk_group      TEXT NOT NULL,
	duration_months DOUBLE PRECISION NOT NULL CHECK (duration_months >= 0),
	event           BOOLEAN NOT NULL,
	imported_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_cohort_records_risk_group ON cohort_records(risk_group);
`

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "cohort postgres: migrate")
}

// Close releases the pool when the store opened it.
func (s *PostgresStore) Close() error {
	s.close()
	return nil
}

// Import bulk-loads records with COPY.
func (s *PostgresStore) Import(ctx context.Context, records []Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	rows := make([][]any, len(records))
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return 0, err
		}
		rows[i] = []any{r.PatientID, string(r.Tier), r.DurationMonths, r.Event}
	}
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{"cohort_records"}, Columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrap(err, "cohort postgres: COPY INTO cohort_records")
	}
	return n, nil
}

// LoadTier implements Store.
func (s *PostgresStore) LoadTier(ctx context.Context, tier risk.Tier) (kaplanmeier.Group, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT duration_months, event FROM cohort_records WHERE risk_group = $1 ORDER BY duration_months, patient_id`,
		string(tier),
	)
	if err != nil {
		return kaplanmeier.Group{}, eris.Wrapf(err, "cohort postgres: query tier %s", tier)
	}
	defer rows.Close()

	g := kaplanmeier.Group{Label: string(tier)}
	for rows.Next() {
		var (
			d  float64
			ev bool
		)
		if err := rows.Scan(&d, &ev); err != nil {
			return kaplanmeier.Group{}, eris.Wrap(err, "cohort postgres: scan")
		}
		g.Durations = append(g.Durations, d)
		g.Events = append(g.Events, eventInt(ev))
	}
	return g, eris.Wrap(rows.Err(), "cohort postgres: iterate")
}

// Counts implements Store.
func (s *PostgresStore) Counts(ctx context.Context) (map[risk.Tier]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT risk_group, COUNT(*) FROM cohort_records GROUP BY risk_group`)
	if err != nil {
		return nil, eris.Wrap(err, "cohort postgres: count")
	}
	defer rows.Close()

	out := make(map[risk.Tier]int)
	for rows.Next() {
		var (
			tier string
			n    int64
		)
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, eris.Wrap(err, "cohort postgres: scan count")
		}
		out[risk.Tier(tier)] = int(n)
	}
	return out, eris.Wrap(rows.Err(), "cohort postgres: iterate counts")
}
