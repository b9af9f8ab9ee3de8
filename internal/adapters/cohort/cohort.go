// Package cohort persists historical patient outcomes per risk tier. The
// service fits one Kaplan-Meier estimator per stored tier at startup.
package cohort

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/okian/survcast/internal/adapters/tabular"
	"github.com/okian/survcast/internal/domain/kaplanmeier"
	"github.com/okian/survcast/internal/domain/risk"
)

// Errors returned by stores and parsers.
var (
	ErrInvalidRecord = errors.New("invalid cohort record")
	ErrUnknownDriver = errors.New("unknown cohort driver")
)

// Drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Columns of a cohort import file and of the cohort_records table.
var Columns = []string{"patient_id", "risk_group", "duration_months", "event"}

// Record is one historical patient outcome.
type Record struct {
	PatientID      string
	Tier           risk.Tier
	DurationMonths float64
	Event          bool
}

// Validate checks a record before it is stored.
func (r Record) Validate() error {
	switch {
	case strings.TrimSpace(r.PatientID) == "":
		return fmt.Errorf("%w: empty patient_id", ErrInvalidRecord)
	case !r.Tier.Valid():
		return fmt.Errorf("%w: %s has unknown risk_group %q", ErrInvalidRecord, r.PatientID, r.Tier)
	case r.DurationMonths < 0 || math.IsNaN(r.DurationMonths) || math.IsInf(r.DurationMonths, 0):
		return fmt.Errorf("%w: %s has duration %v", ErrInvalidRecord, r.PatientID, r.DurationMonths)
	}
	return nil
}

// Store reads and writes cohort records.
type Store interface {
	Migrate(ctx context.Context) error
	// Import appends records and returns how many were written.
	Import(ctx context.Context, records []Record) (int64, error)
	// LoadTier returns every stored outcome of tier as a KM group labelled
	// with the tier name.
	LoadTier(ctx context.Context, tier risk.Tier) (kaplanmeier.Group, error)
	// Counts returns the number of stored records per tier.
	Counts(ctx context.Context) (map[risk.Tier]int, error)
	Close() error
}

// Open connects to the store selected by driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	var (
		s   Store
		err error
	)
	switch driver {
	case DriverSQLite:
		s, err = NewSQLite(dsn)
	case DriverPostgres:
		s, err = ConnectPostgres(ctx, dsn)
	default:
		return nil, eris.Wrapf(ErrUnknownDriver, "cohort: %q", driver)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ParseRecords converts an import table. Event accepts 1/0, true/false and
// yes/no.
func ParseRecords(t tabular.Table) ([]Record, error) {
	for _, c := range Columns {
		if !t.Has(c) {
			return nil, fmt.Errorf("%w: missing column %s", ErrInvalidRecord, c)
		}
	}
	out := make([]Record, 0, len(t.Records))
	for i, row := range t.Records {
		d, err := strconv.ParseFloat(row["duration_months"], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d duration_months %q", ErrInvalidRecord, i+1, row["duration_months"])
		}
		ev, err := parseEvent(row["event"])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrInvalidRecord, i+1, err)
		}
		r := Record{
			PatientID:      row["patient_id"],
			Tier:           risk.Tier(strings.ToLower(row["risk_group"])),
			DurationMonths: d,
			Event:          ev,
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func parseEvent(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y":
		return true, nil
	case "0", "false", "no", "n":
		return false, nil
	}
	return false, fmt.Errorf("event %q is not boolean", s)
}

func eventInt(ev bool) int {
	if ev {
		return 1
	}
	return 0
}
