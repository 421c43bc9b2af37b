package reltime

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Errors returned when building a custom Table.
var (
	ErrNoBuckets      = errors.New("relative time table has no buckets")
	ErrBucketOrder    = errors.New("bucket bounds must be positive and strictly ascending")
	ErrBucketSeconds  = errors.New("bucket bounds must be whole seconds")
	ErrBucketFormat   = errors.New("bucket format may only contain a single %d verb")
	ErrBucketUnit     = errors.New("bucket with %d needs a positive unit")
	ErrUnknownTable   = errors.New("unknown relative time table")
	errTableNameEmpty = errors.New("table name is empty")
)

// Bucket is one row of a Table. Deltas below Below (and at or past the
// previous bucket's bound) render Format, with %d replaced by delta/Unit.
type Bucket struct {
	Below  time.Duration
	Format string
	Unit   time.Duration
}

// Table is an ordered, immutable bucket table.
type Table struct {
	name string
	mags []humanize.RelTimeMagnitude
}

// Names of the built-in tables.
const (
	TableExtended = "extended"
	TableLegacy   = "legacy"
)

var legacyBuckets = []Bucket{
	{Below: 30 * time.Second, Format: "agora há pouco"},
	{Below: time.Minute, Format: "%d há poucos segundos", Unit: time.Second},
	{Below: 2 * time.Minute, Format: "há um minuto"},
	{Below: time.Hour, Format: "há %d minutos", Unit: time.Minute},
	{Below: 2 * time.Hour, Format: "há 1 hora"},
	{Below: 24 * time.Hour, Format: "há %d horas", Unit: time.Hour},
}

var (
	legacy   = mustTable(TableLegacy, legacyBuckets...)
	extended = mustTable(TableExtended, append(append([]Bucket(nil), legacyBuckets...),
		Bucket{Below: 48 * time.Hour, Format: "ontem"},
	)...)
)

// Extended is the canonical table: the legacy buckets plus "ontem" for the
// second day.
func Extended() Table { return extended }

// Legacy stops at one day.
func Legacy() Table { return legacy }

// TableByName returns a built-in table.
func TableByName(name string) (Table, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case TableExtended, "":
		return extended, nil
	case TableLegacy:
		return legacy, nil
	default:
		return Table{}, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
}

// NewTable builds a custom table from ascending buckets. Deltas are counted
// in whole seconds, so bounds must be too.
func NewTable(name string, buckets ...Bucket) (Table, error) {
	if name == "" {
		return Table{}, errTableNameEmpty
	}
	if len(buckets) == 0 {
		return Table{}, ErrNoBuckets
	}

	mags := make([]humanize.RelTimeMagnitude, 0, len(buckets))
	var prev time.Duration
	for i, b := range buckets {
		if b.Below <= prev {
			return Table{}, fmt.Errorf("bucket %d (%s): %w", i, b.Below, ErrBucketOrder)
		}
		if b.Below%time.Second != 0 {
			return Table{}, fmt.Errorf("bucket %d (%s): %w", i, b.Below, ErrBucketSeconds)
		}
		prev = b.Below

		verbs, err := countVerbs(b.Format)
		if err != nil {
			return Table{}, fmt.Errorf("bucket %d (%q): %w", i, b.Format, err)
		}
		unit := b.Unit
		if verbs == 1 && unit <= 0 {
			return Table{}, fmt.Errorf("bucket %d (%q): %w", i, b.Format, ErrBucketUnit)
		}
		if unit <= 0 {
			unit = 1
		}
		mags = append(mags, humanize.RelTimeMagnitude{D: b.Below, Format: b.Format, DivBy: unit})
	}
	return Table{name: name, mags: mags}, nil
}

func mustTable(name string, buckets ...Bucket) Table {
	t, err := NewTable(name, buckets...)
	if err != nil {
		panic(err)
	}
	return t
}

// countVerbs accepts "%%" escapes and at most one "%d".
func countVerbs(format string) (int, error) {
	n := 0
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		if i+1 >= len(format) {
			return 0, ErrBucketFormat
		}
		i++
		switch format[i] {
		case '%':
		case 'd':
			n++
		default:
			return 0, ErrBucketFormat
		}
	}
	if n > 1 {
		return 0, ErrBucketFormat
	}
	return n, nil
}

// Name identifies the table in config and logs.
func (t Table) Name() string { return t.name }

// Limit is the first delta that no bucket covers.
func (t Table) Limit() time.Duration {
	if len(t.mags) == 0 {
		return 0
	}
	return t.mags[len(t.mags)-1].D
}

// Buckets returns a copy of the table rows.
func (t Table) Buckets() []Bucket {
	out := make([]Bucket, len(t.mags))
	for i, m := range t.mags {
		unit := m.DivBy
		if unit == 1 {
			unit = 0
		}
		out[i] = Bucket{Below: m.D, Format: m.Format, Unit: unit}
	}
	return out
}
