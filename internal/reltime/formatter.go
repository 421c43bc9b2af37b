package reltime

import (
	"fmt"
	"time"

	"github.com/aaafuria/furia-feed/internal/clock"
)

// Formatter owns both halves of the display rule: the bucketed phrase and
// the absolute fallback. It is safe for concurrent use.
type Formatter struct {
	clock    clock.Clock
	table    Table
	absolute *Absolute
}

// New returns a Formatter reading "now" from clk.
func New(clk clock.Clock, table Table) (*Formatter, error) {
	if len(table.mags) == 0 {
		return nil, ErrNoBuckets
	}
	abs, err := NewAbsolute()
	if err != nil {
		return nil, fmt.Errorf("creating absolute formatter: %w", err)
	}
	return &Formatter{clock: clk, table: table, absolute: abs}, nil
}

// Table returns the bucket table in use.
func (f *Formatter) Table() Table { return f.table }

// Relative returns the short phrase for t, or ok == false when t is too old.
func (f *Formatter) Relative(t time.Time) (string, bool) {
	if t.IsZero() {
		return "", false
	}
	return Format(f.clock.Now(), t, f.table)
}

// Render returns the short phrase when one applies and the absolute
// timestamp otherwise. The result is never empty.
func (f *Formatter) Render(t time.Time) string {
	s, _ := f.RenderKind(t)
	return s
}

// RenderKind is Render that also reports whether the relative phrase was
// used.
func (f *Formatter) RenderKind(t time.Time) (s string, relative bool) {
	if s, ok := f.Relative(t); ok {
		return s, true
	}
	return f.absolute.Format(t), false
}

// RelativeValue is Relative for loosely typed input (see Millis).
func (f *Formatter) RelativeValue(v any) (string, bool) {
	return FormatMillis(float64(f.clock.Now().UnixMilli()), Millis(v), f.table)
}

// RenderValue is Render for loosely typed input. Unreadable values render
// InvalidDate.
func (f *Formatter) RenderValue(v any) string {
	s, _ := f.RenderValueKind(v)
	return s
}

// RenderValueKind is RenderValue that also reports whether the relative
// phrase was used. Both answers come from a single reading of the clock.
func (f *Formatter) RenderValueKind(v any) (s string, relative bool) {
	ms := Millis(v)
	if s, ok := FormatMillis(float64(f.clock.Now().UnixMilli()), ms, f.table); ok {
		return s, true
	}
	return f.absolute.FormatMillis(ms), false
}

var std = func() *Formatter {
	f, err := New(clock.Real{}, Extended())
	if err != nil {
		panic(err)
	}
	return f
}()

// Since renders t against the system clock with the Extended table.
func Since(t time.Time) string {
	return std.Render(t)
}
