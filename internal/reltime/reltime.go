// Package reltime renders how long ago something happened as a short
// Brazilian Portuguese phrase ("agora há pouco", "há 5 minutos", "ontem").
//
// Deltas are bucketed by a Table. Past the table's limit there is no short
// form and the formatters report ok == false; Formatter.Render then falls back
// to an absolute pt-BR timestamp so callers always get a string to show.
package reltime

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// anchor is an arbitrary reference instant fed to humanize; only the
// difference to it matters.
var anchor = time.Unix(0, 0).UTC()

// Delta returns the whole seconds elapsed from then to now, rounding the
// millisecond difference half-up.
func Delta(now, then time.Time) int64 {
	return floorDiv(now.UnixMilli()-then.UnixMilli()+500, 1000)
}

// Format buckets the time elapsed between then and now.
func Format(now, then time.Time, t Table) (string, bool) {
	return FormatSeconds(Delta(now, then), t)
}

// FormatSeconds buckets a delta in whole seconds. Negative deltas (instants
// in the future) land in the first bucket.
func FormatSeconds(delta int64, t Table) (string, bool) {
	if delta < 0 {
		delta = 0
	}
	if len(t.mags) == 0 || delta >= int64(t.Limit()/time.Second) {
		return "", false
	}
	then := anchor.Add(-time.Duration(delta) * time.Second)
	return humanize.CustomRelTime(then, anchor, "", "", t.mags), true
}

// FormatMillis works on milliseconds since the epoch. A NaN or infinite
// operand never matches a bucket, so the result is ok == false.
func FormatMillis(nowMs, thenMs float64, t Table) (string, bool) {
	if !finite(nowMs) || !finite(thenMs) {
		return "", false
	}
	delta := math.Floor((nowMs-thenMs)/1000 + 0.5)
	if delta >= t.Limit().Seconds() {
		return "", false
	}
	if delta < 0 {
		delta = 0
	}
	return FormatSeconds(int64(delta), t)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
