package reltime

import (
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Millis converts a loosely typed instant into milliseconds since the epoch.
// Numbers (and numeric strings) are taken as milliseconds; other strings are
// parsed as dates. Values that cannot be read, and the zero time.Time, come
// back as NaN.
func Millis(v any) float64 {
	switch x := v.(type) {
	case nil:
		return math.NaN()
	case time.Time:
		if x.IsZero() {
			return math.NaN()
		}
		return float64(x.UnixMilli())
	case *time.Time:
		if x == nil {
			return math.NaN()
		}
		return Millis(*x)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return math.NaN()
		}
		if f, err := cast.ToFloat64E(s); err == nil {
			return f
		}
		if t, err := cast.ToTimeE(s); err == nil {
			return float64(t.UnixMilli())
		}
		return math.NaN()
	default:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return math.NaN()
		}
		return f
	}
}
