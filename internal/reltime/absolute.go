package reltime

import (
	"fmt"
	"math"
	"time"
	_ "time/tzdata" // the display zone must resolve in minimal containers

	"github.com/go-playground/locales"
	"github.com/go-playground/locales/pt_BR"
)

// DisplayZone is the fixed time zone absolute timestamps are shown in.
const DisplayZone = "America/Sao_Paulo"

// InvalidDate is rendered for instants that cannot be read.
const InvalidDate = "Invalid Date"

// maxMillis bounds the instants a date can represent (±100,000,000 days).
const maxMillis = 8.64e15

// Absolute renders a full pt-BR short date and short time, e.g.
// "19/10/2026, 14:05".
type Absolute struct {
	tr  locales.Translator
	loc *time.Location
}

// NewAbsolute loads the display zone.
func NewAbsolute() (*Absolute, error) {
	loc, err := time.LoadLocation(DisplayZone)
	if err != nil {
		return nil, fmt.Errorf("loading display zone %s: %w", DisplayZone, err)
	}
	return &Absolute{tr: pt_BR.New(), loc: loc}, nil
}

// Format renders t in the display zone.
func (a *Absolute) Format(t time.Time) string {
	if t.IsZero() {
		return InvalidDate
	}
	lt := t.In(a.loc)
	return a.tr.FmtDateShort(lt) + ", " + a.tr.FmtTimeShort(lt)
}

// FormatMillis renders milliseconds since the epoch; fractions are truncated.
func (a *Absolute) FormatMillis(ms float64) string {
	if math.IsNaN(ms) || math.Abs(ms) > maxMillis {
		return InvalidDate
	}
	return a.Format(time.UnixMilli(int64(ms)))
}
