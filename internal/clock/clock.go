package clock

import (
	"errors"
	"fmt"
	"time"
)

// FormLayout is the civil datetime layout used by the web UI forms
// (MM/DD/YYYY HH:MM).
const FormLayout = "01/02/2006 15:04"

// ErrAmbiguousLocalTime is returned when a civil time does not exist in the
// configured zone, i.e. it falls in a DST spring-forward gap.
var ErrAmbiguousLocalTime = errors.New("local time does not exist in the configured time zone")

// Clock wraps "now" so that services and tests can control time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// System returns a Clock backed by the wall clock, in UTC.
func System() Clock { return systemClock{} }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// Fixed returns a Clock that always reports t. For tests.
func Fixed(t time.Time) Clock { return fixedClock{t: t.UTC()} }

// Localizer converts between naive civil time in the configured default zone
// and absolute instants. Storage always uses instants (UTC); rendering and
// form parsing always use civil time.
type Localizer struct {
	loc *time.Location
}

// NewLocalizer loads the named IANA zone.
func NewLocalizer(timezone string) (*Localizer, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone %q: %w", timezone, err)
	}
	return &Localizer{loc: loc}, nil
}

// Location returns the configured default zone.
func (l *Localizer) Location() *time.Location { return l.loc }

// ToLocal converts an absolute instant to civil time in the default zone.
func (l *Localizer) ToLocal(t time.Time) time.Time {
	return t.In(l.loc)
}

// FromLocal converts a naive civil datetime (only its Y/M/D h:m:s components
// are read) to an absolute instant. Fails with ErrAmbiguousLocalTime when the
// civil time does not exist in the zone.
func (l *Localizer) FromLocal(civil time.Time) (time.Time, error) {
	t := time.Date(civil.Year(), civil.Month(), civil.Day(),
		civil.Hour(), civil.Minute(), civil.Second(), civil.Nanosecond(), l.loc)
	// time.Date silently normalizes spring-forward gap times to the other
	// side of the transition; a shifted wall clock reveals it.
	if t.Hour() != civil.Hour() || t.Minute() != civil.Minute() {
		return time.Time{}, ErrAmbiguousLocalTime
	}
	return t.UTC(), nil
}

// ParseLocal parses a form value in FormLayout as civil time in the default
// zone and converts it to an instant.
func (l *Localizer) ParseLocal(value string) (time.Time, error) {
	civil, err := time.Parse(FormLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %q as %s: %w", value, FormLayout, err)
	}
	return l.FromLocal(civil)
}

// FormatLocal renders an instant as civil time in the default zone using
// FormLayout.
func (l *Localizer) FormatLocal(t time.Time) string {
	return t.In(l.loc).Format(FormLayout)
}
