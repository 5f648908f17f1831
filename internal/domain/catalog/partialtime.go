package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PartialTime is a point in time where only some calendar fields are specified.
// Comparisons against a full timestamp only look at the specified fields, from the
// most significant down.
type PartialTime struct {
	Year   *int
	Month  *int
	Day    *int
	Hour   *int
	Minute *int
	Second *int
}

// NewPartialTime builds a PartialTime from year and then, optionally, month, day,
// hour, minute and second in that order.
func NewPartialTime(year int, rest ...int) PartialTime {
	p := PartialTime{Year: intPtr(year)}
	targets := []**int{&p.Month, &p.Day, &p.Hour, &p.Minute, &p.Second}
	for i, v := range rest {
		if i >= len(targets) {
			break
		}
		*targets[i] = intPtr(v)
	}
	return p
}

// ParsePartialTime accepts "YYYY", "YYYY-MM", "YYYY-MM-DD", and the same with a
// "THH", "THH:MM" or "THH:MM:SS" suffix.
func ParsePartialTime(s string) (PartialTime, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PartialTime{}, fmt.Errorf("empty partial time")
	}
	datePart, timePart, hasTime := strings.Cut(s, "T")
	if !hasTime {
		datePart, timePart, hasTime = strings.Cut(s, " ")
	}

	var values []int
	for _, field := range strings.Split(datePart, "-") {
		n, err := strconv.Atoi(field)
		if err != nil {
			return PartialTime{}, fmt.Errorf("invalid partial time %q: %w", s, err)
		}
		values = append(values, n)
	}
	if len(values) > 3 {
		return PartialTime{}, fmt.Errorf("invalid partial time %q: too many date fields", s)
	}
	if hasTime {
		if len(values) != 3 {
			return PartialTime{}, fmt.Errorf("invalid partial time %q: time requires a full date", s)
		}
		fields := strings.Split(timePart, ":")
		if len(fields) > 3 {
			return PartialTime{}, fmt.Errorf("invalid partial time %q: too many time fields", s)
		}
		for _, field := range fields {
			n, err := strconv.Atoi(field)
			if err != nil {
				return PartialTime{}, fmt.Errorf("invalid partial time %q: %w", s, err)
			}
			values = append(values, n)
		}
	}
	return NewPartialTime(values[0], values[1:]...), nil
}

// IsZero reports whether no field is specified.
func (p PartialTime) IsZero() bool {
	for _, f := range p.fields() {
		if f != nil {
			return false
		}
	}
	return true
}

// Less reports whether p sorts strictly before t on the specified fields.
func (p PartialTime) Less(t time.Time) bool {
	return p.compare(t) < 0
}

// Greater reports whether p sorts strictly after t on the specified fields.
func (p PartialTime) Greater(t time.Time) bool {
	return p.compare(t) > 0
}

// Equal reports whether every specified field matches t.
func (p PartialTime) Equal(t time.Time) bool {
	return p.compare(t) == 0
}

func (p PartialTime) compare(t time.Time) int {
	actual := []int{t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second()}
	for i, f := range p.fields() {
		if f == nil {
			continue
		}
		switch {
		case *f < actual[i]:
			return -1
		case *f > actual[i]:
			return 1
		}
	}
	return 0
}

// String renders the specified fields in ISO-like form.
func (p PartialTime) String() string {
	if p.IsZero() {
		return ""
	}
	var b strings.Builder
	seps := []string{"", "-", "-", "T", ":", ":"}
	widths := []int{4, 2, 2, 2, 2, 2}
	for i, f := range p.fields() {
		if f == nil {
			break
		}
		b.WriteString(seps[i])
		fmt.Fprintf(&b, "%0*d", widths[i], *f)
	}
	return b.String()
}

func (p PartialTime) fields() []*int {
	return []*int{p.Year, p.Month, p.Day, p.Hour, p.Minute, p.Second}
}

func intPtr(v int) *int { return &v }
