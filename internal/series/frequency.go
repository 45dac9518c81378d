package series

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimePoint is an ordinal period identifier. Its meaning depends on the
// Frequency of the series that holds it: a year for annual data,
// year*4+quarter-1 for quarterly data and year*12+month-1 for monthly data.
type TimePoint int

// Frequency of a series
type Frequency int

const (
	Annual Frequency = iota + 1
	Quarterly
	Monthly
)

// ParseFrequency accepts "annual", "quarterly", "monthly" and the single
// letter pandas aliases A, Q and M.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "annual", "a", "y", "yearly":
		return Annual, nil
	case "quarterly", "q":
		return Quarterly, nil
	case "monthly", "m":
		return Monthly, nil
	}
	return 0, fmt.Errorf("unknown frequency %q", s)
}

func (f Frequency) String() string {
	switch f {
	case Annual:
		return "annual"
	case Quarterly:
		return "quarterly"
	case Monthly:
		return "monthly"
	default:
		return "unknown"
	}
}

// PeriodsPerYear returns 1, 4 or 12.
func (f Frequency) PeriodsPerYear() int {
	switch f {
	case Quarterly:
		return 4
	case Monthly:
		return 12
	default:
		return 1
	}
}

// Format renders a TimePoint as 2023, 2023Q2 or 2023-04.
func (f Frequency) Format(tp TimePoint) string {
	switch f {
	case Quarterly:
		year, q := floorDiv(int(tp), 4)
		return fmt.Sprintf("%dQ%d", year, q+1)
	case Monthly:
		year, m := floorDiv(int(tp), 12)
		return fmt.Sprintf("%d-%02d", year, m+1)
	default:
		return strconv.Itoa(int(tp))
	}
}

// Parse reads a period label in the frequency's own format, or an ISO date
// (YYYY-MM-DD, the FRED layout) which maps to the period containing it.
func (f Frequency) Parse(s string) (TimePoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty period")
	}

	if d, err := time.Parse("2006-01-02", s); err == nil {
		return f.fromDate(d), nil
	}

	switch f {
	case Annual:
		year, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("parse annual period %q: %w", s, err)
		}
		return TimePoint(year), nil
	case Quarterly:
		idx := strings.IndexAny(s, "Qq")
		if idx <= 0 || idx == len(s)-1 {
			return 0, fmt.Errorf("parse quarterly period %q: want YYYYQn", s)
		}
		year, err := strconv.Atoi(s[:idx])
		if err != nil {
			return 0, fmt.Errorf("parse quarterly period %q: %w", s, err)
		}
		q, err := strconv.Atoi(s[idx+1:])
		if err != nil || q < 1 || q > 4 {
			return 0, fmt.Errorf("parse quarterly period %q: quarter must be 1-4", s)
		}
		return TimePoint(year*4 + q - 1), nil
	case Monthly:
		d, err := time.Parse("2006-01", s)
		if err != nil {
			return 0, fmt.Errorf("parse monthly period %q: %w", s, err)
		}
		return f.fromDate(d), nil
	}
	return 0, fmt.Errorf("unknown frequency %d", f)
}

func (f Frequency) fromDate(d time.Time) TimePoint {
	switch f {
	case Quarterly:
		return TimePoint(d.Year()*4 + (int(d.Month())-1)/3)
	case Monthly:
		return TimePoint(d.Year()*12 + int(d.Month()) - 1)
	default:
		return TimePoint(d.Year())
	}
}

func floorDiv(a, b int) (int, int) {
	q, r := a/b, a%b
	if r < 0 {
		q--
		r += b
	}
	return q, r
}
