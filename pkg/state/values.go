package state

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// DateUnit names a calendar or clock unit accepted by AddDate.
type DateUnit string

const (
	Years   DateUnit = "Y"
	Months  DateUnit = "M"
	Weeks   DateUnit = "W"
	Days    DateUnit = "D"
	Hours   DateUnit = "h"
	Minutes DateUnit = "m"
	Seconds DateUnit = "s"
	Millis  DateUnit = "ms"
)

var unitAliases = map[string]DateUnit{
	"year": Years, "month": Months, "week": Weeks, "day": Days,
	"hour": Hours, "minute": Minutes, "second": Seconds, "milli": Millis,
}

// ParseDateUnit accepts both short ("D") and long ("day") unit names.
func ParseDateUnit(name string) (DateUnit, error) {
	switch u := DateUnit(name); u {
	case Years, Months, Weeks, Days, Hours, Minutes, Seconds, Millis:
		return u, nil
	}
	if u, ok := unitAliases[name]; ok {
		return u, nil
	}
	return "", fmt.Errorf("invalid date duration %q", name)
}

func shiftDate(t time.Time, n int, unit DateUnit) time.Time {
	switch unit {
	case Years:
		return t.AddDate(n, 0, 0)
	case Months:
		return t.AddDate(0, n, 0)
	case Weeks:
		return t.AddDate(0, 0, 7*n)
	case Days:
		return t.AddDate(0, 0, n)
	case Hours:
		return t.Add(time.Duration(n) * time.Hour)
	case Minutes:
		return t.Add(time.Duration(n) * time.Minute)
	case Seconds:
		return t.Add(time.Duration(n) * time.Second)
	default:
		return t.Add(time.Duration(n) * time.Millisecond)
	}
}

// Add adds delta to a numeric value. Integers stay integers unless delta
// carries a fraction.
func (s *State) Add(delta any) *State {
	return s.Mutate(func(v any) any {
		return arith(v, delta, func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
	}, false)
}

// Mul multiplies a numeric value.
func (s *State) Mul(factor any) *State {
	return s.Mutate(func(v any) any {
		return arith(v, factor, func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b })
	}, false)
}

// Div divides a numeric value; the result is always a float64.
func (s *State) Div(divisor any) *State {
	return s.Mutate(func(v any) any {
		return cast.ToFloat64(v) / cast.ToFloat64(divisor)
	}, false)
}

// AddDate shifts a time.Time value by n units. Non-time values are left as is.
func (s *State) AddDate(n int, unit DateUnit) *State {
	return s.Mutate(func(v any) any {
		t, ok := v.(time.Time)
		if !ok {
			return v
		}
		return shiftDate(t, n, unit)
	}, false)
}

func arith(v, delta any, onInt func(a, b int64) int64, onFloat func(a, b float64) float64) any {
	if isInteger(v) && isInteger(delta) {
		r := onInt(cast.ToInt64(v), cast.ToInt64(delta))
		if _, ok := v.(int); ok || v == nil {
			return int(r)
		}
		return r
	}
	return onFloat(cast.ToFloat64(v), cast.ToFloat64(delta))
}

func isInteger(v any) bool {
	switch v.(type) {
	case nil, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

// compareOrdered orders numbers numerically, times chronologically and
// everything else by its string form.
func compareOrdered(a, b any) int {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	fa, errA := cast.ToFloat64E(a)
	fb, errB := cast.ToFloat64E(b)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(cast.ToString(a), cast.ToString(b))
}

func (s *State) mutateString(fn func(string) string) *State {
	return s.Mutate(func(v any) any {
		return fn(cast.ToString(v))
	}, false)
}

// Replace replaces every occurrence of old with replacement.
func (s *State) Replace(old, replacement string) *State {
	return s.mutateString(func(v string) string {
		return strings.ReplaceAll(v, old, replacement)
	})
}

// Substring keeps runes [start, end). A negative end means "to the end".
func (s *State) Substring(start, end int) *State {
	return s.mutateString(func(v string) string {
		r := []rune(v)
		if end < 0 || end > len(r) {
			end = len(r)
		}
		start = min(max(start, 0), end)
		return string(r[start:end])
	})
}

// Trim strips surrounding whitespace.
func (s *State) Trim() *State {
	return s.mutateString(strings.TrimSpace)
}

// Upper upper-cases a string value.
func (s *State) Upper() *State {
	return s.mutateString(strings.ToUpper)
}

// Lower lower-cases a string value.
func (s *State) Lower() *State {
	return s.mutateString(strings.ToLower)
}
