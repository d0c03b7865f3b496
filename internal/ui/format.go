package ui

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

const NA = "N/A"

// raw is implemented by base.Reading.
type raw interface {
	Raw() (any, bool)
}

func unwrap(value any) (any, bool) {
	if r, ok := value.(raw); ok {
		return r.Raw()
	}
	return value, value != nil
}

// FormatValue renders a value with its unit, "N/A" when unavailable.
func FormatValue(value any, unit string) string {
	return FormatScaled(value, unit, 1)
}

// FormatScaled divides numeric values by divisor before rendering. Integral
// results print without a fraction, others with the shortest exact
// representation. Text that is not a number passes through with the unit.
func FormatScaled(value any, unit string, divisor float64) string {
	v, ok := unwrap(value)
	if !ok {
		return NA
	}
	if divisor == 0 {
		divisor = 1
	}

	switch v := v.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" || s == NA {
			return NA
		}
		f, ok := parseDecimal(s)
		if !ok {
			return withUnit(v, unit)
		}
		return withUnit(formatNumber(f/divisor), unit)
	case bool:
		if v {
			return withUnit("Yes", unit)
		}
		return withUnit("No", unit)
	case float64:
		return withUnit(formatNumber(v/divisor), unit)
	case float32:
		return withUnit(formatNumber(float64(v)/divisor), unit)
	case int, int8, int16, int32, int64:
		n := toInt64(v)
		if divisor == 1 {
			return withUnit(strconv.FormatInt(n, 10), unit)
		}
		return withUnit(formatNumber(float64(n)/divisor), unit)
	case uint, uint8, uint16, uint32, uint64:
		n := toUint64(v)
		if divisor == 1 {
			return withUnit(strconv.FormatUint(n, 10), unit)
		}
		return withUnit(formatNumber(float64(n)/divisor), unit)
	}
	return withUnit(fmt.Sprint(v), unit)
}

func withUnit(s, unit string) string {
	return strings.TrimSpace(s + " " + unit)
}

func formatNumber(f float64) string {
	if !math.IsInf(f, 0) && f == math.Trunc(f) {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// parseDecimal accepts plain decimal numbers only, so identifiers such as
// "0x744c" or "inf" stay text.
func parseDecimal(s string) (float64, bool) {
	if !strings.ContainsFunc(s, unicode.IsDigit) || strings.ContainsAny(s, "xXpP_") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	}
	return 0
}

func toUint64(v any) uint64 {
	switch n := v.(type) {
	case uint:
		return uint64(n)
	case uint8:
		return uint64(n)
	case uint16:
		return uint64(n)
	case uint32:
		return uint64(n)
	case uint64:
		return n
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int, int8, int16, int32, int64:
		return float64(toInt64(n)), true
	case uint, uint8, uint16, uint32, uint64:
		return float64(toUint64(n)), true
	case string:
		return parseDecimal(strings.TrimSpace(n))
	}
	return 0, false
}

var (
	binaryUnits  = []string{"B", "KiB", "MiB", "GiB", "TiB"}
	decimalUnits = []string{"B", "KB", "MB", "GB", "TB"}
)

// FormatBytes scales a byte count down the unit ladder while it is at least
// one step and a larger unit remains, then prints two decimals.
func FormatBytes(value any, binary bool) string {
	v, ok := unwrap(value)
	if !ok {
		return NA
	}
	if s, isString := v.(string); isString && (strings.TrimSpace(s) == "" || strings.TrimSpace(s) == NA) {
		return NA
	}
	b, ok := toFloat(v)
	if !ok {
		return fmt.Sprintf("%v B", v)
	}

	units, step := binaryUnits, 1024.0
	if !binary {
		units, step = decimalUnits, 1000.0
	}
	i := 0
	for b >= step && i < len(units)-1 {
		b /= step
		i++
	}
	return fmt.Sprintf("%.2f %s", b, units[i])
}

// FormatRange renders "min - max unit"; a missing end prints as N/A, and the
// whole range is N/A when both are.
func FormatRange(lo, hi any, unit string, divisor float64) string {
	_, loOK := unwrap(lo)
	_, hiOK := unwrap(hi)
	if !loOK && !hiOK {
		return NA
	}
	return withUnit(FormatScaled(lo, "", divisor)+" - "+FormatScaled(hi, "", divisor), unit)
}

// FormatPercent renders an engine utilization cell: "87%", or N/A.
func FormatPercent(value any) string {
	s := FormatValue(value, "")
	if s == NA {
		return NA
	}
	return s + "%"
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
