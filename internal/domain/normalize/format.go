package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// DateLayout renders ledger dates.
const DateLayout = "2006-01-02 15:04:05"

// msThreshold separates millisecond epochs from second epochs.
const msThreshold = 1e12

// CanonicalTime converts an epoch value in seconds or milliseconds to a
// DateLayout string in loc. Absent, zero, negative and non-numeric values
// report false.
func CanonicalTime(v any, loc *time.Location) (string, bool) {
	f, ok := Number(v)
	if !ok || f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	if f > msThreshold {
		f /= 1000
	}
	sec, frac := math.Modf(f)
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(int64(sec), int64(frac*1e9)).In(loc).Format(DateLayout), true
}

// Phone keeps digits only and drops the leading country code of an
// 11-digit North American number.
func Phone(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if c := raw[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

// Text renders a JSON scalar as a ledger cell. Nil is empty, numbers lose
// exponent and trailing zero noise, composite values are JSON encoded.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if !strings.ContainsAny(t.String(), ".eE") {
			return t.String()
		}
		if f, err := t.Float64(); err == nil {
			return formatFloat(f)
		}
		return t.String()
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Flag renders a boolean-like field lower-cased.
func Flag(v any) string {
	return strings.ToLower(Text(v))
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Number reads a JSON number, native number or numeric string.
func Number(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
