package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	callDateLayouts = []string{"01/02/2006", "2006-01-02"}
	callTimeLayouts = []string{
		"3:04 PM", "3:04:05 PM",
		"3:04PM", "3:04:05PM",
		"15:04", "15:04:05",
	}
)

// ParseCallDate accepts MM/DD/YYYY or YYYY-MM-DD.
func ParseCallDate(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	for _, layout := range callDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: expected MM/DD/YYYY or YYYY-MM-DD", raw)
}

// ParseCallTime accepts 12-hour (case-insensitive AM/PM) or 24-hour clock times, with or
// without seconds. The returned time only carries the clock fields.
func ParseCallTime(raw string) (time.Time, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	for _, layout := range callTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q: expected hh:mm[:ss] [AM|PM] or HH:mm[:ss]", raw)
}

// CombineDateTime merges a call date and time into one instant in loc.
func CombineDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	d, err := ParseCallDate(date)
	if err != nil {
		return time.Time{}, err
	}
	t, err := ParseCallTime(clock)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), nil
}

// ExpandAndDedupe replaces the wildcard marker with every value of the set, then removes
// duplicates keeping the first occurrence.
func ExpandAndDedupe(values []string, set []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	push := func(v string) {
		if v == Wildcard {
			return
		}
		if _, dup := seen[v]; dup {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, v := range values {
		if v == Wildcard {
			for _, s := range set {
				push(s)
			}
			continue
		}
		push(v)
	}
	return out
}

// ValueKind is a bitmask of JSON value kinds.
type ValueKind int

const (
	KindNull ValueKind = 1 << iota
	KindBool
	KindInteger
	KindNumber
	KindString
	KindArray
	KindObject
)

var kindNames = []struct {
	kind ValueKind
	name string
}{
	{KindNull, "null"},
	{KindBool, "boolean"},
	{KindInteger, "integer"},
	{KindNumber, "number"},
	{KindString, "string"},
	{KindArray, "array"},
	{KindObject, "object"},
}

func (k ValueKind) String() string {
	var names []string
	for _, kn := range kindNames {
		if k&kn.kind != 0 {
			names = append(names, kn.name)
		}
	}
	return strings.Join(names, " or ")
}

// KindOf classifies a decoded JSON value. Integers satisfy both KindInteger and KindNumber.
func KindOf(v interface{}) ValueKind {
	switch val := v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case string:
		return KindString
	case []interface{}:
		return KindArray
	case map[string]interface{}:
		return KindObject
	case json.Number:
		if _, err := val.Int64(); err == nil {
			return KindInteger | KindNumber
		}
		return KindNumber
	case float64:
		if val == math.Trunc(val) && !math.IsInf(val, 0) {
			return KindInteger | KindNumber
		}
		return KindNumber
	case int, int64:
		return KindInteger | KindNumber
	}
	return 0
}

// stringSlice converts a decoded JSON array of strings.
func stringSlice(v interface{}) ([]string, bool) {
	arr, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// Clone deep-copies a decoded JSON document so sanitizers never touch the caller's value.
func Clone(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = Clone(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = Clone(item)
		}
		return out
	default:
		return val
	}
}

func describe(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
