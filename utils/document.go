package utils

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Helpers for reading loosely typed bson.M documents. Older writers stored
// dates as RFC3339 strings or unix milliseconds and counters as strings or
// doubles, so every reader goes through these.

func String(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func Bool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	}
	return false
}

func Int(v interface{}) int {
	switch t := v.(type) {
	case int32:
		return int(t)
	case int64:
		return int(t)
	case int:
		return t
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0
		}
		return int(t)
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// Time reports false when v is absent or unparsable.
func Time(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time().UTC(), true
	case time.Time:
		return t.UTC(), true
	case int64:
		return time.UnixMilli(t).UTC(), true
	case int32:
		return time.UnixMilli(int64(t)).UTC(), true
	case float64:
		return time.UnixMilli(int64(t)).UTC(), true
	case string:
		if t == "" {
			return time.Time{}, false
		}
		p, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return p.UTC(), true
	}
	return time.Time{}, false
}

// Strings accepts a BSON array or a comma separated string.
func Strings(v interface{}) []string {
	switch t := v.(type) {
	case primitive.A:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s := String(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []interface{}:
		return Strings(primitive.A(t))
	case []string:
		return append([]string(nil), t...)
	case string:
		return splitComma(t)
	}
	return nil
}
