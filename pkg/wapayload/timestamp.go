package wapayload

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// millisThreshold separates epoch milliseconds from seconds; as seconds it
// would be the year 33658.
const millisThreshold = 1_000_000_000_000

// ParseTimestamp reads an epoch value in any of the shapes gateways emit: a
// JSON number, a numeric string (protojson int64), or the {low, high, unsigned}
// object a 64-bit Long serializes to. Values in milliseconds are accepted too.
func ParseTimestamp(v any) (time.Time, bool) {
	secs, ok := epochSeconds(v)
	if !ok || secs <= 0 {
		return time.Time{}, false
	}
	if secs >= millisThreshold {
		return time.UnixMilli(secs).UTC(), true
	}
	return time.Unix(secs, 0).UTC(), true
}

func epochSeconds(v any) (int64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	case map[string]any:
		low, okLow := number(n, "low")
		if !okLow {
			return 0, false
		}
		high, _ := number(n, "high")
		composite := uint64(uint32(int64(low))) | uint64(uint32(int64(high)))<<32
		return int64(composite), true
	}
	return 0, false
}
