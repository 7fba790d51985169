package extract

import (
	"strconv"
	"strings"
	"time"
)

// timestampProbes are the payload keys checked for an event time, in order.
var timestampProbes = []string{
	"timestamp", "time", "ts", "sentAt", "sent_at", "created_at",
	"client_ts", "client_timestamp",
}

// unixMillisCutoff separates Unix seconds from milliseconds: values below
// 10^10 are seconds (covers dates through year 2286), anything larger is
// milliseconds.
const unixMillisCutoff = 1e10

// fallbackLayouts are tried for date strings that are not RFC3339.
var fallbackLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123,
}

// NormalizeTimestamp coerces whatever a payload carries as a time value
// into RFC3339 UTC. Numbers are Unix seconds or milliseconds depending on
// magnitude; unparsable values return ("", false) and the caller
// substitutes the capture time.
func NormalizeTimestamp(value interface{}) (string, bool) {
	switch v := value.(type) {
	case float64:
		return unixToISO(v), true
	case int64:
		return unixToISO(float64(v)), true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return "", false
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return unixToISO(n), true
		}
		for _, layout := range fallbackLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC().Format(time.RFC3339), true
			}
		}
		return "", false
	}
	return "", false
}

func unixToISO(n float64) string {
	var t time.Time
	if n < unixMillisCutoff {
		sec := int64(n)
		nsec := int64((n - float64(sec)) * 1e9)
		t = time.Unix(sec, nsec)
	} else {
		t = time.UnixMilli(int64(n))
	}
	return t.UTC().Format(time.RFC3339)
}
