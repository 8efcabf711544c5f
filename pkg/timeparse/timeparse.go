package timeparse

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The backend emits expiry timestamps in more than one shape depending on
// which service produced the document: ISO-8601 with fractional seconds,
// plain ISO-8601, or epoch seconds. Decoding tries each named layout in
// order instead of nesting fallbacks at the call sites.

type attempt struct {
	name  string
	parse func(string) (time.Time, error)
}

var attempts = []attempt{
	{"rfc3339-frac", func(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }},
	{"rfc3339", func(s string) (time.Time, error) { return time.Parse(time.RFC3339, s) }},
	{"iso8601-naive", func(s string) (time.Time, error) { return time.Parse("2006-01-02T15:04:05", s) }},
	{"epoch-seconds", parseEpoch},
}

func parseEpoch(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, err
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC(), nil
}

// Parse resolves a raw timestamp string against the attempt list.
func Parse(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	for _, a := range attempts {
		if ts, err := a.parse(raw); err == nil {
			return ts, nil
		}
	}

	return time.Time{}, fmt.Errorf("timestamp %q matched no known layout", raw)
}

// Time is a time.Time that accepts any of the supported wire shapes,
// including a bare JSON number for epoch seconds.
type Time struct {
	time.Time
}

func (t *Time) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" || raw == `""` {
		t.Time = time.Time{}
		return nil
	}

	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		ts, err := Parse(s)
		if err != nil {
			return err
		}
		t.Time = ts
		return nil
	}

	ts, err := parseEpoch(raw)
	if err != nil {
		return err
	}
	t.Time = ts
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.Time.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}
