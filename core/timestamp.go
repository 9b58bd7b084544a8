package core

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

var (
	errInvalidTimestamp = errors.New("invalid timestamp")

	timestampLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"2006-01-02",
	}
)

// Timestamp is a point in time that may arrive on the wire either as a string
// (RFC 3339, a date, or a local date-time), as Unix seconds, or as a store-native
// {"seconds", "nanoseconds"} object. It is normalized to UTC when decoded.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// storeTimestamp is the store-native representation.
type storeTimestamp struct {
	Seconds      *int64 `json:"seconds"`
	Nanoseconds  int64  `json:"nanoseconds"`
	USeconds     *int64 `json:"_seconds"`
	UNanoseconds int64  `json:"_nanoseconds"`
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		t, err := ParseTimestamp(s)
		if err != nil {
			return err
		}
		ts.Time = t
	case '{':
		var st storeTimestamp
		if err := json.Unmarshal(data, &st); err != nil {
			return errors.Wrap(errInvalidTimestamp, err.Error())
		}
		switch {
		case st.Seconds != nil:
			ts.Time = time.Unix(*st.Seconds, st.Nanoseconds).UTC()
		case st.USeconds != nil:
			ts.Time = time.Unix(*st.USeconds, st.UNanoseconds).UTC()
		default:
			return errInvalidTimestamp
		}
	default:
		secs, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return errInvalidTimestamp
		}
		whole, frac := math.Modf(secs)
		if whole >= math.MaxInt64 || whole < math.MinInt64 {
			return errInvalidTimestamp
		}
		ts.Time = time.Unix(int64(whole), int64(math.Round(frac*float64(time.Second)))).UTC()
	}
	return nil
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.UTC().Format(time.RFC3339))
}

// Ptr returns nil for the zero Timestamp.
func (ts Timestamp) Ptr() *time.Time {
	if ts.IsZero() {
		return nil
	}
	t := ts.UTC()
	return &t
}

// ParseTimestamp parses s with any of the accepted string layouts. Zone-less values are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = CleanString(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errInvalidTimestamp
}
