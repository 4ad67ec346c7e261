package models

import "time"

// Timestamp is the plain two-field time shape that crosses the repository
// boundary. Callers never see the store's native time type.
type Timestamp struct {
	Seconds     int64 `json:"seconds"`
	Nanoseconds int32 `json:"nanoseconds"`
}

// NewTimestamp normalizes a time.Time into the boundary shape.
func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{
		Seconds:     t.Unix(),
		Nanoseconds: int32(t.Nanosecond()),
	}
}

// Time converts the timestamp back to a time.Time in UTC.
func (t *Timestamp) Time() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanoseconds)).UTC()
}
