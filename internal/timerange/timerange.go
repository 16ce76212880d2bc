// Package timerange resolves human-readable window tokens ("24h", "7d",
// "all") into absolute [start, end) instant pairs.
package timerange

import (
	"fmt"
	"strconv"
	"time"
)

// Epoch is the sentinel start instant used for the "all" token.
var Epoch = time.Unix(0, 0).UTC()

// TimeRange is a resolved [Start, End) window plus the token it came from.
// Immutable once constructed.
type TimeRange struct {
	Token string    `json:"-"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls within the half-open window [Start, End).
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// All reports whether the range was resolved from the "all" token.
func (r TimeRange) All() bool {
	return r.Token == "all"
}

// InvalidTokenError reports a malformed or out-of-vocabulary window token.
type InvalidTokenError struct {
	Token string
}

func (e *InvalidTokenError) Error() string {
	return fmt.Sprintf("invalid time range %q: use <n>h, <n>d, or \"all\"", e.Token)
}

// Parse resolves token anchored at now. Accepted forms are "<n>h" (hours),
// "<n>d" (days) with n > 0, and the literal "all" which maps start to the
// Unix epoch. Anything else fails with *InvalidTokenError.
func Parse(token string, now time.Time) (TimeRange, error) {
	if token == "all" {
		return TimeRange{Token: token, Start: Epoch, End: now}, nil
	}

	if len(token) < 2 {
		return TimeRange{}, &InvalidTokenError{Token: token}
	}

	n, err := strconv.Atoi(token[:len(token)-1])
	if err != nil || n <= 0 {
		return TimeRange{}, &InvalidTokenError{Token: token}
	}

	var d time.Duration
	switch token[len(token)-1] {
	case 'h':
		d = time.Duration(n) * time.Hour
	case 'd':
		d = time.Duration(n) * 24 * time.Hour
	default:
		return TimeRange{}, &InvalidTokenError{Token: token}
	}

	return TimeRange{Token: token, Start: now.Add(-d), End: now}, nil
}
