package testing

import "time"

// FixedClock returns a now func that always reports a given time
func FixedClock(now time.Time) func() time.Time {
	return func() time.Time {
		return now
	}
}
