// Package system provides a real clock implementation.
package system

import "time"

// Clock implements clock.Clock using time.Now.
type Clock struct{}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
