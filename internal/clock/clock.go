// Package clock defines the time source used by components that schedule flushes.
package clock

import "time"

// Clock abstracts time.Now so flush cadence can be tested deterministically.
type Clock interface {
	Now() time.Time
}
