// Package clock abstracts wall time so time-dependent logic is testable.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewSystem returns a Clock backed by wall time.
func NewSystem() Clock { return systemClock{} }
