// Package domain defines the dunning sweep contract. The sweep walks overdue
// subscriptions and escalates them through PAST_DUE, SUSPENDED and CANCELLED
// based on how long their paid period has been expired.
package domain

import "context"

// SweepResult summarizes one sweep run.
type SweepResult struct {
	Considered int `json:"considered"`
	Reminded   int `json:"reminded"`
	Suspended  int `json:"suspended"`
	Cancelled  int `json:"cancelled"`
	Errors     int `json:"errors"`
}

type Service interface {
	// Sweep runs one dunning pass over all overdue subscriptions. Individual
	// subscription failures are counted and logged, not propagated; the error
	// return is reserved for failures that abort the whole pass.
	Sweep(ctx context.Context) (SweepResult, error)
}
