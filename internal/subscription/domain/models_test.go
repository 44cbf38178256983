package domain

import (
	"testing"
	"time"
)

func TestMapProviderStatus(t *testing.T) {
	tests := []struct {
		in   string
		want SubscriptionStatus
	}{
		{"active", SubscriptionStatusActive},
		{"trialing", SubscriptionStatusTrial},
		{"past_due", SubscriptionStatusPastDue},
		{"unpaid", SubscriptionStatusSuspended},
		{"canceled", SubscriptionStatusCancelled},
		{"incomplete", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := MapProviderStatus(tt.in); got != tt.want {
			t.Fatalf("MapProviderStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUnixToTime(t *testing.T) {
	if got := UnixToTime(0); got != nil {
		t.Fatalf("expected nil for zero seconds, got %v", got)
	}
	if got := UnixToTime(-5); got != nil {
		t.Fatalf("expected nil for negative seconds, got %v", got)
	}

	seconds := int64(1767225600)
	got := UnixToTime(seconds)
	if got == nil {
		t.Fatalf("expected non-nil time")
	}
	if !got.Equal(time.Unix(seconds, 0).UTC()) {
		t.Fatalf("UnixToTime(%d) = %v", seconds, got)
	}
}

func TestIsEscalationAllowed(t *testing.T) {
	tests := []struct {
		current SubscriptionStatus
		target  SubscriptionStatus
		want    bool
	}{
		{SubscriptionStatusActive, SubscriptionStatusPastDue, true},
		{SubscriptionStatusTrial, SubscriptionStatusPastDue, true},
		{SubscriptionStatusActive, SubscriptionStatusSuspended, true},
		{SubscriptionStatusActive, SubscriptionStatusCancelled, true},
		{SubscriptionStatusPastDue, SubscriptionStatusSuspended, true},
		{SubscriptionStatusPastDue, SubscriptionStatusPastDue, false},
		{SubscriptionStatusSuspended, SubscriptionStatusPastDue, false},
		{SubscriptionStatusCancelled, SubscriptionStatusSuspended, false},
		{SubscriptionStatusCancelled, SubscriptionStatusCancelled, false},
	}
	for _, tt := range tests {
		if got := IsEscalationAllowed(tt.current, tt.target); got != tt.want {
			t.Fatalf("IsEscalationAllowed(%s, %s) = %v, want %v", tt.current, tt.target, got, tt.want)
		}
	}
}
