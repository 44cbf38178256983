package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	paymentdomain "github.com/adpilot-io/adpilot/internal/payment/domain"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_123","type":"invoice.payment_succeeded","data":{"object":{}}}`)
	ts := time.Now().Unix()

	adapter, err := New(secret)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	reqHeader := http.Header{}
	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader(secret, payload, ts))
	if err := adapter.Verify(context.Background(), payload, reqHeader); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader("wrong", payload, ts))
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error, got %v", err)
	}

	reqHeader.Del("Stripe-Signature")
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error for missing header, got %v", err)
	}
}

func TestParseInvoiceEvents(t *testing.T) {
	adapter, err := New("whsec_test")
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	created := time.Now().UTC().Unix()

	payload := mustMarshal(t, map[string]any{
		"id":      "evt_inv_paid",
		"type":    "invoice.payment_succeeded",
		"created": created,
		"data": map[string]any{
			"object": map[string]any{
				"id":                 "in_123",
				"subscription":       "sub_123",
				"customer":           "cus_123",
				"amount_paid":        4900,
				"amount_due":         4900,
				"currency":           "usd",
				"created":            created,
				"period_start":       created - 86400,
				"period_end":         created + 86400*29,
				"hosted_invoice_url": "https://invoice.stripe.com/i/in_123",
			},
		},
	})

	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Type != paymentdomain.EventTypeInvoicePaid {
		t.Fatalf("expected invoice_paid, got %s", event.Type)
	}
	if event.ProviderSubscriptionID != "sub_123" || event.ProviderInvoiceID != "in_123" {
		t.Fatalf("unexpected ids: %+v", event)
	}
	if event.AmountMinor != 4900 {
		t.Fatalf("expected amount 4900, got %d", event.AmountMinor)
	}
	if event.Currency != "USD" {
		t.Fatalf("expected upper-cased currency, got %q", event.Currency)
	}
	if event.PeriodStart != created-86400 || event.PeriodEnd != created+86400*29 {
		t.Fatalf("unexpected period: %d..%d", event.PeriodStart, event.PeriodEnd)
	}
	if event.HostedURL == "" {
		t.Fatalf("expected hosted url")
	}
}

func TestParseInvoiceFailedCarriesReason(t *testing.T) {
	adapter, _ := New("whsec_test")

	payload := mustMarshal(t, map[string]any{
		"id":   "evt_inv_failed",
		"type": "invoice.payment_failed",
		"data": map[string]any{
			"object": map[string]any{
				"id":           "in_456",
				"subscription": "sub_456",
				"customer":     "cus_456",
				"amount_due":   4900,
				"currency":     "usd",
				"last_finalization_error": map[string]any{
					"message": "Your card was declined.",
				},
			},
		},
	})

	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Type != paymentdomain.EventTypeInvoiceFailed {
		t.Fatalf("expected invoice_failed, got %s", event.Type)
	}
	if event.FailureReason != "Your card was declined." {
		t.Fatalf("unexpected failure reason %q", event.FailureReason)
	}
	if event.AmountMinor != 4900 {
		t.Fatalf("expected amount_due fallback, got %d", event.AmountMinor)
	}
}

func TestParseSubscriptionEvents(t *testing.T) {
	adapter, _ := New("whsec_test")
	created := time.Now().UTC().Unix()

	payload := mustMarshal(t, map[string]any{
		"id":      "evt_sub_upd",
		"type":    "customer.subscription.updated",
		"created": created,
		"data": map[string]any{
			"object": map[string]any{
				"id":                   "sub_789",
				"customer":             "cus_789",
				"status":               "past_due",
				"current_period_start": created - 86400*30,
				"current_period_end":   created,
			},
		},
	})

	event, err := adapter.Parse(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Type != paymentdomain.EventTypeSubscriptionUpdated {
		t.Fatalf("expected subscription_updated, got %s", event.Type)
	}
	if event.Status != "past_due" || event.ProviderCustomerID != "cus_789" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestParseIgnoresUnknownAndOneOffEvents(t *testing.T) {
	adapter, _ := New("whsec_test")

	unknown := mustMarshal(t, map[string]any{
		"id":   "evt_other",
		"type": "charge.succeeded",
		"data": map[string]any{"object": map[string]any{"id": "ch_1"}},
	})
	if _, err := adapter.Parse(context.Background(), unknown); !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected event ignored, got %v", err)
	}

	// An invoice without a subscription is a one-off charge, not ours.
	oneOff := mustMarshal(t, map[string]any{
		"id":   "evt_oneoff",
		"type": "invoice.payment_succeeded",
		"data": map[string]any{"object": map[string]any{"id": "in_oneoff", "customer": "cus_1"}},
	})
	if _, err := adapter.Parse(context.Background(), oneOff); !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected one-off invoice ignored, got %v", err)
	}
}

func mustMarshal(t *testing.T, value any) []byte {
	t.Helper()
	payload, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return payload
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signed := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signed))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}
