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
	"strings"
	"time"

	"github.com/adpilot-io/adpilot/internal/payment/domain"
)

type Adapter struct {
	webhookSecret string
}

func New(webhookSecret string) (*Adapter, error) {
	webhookSecret = strings.TrimSpace(webhookSecret)
	if webhookSecret == "" {
		return nil, domain.ErrInvalidConfig
	}
	return &Adapter{webhookSecret: webhookSecret}, nil
}

func (a *Adapter) Provider() string {
	return "stripe"
}

// Verify checks the Stripe-Signature header: HMAC-SHA256 of
// "<timestamp>.<payload>" keyed with the endpoint's signing secret.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return domain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*domain.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "invoice.payment_succeeded", "invoice.paid":
		return a.parseInvoice(event, payload, domain.EventTypeInvoicePaid)
	case "invoice.payment_failed":
		return a.parseInvoice(event, payload, domain.EventTypeInvoiceFailed)
	case "customer.subscription.created":
		return a.parseSubscription(event, payload, domain.EventTypeSubscriptionCreated)
	case "customer.subscription.updated":
		return a.parseSubscription(event, payload, domain.EventTypeSubscriptionUpdated)
	case "customer.subscription.deleted":
		return a.parseSubscription(event, payload, domain.EventTypeSubscriptionDeleted)
	default:
		return nil, domain.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeInvoice struct {
	ID               string             `json:"id"`
	Subscription     string             `json:"subscription"`
	Customer         string             `json:"customer"`
	AmountPaid       int64              `json:"amount_paid"`
	AmountDue        int64              `json:"amount_due"`
	Currency         string             `json:"currency"`
	Created          int64              `json:"created"`
	PeriodStart      int64              `json:"period_start"`
	PeriodEnd        int64              `json:"period_end"`
	HostedInvoiceURL string             `json:"hosted_invoice_url"`
	Lines            stripeInvoiceLines `json:"lines"`
	LastError        *stripeError       `json:"last_finalization_error"`
}

type stripeInvoiceLines struct {
	Data []stripeInvoiceLine `json:"data"`
}

type stripeInvoiceLine struct {
	Period stripePeriod `json:"period"`
}

type stripePeriod struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

type stripeError struct {
	Message string `json:"message"`
}

type stripeSubscription struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	Created            int64  `json:"created"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
}

func (a *Adapter) parseInvoice(event stripeEvent, payload []byte, eventType string) (*domain.Event, error) {
	var invoice stripeInvoice
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(invoice.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}
	// One-off invoices carry no subscription; they are not ours to track.
	if strings.TrimSpace(invoice.Subscription) == "" {
		return nil, domain.ErrEventIgnored
	}

	amount := invoice.AmountPaid
	if eventType == domain.EventTypeInvoiceFailed || amount <= 0 {
		amount = invoice.AmountDue
	}

	periodStart, periodEnd := invoice.PeriodStart, invoice.PeriodEnd
	if len(invoice.Lines.Data) > 0 {
		line := invoice.Lines.Data[0].Period
		if line.Start > 0 && line.End > 0 {
			periodStart, periodEnd = line.Start, line.End
		}
	}

	out := &domain.Event{
		Provider:               "stripe",
		ProviderEventID:        event.ID,
		Type:                   eventType,
		OccurredAt:             timestamp(invoice.Created, event.Created),
		RawPayload:             payload,
		ProviderSubscriptionID: strings.TrimSpace(invoice.Subscription),
		ProviderCustomerID:     strings.TrimSpace(invoice.Customer),
		ProviderInvoiceID:      invoice.ID,
		AmountMinor:            amount,
		Currency:               strings.ToUpper(strings.TrimSpace(invoice.Currency)),
		PeriodStart:            periodStart,
		PeriodEnd:              periodEnd,
		HostedURL:              strings.TrimSpace(invoice.HostedInvoiceURL),
	}
	if invoice.LastError != nil {
		out.FailureReason = strings.TrimSpace(invoice.LastError.Message)
	}
	return out, nil
}

func (a *Adapter) parseSubscription(event stripeEvent, payload []byte, eventType string) (*domain.Event, error) {
	var subscription stripeSubscription
	if err := json.Unmarshal(event.Data.Object, &subscription); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(subscription.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.Event{
		Provider:               "stripe",
		ProviderEventID:        event.ID,
		Type:                   eventType,
		OccurredAt:             timestamp(subscription.Created, event.Created),
		RawPayload:             payload,
		ProviderSubscriptionID: strings.TrimSpace(subscription.ID),
		ProviderCustomerID:     strings.TrimSpace(subscription.Customer),
		Status:                 strings.TrimSpace(subscription.Status),
		PeriodStart:            subscription.CurrentPeriodStart,
		PeriodEnd:              subscription.CurrentPeriodEnd,
	}, nil
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}
