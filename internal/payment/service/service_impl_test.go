package service_test

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

	accountdomain "github.com/adpilot-io/adpilot/internal/account/domain"
	accountrepo "github.com/adpilot-io/adpilot/internal/account/repository"
	"github.com/adpilot-io/adpilot/internal/clock"
	invoicerepo "github.com/adpilot-io/adpilot/internal/invoice/repository"
	notificationrepo "github.com/adpilot-io/adpilot/internal/notification/repository"
	notificationservice "github.com/adpilot-io/adpilot/internal/notification/service"
	obsmetrics "github.com/adpilot-io/adpilot/internal/observability/metrics"
	"github.com/adpilot-io/adpilot/internal/payment/adapters"
	"github.com/adpilot-io/adpilot/internal/payment/adapters/stripe"
	paymentdomain "github.com/adpilot-io/adpilot/internal/payment/domain"
	paymentrepo "github.com/adpilot-io/adpilot/internal/payment/repository"
	paymentservice "github.com/adpilot-io/adpilot/internal/payment/service"
	paymentwebhook "github.com/adpilot-io/adpilot/internal/payment/webhook"
	"github.com/adpilot-io/adpilot/internal/providers/email"
	subscriptiondomain "github.com/adpilot-io/adpilot/internal/subscription/domain"
	subscriptionrepo "github.com/adpilot-io/adpilot/internal/subscription/repository"
	subscriptionservice "github.com/adpilot-io/adpilot/internal/subscription/service"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_test"

type fixture struct {
	db         *gorm.DB
	node       *snowflake.Node
	clock      *clock.FakeClock
	webhookSvc paymentdomain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	obsmetrics.ResetForTest()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(10)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	notificationSvc := notificationservice.NewService(notificationservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fakeClock,
		Repo:        notificationrepo.Provide(),
		AccountRepo: accountrepo.Provide(),
		Email:       &email.NoOpProvider{},
	})
	subscriptionSvc := subscriptionservice.NewService(subscriptionservice.Params{
		DB:              db,
		Log:             zap.NewNop(),
		GenID:           node,
		Clock:           fakeClock,
		Repo:            subscriptionrepo.Provide(),
		InvoiceRepo:     invoicerepo.Provide(),
		AccountRepo:     accountrepo.Provide(),
		NotificationSvc: notificationSvc,
	})
	paymentSvc := paymentservice.NewService(paymentservice.Params{
		DB:              db,
		Log:             zap.NewNop(),
		GenID:           node,
		Clock:           fakeClock,
		Repo:            paymentrepo.Provide(),
		SubscriptionSvc: subscriptionSvc,
	})
	adapter, err := stripe.New(webhookSecret)
	if err != nil {
		t.Fatalf("new stripe adapter: %v", err)
	}
	webhookSvc := paymentwebhook.NewService(paymentwebhook.Params{
		Log:        zap.NewNop(),
		PaymentSvc: paymentSvc,
		Adapters:   adapters.NewRegistry(adapter),
	})

	return &fixture{db: db, node: node, clock: fakeClock, webhookSvc: webhookSvc}
}

func TestIngestWebhookAppliesPaymentSucceeded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	accountID := f.seedAccount(t, accountdomain.AccountStatusSuspended)
	subscriptionID := f.seedSubscription(t, accountID, "sub_123", subscriptiondomain.SubscriptionStatusPastDue)

	now := f.clock.Now()
	payload := mustMarshal(t, map[string]any{
		"id":      "evt_paid_1",
		"type":    "invoice.payment_succeeded",
		"created": now.Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":                 "in_1",
				"subscription":       "sub_123",
				"customer":           "cus_123",
				"amount_paid":        4900,
				"amount_due":         4900,
				"currency":           "usd",
				"created":            now.Unix(),
				"period_start":       now.Unix(),
				"period_end":         now.Add(30 * 24 * time.Hour).Unix(),
				"hosted_invoice_url": "https://invoice.stripe.com/i/in_1",
			},
		},
	})

	if err := f.webhookSvc.IngestWebhook(ctx, "stripe", payload, signedHeaders(payload, webhookSecret)); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	sub := f.loadSubscription(t, subscriptionID)
	if sub.Status != subscriptiondomain.SubscriptionStatusActive {
		t.Fatalf("expected subscription ACTIVE, got %s", sub.Status)
	}
	if sub.CurrentPeriodEnd == nil || !sub.CurrentPeriodEnd.Equal(now.Add(30*24*time.Hour)) {
		t.Fatalf("expected refreshed period end, got %v", sub.CurrentPeriodEnd)
	}
	if sub.Amount != 49 {
		t.Fatalf("expected amount 49.00, got %v", sub.Amount)
	}

	if got := f.accountStatus(t, accountID); got != accountdomain.AccountStatusActive {
		t.Fatalf("expected account reactivated, got %s", got)
	}

	assertCount(t, f.db, "invoices", "status = 'PAID'", 1)
	assertCount(t, f.db, "payment_events", "processed_at IS NOT NULL", 1)
	assertCount(t, f.db, "notifications", "type = 'success'", 1)
}

func TestIngestWebhookDeduplicatesRedelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	accountID := f.seedAccount(t, accountdomain.AccountStatusActive)
	f.seedSubscription(t, accountID, "sub_dup", subscriptiondomain.SubscriptionStatusActive)

	now := f.clock.Now()
	payload := mustMarshal(t, map[string]any{
		"id":      "evt_dup",
		"type":    "invoice.payment_succeeded",
		"created": now.Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":           "in_dup",
				"subscription": "sub_dup",
				"customer":     "cus_dup",
				"amount_paid":  4900,
				"currency":     "usd",
				"period_start": now.Unix(),
				"period_end":   now.Add(30 * 24 * time.Hour).Unix(),
			},
		},
	})
	headers := signedHeaders(payload, webhookSecret)

	if err := f.webhookSvc.IngestWebhook(ctx, "stripe", payload, headers); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	err := f.webhookSvc.IngestWebhook(ctx, "stripe", payload, headers)
	if !errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
		t.Fatalf("redelivery must surface as already processed, got %v", err)
	}

	assertCount(t, f.db, "payment_events", "1=1", 1)
	assertCount(t, f.db, "invoices", "1=1", 1)
}

func TestIngestWebhookRejectsUnknownProvider(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	payload := mustMarshal(t, map[string]any{"id": "evt_x", "type": "invoice.payment_succeeded"})
	err := f.webhookSvc.IngestWebhook(ctx, "adyen", payload, signedHeaders(payload, webhookSecret))
	if !errors.Is(err, paymentdomain.ErrProviderNotFound) {
		t.Fatalf("expected provider not found, got %v", err)
	}
	assertCount(t, f.db, "payment_events", "1=1", 0)
}

func TestIngestWebhookRejectsInvalidSignature(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	payload := mustMarshal(t, map[string]any{
		"id":   "evt_forged",
		"type": "invoice.payment_succeeded",
		"data": map[string]any{
			"object": map[string]any{"id": "in_x", "subscription": "sub_x", "currency": "usd"},
		},
	})

	err := f.webhookSvc.IngestWebhook(ctx, "stripe", payload, signedHeaders(payload, "whsec_wrong"))
	if !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
	assertCount(t, f.db, "payment_events", "1=1", 0)
}

func TestIngestWebhookUnknownSubscriptionIsAcknowledged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	now := f.clock.Now()
	payload := mustMarshal(t, map[string]any{
		"id":   "evt_unknown",
		"type": "invoice.payment_succeeded",
		"data": map[string]any{
			"object": map[string]any{
				"id":           "in_unknown",
				"subscription": "sub_not_ours",
				"customer":     "cus_not_ours",
				"amount_paid":  100,
				"currency":     "usd",
				"period_start": now.Unix(),
				"period_end":   now.Add(30 * 24 * time.Hour).Unix(),
			},
		},
	})

	if err := f.webhookSvc.IngestWebhook(ctx, "stripe", payload, signedHeaders(payload, webhookSecret)); err != nil {
		t.Fatalf("unknown subscription must not fail delivery: %v", err)
	}
	assertCount(t, f.db, "payment_events", "processed_at IS NOT NULL", 1)
	assertCount(t, f.db, "invoices", "1=1", 0)
}

func TestIngestWebhookSubscriptionDeletedCancels(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	accountID := f.seedAccount(t, accountdomain.AccountStatusActive)
	subscriptionID := f.seedSubscription(t, accountID, "sub_del", subscriptiondomain.SubscriptionStatusActive)

	payload := mustMarshal(t, map[string]any{
		"id":   "evt_del",
		"type": "customer.subscription.deleted",
		"data": map[string]any{
			"object": map[string]any{
				"id":       "sub_del",
				"customer": "cus_del",
				"status":   "canceled",
			},
		},
	})

	if err := f.webhookSvc.IngestWebhook(ctx, "stripe", payload, signedHeaders(payload, webhookSecret)); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	sub := f.loadSubscription(t, subscriptionID)
	if sub.Status != subscriptiondomain.SubscriptionStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", sub.Status)
	}
	if sub.EndDate == nil || !sub.EndDate.Equal(f.clock.Now()) {
		t.Fatalf("expected end date at cancellation time, got %v", sub.EndDate)
	}
	if got := f.accountStatus(t, accountID); got != accountdomain.AccountStatusCancelled {
		t.Fatalf("expected account CANCELLED, got %s", got)
	}
}

func (f *fixture) seedAccount(t *testing.T, status accountdomain.AccountStatus) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	err := f.db.Exec(
		`INSERT INTO client_accounts (id, name, email, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, "Acme Agency", "billing@acme.test", status, f.clock.Now(), f.clock.Now(),
	).Error
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return id
}

func (f *fixture) seedSubscription(t *testing.T, accountID snowflake.ID, providerSubscriptionID string, status subscriptiondomain.SubscriptionStatus) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	now := f.clock.Now()
	err := f.db.Exec(
		`INSERT INTO subscriptions (
			id, account_id, provider, provider_subscription_id, provider_customer_id,
			status, plan_id, amount, currency, current_period_start, current_period_end,
			created_at, updated_at
		) VALUES (?, ?, 'stripe', ?, ?, ?, 'growth', 49, 'USD', ?, ?, ?, ?)`,
		id, accountID, providerSubscriptionID, "cus_"+providerSubscriptionID,
		status, now.Add(-30*24*time.Hour), now, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return id
}

func (f *fixture) loadSubscription(t *testing.T, id snowflake.ID) *subscriptiondomain.Subscription {
	t.Helper()
	item, err := subscriptionrepo.Provide().FindByID(context.Background(), f.db, id)
	if err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	if item == nil {
		t.Fatalf("subscription %s not found", id)
	}
	return item
}

func (f *fixture) accountStatus(t *testing.T, id snowflake.ID) accountdomain.AccountStatus {
	t.Helper()
	var status accountdomain.AccountStatus
	if err := f.db.Raw(`SELECT status FROM client_accounts WHERE id = ?`, id).Scan(&status).Error; err != nil {
		t.Fatalf("account status: %v", err)
	}
	return status
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE client_accounts (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			company_name TEXT,
			status TEXT NOT NULL DEFAULT 'ACTIVE',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE subscriptions (
			id BIGINT PRIMARY KEY,
			account_id BIGINT NOT NULL,
			provider TEXT NOT NULL,
			provider_subscription_id TEXT NOT NULL,
			provider_customer_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			plan_id TEXT NOT NULL DEFAULT '',
			amount REAL NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT 'USD',
			current_period_start DATETIME,
			current_period_end DATETIME,
			end_date DATETIME,
			last_reminder_at DATETIME,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_subscriptions_provider_subscription ON subscriptions(provider, provider_subscription_id)`,
		`CREATE TABLE invoices (
			id BIGINT PRIMARY KEY,
			account_id BIGINT NOT NULL,
			subscription_id BIGINT NOT NULL,
			provider_invoice_id TEXT NOT NULL DEFAULT '',
			number TEXT NOT NULL,
			amount REAL NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			paid_at DATETIME,
			failed_at DATETIME,
			failure_reason TEXT,
			hosted_url TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE notifications (
			id BIGINT PRIMARY KEY,
			account_id BIGINT,
			user_id BIGINT,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			action_url TEXT,
			priority TEXT NOT NULL DEFAULT 'medium',
			read BOOLEAN NOT NULL DEFAULT FALSE,
			read_at DATETIME,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE payment_events (
			id BIGINT PRIMARY KEY,
			provider TEXT NOT NULL,
			provider_event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			received_at DATETIME NOT NULL,
			processed_at DATETIME
		)`,
		`CREATE UNIQUE INDEX ux_payment_events_provider_event_id ON payment_events(provider, provider_event_id)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func assertCount(t *testing.T, db *gorm.DB, table, where string, want int64) {
	t.Helper()
	var got int64
	if err := db.Raw(fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, table, where)).Scan(&got).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	if got != want {
		t.Fatalf("expected %d rows in %s where %s, got %d", want, table, where, got)
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

func signedHeaders(payload []byte, secret string) http.Header {
	ts := time.Now().Unix()
	signed := fmt.Sprintf("%d.%s", ts, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signed))
	headers := http.Header{}
	headers.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))
	return headers
}
