package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	accountrepo "github.com/adpilot-io/adpilot/internal/account/repository"
	"github.com/adpilot-io/adpilot/internal/clock"
	"github.com/adpilot-io/adpilot/internal/notification/domain"
	notificationrepo "github.com/adpilot-io/adpilot/internal/notification/repository"
	notificationservice "github.com/adpilot-io/adpilot/internal/notification/service"
	obsmetrics "github.com/adpilot-io/adpilot/internal/observability/metrics"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// capturingEmail records sends so tests can assert on recipient resolution.
type capturingEmail struct {
	mu    sync.Mutex
	sends []capturedSend
}

type capturedSend struct {
	to      []string
	subject string
}

func (p *capturingEmail) Send(ctx context.Context, to []string, subject, htmlBody string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sends = append(p.sends, capturedSend{to: to, subject: subject})
	return nil
}

func newService(t *testing.T) (*gorm.DB, *snowflake.Node, domain.Service, *capturingEmail) {
	t.Helper()
	obsmetrics.ResetForTest()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(13)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	emailProvider := &capturingEmail{}
	svc := notificationservice.NewService(notificationservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clock.NewFakeClock(time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)),
		Repo:        notificationrepo.Provide(),
		AccountRepo: accountrepo.Provide(),
		Email:       emailProvider,
	})
	return db, node, svc, emailProvider
}

func seedAccount(t *testing.T, db *gorm.DB, node *snowflake.Node, emailAddr string) snowflake.ID {
	t.Helper()
	id := node.Generate()
	err := db.Exec(
		`INSERT INTO client_accounts (id, name, email, status, created_at, updated_at)
		 VALUES (?, 'Beacon Digital', ?, 'ACTIVE', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		id, emailAddr,
	).Error
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return id
}

func TestDispatchPersistsAndDefaultsPriority(t *testing.T) {
	ctx := context.Background()
	db, node, svc, _ := newService(t)
	accountID := seedAccount(t, db, node, "ops@beacon.test")

	created, err := svc.Dispatch(ctx, domain.DispatchRequest{
		Type:      domain.NotificationTypeInfo,
		Title:     "  Weekly summary ready  ",
		Message:   "Your campaign report is available.",
		AccountID: &accountID,
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if created.Title != "Weekly summary ready" {
		t.Fatalf("expected trimmed title, got %q", created.Title)
	}
	if created.Priority != domain.NotificationPriorityMedium {
		t.Fatalf("expected default medium priority, got %s", created.Priority)
	}

	var count int64
	if err := db.Raw(`SELECT COUNT(*) FROM notifications WHERE id = ?`, created.ID).Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected persisted row, got %d", count)
	}
}

func TestDispatchRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	_, _, svc, _ := newService(t)

	if _, err := svc.Dispatch(ctx, domain.DispatchRequest{
		Type:  domain.NotificationType("fancy"),
		Title: "Hello",
	}); !errors.Is(err, domain.ErrInvalidNotificationType) {
		t.Fatalf("expected invalid type, got %v", err)
	}
	if _, err := svc.Dispatch(ctx, domain.DispatchRequest{
		Type:  domain.NotificationTypeInfo,
		Title: "   ",
	}); !errors.Is(err, domain.ErrMissingTitle) {
		t.Fatalf("expected missing title, got %v", err)
	}
}

func TestDispatchResolvesEmailRecipientFromAccount(t *testing.T) {
	ctx := context.Background()
	db, node, svc, emailProvider := newService(t)
	accountID := seedAccount(t, db, node, "billing@beacon.test")

	_, err := svc.Dispatch(ctx, domain.DispatchRequest{
		Type:      domain.NotificationTypeWarning,
		Title:     "Payment overdue",
		Message:   "Please update your payment method.",
		AccountID: &accountID,
		Email: &domain.EmailRequest{
			Subject:  "Payment overdue - AdPilot",
			HTMLBody: "<p>Please update your payment method.</p>",
		},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(emailProvider.sends) != 1 {
		t.Fatalf("expected 1 email, got %d", len(emailProvider.sends))
	}
	sent := emailProvider.sends[0]
	if len(sent.to) != 1 || sent.to[0] != "billing@beacon.test" {
		t.Fatalf("expected account email recipient, got %v", sent.to)
	}
	if sent.subject != "Payment overdue - AdPilot" {
		t.Fatalf("unexpected subject %q", sent.subject)
	}
}

func TestListFiltersUnreadAndPaginates(t *testing.T) {
	ctx := context.Background()
	db, node, svc, _ := newService(t)
	accountID := seedAccount(t, db, node, "ops@beacon.test")

	var firstID snowflake.ID
	for i := 0; i < 5; i++ {
		created, err := svc.Dispatch(ctx, domain.DispatchRequest{
			Type:      domain.NotificationTypeInfo,
			Title:     fmt.Sprintf("Update %d", i),
			Message:   "body",
			AccountID: &accountID,
		})
		if err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
		if i == 0 {
			firstID = created.ID
		}
	}
	if err := svc.MarkRead(ctx, firstID); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	unread, err := svc.List(ctx, domain.ListNotificationRequest{AccountID: &accountID, UnreadOnly: true})
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(unread.Notifications) != 4 {
		t.Fatalf("expected 4 unread, got %d", len(unread.Notifications))
	}

	page, err := svc.List(ctx, domain.ListNotificationRequest{AccountID: &accountID, PageSize: 2})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page.Notifications) != 2 || !page.HasMore || page.NextPageToken == "" {
		t.Fatalf("expected first page of 2 with next token, got %d items hasMore=%v", len(page.Notifications), page.HasMore)
	}

	rest, err := svc.List(ctx, domain.ListNotificationRequest{AccountID: &accountID, PageSize: 10, PageToken: page.NextPageToken})
	if err != nil {
		t.Fatalf("list rest: %v", err)
	}
	if len(rest.Notifications) != 3 || rest.HasMore {
		t.Fatalf("expected final page of 3, got %d hasMore=%v", len(rest.Notifications), rest.HasMore)
	}
}

func TestMarkReadUnknownNotification(t *testing.T) {
	_, node, svc, _ := newService(t)
	err := svc.MarkRead(context.Background(), node.Generate())
	if !errors.Is(err, domain.ErrNotificationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, node, svc, _ := newService(t)
	accountID := seedAccount(t, db, node, "ops@beacon.test")

	created, err := svc.Dispatch(ctx, domain.DispatchRequest{
		Type:      domain.NotificationTypeInfo,
		Title:     "One",
		Message:   "body",
		AccountID: &accountID,
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := svc.MarkRead(ctx, created.ID); err != nil {
		t.Fatalf("first mark read: %v", err)
	}
	if err := svc.MarkRead(ctx, created.ID); err != nil {
		t.Fatalf("second mark read must succeed: %v", err)
	}
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
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}
