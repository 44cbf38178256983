package server

import (
	"context"
	"net/http"
	"time"

	"github.com/adpilot-io/adpilot/internal/account"
	accountdomain "github.com/adpilot-io/adpilot/internal/account/domain"
	"github.com/adpilot-io/adpilot/internal/clock"
	"github.com/adpilot-io/adpilot/internal/config"
	"github.com/adpilot-io/adpilot/internal/dunning"
	dunningdomain "github.com/adpilot-io/adpilot/internal/dunning/domain"
	"github.com/adpilot-io/adpilot/internal/invoice"
	invoicedomain "github.com/adpilot-io/adpilot/internal/invoice/domain"
	"github.com/adpilot-io/adpilot/internal/lock"
	"github.com/adpilot-io/adpilot/internal/migration"
	"github.com/adpilot-io/adpilot/internal/notification"
	notificationdomain "github.com/adpilot-io/adpilot/internal/notification/domain"
	obsmetrics "github.com/adpilot-io/adpilot/internal/observability/metrics"
	"github.com/adpilot-io/adpilot/internal/payment"
	paymentdomain "github.com/adpilot-io/adpilot/internal/payment/domain"
	"github.com/adpilot-io/adpilot/internal/providers/email"
	providerpayment "github.com/adpilot-io/adpilot/internal/providers/payment"
	"github.com/adpilot-io/adpilot/internal/providers/pdf"
	"github.com/adpilot-io/adpilot/internal/scheduler"
	"github.com/adpilot-io/adpilot/internal/subscription"
	subscriptiondomain "github.com/adpilot-io/adpilot/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	account.Module,
	notification.Module,
	email.Module,
	pdf.Module,
	invoice.Module,
	subscription.Module,
	payment.Module,
	providerpayment.Module,
	lock.Module,
	dunning.Module,
	migration.Module,
	scheduler.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin() *gin.Engine {
	return NewEngine()
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	clock           clock.Clock
	webhookSvc      paymentdomain.Service
	dunningSvc      dunningdomain.Service
	notificationSvc notificationdomain.Service
	subscriptionSvc subscriptiondomain.Service
	invoiceRepo     invoicedomain.Repository
	accountRepo     accountdomain.Repository
	pdfProvider     pdf.Provider
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	Clock           clock.Clock
	WebhookSvc      paymentdomain.Service
	DunningSvc      dunningdomain.Service
	NotificationSvc notificationdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	InvoiceRepo     invoicedomain.Repository
	AccountRepo     accountdomain.Repository
	PDFProvider     pdf.Provider
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		clock:           p.Clock,
		webhookSvc:      p.WebhookSvc,
		dunningSvc:      p.DunningSvc,
		notificationSvc: p.NotificationSvc,
		subscriptionSvc: p.SubscriptionSvc,
		invoiceRepo:     p.InvoiceRepo,
		accountRepo:     p.AccountRepo,
		pdfProvider:     p.PDFProvider,
	}

	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.GET("/subscriptions/:id", s.GetSubscription)
	api.POST("/subscriptions/:id/reactivate", s.ReactivateSubscription)
	api.GET("/accounts/:id/invoices", s.ListAccountInvoices)
	api.GET("/invoices/:id/pdf", s.DownloadInvoicePDF)
	api.GET("/notifications", s.ListNotifications)
	api.POST("/notifications/:id/read", s.MarkNotificationRead)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.POST("/dunning/run", s.RunDunningSweep)
}
