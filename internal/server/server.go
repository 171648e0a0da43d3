package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/craftora/craftora/internal/catalog"
	"github.com/craftora/craftora/internal/config"
	"github.com/craftora/craftora/internal/creator"
	creatorservice "github.com/craftora/craftora/internal/creator/service"
	"github.com/craftora/craftora/internal/escrow"
	"github.com/craftora/craftora/internal/ledger"
	ledgerservice "github.com/craftora/craftora/internal/ledger/service"
	"github.com/craftora/craftora/internal/order"
	orderservice "github.com/craftora/craftora/internal/order/service"
	"github.com/craftora/craftora/internal/payment"
	paymentdomain "github.com/craftora/craftora/internal/payment/domain"
	paymentservice "github.com/craftora/craftora/internal/payment/service"
	"github.com/craftora/craftora/internal/ratelimit"
	"github.com/craftora/craftora/internal/returns"
	returnsservice "github.com/craftora/craftora/internal/returns/service"
	"github.com/craftora/craftora/internal/subscription"
	"github.com/craftora/craftora/internal/webhook"
	webhookservice "github.com/craftora/craftora/internal/webhook/service"
	"github.com/craftora/craftora/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	catalog.Module,
	order.Module,
	payment.Module,
	returns.Module,
	ledger.Module,
	subscription.Module,
	creator.Module,
	escrow.Module,
	webhook.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, metrics *telemetry.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(log))
	r.Use(telemetry.GinMiddleware())
	r.Use(MetricsMiddleware(metrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, metrics *telemetry.Metrics) *gin.Engine {
	return NewEngine(log, metrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
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
	engine         *gin.Engine
	cfg            config.Config
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	metrics        *telemetry.Metrics
	orderSvc       *orderservice.Service
	paymentSvc     *paymentservice.Service
	returnSvc      *returnsservice.Service
	ledgerSvc      *ledgerservice.Service
	creatorSvc     *creatorservice.Service
	reconciler     *webhookservice.Reconciler
	refundIssuer   paymentdomain.RefundIssuer
	webhookLimiter *ratelimit.WebhookLimiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Metrics      *telemetry.Metrics
	OrderSvc     *orderservice.Service
	PaymentSvc   *paymentservice.Service
	ReturnSvc    *returnsservice.Service
	LedgerSvc    *ledgerservice.Service
	CreatorSvc   *creatorservice.Service
	Reconciler   *webhookservice.Reconciler
	RefundIssuer paymentdomain.RefundIssuer

	WebhookLimiter *ratelimit.WebhookLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		db:             p.DB,
		log:            p.Log.Named("server"),
		genID:          p.GenID,
		metrics:        p.Metrics,
		orderSvc:       p.OrderSvc,
		paymentSvc:     p.PaymentSvc,
		returnSvc:      p.ReturnSvc,
		ledgerSvc:      p.LedgerSvc,
		creatorSvc:     p.CreatorSvc,
		reconciler:     p.Reconciler,
		refundIssuer:   p.RefundIssuer,
		webhookLimiter: p.WebhookLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Orders --------
	api.POST("/orders", s.CreateOrder)
	api.GET("/orders/:id", s.GetOrder)
	api.POST("/orders/:id/cancel", s.CancelOrder)
	api.POST("/orders/:id/shipment", s.RecordShipment)
	api.POST("/orders/:id/delivery", s.RecordDelivery)
	api.POST("/orders/:id/dispute", s.OpenDispute)

	// -------- Returns --------
	api.POST("/returns", s.CreateReturn)
	api.GET("/returns/:id", s.GetReturn)
	api.POST("/returns/:id/approve", s.ApproveReturn)
	api.POST("/returns/:id/reject", s.RejectReturn)
	api.POST("/returns/:id/shipped-back", s.ReturnShippedBack)
	api.POST("/returns/:id/received", s.ReturnReceived)
	api.POST("/returns/:id/refund", s.RefundReturn)

	// -------- Creators --------
	api.POST("/creators", s.RegisterCreator)
	api.GET("/creators/:id", s.GetCreator)

	// -------- Ledger --------
	api.GET("/ledger/transactions", s.ListLedgerTransactions)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/stripe", s.StripeWebhook)
}
