package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/sponsorship/internal/allocation"
	allocationdomain "github.com/smallbiznis/sponsorship/internal/allocation/domain"
	"github.com/smallbiznis/sponsorship/internal/audit"
	auditdomain "github.com/smallbiznis/sponsorship/internal/audit/domain"
	"github.com/smallbiznis/sponsorship/internal/budget"
	budgetdomain "github.com/smallbiznis/sponsorship/internal/budget/domain"
	"github.com/smallbiznis/sponsorship/internal/checkout"
	checkoutdomain "github.com/smallbiznis/sponsorship/internal/checkout/domain"
	"github.com/smallbiznis/sponsorship/internal/clock"
	"github.com/smallbiznis/sponsorship/internal/config"
	"github.com/smallbiznis/sponsorship/internal/eligibility"
	eligibilitydomain "github.com/smallbiznis/sponsorship/internal/eligibility/domain"
	"github.com/smallbiznis/sponsorship/internal/events"
	"github.com/smallbiznis/sponsorship/internal/ledger"
	"github.com/smallbiznis/sponsorship/internal/observability"
	obsmiddleware "github.com/smallbiznis/sponsorship/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/sponsorship/internal/observability/metrics"
	obstracing "github.com/smallbiznis/sponsorship/internal/observability/tracing"
	"github.com/smallbiznis/sponsorship/internal/supportrule"
	ruledomain "github.com/smallbiznis/sponsorship/internal/supportrule/domain"
	"github.com/smallbiznis/sponsorship/internal/transaction"
	transactiondomain "github.com/smallbiznis/sponsorship/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	events.Module,
	audit.Module,
	supportrule.Module,
	budget.Module,
	eligibility.Module,
	allocation.Module,
	ledger.Module,
	transaction.Module,
	checkout.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())
	r.Use(ActorMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	DB             *gorm.DB
	Clock          clock.Clock
	Policy         *config.PricingPolicyHolder
	RuleSvc        ruledomain.Service
	Ledger         budgetdomain.Ledger
	Resolver       eligibilitydomain.Resolver
	AllocationSvc  allocationdomain.Service
	TransactionSvc transactiondomain.Service
	CheckoutSvc    checkoutdomain.Service
	AuditSvc       auditdomain.Service
}

type Server struct {
	engine         *gin.Engine
	db             *gorm.DB
	clock          clock.Clock
	policy         *config.PricingPolicyHolder
	ruleSvc        ruledomain.Service
	ledger         budgetdomain.Ledger
	resolver       eligibilitydomain.Resolver
	allocationSvc  allocationdomain.Service
	transactionSvc transactiondomain.Service
	checkoutSvc    checkoutdomain.Service
	auditSvc       auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		db:             p.DB,
		clock:          p.Clock,
		policy:         p.Policy,
		ruleSvc:        p.RuleSvc,
		ledger:         p.Ledger,
		resolver:       p.Resolver,
		allocationSvc:  p.AllocationSvc,
		transactionSvc: p.TransactionSvc,
		checkoutSvc:    p.CheckoutSvc,
		auditSvc:       p.AuditSvc,
	}

	svc.RegisterRoutes()
	return svc
}

func (s *Server) RegisterRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/pricing/quote", s.Quote)

	rules := v1.Group("/rules")
	rules.POST("", s.CreateRule)
	rules.GET("", s.ListRules)
	rules.GET("/eligible", s.FindEligibleRule)
	rules.GET("/:id", s.GetRule)
	rules.GET("/:id/remaining", s.GetRuleRemaining)
	rules.POST("/:id/pause", s.PauseRule)
	rules.POST("/:id/resume", s.ResumeRule)

	allocations := v1.Group("/allocations")
	allocations.POST("", s.ReserveAllocation)
	allocations.GET("/expired", s.ListExpiredReservations)
	allocations.GET("/:id", s.GetAllocation)
	allocations.POST("/:id/capture", s.CaptureAllocation)
	allocations.POST("/:id/release", s.ReleaseAllocation)

	v1.POST("/enrollments", s.Enroll)
	v1.POST("/transactions", s.RecordTransaction)
	v1.GET("/transactions/:id", s.GetTransaction)

	v1.GET("/audit-logs", s.ListAuditLogs)
}
