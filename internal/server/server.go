package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/listingcraft/listingcraft/internal/audit"
	auditdomain "github.com/listingcraft/listingcraft/internal/audit/domain"
	"github.com/listingcraft/listingcraft/internal/billing"
	billingdomain "github.com/listingcraft/listingcraft/internal/billing/domain"
	"github.com/listingcraft/listingcraft/internal/cache"
	"github.com/listingcraft/listingcraft/internal/checkout"
	checkoutdomain "github.com/listingcraft/listingcraft/internal/checkout/domain"
	"github.com/listingcraft/listingcraft/internal/clock"
	"github.com/listingcraft/listingcraft/internal/config"
	"github.com/listingcraft/listingcraft/internal/gate"
	gatedomain "github.com/listingcraft/listingcraft/internal/gate/domain"
	"github.com/listingcraft/listingcraft/internal/listing"
	listingdomain "github.com/listingcraft/listingcraft/internal/listing/domain"
	"github.com/listingcraft/listingcraft/internal/notification"
	"github.com/listingcraft/listingcraft/internal/observability"
	obsmiddleware "github.com/listingcraft/listingcraft/internal/observability/logger"
	obsmetrics "github.com/listingcraft/listingcraft/internal/observability/metrics"
	obstracing "github.com/listingcraft/listingcraft/internal/observability/tracing"
	"github.com/listingcraft/listingcraft/internal/plan"
	plandomain "github.com/listingcraft/listingcraft/internal/plan/domain"
	"github.com/listingcraft/listingcraft/internal/providers"
	"github.com/listingcraft/listingcraft/internal/ratelimit"
	"github.com/listingcraft/listingcraft/internal/subscription"
	subscriptiondomain "github.com/listingcraft/listingcraft/internal/subscription/domain"
	"github.com/listingcraft/listingcraft/internal/usage"
	usagedomain "github.com/listingcraft/listingcraft/internal/usage/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	audit.Module,
	providers.Module,
	notification.Module,
	ratelimit.Module,
	cache.Module,
	plan.Module,
	subscription.Module,
	usage.Module,
	gate.Module,
	billing.Module,
	checkout.Module,
	listing.Module,
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

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
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
	engine          *gin.Engine
	cfg             config.Config
	genID           *snowflake.Node
	clock           clock.Clock
	auditSvc        auditdomain.Service
	billingSvc      billingdomain.Service
	webhookAdapter  billingdomain.WebhookAdapter
	planSvc         plandomain.Service
	subscriptionSvc subscriptiondomain.Service
	usageSvc        usagedomain.Service
	gateSvc         gatedomain.Service
	checkoutSvc     checkoutdomain.Service
	listingSvc      listingdomain.Service
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	GenID           *snowflake.Node
	Clock           clock.Clock
	AuditSvc        auditdomain.Service
	BillingSvc      billingdomain.Service
	WebhookAdapter  billingdomain.WebhookAdapter
	PlanSvc         plandomain.Service
	SubscriptionSvc subscriptiondomain.Service
	UsageSvc        usagedomain.Service
	GateSvc         gatedomain.Service
	CheckoutSvc     checkoutdomain.Service
	ListingSvc      listingdomain.Service
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		genID:           p.GenID,
		clock:           p.Clock,
		auditSvc:        p.AuditSvc,
		billingSvc:      p.BillingSvc,
		webhookAdapter:  p.WebhookAdapter,
		planSvc:         p.PlanSvc,
		subscriptionSvc: p.SubscriptionSvc,
		usageSvc:        p.UsageSvc,
		gateSvc:         p.GateSvc,
		checkoutSvc:     p.CheckoutSvc,
		listingSvc:      p.ListingSvc,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/webhooks/stripe", s.HandleStripeWebhook)
	v1.GET("/plans", s.ListPlans)

	authed := v1.Group("")
	authed.Use(s.AccountContext())

	authed.GET("/subscription", s.GetSubscription)
	authed.POST("/subscription/change-plan", s.ChangePlan)
	authed.POST("/subscription/cancel", s.CancelSubscription)
	authed.POST("/checkout/session", s.CreateCheckoutSession)
	authed.POST("/billing-portal", s.CreateBillingPortalSession)
	authed.GET("/usage", s.GetUsage)

	authed.POST("/listings", s.CreateListing)
	authed.GET("/listings", s.ListListings)
	authed.GET("/listings/:id", s.GetListing)
	authed.POST("/listings/:id/regenerate", s.RegenerateListing)
	authed.PATCH("/listings/:id/description", s.UpdateListingDescription)
	authed.POST("/listings/:id/favorite", s.ToggleListingFavorite)
	authed.DELETE("/listings/:id", s.DeleteListing)
}
