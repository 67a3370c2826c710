package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/marketplace/internal/auth"
	"github.com/smallbiznis/marketplace/internal/authorization"
	"github.com/smallbiznis/marketplace/internal/category"
	categorydomain "github.com/smallbiznis/marketplace/internal/category/domain"
	"github.com/smallbiznis/marketplace/internal/config"
	"github.com/smallbiznis/marketplace/internal/filestore"
	"github.com/smallbiznis/marketplace/internal/identity"
	"github.com/smallbiznis/marketplace/internal/lock"
	"github.com/smallbiznis/marketplace/internal/notification"
	"github.com/smallbiznis/marketplace/internal/observability"
	obsmiddleware "github.com/smallbiznis/marketplace/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/marketplace/internal/observability/metrics"
	obstracing "github.com/smallbiznis/marketplace/internal/observability/tracing"
	"github.com/smallbiznis/marketplace/internal/product"
	productdomain "github.com/smallbiznis/marketplace/internal/product/domain"
	"github.com/smallbiznis/marketplace/internal/providers"
	"github.com/smallbiznis/marketplace/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	auth.Module,
	authorization.Module,
	lock.Module,
	ratelimit.Module,
	providers.Module,
	identity.Module,
	notification.Module,
	filestore.Module,
	category.Module,
	product.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
)

type EngineParams struct {
	fx.In

	Config      config.Config
	ObsConfig   observability.Config
	HTTPMetrics *obsmetrics.HTTPMetrics `optional:"true"`
}

func NewEngine(p EngineParams) *gin.Engine {
	if p.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(p.Config)))
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           p.ObsConfig.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if p.HTTPMetrics != nil {
		r.Use(p.HTTPMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func corsConfig(cfg config.Config) cors.Config {
	c := cors.DefaultConfig()
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", "X-Request-ID")
	c.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	if len(cfg.CORSOrigins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = cfg.CORSOrigins
	c.AllowCredentials = true
	return c
}

// RunHTTP serves the engine on the configured port for the lifetime of the app.
func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.HTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
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
	engine            *gin.Engine
	cfg               config.Config
	tokens            *auth.TokenManager
	authzSvc          authorization.Service
	productSvc        productdomain.Service
	categorySvc       categorydomain.Service
	submissionLimiter *ratelimit.SubmissionLimiter
}

type ServerParams struct {
	fx.In

	Gin               *gin.Engine
	Cfg               config.Config
	Tokens            *auth.TokenManager
	AuthzSvc          authorization.Service
	ProductSvc        productdomain.Service
	CategorySvc       categorydomain.Service
	SubmissionLimiter *ratelimit.SubmissionLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:            p.Gin,
		cfg:               p.Cfg,
		tokens:            p.Tokens,
		authzSvc:          p.AuthzSvc,
		productSvc:        p.ProductSvc,
		categorySvc:       p.CategorySvc,
		submissionLimiter: p.SubmissionLimiter,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Products --------
	products := api.Group("/products")
	products.GET("", s.ListProducts)
	products.GET("/pending", s.AuthRequired(), s.authorize(authorization.ObjectProduct, authorization.ActionProductListPending), s.ListPendingProducts)
	products.GET("/my-products", s.AuthRequired(), s.authorize(authorization.ObjectProduct, authorization.ActionProductListOwn), s.ListMyProducts)
	products.GET("/uploader/:username", s.AuthRequired(), s.authorize(authorization.ObjectProduct, authorization.ActionProductListByUploader), s.ListProductsByUploader)
	products.GET("/:id", s.GetProductByID)
	products.POST("", s.AuthRequired(), s.authorize(authorization.ObjectProduct, authorization.ActionProductCreate), s.SubmissionRateLimit(), s.CreateProduct)
	products.PUT("/:id", s.AuthRequired(), s.authorize(authorization.ObjectProduct, authorization.ActionProductUpdate), s.UpdateProduct)
	products.PUT("/:id/decision", s.AuthRequired(), s.authorize(authorization.ObjectProduct, authorization.ActionProductDecide), s.DecideProduct)
	products.DELETE("/:id", s.AuthRequired(), s.authorize(authorization.ObjectProduct, authorization.ActionProductDelete), s.DeleteProduct)

	// -------- Categories --------
	api.GET("/categories/:kind", s.AuthRequired(), s.authorize(authorization.ObjectCategory, authorization.ActionCategoryView), s.ListCategories)
}
