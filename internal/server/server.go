package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	analysisdomain "github.com/smallbiznis/storepulse/internal/analysis/domain"
	"github.com/smallbiznis/storepulse/internal/config"
	customerdomain "github.com/smallbiznis/storepulse/internal/customer/domain"
	dashboarddomain "github.com/smallbiznis/storepulse/internal/dashboard/domain"
	"github.com/smallbiznis/storepulse/internal/observability"
	obsmiddleware "github.com/smallbiznis/storepulse/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/storepulse/internal/observability/metrics"
	obstracing "github.com/smallbiznis/storepulse/internal/observability/tracing"
	storedomain "github.com/smallbiznis/storepulse/internal/store/domain"
	visitdomain "github.com/smallbiznis/storepulse/internal/visit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
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

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http.server.start", zap.String("addr", srv.Addr))
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
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	storeSvc    storedomain.Service
	customerSvc customerdomain.Service
	visitSvc    visitdomain.Service
	dashboard   dashboarddomain.Service
	analysisSvc analysisdomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	StoreSvc    storedomain.Service
	CustomerSvc customerdomain.Service
	VisitSvc    visitdomain.Service
	Dashboard   dashboarddomain.Service
	AnalysisSvc analysisdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		storeSvc:    p.StoreSvc,
		customerSvc: p.CustomerSvc,
		visitSvc:    p.VisitSvc,
		dashboard:   p.Dashboard,
		analysisSvc: p.AnalysisSvc,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	stores := s.engine.Group("/api/stores/:id", s.RequireStore())

	// -------- Dashboard --------
	stores.GET("/dashboard/weekly-summary", s.GetWeeklySummary)

	// -------- Customers --------
	stores.GET("/customers", s.ListStoreCustomers)
	stores.GET("/customers/declined-loyal", s.GetDeclinedLoyalSummary)
	stores.GET("/customers/:customerId", s.GetCustomerDetail)
	stores.GET("/customers/:customerId/visits/graph", s.GetCustomerVisitGraph)

	// -------- Visits --------
	stores.GET("/visits/graph", s.GetVisitGraph)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.POST("/analysis/run", s.TriggerAnalysis)
	admin.POST("/analysis/stores/:id/run", s.RunStoreAnalysis)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
