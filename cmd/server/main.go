package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/erp/shopsync/docs"
	"github.com/erp/shopsync/internal/bootstrap"
	"github.com/erp/shopsync/internal/infrastructure/config"
	"github.com/erp/shopsync/internal/infrastructure/logger"
	"github.com/erp/shopsync/internal/infrastructure/telemetry"
	"github.com/erp/shopsync/internal/interfaces/http/handler"
	"github.com/erp/shopsync/internal/interfaces/http/middleware"
	"github.com/erp/shopsync/internal/interfaces/http/router"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			Shopsync API
//	@version		1.0
//	@description	Bidirectional synchronization between the ERP and Shopify stores

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting shopsync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx := context.Background()

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	logProvider, err := telemetry.NewLoggerProvider(ctx, tracerProvider.GetConfig(), log)
	if err != nil {
		log.Fatal("Failed to initialize log provider", zap.Error(err))
	}
	log = telemetry.Bridge(log, logProvider, cfg.Telemetry.ServiceName)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Telemetry.ProfilingEnabled,
		ServerAddress:     cfg.Telemetry.PyroscopeAddress,
		ApplicationName:   cfg.Telemetry.ServiceName,
		BasicAuthUser:     cfg.Telemetry.PyroscopeUser,
		BasicAuthPassword: cfg.Telemetry.PyroscopePassword,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize profiler", zap.Error(err))
	}
	if cfg.Telemetry.SpanProfiles && profiler.IsEnabled() && !tracerProvider.EnableSpanProfiles() {
		log.Warn("Span profiles need trace export enabled")
	}

	app, err := bootstrap.New(ctx, cfg, log, bootstrap.WithScheduler())
	if err != nil {
		log.Fatal("Failed to initialize sync service", zap.Error(err))
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error("Error closing resources", zap.Error(err))
		}
	}()

	if err := app.Start(ctx); err != nil {
		log.Fatal("Failed to start workers", zap.Error(err))
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware order:
	// 1. RequestID
	// 2. Recovery
	// 3. Access log
	// 4. Tracing and span error marking (if enabled)
	// 5. HTTP metrics (if enabled)
	// 6. Security headers
	// 7. CORS
	// 8. BodyLimit
	// 9. RateLimit (if enabled)
	// 10. Profiling labels (if enabled)
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	quiet := []string{"/api/v1/health"}
	if app.Metrics != nil {
		quiet = append(quiet, app.Metrics.Path())
	}
	engine.Use(logger.GinMiddleware(log, logger.WithQuietPaths(quiet...)))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
		SkipPaths:   quiet,
	}))
	if cfg.Telemetry.Enabled {
		engine.Use(middleware.SpanErrorMarker())
	}
	if app.Metrics != nil {
		engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
			Registerer: app.Metrics.Registry(),
			Namespace:  "shopsync",
			Enabled:    true,
		}))
		engine.GET(app.Metrics.Path(), gin.WrapH(app.Metrics.Handler()))
	}
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  cfg.HTTP.CORSAllowOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		MaxAge:        12 * time.Hour,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(limiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	if profiler.IsEnabled() {
		engine.Use(middleware.Profiling())
	}

	jwtConfig := middleware.DefaultJWTConfig(app.JWT)
	jwtConfig.TokenBlacklist = app.Blacklist
	jwtConfig.Logger = log
	jwtAuth := middleware.JWTAuthMiddlewareWithConfig(jwtConfig)
	apiMiddleware := []gin.HandlerFunc{jwtAuth}

	engine.GET("/swagger/*any",
		middleware.SwaggerProtection(middleware.SwaggerConfig{
			Enabled:     cfg.Swagger.Enabled,
			RequireAuth: cfg.Swagger.RequireAuth,
			AllowedIPs:  cfg.Swagger.AllowedIPs,
		}, jwtAuth),
		ginSwagger.WrapHandler(swaggerFiles.Handler),
	)
	if cfg.Telemetry.Enabled {
		// after JWT so spans carry the operator
		apiMiddleware = append(apiMiddleware, middleware.TracingAttributeInjector())
	}
	r := router.NewRouter(engine,
		router.WithAPIVersion("v1"),
		router.WithGroupMiddleware(apiMiddleware...),
	)
	router.RegisterAPI(engine, r, router.Handlers{
		Instance: handler.NewInstanceHandler(app.Instances, cfg.Shopify.CallbackBaseURL),
		Sync:     handler.NewSyncHandler(app.Instances, app.Scheduler, app.Cron),
		Job:      handler.NewJobHandler(app.Repos.Jobs, app.Repos.Log, app.Engine),
		Webhook:  handler.NewWebhookHandler(app.Webhooks, cfg.Webhook.MaxBodySize),
		System:   handler.NewSystemHandler(version, app.DB, app.Scheduler),
	})
	for _, route := range r.Routes() {
		log.Debug("Route registered", zap.String("method", route.Method), zap.String("path", route.Path))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// stop accepting webhooks first, then drain queued passes
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := app.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping workers", zap.Error(err))
	}
	if err := logProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down log provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
