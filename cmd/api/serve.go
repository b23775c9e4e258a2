package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"timetracker/internal/config"
	"timetracker/internal/database"
	"timetracker/internal/handler"
	"timetracker/internal/intent"
	"timetracker/internal/llm"
	"timetracker/internal/metrics"
	"timetracker/internal/middleware"
	"timetracker/internal/model"
	"timetracker/internal/ratelimit"
	"timetracker/internal/report"
	"timetracker/internal/repository"
	"timetracker/internal/security"
	"timetracker/internal/service"
	"timetracker/internal/websocket"

	"github.com/cockroachdb/errors"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

var autoMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", true, "Migrate the schema before serving")
}

func serve(ctx context.Context, cfg *config.Config) error {
	if cfg.Release() {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := newLogger(!cfg.Release())

	db, err := database.NewConnection(cfg.Database.DSN(), !cfg.Release())
	if err != nil {
		return errors.Wrap(err, "database connection failed")
	}
	log.Println("Connected to PostgreSQL successfully.")
	if autoMigrate {
		if err := database.Migrate(db); err != nil {
			return errors.Wrap(err, "migration failed")
		}
	}

	m := metrics.New()
	events := security.NewEventLog(cfg.SecurityBuffer, logger).OnEvent(func(t security.EventType) {
		m.ObserveSecurityEvent(string(t))
	})

	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Wrapf(err, "redis %s unreachable", cfg.RedisAddr)
		}
		store = ratelimit.NewRedisStore(client, "timetracker:ratelimit:")
		log.Printf("Rate limits shared through redis at %s", cfg.RedisAddr)
	}
	limits := ratelimit.NewRegistry(store)
	chatLimiter, err := limits.Register("chat", ratelimit.Config{MaxRequests: cfg.ChatLimit.MaxRequests, Window: cfg.ChatLimit.Window})
	if err != nil {
		return err
	}
	apiLimiter, err := limits.Register("api", ratelimit.Config{MaxRequests: cfg.APILimit.MaxRequests, Window: cfg.APILimit.Window})
	if err != nil {
		return err
	}

	wsHub := websocket.NewHub(m.SetWebsocketClients)
	go wsHub.Run(ctx)

	// Repository -> Service -> Handler
	userRepo := repository.NewUserRepository(db)
	clientRepo := repository.NewClientRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	entryRepo := repository.NewTimeEntryRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	tx := repository.NewTransactionManager(db)

	classifier, err := intent.NewDefaultClassifier()
	if err != nil {
		return errors.Wrap(err, "load intent keywords")
	}
	var completer llm.Completer
	if cfg.LLM.URL != "" {
		completer = llm.NewClient(llm.Config{URL: cfg.LLM.URL, APIKey: cfg.LLM.APIKey, Model: cfg.LLM.Model, Timeout: cfg.LLM.Timeout})
	} else {
		log.Println("LLM_API_URL not set; the assistant answers from keywords only")
	}

	entryService := service.NewTimeEntryService(entryRepo, projectRepo, userRepo, auditRepo, tx, events, wsHub, logger)
	approvalService := service.NewApprovalService(entryRepo, userRepo, auditRepo, tx, events, wsHub, m, logger)
	catalogService := service.NewCatalogService(clientRepo, projectRepo, entryRepo, userRepo, auditRepo, tx, logger)
	reportService := service.NewReportService(entryRepo, userRepo, service.ReportConfig{
		WeekStart:    time.Monday,
		Calendar:     report.NewBusinessCalendar(cfg.HolidayCalendar),
		WorkdayHours: decimal.NewFromFloat(cfg.WorkdayHours),
	}, logger)
	userService := service.NewUserService(userRepo, service.TokenConfig{Secret: cfg.JWTSecret, TTL: cfg.TokenTTL}, events, wsHub, logger)
	auditService := service.NewAuditService(auditRepo, entryRepo, userRepo, logger)
	chatService := service.NewChatService(entryService, reportService, classifier, completer, chatLimiter, events, logger)

	auth := middleware.NewAuthenticator(cfg.JWTSecret, cfg.Release(), userRepo, events)

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), middleware.Metrics(m))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After", "Content-Disposition"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, auth)
	})

	limit := middleware.RateLimit(apiLimiter, events, m, logger)
	public := router.Group("/api", limit)
	protected := router.Group("/api", auth.RequireAuth(), limit)

	handler.NewUserHandler(userService, auth).RegisterRoutes(public, protected)
	handler.NewTimeEntryHandler(entryService).RegisterRoutes(protected)
	handler.NewApprovalHandler(approvalService).RegisterRoutes(protected)
	handler.NewCatalogHandler(catalogService).RegisterRoutes(protected)
	handler.NewReportHandler(reportService).RegisterRoutes(protected)
	handler.NewChatHandler(chatService).RegisterRoutes(protected)
	handler.NewAuditHandler(auditService).RegisterRoutes(protected)
	handler.NewSecurityHandler(events).RegisterRoutes(protected, auth.RequireRole(model.RoleAdmin))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on :%s", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
