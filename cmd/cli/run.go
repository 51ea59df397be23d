package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"deskify/internal/config"
	"deskify/internal/handlers"
	"deskify/internal/middleware"
	"deskify/internal/models"
	"deskify/internal/observability"
	"deskify/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the deskify application",
	Long:  `Run the deskify application`,
	Run:   run,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func run(cmd *cobra.Command, args []string) {
	// 加载配置
	cfg := config.Load()

	// 初始化日志系统
	if err := config.InitLogger(cfg); err != nil {
		logrus.Fatalf("Failed to initialize logger: %v", err)
	}

	// OpenTelemetry 初始化（可选）
	if shutdown, err := observability.SetupTracing(context.Background(), cfg.Monitoring.Tracing); err == nil {
		defer func() { _ = shutdown(context.Background()) }()
	} else {
		logrus.Warnf("init tracing: %v", err)
	}

	// 初始化数据库
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		logrus.Fatalf("DB connect failed: %v", err)
	}
	if cfg.Monitoring.Tracing.Enabled {
		_ = db.Use(gormtracing.NewPlugin())
	}

	if err := db.AutoMigrate(
		&models.Technician{}, &models.SupportGroup{}, &models.Ticket{},
		&models.TaxonomyValue{}, &models.AssignmentRule{}, &models.AssignmentRecord{},
	); err != nil {
		logrus.Fatalf("Failed to migrate database: %v", err)
	}

	// 初始化服务
	presenceHub := services.NewPresenceHub()
	go presenceHub.Run()

	directoryService := services.NewDirectoryService(db, logrus.StandardLogger())
	ruleService := services.NewRuleService(db, logrus.StandardLogger(), directoryService)
	ruleMatcher := services.NewRuleMatcher(db, logrus.StandardLogger())
	scopeResolver := services.NewScopeResolver(directoryService)
	assignmentService := services.NewAssignmentService(db, logrus.StandardLogger(), ruleMatcher, scopeResolver, directoryService)
	assignmentService.SetLookupTimeout(cfg.Assignment.LookupTimeout)
	assignmentService.SetMarkRetries(cfg.Assignment.MarkRetries)

	// 设置 Gin 模式
	if cfg.Server.Host != "localhost" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := setupRouter(cfg, presenceHub, ruleService, assignmentService, db)

	// 创建服务器
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	// 启动服务器
	go func() {
		logrus.Infof("Starting server on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Server failed to start: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	// 优雅关闭
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

func setupRouter(cfg *config.Config, presenceHub *services.PresenceHub, ruleService *services.RuleService, assignmentService *services.AssignmentService, db *gorm.DB) *gin.Engine {
	router := gin.New()

	// 中间件
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddlewareWithConfig(cfg))
	router.Use(middleware.RateLimitMiddleware(cfg))
	if cfg.Monitoring.Tracing.Enabled {
		router.Use(otelgin.Middleware(cfg.Monitoring.Tracing.ServiceName))
	}

	// 健康检查
	healthHandler := handlers.NewHealthHandler()
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	if cfg.Monitoring.Enabled {
		router.GET(cfg.Monitoring.MetricsPath, handlers.NewMetricsHandler().Metrics)
	}

	// 管理 API
	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(cfg))
	handlers.RegisterRuleRoutes(api, handlers.NewRuleHandler(ruleService))
	handlers.RegisterAssignmentRoutes(api, handlers.NewAssignmentHandler(assignmentService))
	handlers.RegisterTicketRoutes(api, handlers.NewTicketHandler(db, logrus.StandardLogger(), assignmentService))

	// 实时
	v1 := router.Group("/api/v1")
	{
		presenceHandler := handlers.NewPresenceHandler(presenceHub)
		v1.GET("/ws", presenceHandler.HandleWebSocket)
		v1.GET("/ws/stats", presenceHandler.GetStats)
		v1.GET("/presence", presenceHandler.GetStats)
	}

	return router
}

func corsMiddlewareWithConfig(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origins := "*"
		methods := "GET, POST, PUT, DELETE, OPTIONS"
		headers := "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With"
		if cfg != nil && cfg.Security.CORS.Enabled {
			if len(cfg.Security.CORS.AllowedOrigins) > 0 {
				origins = strings.Join(cfg.Security.CORS.AllowedOrigins, ", ")
			}
			if len(cfg.Security.CORS.AllowedMethods) > 0 {
				methods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
			}
			if len(cfg.Security.CORS.AllowedHeaders) > 0 {
				headers = strings.Join(cfg.Security.CORS.AllowedHeaders, ", ")
			}
		}
		c.Header("Access-Control-Allow-Origin", origins)
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", headers)
		c.Header("Access-Control-Allow-Methods", methods)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
