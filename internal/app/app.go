package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"school_lms_backend/internal/config"
	"school_lms_backend/internal/controller"
	"school_lms_backend/internal/grading"
	"school_lms_backend/internal/repository"
	"school_lms_backend/internal/service"
	"school_lms_backend/internal/util"
	"school_lms_backend/pkg/configwatcher"
	"school_lms_backend/pkg/database"
	"school_lms_backend/pkg/logger"
	"school_lms_backend/pkg/monitoring"
	"school_lms_backend/pkg/security"
	"school_lms_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	tracer          *sdktrace.TracerProvider
	cancel          context.CancelFunc
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user       *repository.UserRepository
	assessment *repository.AssessmentRepository
	attempt    *repository.AttemptRepository
	event      *repository.EventRepository
	paperCache *repository.PaperCache
}

type services struct {
	policy      *service.AttemptPolicy
	auth        *service.AuthService
	storage     *service.StorageService
	gate        *service.AvailabilityGate
	ledger      *service.AttemptLedger
	attempt     *service.AttemptService
	assessment  *service.AssessmentService
	export      *service.ExportService
	sweeper     *service.ExpirySweeper
	engine      *grading.Engine
	rateLimiter *security.RateLimiter
}

type controllers struct {
	auth       *controller.AuthController
	attempt    *controller.AttemptController
	assessment *controller.AssessmentController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *repositories {
	return &repositories{
		user:       repository.NewUserRepository(db),
		assessment: repository.NewAssessmentRepository(db),
		attempt:    repository.NewAttemptRepository(db),
		event:      repository.NewEventRepository(db),
		paperCache: repository.NewPaperCache(rdb, cfg.Assessment.PaperCacheTTL()),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB) *services {
	s := &services{}

	s.engine = grading.NewEngine()
	s.policy = service.NewAttemptPolicy(cfg.Assessment.Grace())
	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg)

	s.gate = service.NewAvailabilityGate(repos.assessment, repos.attempt)
	s.ledger = service.NewAttemptLedger(db, repos.assessment, repos.attempt, repos.event, s.engine, s.policy)
	s.attempt = service.NewAttemptService(repos.assessment, repos.attempt, repos.paperCache, s.gate, s.ledger)
	s.assessment = service.NewAssessmentService(db, repos.assessment, repos.attempt, repos.event, repos.user, repos.paperCache, s.ledger, s.engine)
	s.export = service.NewExportService(s.assessment, s.storage)
	s.sweeper = service.NewExpirySweeper(repos.attempt, s.ledger)

	s.rateLimiter = security.NewRateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		auth:       controller.NewAuthController(s.auth),
		attempt:    controller.NewAttemptController(s.attempt),
		assessment: controller.NewAssessmentController(s.assessment, s.export),
		health:     controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(a.services.rateLimiter.Middleware())

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) startBackgroundTasks(ctx context.Context, s *services, cfg *config.Config) {
	go s.rateLimiter.Run(ctx)

	if err := s.sweeper.Start(cfg.Assessment.SweepSchedule); err != nil {
		logger.Log.Error("Failed to start expiry sweeper", zap.String("schedule", cfg.Assessment.SweepSchedule), zap.Error(err))
	}

	// 热更新：日志级别与作答宽限时长
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		if logger.SetLevel(newCfg.Log.Level) {
			logger.Log.Info("Log level updated", zap.String("level", newCfg.Log.Level))
		}
	})
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		s.policy.SetGrace(newCfg.Assessment.Grace())
		logger.Log.Info("Attempt grace updated", zap.Duration("grace", newCfg.Assessment.Grace()))
	})

	err := configwatcher.WatchConfig(ctx, cfg.ConfigFile, func(newCfg *config.Config) {
		for _, cb := range a.configCallbacks {
			cb(newCfg)
		}
	})
	if err != nil {
		logger.Log.Warn("Config hot reload disabled", zap.Error(err))
	}
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	gin.SetMode(cfg.Server.Mode)

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode == gin.DebugMode)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	// release 模式默认跳过迁移，需显式 -migrate
	if cfg.Server.Mode != gin.ReleaseMode || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	app := &App{
		Config: cfg,
		DB:     db,
	}
	if cfg.MigrateOnly {
		return app
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Warn("Redis unavailable, paper cache disabled", zap.Error(err))
			rdb = nil
		}
	}
	app.Redis = rdb

	if err := util.RegisterValidators(); err != nil {
		logger.Log.Fatal("Failed to register validators", zap.Error(err))
	}

	repos := app.initRepositories(db, rdb, cfg)
	services := app.initServices(repos, cfg, db)
	app.services = services
	controllers := app.initControllers(services, db)

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("school-lms", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.Mode == gin.DebugMode {
		router.Use(gin.Logger())
	}
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == util.StorageLocal {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	app.startBackgroundTasks(ctx, services, cfg)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:              ":" + a.Config.Server.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	a.Close(ctx)
	logger.Log.Info("Server exiting")
}

// Close 停止后台任务并释放外部连接
func (a *App) Close(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	if a.services != nil {
		a.services.sweeper.Stop()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
	logger.Log.Sync()
}
