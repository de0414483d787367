package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/chatstack/routing-service/internal/api/http"
	"github.com/chatstack/routing-service/internal/api/http/handlers"
	"github.com/chatstack/routing-service/internal/auth"
	"github.com/chatstack/routing-service/internal/broker"
	"github.com/chatstack/routing-service/internal/cache"
	"github.com/chatstack/routing-service/internal/config"
	"github.com/chatstack/routing-service/internal/events"
	"github.com/chatstack/routing-service/internal/flows"
	"github.com/chatstack/routing-service/internal/observability"
	"github.com/chatstack/routing-service/internal/persistence"
	"github.com/chatstack/routing-service/internal/repository"
	"github.com/chatstack/routing-service/internal/service"
	"github.com/chatstack/routing-service/internal/worker"
	"github.com/chatstack/routing-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	amqp, err := persistence.NewAMQP(cfg.AMQP, logger)
	if err != nil {
		logger.Fatal("failed to connect amqp", zap.Error(err))
	}
	defer amqp.Close()

	pool := pg.PoolHandle()
	emailCache := cache.NewEmailCache(redis.Client)
	tokenCache := cache.NewTokenCache(redis.Client, time.Duration(cfg.Auth.TokenCacheTTLMinutes)*time.Minute)
	dashboardCache := cache.NewDashboardCache(redis.Client)

	userRepo := repository.NewUserRepository(pool, emailCache)
	projectRepo := repository.NewProjectRepository(pool)
	sectorRepo := repository.NewSectorRepository(pool)
	queueRepo := repository.NewQueueRepository(pool)
	roomRepo := repository.NewRoomRepository(pool)
	contactRepo := repository.NewContactRepository(pool)
	flowStartRepo := repository.NewFlowStartRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	metricsRepo := repository.NewMetricsRepository(pool)
	permissionRepo := repository.NewPermissionRepository(pool)
	queueAuthRepo := repository.NewQueueAuthorizationRepository(pool)
	customStatusRepo := repository.NewCustomStatusRepository(pool)

	authenticator := auth.NewAuthenticator(auth.AuthenticatorDependencies{
		TokenCache:  tokenCache,
		Users:       userRepo,
		Manager:     auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		OIDC:        auth.NewOIDCClient(cfg.OIDC),
		DBBreaker:   auth.NewUserBreaker("db-token", cfg.Breaker.DBToken, logger),
		OIDCBreaker: auth.NewUserBreaker("oidc", cfg.Breaker.OIDC, logger),
		Logger:      logger,
	})

	dispatcher := events.NewInMemoryDispatcher(events.WithLogger(logger))
	publisher := broker.NewPublisher(cfg.AMQP, amqp.Channel, logger)
	flowClient := flows.NewClient(cfg.Flows, logger)

	routingService := service.NewRoutingService(service.RoutingDependencies{
		ProjectRepo:      projectRepo,
		SectorRepo:       sectorRepo,
		QueueRepo:        queueRepo,
		RoomRepo:         roomRepo,
		PermissionRepo:   permissionRepo,
		QueueAuthRepo:    queueAuthRepo,
		CustomStatusRepo: customStatusRepo,
		UserRepo:         userRepo,
		Dashboards:       dashboardCache,
		Dispatcher:       dispatcher,
		Logger:           logger,
	})
	roomService := service.NewRoomService(service.RoomDependencies{
		RoomRepo:       roomRepo,
		QueueRepo:      queueRepo,
		SectorRepo:     sectorRepo,
		ProjectRepo:    projectRepo,
		ContactRepo:    contactRepo,
		FlowStartRepo:  flowStartRepo,
		MessageRepo:    messageRepo,
		MetricsRepo:    metricsRepo,
		PermissionRepo: permissionRepo,
		QueueAuthRepo:  queueAuthRepo,
		Routing:        routingService,
		Dispatcher:     dispatcher,
		Publisher:      publisher,
		FlowClient:     flowClient,
		Dashboards:     dashboardCache,
		RoutingCfg:     cfg.Routing,
		AMQPCfg:        cfg.AMQP,
		Logger:         logger,
	})
	queueService := service.NewQueueService(queueRepo, publisher, dispatcher, cfg.AMQP, logger)
	sectorService := service.NewSectorService(sectorRepo, queueService, publisher, cfg.AMQP, logger)
	metricsService := service.NewMetricsService(metricsRepo, roomRepo, messageRepo, logger)

	hub := ws.NewHub(cfg.Gateway, logger)
	notifier := ws.NewNotifier(hub)
	notifier.RegisterHandlers(dispatcher)
	gateway := ws.NewGateway(cfg.Gateway, ws.GatewayDependencies{
		Hub:           hub,
		Authenticator: authenticator,
		Permissions:   permissionRepo,
		QueueAuths:    queueAuthRepo,
		Logger:        logger,
	})

	dispatchWorker := worker.NewDispatchWorker(routingService, roomRepo, permissionRepo, queueAuthRepo, logger)
	dispatchWorker.RegisterHandlers(dispatcher)
	go dispatchWorker.Run(ctx, cfg.Routing.DispatchWorkers)

	metricsWorker := worker.NewMetricsWorker(metricsService, logger)
	metricsWorker.RegisterHandlers(dispatcher)
	go metricsWorker.Run(ctx)
	if pending, err := metricsRepo.ListPendingFinalization(ctx, cfg.Routing.RescanBatchSize); err == nil {
		metricsWorker.Rescan(ctx, pending)
	} else {
		logger.Warn("metric rescan failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, time.Duration(cfg.App.RequestTimeoutSeconds)*time.Second)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version,
			handlers.HealthDependency{Name: "postgres", Pinger: pg},
			handlers.HealthDependency{Name: "redis", Pinger: redis},
			handlers.HealthDependency{Name: "amqp", Pinger: amqp},
		),
		Rooms:          handlers.NewRoomsHandler(roomService),
		Queues:         handlers.NewQueuesHandler(routingService),
		Sectors:        handlers.NewSectorsHandler(sectorService),
		Gateway:        gateway,
		AuthMiddleware: auth.NewAuthMiddleware(authenticator),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
