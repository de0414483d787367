package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

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

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	amqp, err := persistence.NewAMQP(cfg.AMQP, logger)
	if err != nil {
		logger.Fatal("failed to connect amqp", zap.Error(err))
	}
	defer amqp.Close()

	pool := pg.PoolHandle()
	emailCache := cache.NewEmailCache(redis.Client)
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
	sectorAuthRepo := repository.NewSectorAuthorizationRepository(pool)
	queueAuthRepo := repository.NewQueueAuthorizationRepository(pool)
	customStatusRepo := repository.NewCustomStatusRepository(pool)
	templateTypeRepo := repository.NewTemplateTypeRepository(pool)

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
	projectService := service.NewProjectService(projectRepo, sectorService, logger)
	permissionService := service.NewPermissionService(service.PermissionDependencies{
		PermissionRepo: permissionRepo,
		SectorAuthRepo: sectorAuthRepo,
		QueueAuthRepo:  queueAuthRepo,
		RoomRepo:       roomRepo,
		RoomService:    roomService,
		Dispatcher:     dispatcher,
		Logger:         logger,
	})
	messageService := service.NewMessageService(messageRepo, roomRepo, metricsRepo, dispatcher, logger)
	statusBuffer := service.NewStatusBuffer(cfg.Routing, messageRepo, logger)
	go statusBuffer.Run(ctx)

	// Consumer-side mutations feed the same dispatcher, so presence and
	// queue changes still trigger routing runs in this process.
	dispatchWorker := worker.NewDispatchWorker(routingService, roomRepo, permissionRepo, queueAuthRepo, logger)
	dispatchWorker.RegisterHandlers(dispatcher)
	go dispatchWorker.Run(ctx, cfg.Routing.DispatchWorkers)

	consumer := broker.NewConsumer(cfg.AMQP, amqp.Channel, publisher, logger)
	broker.RegisterAll(consumer, broker.Handlers{
		Projects:      projectService,
		Sectors:       sectorService,
		Queues:        queueService,
		Permissions:   permissionService,
		Messages:      messageService,
		StatusBuffer:  statusBuffer,
		TemplateTypes: templateTypeRepo,
		Publisher:     publisher,
		AMQPCfg:       cfg.AMQP,
		Logger:        logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- consumer.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
		statusBuffer.Flush(flushCtx)
		flushCancel()
		os.Exit(0)
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal("consumer stopped", zap.Error(err))
		}
	}
}
