package app

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libdb "ocppgateway/backend/libs/db"
	libmqtt "ocppgateway/backend/libs/mqtt"
	libredis "ocppgateway/backend/libs/redis"
	"ocppgateway/backend/services/ocpp-gateway/internal/clients"
	"ocppgateway/backend/services/ocpp-gateway/internal/commands"
	"ocppgateway/backend/services/ocpp-gateway/internal/config"
	"ocppgateway/backend/services/ocpp-gateway/internal/handlers"
	httpserver "ocppgateway/backend/services/ocpp-gateway/internal/http"
	apihandlers "ocppgateway/backend/services/ocpp-gateway/internal/http/handlers"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp"
	"ocppgateway/backend/services/ocpp-gateway/internal/presence"
	"ocppgateway/backend/services/ocpp-gateway/internal/repository"
	"ocppgateway/backend/services/ocpp-gateway/internal/service"
	"ocppgateway/backend/services/ocpp-gateway/internal/telemetry"
	"ocppgateway/backend/services/ocpp-gateway/internal/ws"
)

const drainTimeout = 10 * time.Second

// App wires the gateway.
type App struct {
	httpServer *httpserver.Server
	handler    http.Handler
	store      *service.StationStore
	manager    *ws.Manager
	billing    *clients.BillingClient
	journal    *repository.Journal
	telemetry  *telemetry.Publisher
	db         *sql.DB
	redis      *redis.Client
	mqtt       paho.Client
	logger     *zap.Logger
}

// New builds the gateway. Postgres, redis and MQTT are only dialed when configured.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}
	if err := a.connectBackends(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}

	subprotocols, err := cfg.Subprotocols()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.store = service.NewStationStore()
	a.billing = clients.NewBillingClient(cfg.Billing.URL, cfg.Billing.Timeout, logger)

	var journal ocpp.Journal
	if a.journal != nil {
		journal = a.journal
	}
	var presenceDir ws.Presence
	if a.redis != nil {
		presenceDir = presence.NewDirectory(a.redis, cfg.Redis.PresenceTTL)
	}
	var publisher handlers.TelemetryPublisher
	if a.mqtt != nil {
		a.telemetry = telemetry.NewPublisher(a.mqtt, cfg.MQTT.TopicPrefix, logger)
		publisher = a.telemetry
	}

	router := ocpp.NewRouter()
	handlers.Register(router, handlers.Deps{
		Store:             a.store,
		Billing:           a.billing,
		Telemetry:         publisher,
		HeartbeatInterval: cfg.OCPP.HeartbeatInterval,
		CloseOnAvailable:  cfg.Transactions.CloseOnAvailable,
		Logger:            logger,
	})
	processor := ocpp.NewProcessor(router, journal, logger)

	a.manager = ws.NewManager(cfg.WebSocket.PingInterval, presenceDir, logger)
	wsServer := ws.NewServer(a.manager, a.store, processor, journal, ws.ServerConfig{
		Subprotocols:    subprotocols,
		DefaultProtocol: cfg.DefaultProtocol(),
		Connection: ws.Options{
			WriteTimeout: cfg.WebSocket.WriteTimeout,
			PongWait:     cfg.PongWait(),
			ReadLimit:    cfg.WebSocket.ReadLimitBytes,
			CallTimeout:  cfg.OCPP.CallTimeout,
		},
	}, logger)

	dispatcher := commands.NewDispatcher(a.manager, logger)
	a.handler = httpserver.NewRouter(httpserver.RouterDeps{
		ChargePoints:  apihandlers.NewChargePointHandlers(a.store, logger),
		Commands:      apihandlers.NewCommandHandlers(dispatcher, a.store, logger),
		HealthHandler: apihandlers.Health,
		OCPPHandler:   wsServer.HandleWS,
		Logger:        logger,
	})
	a.httpServer = httpserver.NewServer(cfg.HTTPAddress(), a.handler, cfg.HTTPWriteTimeout(), logger)

	return a, nil
}

func (a *App) connectBackends(ctx context.Context, cfg *config.Config) error {
	if cfg.Database.DSN != "" {
		sqlDB, err := libdb.Open(ctx, cfg.Database.DSN, libdb.PoolOptions{
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			return err
		}
		a.db = sqlDB
		logRepo := repository.NewOCPPLogRepository(sqlDB)
		if err := logRepo.EnsureSchema(ctx); err != nil {
			return err
		}
		a.journal = repository.NewJournal(logRepo, cfg.Database.JournalBuffer, a.logger)
	}
	if cfg.Redis.Addr != "" {
		client, err := libredis.Connect(ctx, libredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		a.redis = client
	}
	if cfg.MQTT.Broker != "" {
		client, err := libmqtt.NewClient(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			return err
		}
		a.mqtt = client
	}
	return nil
}

// Handler exposes the HTTP handler for in-process serving.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run starts the ping loop and the HTTP server.
func (a *App) Run(ctx context.Context) error {
	go a.manager.Start(ctx)
	return a.httpServer.Run(ctx)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	go a.manager.Start(ctx)
	return a.httpServer.Serve(ctx, ln)
}

// Close drops station sockets, drains background work and releases backends.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if a.manager != nil {
		a.manager.Close()
	}
	if a.billing != nil {
		if err := a.billing.Close(ctx); err != nil {
			a.logger.Warn("billing notifications not drained", zap.Error(err))
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(ctx); err != nil {
			a.logger.Warn("journal not drained", zap.Error(err))
		}
	}
	if a.telemetry != nil {
		a.telemetry.Wait()
	}
	if a.mqtt != nil {
		a.mqtt.Disconnect(250)
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}
