package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.ApiService/health"
	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.ApiService/implementation/jwt"
	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.ApiService/implementation/rbac"
	actuator "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Actuator"
	advisor "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Advisor"
	broker "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Broker"
	config "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Config"
	mqtingestor "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Ingestor"
	logger "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
	notification "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Notification"
	provisioning "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Provisioning"
	qualitycontrol "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.QualityControl"
	implementation "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Implementation"
	interfaces "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Interfaces"
	"gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Repository/Memory"
	storehealth "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Startup/health"
)

// Container manages dependencies and their lifecycle
type Container struct {
	config *config.GatewayConfig
	logger *logger.Logger

	brokerRepo  interfaces.BrokerRepository
	deviceRepo  interfaces.DeviceRepository
	readingRepo interfaces.ReadingRepository

	hub          *notification.Hub
	manager      *broker.Manager
	provisioning *provisioning.Service
	dispatcher   *actuator.Dispatcher
	router       *mqtingestor.Router
	auth         *rbac.Service
	tokens       *jwt.Service

	storeName string
	storePing health.Pinger

	// Mutex for thread-safe access
	mu sync.Mutex

	// Cleanup functions, run in reverse order
	cleanupFuncs []func() error
}

// NewContainer loads configuration from the environment and wires the
// gateway against the configured store and the paho MQTT client
func NewContainer(ctx context.Context) (*Container, error) {
	cfg, err := config.LoadGatewayConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.NewLogger(&cfg.Logging)
	return NewContainerWith(ctx, cfg, log, broker.NewPahoDialer(cfg.MQTT, log))
}

// NewContainerWith wires the gateway from an explicit config, logger and dialer
func NewContainerWith(ctx context.Context, cfg *config.GatewayConfig, log *logger.Logger, dialer broker.Dialer) (*Container, error) {
	c := &Container{config: cfg, logger: log}

	if err := c.openStore(ctx); err != nil {
		c.runCleanup()
		return nil, err
	}

	c.hub = notification.NewHub(cfg.Server.CORSOrigins, log)
	c.AddCleanupFunc(func() error {
		c.hub.Close()
		return nil
	})

	// the router is built after the manager it serves, so the handler
	// resolves it lazily
	handler := func(ctx context.Context, msg broker.Message) { c.router.Handle(ctx, msg) }
	c.manager = broker.NewManager(c.brokerRepo, dialer, handler, cfg.Scheduler, cfg.MQTT.ConnectTimeout, log)
	c.AddCleanupFunc(func() error {
		c.manager.Close()
		return nil
	})

	c.provisioning = provisioning.NewService(c.deviceRepo, c.brokerRepo, c.manager, cfg.Thresholds, log)
	c.dispatcher = actuator.NewDispatcher(c.deviceRepo, c.brokerRepo, c.manager, log)
	c.router = mqtingestor.NewRouter(
		c.provisioning,
		qualitycontrol.NewValidator(c.readingRepo, log),
		advisor.NewEvaluator(c.hub, log),
		c.deviceRepo,
		c.readingRepo,
		log,
	)
	c.auth = rbac.NewService(cfg.MQTT, cfg.Provisioning, c.deviceRepo, log)
	if cfg.Alerts.TokenSecret != "" {
		c.tokens = jwt.NewService(cfg.Alerts)
	}

	if err := c.seedBroker(ctx); err != nil {
		c.runCleanup()
		return nil, err
	}

	c.logger.Logger.Info().Str("store", cfg.Store.Driver).Msg("Container initialized")
	return c, nil
}

// openStore connects the configured driver and builds the repositories
func (c *Container) openStore(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch c.config.Store.Driver {
	case config.StoreMongo:
		client, err := storehealth.ConnectMongo(ctx, c.config)
		if err != nil {
			return fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		c.AddCleanupFunc(func() error { return client.Disconnect(context.Background()) })

		db := client.Database(c.config.Store.Database)
		if err := storehealth.EnsureMongoIndexes(ctx, db); err != nil {
			return err
		}
		c.brokerRepo = implementation.NewMongoBrokerRepository(db.Collection(implementation.BrokersCollection))
		c.deviceRepo = implementation.NewMongoDeviceRepository(db.Collection(implementation.DevicesCollection))
		c.readingRepo = implementation.NewMongoReadingRepository(db.Collection(implementation.ReadingsCollection))
		c.storeName = "mongodb"
		c.storePing = func(ctx context.Context) error { return storehealth.PingMongo(ctx, client) }

	case config.StorePostgres:
		db, err := storehealth.ConnectPostgres(ctx, c.config)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		c.AddCleanupFunc(db.Close)

		if err := storehealth.CreateTables(ctx, db); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
		c.brokerRepo = implementation.NewPostgresBrokerRepository(db)
		c.deviceRepo = implementation.NewPostgresDeviceRepository(db)
		c.readingRepo = implementation.NewPostgresReadingRepository(db)
		c.storeName = "postgres"
		c.storePing = func(ctx context.Context) error { return storehealth.PingPostgres(ctx, db) }

	case config.StoreMemory:
		store := memory.NewStore()
		c.brokerRepo = store.Brokers()
		c.deviceRepo = store.Devices()
		c.readingRepo = store.Readings()
		c.storeName = "memory"

	default:
		return fmt.Errorf("unknown store driver %q", c.config.Store.Driver)
	}
	return nil
}

// seedBroker inserts the configured broker when the broker store is empty
func (c *Container) seedBroker(ctx context.Context) error {
	seed := c.config.Seed
	if !seed.Enabled {
		return nil
	}

	n, err := c.brokerRepo.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count brokers: %w", err)
	}
	if n > 0 {
		return nil
	}

	b := &mqtmodels.Broker{Name: seed.Name, Host: seed.Host, Port: seed.Port, Active: true}
	if err := c.brokerRepo.Save(ctx, b); err != nil {
		return fmt.Errorf("failed to seed broker: %w", err)
	}
	c.logger.Logger.Info().Str("broker_url", b.URL()).Msg("Seeded initial broker")
	return nil
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.GatewayConfig { return c.config }

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger { return c.logger }

func (c *Container) Brokers() interfaces.BrokerRepository   { return c.brokerRepo }
func (c *Container) Devices() interfaces.DeviceRepository   { return c.deviceRepo }
func (c *Container) Readings() interfaces.ReadingRepository { return c.readingRepo }

func (c *Container) Hub() *notification.Hub              { return c.hub }
func (c *Container) Manager() *broker.Manager            { return c.manager }
func (c *Container) Provisioning() *provisioning.Service { return c.provisioning }
func (c *Container) Dispatcher() *actuator.Dispatcher    { return c.dispatcher }
func (c *Container) Router() *mqtingestor.Router         { return c.router }
func (c *Container) Auth() *rbac.Service                 { return c.auth }

// Tokens is nil unless an alerts token secret is configured
func (c *Container) Tokens() *jwt.Service { return c.tokens }

// HealthChecker reports store and broker connectivity
func (c *Container) HealthChecker() *health.HealthChecker {
	return health.NewHealthChecker(c.storeName, c.storePing, c.manager)
}

// HealthCheck performs a comprehensive health check
func (c *Container) HealthCheck(ctx context.Context) map[string]interface{} {
	return c.HealthChecker().GetHealthStatus(ctx)
}

// AddCleanupFunc adds a cleanup function
func (c *Container) AddCleanupFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

// Shutdown gracefully shuts down the container and all its dependencies
func (c *Container) Shutdown(ctx context.Context) error {
	c.logger.Info("Shutting down container...")
	c.runCleanup()
	c.logger.Info("Container shutdown complete")
	return nil
}

func (c *Container) runCleanup() {
	c.mu.Lock()
	funcs := c.cleanupFuncs
	c.cleanupFuncs = nil
	c.mu.Unlock()

	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](); err != nil {
			c.logger.ErrorWithError(err, "Error during cleanup")
		}
	}
}
