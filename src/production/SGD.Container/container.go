package container

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	config "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Config"
	"gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.GardenService/health"
	logger "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Logger"
	implementation "gitlab.com/smartgarden/sgd.garden_server/src/production/SGD.Repository/Implementation"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"
)

const connectTimeout = 20 * time.Second

// Container manages dependencies and their lifecycle
type Container struct {
	config *config.Config
	logger *logger.Logger

	db    *sql.DB
	mongo *mongo.Client
	redis *redis.Client

	healthChecker   *health.HealthChecker
	databaseManager *health.DatabaseManager

	mu sync.Mutex

	// Cleanup functions, run in reverse order on Shutdown
	cleanupFuncs []func() error
}

// NewContainer loads configuration and the logger. Connections open lazily.
func NewContainer() (*Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return New(cfg, logger.NewLogger(&cfg.Logging)), nil
}

// New builds a container around an existing configuration
func New(cfg *config.Config, log *logger.Logger) *Container {
	return &Container{
		config:        cfg,
		logger:        log,
		healthChecker: health.NewHealthChecker(),
	}
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.logger
}

// GetDatabase returns the Postgres connection, opening it on first use
func (c *Container) GetDatabase() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		db, err := health.ConnectPostgresWithTimeout(c.config, connectTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		c.db = db
		c.cleanupFuncs = append(c.cleanupFuncs, db.Close)
		c.healthChecker.Register("postgres", health.PostgresCheck(db))
	}
	return c.db, nil
}

// GetMongo returns the Mongo client, connecting on first use
func (c *Container) GetMongo() (*mongo.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mongo == nil {
		client, err := health.ConnectMongoWithTimeout(&c.config.Mongo, connectTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		c.mongo = client
		c.cleanupFuncs = append(c.cleanupFuncs, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return client.Disconnect(ctx)
		})
		c.healthChecker.Register("mongo", health.MongoCheck(client))
	}
	return c.mongo, nil
}

// GetRedis returns the Redis client, connecting on first use
func (c *Container) GetRedis() (*redis.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.redis == nil {
		client, err := health.ConnectRedisWithTimeout(&c.config.Redis, connectTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		c.redis = client
		c.cleanupFuncs = append(c.cleanupFuncs, client.Close)
		c.healthChecker.Register("redis", health.RedisCheck(client))
	}
	return c.redis, nil
}

// GetTelemetryCollection returns the configured telemetry collection
func (c *Container) GetTelemetryCollection() (*mongo.Collection, error) {
	client, err := c.GetMongo()
	if err != nil {
		return nil, err
	}
	return client.Database(c.config.Mongo.Database).Collection(c.config.Mongo.Collection), nil
}

// GetHealthChecker returns the health checker. Each store registers its
// check when it connects.
func (c *Container) GetHealthChecker() *health.HealthChecker {
	return c.healthChecker
}

// GetDatabaseManager returns the database manager
func (c *Container) GetDatabaseManager() (*health.DatabaseManager, error) {
	db, err := c.GetDatabase()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for database manager: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.databaseManager == nil {
		c.databaseManager = health.NewDatabaseManager(db)
	}
	return c.databaseManager, nil
}

// InitializeDatabase creates the Postgres tables and the telemetry indexes.
// Both stores are prepared concurrently once their connections are open.
func (c *Container) InitializeDatabase(ctx context.Context) error {
	dbManager, err := c.GetDatabaseManager()
	if err != nil {
		return fmt.Errorf("failed to get database manager: %w", err)
	}
	coll, err := c.GetTelemetryCollection()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := dbManager.CreateTables(ctx); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := implementation.NewMongoTelemetryRepository(coll).EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("failed to create telemetry indexes: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	c.logger.Info("Database initialized successfully")
	return nil
}

// AddCleanupFunc adds a cleanup function
func (c *Container) AddCleanupFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

// Shutdown runs the cleanup functions in reverse order of registration
func (c *Container) Shutdown() {
	c.logger.Info("Shutting down container...")

	c.mu.Lock()
	funcs := c.cleanupFuncs
	c.cleanupFuncs = nil
	c.mu.Unlock()

	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](); err != nil {
			c.logger.ErrorWithError(err, "Error during cleanup")
		}
	}

	c.logger.Info("Container shutdown complete")
}
