package di

import (
	"database/sql"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-persistence-bun/cache"
	"github.com/goliatone/go-persistence-bun/internal/cacheinfra"
	"github.com/goliatone/go-persistence-bun/repository"
	"github.com/goliatone/go-persistence-bun/repositorycache"
	"github.com/goliatone/go-persistence-bun/translatable"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DriverSQLite and DriverPostgres are the database drivers the container
// knows how to open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Database describes the connection the container should open. Leave DSN
// empty to build a cache-only container.
type Database struct {
	Driver string
	DSN    string
}

// Config wires the container: cache tiers, optional redis backend, and the
// database connection.
type Config struct {
	Cache Cache

	// Redis, when set, backs the entries tier with a shared redis instance
	// instead of the in-process store. Snapshots stay in-process since they
	// are cheap to rebuild and short-lived.
	Redis *cacheinfra.RedisConfig

	Database Database
}

// Cache aliases the cache package's configuration for convenience.
type Cache = cache.Config

// Container provides dependency injection for the persistence components.
// It manages singleton instances of the database handle, cache services,
// and key serializer, and provides factory functions for building cached
// repositories on top of them.
type Container struct {
	db            *bun.DB
	entries       cache.CacheService
	snapshots     cache.CacheService
	keySerializer cache.KeySerializer
	config        Config
}

// NewContainer creates a DI container from the provided configuration.
func NewContainer(cfg Config) (*Container, error) {
	var entries cache.CacheService
	var err error

	if cfg.Redis != nil {
		entries, err = cacheinfra.NewRedisService(*cfg.Redis)
	} else {
		entries, err = cache.NewCacheService(cfg.Cache)
	}
	if err != nil {
		return nil, err
	}

	snapshots, err := cache.NewSnapshotCacheService(cfg.Cache)
	if err != nil {
		return nil, err
	}

	c := &Container{
		entries:       entries,
		snapshots:     snapshots,
		keySerializer: cache.NewDefaultKeySerializer(),
		config:        cfg,
	}

	if cfg.Database.DSN != "" {
		switch cfg.Database.Driver {
		case DriverSQLite:
			c.db, err = OpenSQLite(cfg.Database.DSN)
		case DriverPostgres:
			c.db, err = OpenPostgres(cfg.Database.DSN)
		default:
			err = repository.ConfigError("di: unknown database driver " + cfg.Database.Driver)
		}
		if err != nil {
			return nil, err
		}
	}

	return c, nil
}

// NewContainerWithDefaults creates a cache-only container using default
// cache configuration. This is a convenience constructor for typical use
// cases where custom configuration is not required.
func NewContainerWithDefaults() (*Container, error) {
	return NewContainer(Config{Cache: cache.DefaultConfig()})
}

// OpenSQLite opens a sqlite database and wraps it in a bun handle.
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// In-memory databases vanish when their last connection closes, so pin
	// the pool to a single connection.
	if strings.Contains(dsn, ":memory:") {
		sqldb.SetMaxIdleConns(1)
		sqldb.SetMaxOpenConns(1)
		sqldb.SetConnMaxLifetime(0)
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// OpenPostgres opens a postgres database and wraps it in a bun handle.
func OpenPostgres(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// DB returns the container's database handle, or nil for a cache-only
// container.
func (c *Container) DB() *bun.DB {
	return c.db
}

// CacheService returns the singleton entries-tier cache service.
func (c *Container) CacheService() cache.CacheService {
	return c.entries
}

// SnapshotCacheService returns the singleton snapshots-tier cache service.
func (c *Container) SnapshotCacheService() cache.CacheService {
	return c.snapshots
}

// KeySerializer returns the singleton key serializer instance.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() Config {
	return c.config
}

// Close releases the database handle if the container opened one.
func (c *Container) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// NewRepository creates a base repository bound to the container's database.
//
// Since Go methods cannot have type parameters, the factories are provided
// as package-level functions.
func NewRepository[T any](c *Container, cfg repository.Config[T]) (*repository.BaseRepository[T], error) {
	if c.db == nil {
		return nil, repository.ConfigError("di: container has no database configured")
	}
	return repository.NewRepository(c.db, cfg)
}

// NewTranslatableRepository creates a translatable repository bound to the
// container's database.
func NewTranslatableRepository[T, TR any](c *Container, cfg translatable.Config[T, TR]) (*translatable.Repository[T, TR], error) {
	if c.db == nil {
		return nil, repository.ConfigError("di: container has no database configured")
	}
	return translatable.New(c.db, cfg)
}

// NewCachedRepository wraps a translatable repository with the container's
// cache tiers and key serializer. Options fields left unset default to the
// container's singletons.
func NewCachedRepository[T, TR any](c *Container, base translatable.Contract[T, TR], opts repositorycache.Options[T, TR]) (*repositorycache.CachedRepository[T, TR], error) {
	if opts.Entries == nil {
		opts.Entries = c.entries
	}
	if opts.Snapshots == nil {
		opts.Snapshots = c.snapshots
	}
	if opts.Serializer == nil {
		opts.Serializer = c.keySerializer
	}
	return repositorycache.New(base, opts)
}
