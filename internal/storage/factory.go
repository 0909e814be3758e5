package storage

import (
	"go.uber.org/zap"

	"github.com/blastline/blastline/internal/config"
	"github.com/blastline/blastline/internal/pkg/queue"
	queue_memory "github.com/blastline/blastline/internal/pkg/queue/memory"
	queue_redis "github.com/blastline/blastline/internal/pkg/queue/redis"
	"github.com/blastline/blastline/internal/pkg/ratelimiter"
	limiter_memory "github.com/blastline/blastline/internal/pkg/ratelimiter/memory"
	limiter_redis "github.com/blastline/blastline/internal/pkg/ratelimiter/redis"
	"github.com/blastline/blastline/internal/storage/postgres"
	storage_redis "github.com/blastline/blastline/internal/storage/redis"
	"github.com/blastline/blastline/internal/storage/sqlite"
)

type Repositories struct {
	Outlet      OutletRepository
	Session     SessionRepository
	Customer    CustomerRepository
	Blast       BlastRepository
	User        UserRepository
	RedisClient *storage_redis.Client // nil when Redis is disabled
	BlastQueue  queue.Queue
	RateLimiter ratelimiter.Limiter
}

func NewRepositories(cfg config.Config, log *zap.Logger) (*Repositories, error) {
	log.Info("initializing repositories", zap.String("driver", cfg.Storage.Driver))

	var (
		blastQueue  queue.Queue
		rateLimiter ratelimiter.Limiter
		storeRedis  *storage_redis.Client
		err         error
	)

	if cfg.Redis.Enabled {
		storeRedis, err = storage_redis.New(cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		rdb := storeRedis.RDB()
		blastQueue = queue_redis.NewQueue(rdb, "blast:jobs")
		rateLimiter = limiter_redis.NewLimiter(rdb)
	} else {
		blastQueue = queue_memory.NewQueue(10000)
		rateLimiter = limiter_memory.NewLimiter()
	}

	switch cfg.Storage.Driver {
	case "sqlite", "":
		db, err := sqlite.New(cfg.Storage.DataDir, log)
		if err != nil {
			return nil, err
		}
		return &Repositories{
			Outlet:      sqlite.NewOutletRepository(db),
			Session:     sqlite.NewSessionRepository(db),
			Customer:    sqlite.NewCustomerRepository(db),
			Blast:       sqlite.NewBlastRepository(db),
			User:        sqlite.NewUserRepository(db),
			RedisClient: storeRedis,
			BlastQueue:  blastQueue,
			RateLimiter: rateLimiter,
		}, nil

	case "postgres":
		db, err := postgres.New(cfg.DB, log)
		if err != nil {
			return nil, err
		}
		return &Repositories{
			Outlet:      postgres.NewOutletRepository(db),
			Session:     postgres.NewSessionRepository(db),
			Customer:    postgres.NewCustomerRepository(db),
			Blast:       postgres.NewBlastRepository(db),
			User:        postgres.NewUserRepository(db),
			RedisClient: storeRedis,
			BlastQueue:  blastQueue,
			RateLimiter: rateLimiter,
		}, nil

	default:
		return nil, &ErrUnknownDriver{Driver: cfg.Storage.Driver}
	}
}

type ErrUnknownDriver struct {
	Driver string
}

func (e *ErrUnknownDriver) Error() string {
	return "storage: unknown driver: " + e.Driver
}
