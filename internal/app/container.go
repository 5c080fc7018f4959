package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/acme/voice-campaign-engine/internal/config"
	"github.com/acme/voice-campaign-engine/internal/infra/db"
	"github.com/acme/voice-campaign-engine/internal/infra/redis"
	"github.com/acme/voice-campaign-engine/internal/queue"
	"github.com/acme/voice-campaign-engine/internal/repository"
	pgrepo "github.com/acme/voice-campaign-engine/internal/repository/postgres"
	scyllarepo "github.com/acme/voice-campaign-engine/internal/repository/scylla"
	campaignsvc "github.com/acme/voice-campaign-engine/internal/service/campaign"
	"github.com/acme/voice-campaign-engine/internal/service/concurrency"
	telephonySvc "github.com/acme/voice-campaign-engine/internal/telephony"
	telephonyMock "github.com/acme/voice-campaign-engine/internal/telephony/mock"
	"github.com/acme/voice-campaign-engine/pkg/logger"
)

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	// lazily initialised components
	components struct {
		once         sync.Once
		repositories *repositories
		services     *services
		dispatchers  *dispatchers
		providers    *providers
		limiters     *limiters
	}
}

type repositories struct {
	Tasks     repository.TaskRepository
	Campaigns repository.CampaignRepository
	CallLogs  repository.CallLogRepository
	Events    repository.AttemptEventStore
}

type services struct {
	Campaign *campaignsvc.Service
}

type dispatchers struct {
	Tasks      *queue.TaskDispatcher
	Outcomes   *queue.OutcomePublisher
	DeadLetter *queue.DeadLetterPublisher
}

type providers struct {
	Telephony telephonySvc.Provider
}

type limiters struct {
	Concurrency *concurrency.Limiter
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	scylla, err := db.NewScylla(cfg.Scylla)
	if err != nil {
		return nil, fmt.Errorf("bootstrap scylla: %w", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}

	kafka, err := queue.NewKafka(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("bootstrap kafka: %w", err)
	}

	return &Container{
		Config:   cfg,
		Logger:   lg,
		Postgres: pg,
		Scylla:   scylla,
		Redis:    redisClient,
		Kafka:    kafka,
	}, nil
}

func (c *Container) initComponents() {
	c.components.once.Do(func() {
		repos := &repositories{
			Tasks:     pgrepo.NewTaskRepository(c.Postgres.DB()),
			Campaigns: pgrepo.NewCampaignRepository(c.Postgres.DB()),
			CallLogs:  pgrepo.NewCallLogRepository(c.Postgres.DB()),
			Events:    scyllarepo.NewEventStore(c.Scylla.Session()),
		}

		disp := &dispatchers{
			Tasks:      queue.NewTaskDispatcher(c.Kafka, c.Config.Kafka.DispatchTopic, c.Redis.Inner(), c.Config.Queue.DedupTTL),
			Outcomes:   queue.NewOutcomePublisher(c.Kafka, c.Config.Kafka.EventsTopic),
			DeadLetter: queue.NewDeadLetterPublisher(c.Kafka, c.Config.Kafka.DeadLetterTopic),
		}

		limiters := &limiters{
			Concurrency: concurrency.NewLimiter(c.Redis.Inner(), c.Config.Worker.SlotTTL),
		}

		services := &services{
			Campaign: campaignsvc.NewService(repos.Campaigns, repos.Tasks, limiters.Concurrency),
		}

		providers := &providers{
			Telephony: telephonyMock.NewProvider(c.Config.Telephony),
		}

		c.components.repositories = repos
		c.components.dispatchers = disp
		c.components.services = services
		c.components.providers = providers
		c.components.limiters = limiters
	})
}

// Repositories exposes initialized repositories.
func (c *Container) Repositories() *repositories {
	c.initComponents()
	return c.components.repositories
}

// Services exposes initialized services.
func (c *Container) Services() *services {
	c.initComponents()
	return c.components.services
}

// Dispatchers exposes Kafka dispatchers.
func (c *Container) Dispatchers() *dispatchers {
	c.initComponents()
	return c.components.dispatchers
}

// Providers exposes external providers.
func (c *Container) Providers() *providers {
	c.initComponents()
	return c.components.providers
}

// Limiters exposes limiter utilities.
func (c *Container) Limiters() *limiters {
	c.initComponents()
	return c.components.limiters
}

// EnsureTopics ensures required Kafka topics exist.
func (c *Container) EnsureTopics(ctx context.Context) error {
	topics := []string{c.Config.Kafka.DispatchTopic, c.Config.Kafka.EventsTopic}
	if err := c.Kafka.EnsureTopics(ctx, topics, 48, 1); err != nil {
		return err
	}
	if c.Config.Kafka.DeadLetterTopic != "" {
		if err := c.Kafka.EnsureTopics(ctx, []string{c.Config.Kafka.DeadLetterTopic}, 12, 1); err != nil {
			return err
		}
	}
	return nil
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if d := c.components.dispatchers; d != nil {
		if d.Tasks != nil {
			if err := d.Tasks.Close(); err != nil {
				errs = append(errs, fmt.Errorf("task dispatcher close: %w", err))
			}
		}
		if d.Outcomes != nil {
			if err := d.Outcomes.Close(); err != nil {
				errs = append(errs, fmt.Errorf("outcome publisher close: %w", err))
			}
		}
		if d.DeadLetter != nil {
			if err := d.DeadLetter.Close(); err != nil {
				errs = append(errs, fmt.Errorf("dead letter close: %w", err))
			}
		}
	}
	if c.Kafka != nil {
		if err := c.Kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
