package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/prepline/attempt-service/internal/events"
	"github.com/prepline/attempt-service/internal/repositories"
	"github.com/prepline/attempt-service/internal/validator"
)

// ServiceManagerConfig holds configuration for the service manager
type ServiceManagerConfig struct {
	EnableDebugLogging bool
	LogLevel           slog.Level

	// Service-specific configurations
	Attempt     ServiceConfig
	Group       ServiceConfig
	Leaderboard ServiceConfig

	DefaultTimeout time.Duration
}

type ServiceConfig struct {
	Enabled      bool
	CacheEnabled bool
	CacheTTL     time.Duration
}

// serviceManager implements ServiceManager interface
type serviceManager struct {
	// Dependencies
	db          *gorm.DB
	repo        repositories.Repository
	logger      *slog.Logger
	validator   *validator.Validator
	publisher   events.EventPublisher
	redisClient *redis.Client
	config      ServiceManagerConfig

	// Service instances
	attemptService     AttemptService
	groupService       GroupService
	leaderboardService LeaderboardService

	// Lifecycle management
	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a new service manager with all dependencies
func NewServiceManager(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher, redisClient *redis.Client, config ServiceManagerConfig) ServiceManager {
	return &serviceManager{
		db:          db,
		repo:        repo,
		logger:      logger,
		validator:   validator,
		publisher:   publisher,
		redisClient: redisClient,
		config:      config,
	}
}

// NewDefaultServiceManager creates a service manager with default configuration
func NewDefaultServiceManager(db *gorm.DB, repo repositories.Repository, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher, redisClient *redis.Client) ServiceManager {
	config := ServiceManagerConfig{
		EnableDebugLogging: false,
		LogLevel:           slog.LevelInfo,

		Attempt: ServiceConfig{
			Enabled:      true,
			CacheEnabled: false, // Live attempt state must stay fresh
			CacheTTL:     0,
		},
		Group: ServiceConfig{
			Enabled:      true,
			CacheEnabled: false,
			CacheTTL:     0,
		},
		Leaderboard: ServiceConfig{
			Enabled:      true,
			CacheEnabled: true,
			CacheTTL:     2 * time.Minute,
		},

		DefaultTimeout: 30 * time.Second,
	}

	return NewServiceManager(db, repo, logger, validator, publisher, redisClient, config)
}

// Initialize sets up all services and their dependencies
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	if sm.config.Attempt.Enabled {
		sm.attemptService = NewAttemptService(sm.repo, sm.db, sm.logger, sm.validator, sm.publisher)
		sm.logger.Info("Attempt service initialized")
	}

	if sm.config.Group.Enabled {
		sm.groupService = NewGroupService(sm.repo, sm.db, sm.logger, sm.validator, sm.publisher)
		sm.logger.Info("Group service initialized")
	}

	if sm.config.Leaderboard.Enabled {
		sm.leaderboardService = NewLeaderboardService(sm.repo, sm.db, sm.logger, sm.redisClient)
		sm.logger.Info("Leaderboard service initialized")
	}

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")

	return nil
}

// Service getters
func (sm *serviceManager) Attempt() AttemptService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}

	if sm.config.Attempt.Enabled && sm.attemptService != nil {
		return sm.attemptService
	}

	panic("attempt service not enabled or not initialized")
}

func (sm *serviceManager) Group() GroupService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}

	if sm.config.Group.Enabled && sm.groupService != nil {
		return sm.groupService
	}

	panic("group service not enabled or not initialized")
}

func (sm *serviceManager) Leaderboard() LeaderboardService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}

	if sm.config.Leaderboard.Enabled && sm.leaderboardService != nil {
		return sm.leaderboardService
	}

	panic("leaderboard service not enabled or not initialized")
}

// Health and lifecycle
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}

	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}

	if err := sm.repo.Ping(ctx); err != nil {
		return fmt.Errorf("repository health check failed: %w", err)
	}

	return nil
}

func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if sm.publisher != nil {
		if err := sm.publisher.Close(); err != nil {
			sm.logger.Error("Failed to close event publisher", "error", err)
		}
	}

	if err := sm.repo.Close(); err != nil {
		sm.logger.Error("Failed to close repository", "error", err)
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down completed")

	return nil
}

// WithTimeout creates a context with the default timeout
func (sm *serviceManager) WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, sm.config.DefaultTimeout)
}

// Validate checks the service manager configuration
func (config *ServiceManagerConfig) Validate() error {
	if config.DefaultTimeout <= 0 {
		return fmt.Errorf("default timeout must be positive")
	}
	if config.Attempt.CacheTTL < 0 || config.Group.CacheTTL < 0 || config.Leaderboard.CacheTTL < 0 {
		return fmt.Errorf("cache TTL cannot be negative")
	}
	return nil
}
