package repositories

import "context"

// Repository aggregates all repository interfaces behind one handle so
// services can run cross-entity work in a single transaction.
type Repository interface {
	// Catalog (read-only for the attempt service)
	Test() TestRepository

	// Attempt domain
	Attempt() AttemptRepository
	Answer() AnswerRepository
	Result() ResultRepository

	// Group domain
	Group() GroupRepository

	// User domain (read-only, external identity provider)
	User() UserRepository

	// Transaction support
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	// Initialize repositories with database connections
	Initialize() error

	// Get repository instance
	GetRepository() Repository

	// Health check for all repositories
	HealthCheck(ctx context.Context) error

	// Graceful shutdown
	Shutdown(ctx context.Context) error
}
