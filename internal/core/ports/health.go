package ports

import "context"

// HealthChecker reports connectivity of an external dependency. The health
// endpoint aggregates one checker per dependency (postgresql, redis,
// rabbitmq).
type HealthChecker interface {
	// Ping verifies connectivity. Returns nil if healthy.
	Ping(ctx context.Context) error
	// Name returns the dependency name.
	Name() string
}
