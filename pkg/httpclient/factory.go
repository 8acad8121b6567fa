package httpclient

import "log/slog"

// ClientFactory builds clients whose breakers are shared per service name
// through one manager, so every client calling the same collaborator sees the
// same failure history.
type ClientFactory struct {
	manager *CircuitBreakerManager
	logger  *slog.Logger
}

// NewClientFactory creates a factory. A nil manager falls back to
// DefaultManager.
func NewClientFactory(manager *CircuitBreakerManager) *ClientFactory {
	if manager == nil {
		manager = DefaultManager
	}
	return &ClientFactory{manager: manager}
}

// WithLogger sets the logger handed to every created client.
func (f *ClientFactory) WithLogger(logger *slog.Logger) *ClientFactory {
	f.logger = logger
	return f
}

// CreateClientWithConfig builds a client for the named service with explicit
// tuning. The service name keys the shared breaker.
func (f *ClientFactory) CreateClientWithConfig(serviceName string, cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = f.logger
	}
	return NewWithBreaker(cfg, f.manager.GetOrCreate(serviceName))
}

// CreateClientForService builds a client for the named service with default
// tuning.
func (f *ClientFactory) CreateClientForService(serviceName string) *Client {
	return f.CreateClientWithConfig(serviceName, DefaultConfig())
}

// Manager exposes the shared breaker manager for health reporting.
func (f *ClientFactory) Manager() *CircuitBreakerManager {
	return f.manager
}
