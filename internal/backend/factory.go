package backend

import (
	"context"
	"fmt"

	"cashtimachann/internal/gateway/memory"
	"cashtimachann/internal/gateway/rest"
	applog "cashtimachann/internal/log"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case RESTBackend:
		return f.createRESTBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createRESTBackend(config Config) (*BackendResult, error) {
	client, err := rest.New(config.APIBaseURL, rest.WithLogger(f.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize REST gateway: %w", err)
	}

	f.logger.Info("Initialized REST gateway", "api_base_url", config.APIBaseURL)

	return &BackendResult{Gateway: client}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	store := memory.New()

	f.logger.Warn("Initialized in-memory gateway; data is lost on restart",
		"demo_password", memory.DemoPassword)

	return &BackendResult{Gateway: store}, nil
}
