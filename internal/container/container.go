package container

import (
	"fmt"
	"net/http"

	"go-face-analyzer/internal/config"
	"go-face-analyzer/internal/factory"
	"go-face-analyzer/internal/logger"
	"go-face-analyzer/internal/observer"
	"go-face-analyzer/internal/provider"
	"go-face-analyzer/internal/repository"
	"go-face-analyzer/internal/service"
	"go-face-analyzer/internal/session"
	"go-face-analyzer/internal/storage"
	"go-face-analyzer/internal/synthetic"
	"go-face-analyzer/internal/transport"
)

// Container holds all application dependencies
type Container struct {
	config          *config.Config
	events          *observer.EventPublisher
	metrics         *observer.MetricsObserver
	adapter         provider.Adapter
	imageRepository repository.ImageRepository
	sessions        *session.Manager
	analysisService service.AnalysisService
	handler         http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	logger.Configure(cfg.LogLevel, nil)

	events := observer.NewEventPublisher()
	metrics := observer.NewMetricsObserver()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	events.Subscribe(metrics)

	synth := synthetic.New()
	components := factory.NewComponentFactory(cfg, synth, events)

	// Face++ falls back to synthetic results on its own when unconfigured.
	adapter, err := components.ProviderFactory.CreateAdapter(factory.FacePPProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis adapter: %w", err)
	}
	if !cfg.Provider.Configured() {
		logger.Logger.Warn("Face++ credentials not set, analyses will return synthetic results")
	}

	httpSource, err := components.SourceFactory.CreateSource(factory.HTTPSource)
	if err != nil {
		return nil, fmt.Errorf("failed to create http image source: %w", err)
	}
	var blobSource storage.ImageSource
	if cfg.Azure.Enabled() {
		if blobSource, err = components.SourceFactory.CreateSource(factory.AzureSource); err != nil {
			return nil, fmt.Errorf("failed to create blob image source: %w", err)
		}
	}

	images := repository.NewSourceImageRepository(httpSource, blobSource, components.SourceFactory.Validator(), events)
	sessions := session.NewManager(cfg.Session.TTL, session.WithEvents(events))
	analysisService := service.NewAnalysisService(sessions, adapter, images, events, cfg.AnalysisTimeout)
	handler := transport.NewHandler(analysisService, metrics, cfg)

	return &Container{
		config:          cfg,
		events:          events,
		metrics:         metrics,
		adapter:         adapter,
		imageRepository: images,
		sessions:        sessions,
		analysisService: analysisService,
		handler:         handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Sessions returns the session manager, which owns the expiry sweeper
func (c *Container) Sessions() *session.Manager {
	return c.sessions
}

// Metrics returns the analysis metrics collector
func (c *Container) Metrics() *observer.MetricsObserver {
	return c.metrics
}

// Service returns the analysis service
func (c *Container) Service() service.AnalysisService {
	return c.analysisService
}

// Adapter returns the configured analysis adapter
func (c *Container) Adapter() provider.Adapter {
	return c.adapter
}
