package factory

import (
	"fmt"

	"go-face-analyzer/internal/config"
	"go-face-analyzer/internal/logger"
	"go-face-analyzer/internal/observer"
	"go-face-analyzer/internal/provider"
	"go-face-analyzer/internal/storage"
	"go-face-analyzer/internal/synthetic"
	"go-face-analyzer/pkg/validation"
)

// ProviderType represents the analysis backends
type ProviderType string

const (
	// FacePPProvider calls Face++ and falls back to synthetic results when it
	// has no credentials
	FacePPProvider ProviderType = "facepp"
	// SyntheticProvider never leaves the process
	SyntheticProvider ProviderType = "synthetic"
)

// SourceType represents the remote image sources
type SourceType string

const (
	// HTTPSource for URL references
	HTTPSource SourceType = "http"
	// AzureSource for blob references
	AzureSource SourceType = "azure"
)

// ProviderFactory creates analysis adapters
type ProviderFactory interface {
	CreateAdapter(providerType ProviderType) (provider.Adapter, error)
}

// SourceFactory creates image sources
type SourceFactory interface {
	CreateSource(sourceType SourceType) (storage.ImageSource, error)
	Validator() *validation.SourceValidator
}

// providerFactory implements ProviderFactory
type providerFactory struct {
	cfg    config.ProviderConfig
	synth  *synthetic.Generator
	events observer.Subject
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(cfg config.ProviderConfig, synth *synthetic.Generator, events observer.Subject) ProviderFactory {
	return &providerFactory{cfg: cfg, synth: synth, events: events}
}

// CreateAdapter creates an adapter based on the specified type
func (f *providerFactory) CreateAdapter(providerType ProviderType) (provider.Adapter, error) {
	switch providerType {
	case FacePPProvider:
		client := provider.NewFacePPClient(f.cfg, f.synth,
			provider.WithEvents(f.events),
			provider.WithLogger(logger.Logger),
		)
		return provider.NewFallbackAdapter(client, f.synth, f.events), nil
	case SyntheticProvider:
		return provider.NewSyntheticAdapter(f.synth), nil
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", providerType)
	}
}

// sourceFactory implements SourceFactory
type sourceFactory struct {
	cfg *config.Config
}

// NewSourceFactory creates a new source factory
func NewSourceFactory(cfg *config.Config) SourceFactory {
	return &sourceFactory{cfg: cfg}
}

// CreateSource creates an image source based on the specified type
func (f *sourceFactory) CreateSource(sourceType SourceType) (storage.ImageSource, error) {
	switch sourceType {
	case HTTPSource:
		opts := []storage.HTTPOption{
			storage.WithValidator(f.Validator()),
			storage.WithTimeout(f.cfg.ImageFetchTimeout),
			storage.WithMaxBytes(f.cfg.MaxRequestBodySize),
		}
		// Without an allow-list only public addresses are reachable.
		if len(f.cfg.ImageSourceHosts) > 0 {
			opts = append(opts, storage.WithPrivateNetworks())
		}
		return storage.NewHTTPImageSource(opts...), nil
	case AzureSource:
		if !f.cfg.Azure.Enabled() {
			return nil, fmt.Errorf("azure storage not configured")
		}
		return storage.NewAzureImageSource(f.cfg.Azure.AccountName, f.cfg.Azure.AccountKey, f.cfg.Azure.ServiceURL)
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sourceType)
	}
}

// Validator returns the reference validator for the configured host list
func (f *sourceFactory) Validator() *validation.SourceValidator {
	if len(f.cfg.ImageSourceHosts) == 0 {
		return validation.NewURLValidator()
	}
	return validation.NewURLValidatorWithOptions([]string{"http", "https"}, f.cfg.ImageSourceHosts)
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	ProviderFactory ProviderFactory
	SourceFactory   SourceFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config, synth *synthetic.Generator, events observer.Subject) *ComponentFactory {
	return &ComponentFactory{
		ProviderFactory: NewProviderFactory(cfg.Provider, synth, events),
		SourceFactory:   NewSourceFactory(cfg),
	}
}
