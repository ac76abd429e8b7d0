package gateway

import (
	"context"
	"fmt"
	"log"

	"ticketflow/internal/gateway/sandbox"
	"ticketflow/internal/gateway/yespay"
)

// Factory creates gateway instances based on provider type.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

// CreateGateway creates a gateway instance for the given provider. The
// config argument must match the provider's own Config type.
func (f *Factory) CreateGateway(ctx context.Context, provider Provider, config interface{}) (Gateway, error) {
	switch provider {
	case ProviderYesPay:
		cfg, ok := config.(*yespay.Config)
		if !ok {
			return nil, fmt.Errorf("invalid yespay config type, expected *yespay.Config")
		}
		return newYesPayAdapter(ctx, cfg)

	case ProviderSandbox:
		cfg, ok := config.(*sandbox.Config)
		if !ok {
			return nil, fmt.Errorf("invalid sandbox config type, expected *sandbox.Config")
		}
		return newSandboxAdapter(cfg), nil

	default:
		return nil, fmt.Errorf("unsupported gateway provider: %s", provider)
	}
}

// GetSupportedProviders returns the providers this build can create.
func (f *Factory) GetSupportedProviders() []Provider {
	return []Provider{ProviderYesPay, ProviderSandbox}
}

// Registry manages configured gateway instances.
type Registry struct {
	gateways map[Provider]Gateway
	factory  *Factory
	primary  Provider
}

func NewRegistry(factory *Factory) *Registry {
	return &Registry{
		gateways: make(map[Provider]Gateway),
		factory:  factory,
	}
}

// Register creates and stores a gateway instance. The first registered
// provider becomes primary.
func (r *Registry) Register(ctx context.Context, provider Provider, config interface{}) error {
	gw, err := r.factory.CreateGateway(ctx, provider, config)
	if err != nil {
		return fmt.Errorf("failed to create %s gateway: %w", provider, err)
	}

	r.gateways[provider] = gw

	if r.primary == "" {
		r.primary = provider
	}

	return nil
}

// Get returns a gateway instance by provider.
func (r *Registry) Get(provider Provider) (Gateway, error) {
	gw, exists := r.gateways[provider]
	if !exists {
		return nil, fmt.Errorf("gateway provider %s not registered", provider)
	}
	return gw, nil
}

// Primary returns the primary gateway instance.
func (r *Registry) Primary() (Gateway, error) {
	if r.primary == "" {
		return nil, fmt.Errorf("no primary gateway configured")
	}
	return r.Get(r.primary)
}

// SetPrimary switches the primary provider.
func (r *Registry) SetPrimary(provider Provider) error {
	if _, exists := r.gateways[provider]; !exists {
		return fmt.Errorf("gateway provider %s not registered", provider)
	}
	r.primary = provider
	return nil
}

// Close gracefully closes all gateway connections.
func (r *Registry) Close(ctx context.Context) error {
	for provider, gw := range r.gateways {
		if err := gw.Close(ctx); err != nil {
			log.Printf("closing %s gateway: %v\n", provider, err)
		}
	}
	return nil
}
