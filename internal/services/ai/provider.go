package ai

import (
	"context"
)

// Reasoner is the interface for language model backends. It takes a prompt
// and returns the raw text response; structure is imposed by the callers.
type Reasoner interface {
	// Ask sends a prompt and returns the model's text. Implementations honor
	// ctx deadlines and return ErrTimeout when one expires.
	Ask(ctx context.Context, prompt string) (string, error)
}

// ReasonerFunc adapts a function to the Reasoner interface
type ReasonerFunc func(ctx context.Context, prompt string) (string, error)

// Ask calls f
func (f ReasonerFunc) Ask(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ProviderFactory creates a Reasoner based on the provider type
type ProviderFactory func(config map[string]string) (Reasoner, error)

// ProviderRegistry stores available Reasoner providers
type ProviderRegistry struct {
	providers map[string]ProviderFactory
}

// NewProviderRegistry creates a new provider registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]ProviderFactory),
	}
}

// Register registers a provider factory
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) {
	r.providers[name] = factory
}

// GetProvider gets a provider by name
func (r *ProviderRegistry) GetProvider(name string, config map[string]string) (Reasoner, error) {
	factory, ok := r.providers[name]
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}

	return factory(config)
}

// ErrProviderNotFound is returned when a provider is not found
type ErrProviderNotFound struct {
	Name string
}

func (e *ErrProviderNotFound) Error() string {
	return "reasoner provider not found: " + e.Name
}
