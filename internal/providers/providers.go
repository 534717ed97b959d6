// Package providers executes approved decisions against external systems.
// Each action kind is bound to one Provider in a Registry.
package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/benvon/vaultflow/internal/models"
)

// ErrNoProvider is returned when no provider handles an action kind
var ErrNoProvider = errors.New("no provider for action")

// ErrSkipped marks an action that was deliberately not performed
var ErrSkipped = errors.New("action skipped")

// Provider performs one decided action
type Provider interface {
	Execute(ctx context.Context, d models.Decision) (models.Outcome, error)
}

// ProviderFunc adapts a function to Provider
type ProviderFunc func(ctx context.Context, d models.Decision) (models.Outcome, error)

// Execute calls f
func (f ProviderFunc) Execute(ctx context.Context, d models.Decision) (models.Outcome, error) {
	return f(ctx, d)
}

// Registry is the lookup table from action kind to provider
type Registry struct {
	mu        sync.RWMutex
	providers map[models.ActionKind]Provider
}

// NewRegistry creates a registry with no_action already bound
func NewRegistry() *Registry {
	r := &Registry{providers: make(map[models.ActionKind]Provider)}
	r.Register(models.ActionNone, NoAction{})
	return r
}

// Register binds kind to p, replacing any previous binding
func (r *Registry) Register(kind models.ActionKind, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[kind] = p
}

// Lookup returns the provider for kind
func (r *Registry) Lookup(kind models.ActionKind) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[kind]
	return p, ok
}

// Kinds lists the bound action kinds in sorted order
func (r *Registry) Kinds() []models.ActionKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]models.ActionKind, 0, len(r.providers))
	for k := range r.providers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Execute dispatches d to its provider
func (r *Registry) Execute(ctx context.Context, d models.Decision) (models.Outcome, error) {
	p, ok := r.Lookup(d.Action)
	if !ok {
		return models.Outcome{}, fmt.Errorf("%w: %s", ErrNoProvider, d.Action)
	}
	return p.Execute(ctx, d)
}

// NoAction acknowledges decisions that need no external effect
type NoAction struct{}

// Execute reports the skip with the model's reason
func (NoAction) Execute(ctx context.Context, d models.Decision) (models.Outcome, error) {
	reason := d.Reason
	if reason == "" {
		reason = "no action required"
	}
	return models.Outcome{Summary: reason, Target: d.Target()}, ErrSkipped
}

var (
	_ Provider = (*Registry)(nil)
	_ Provider = NoAction{}
	_ Provider = ProviderFunc(nil)
)
