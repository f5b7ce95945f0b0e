package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Provider generates replies from one model vendor.
type Provider interface {
	// Name identifies the provider in logs and health output.
	Name() string
	// Prefixes lists the model name prefixes routed to this provider.
	Prefixes() []string
	// Configured reports whether the provider has credentials.
	Configured() bool
	// Generate returns the assistant's reply to messages.
	Generate(ctx context.Context, model, system string, messages []Message) (string, error)
}

// Registry routes models to providers by name prefix.
type Registry struct {
	providers []Provider
}

// NewRegistry creates a registry over providers. Earlier providers win
// when prefixes overlap.
func NewRegistry(providers ...Provider) *Registry {
	return &Registry{providers: providers}
}

// Resolve returns the configured provider serving model.
func (r *Registry) Resolve(model string) (Provider, error) {
	m := strings.ToLower(strings.TrimSpace(model))
	for _, p := range r.providers {
		for _, prefix := range p.Prefixes() {
			if !strings.HasPrefix(m, prefix) {
				continue
			}
			if !p.Configured() {
				return nil, fmt.Errorf("%s: %w", p.Name(), ErrProviderNotConfigured)
			}
			return p, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", model, ErrUnknownModel)
}

// Status maps each model to "configured" or "not_configured".
func (r *Registry) Status(models []string) map[string]string {
	out := make(map[string]string, len(models))
	for _, m := range models {
		if _, err := r.Resolve(m); err != nil {
			out[m] = "not_configured"
			continue
		}
		out[m] = "configured"
	}
	return out
}

// Names lists the registered providers, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name())
	}
	sort.Strings(names)
	return names
}
