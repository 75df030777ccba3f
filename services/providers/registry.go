package providers

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when two adapters share an identifier
	ErrProviderAlreadyRegistered = errors.New("provider already registered")

	// ErrMissingAdapter is returned when a known provider has no adapter
	ErrMissingAdapter = errors.New("missing adapter for known provider")
)

// Descriptor is the public view of a provider for /models
type Descriptor struct {
	ID          ProviderID `json:"id"`
	Name        string     `json:"name"`
	Available   bool       `json:"available"`
	Description string     `json:"description"`
}

// Registry maps provider identifiers to adapters. It is built once at startup
// and is read-only afterwards, so it is safe for concurrent use without locks.
type Registry struct {
	providers map[ProviderID]Provider
	available map[ProviderID]bool
	priority  []ProviderID
}

// NewRegistry creates a registry holding one adapter per known provider.
// priority is the fallback order; known providers it omits are appended in
// catalogue order.
func NewRegistry(priority []ProviderID, adapters []Provider, logger *zap.Logger) (*Registry, error) {
	r := &Registry{
		providers: make(map[ProviderID]Provider, len(adapters)),
		available: make(map[ProviderID]bool, len(adapters)),
	}

	for _, p := range adapters {
		if p == nil {
			return nil, errors.New("provider cannot be nil")
		}
		id := p.ID()
		if _, err := ParseProviderID(string(id)); err != nil {
			return nil, err
		}
		if _, exists := r.providers[id]; exists {
			return nil, fmt.Errorf("%w: %s", ErrProviderAlreadyRegistered, id)
		}
		r.providers[id] = p
		// Availability is fixed here; credentials are never rotated live.
		r.available[id] = p.Available()
	}

	for _, id := range KnownProviders {
		if _, ok := r.providers[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingAdapter, id)
		}
	}

	order, err := resolvePriority(priority)
	if err != nil {
		return nil, err
	}
	r.priority = order

	for _, id := range r.priority {
		logger.Info("provider registered",
			zap.String("provider", string(id)),
			zap.Bool("available", r.available[id]))
	}

	return r, nil
}

// resolvePriority validates the configured order and completes it
func resolvePriority(priority []ProviderID) ([]ProviderID, error) {
	seen := make(map[ProviderID]bool, len(KnownProviders))
	order := make([]ProviderID, 0, len(KnownProviders))

	for _, id := range priority {
		if _, err := ParseProviderID(string(id)); err != nil {
			return nil, fmt.Errorf("invalid fallback order: %w", err)
		}
		if seen[id] {
			return nil, fmt.Errorf("invalid fallback order: duplicate provider %s", id)
		}
		seen[id] = true
		order = append(order, id)
	}

	for _, id := range KnownProviders {
		if !seen[id] {
			order = append(order, id)
		}
	}

	return order, nil
}

// Get retrieves a provider by identifier
func (r *Registry) Get(id ProviderID) (Provider, error) {
	p, ok := r.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return p, nil
}

// IsAvailable reports whether the provider had a credential at startup
func (r *Registry) IsAvailable(id ProviderID) bool {
	return r.available[id]
}

// Available returns the available provider identifiers in priority order
func (r *Registry) Available() []ProviderID {
	ids := make([]ProviderID, 0, len(r.priority))
	for _, id := range r.priority {
		if r.available[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// Priority returns the full fallback order
func (r *Registry) Priority() []ProviderID {
	out := make([]ProviderID, len(r.priority))
	copy(out, r.priority)
	return out
}

// Fallback returns the first available provider, by priority, other than exclude
func (r *Registry) Fallback(exclude ProviderID) (Provider, bool) {
	for _, id := range r.priority {
		if id == exclude || !r.available[id] {
			continue
		}
		return r.providers[id], true
	}
	return nil, false
}

// Descriptors returns all known providers in catalogue order
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(KnownProviders))
	for _, id := range KnownProviders {
		out = append(out, Descriptor{
			ID:          id,
			Name:        id.DisplayName(),
			Available:   r.available[id],
			Description: id.Description(),
		})
	}
	return out
}

// Count returns the number of available providers
func (r *Registry) Count() int {
	n := 0
	for _, ok := range r.available {
		if ok {
			n++
		}
	}
	return n
}
