package llm

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrModelNotFound is returned when a logical model name has no route.
	ErrModelNotFound = errors.New("model not registered")
	// ErrProviderNotFound is returned when a route names an unknown provider.
	ErrProviderNotFound = errors.New("provider not registered")
)

// ModelRoute binds a logical model to a provider and the backend's model name.
// Vision marks models that accept image content parts.
type ModelRoute struct {
	Name        string
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	Vision      bool
}

// Registry maps logical model names to providers. It is populated once at
// startup and read-only afterwards.
type Registry struct {
	providers    map[string]Provider
	routes       map[string]ModelRoute
	defaultModel string
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		routes:    make(map[string]ModelRoute),
	}
}

func (r *Registry) RegisterProvider(name string, p Provider) {
	r.providers[name] = p
}

// RegisterModel adds a route. The first model registered is the default
// until one is registered with isDefault.
func (r *Registry) RegisterModel(name string, route ModelRoute, isDefault bool) {
	route.Name = name
	r.routes[name] = route
	if isDefault || r.defaultModel == "" {
		r.defaultModel = name
	}
}

func (r *Registry) HasModel(name string) bool {
	_, ok := r.routes[name]
	return ok
}

// Default returns the name Resolve uses for an empty model name.
func (r *Registry) Default() string { return r.defaultModel }

// Models returns the registered logical model names in sorted order.
func (r *Registry) Models() []string {
	return r.names(func(ModelRoute) bool { return true })
}

// VisionModels returns the sorted names of routes that accept images.
func (r *Registry) VisionModels() []string {
	return r.names(func(route ModelRoute) bool { return route.Vision })
}

func (r *Registry) names(keep func(ModelRoute) bool) []string {
	out := make([]string, 0, len(r.routes))
	for name, route := range r.routes {
		if keep(route) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Resolve returns the provider and route for modelName, or for the default
// model when modelName is empty.
func (r *Registry) Resolve(modelName string) (Provider, ModelRoute, error) {
	if modelName == "" {
		modelName = r.defaultModel
	}
	route, ok := r.routes[modelName]
	if !ok {
		return nil, ModelRoute{}, fmt.Errorf("%w: %q", ErrModelNotFound, modelName)
	}
	p, ok := r.providers[route.Provider]
	if !ok {
		return nil, ModelRoute{}, fmt.Errorf("%w: %q (model %q)", ErrProviderNotFound, route.Provider, modelName)
	}
	return p, route, nil
}
