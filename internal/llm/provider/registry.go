package provider

import (
	"fmt"
	"sync"
)

// Factory constructs a provider from its configuration map.
type Factory func(config map[string]any) (Provider, error)

var (
	factoryMu sync.RWMutex
	factories = make(map[string]Factory)
)

// RegisterFactory registers a provider factory under a name.
// Providers register themselves from init functions.
func RegisterFactory(name string, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[name] = f
}

// New constructs the named provider with the given configuration.
func New(name string, config map[string]any) (Provider, error) {
	factoryMu.RLock()
	f, ok := factories[name]
	factoryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("provider '%s' not found", name)
	}

	return f(config)
}

// List returns all registered provider names
func List() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}
