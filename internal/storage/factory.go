package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/serversoft/serversoft/internal/config"
)

// FactoryFunc builds a backend from the application config.
type FactoryFunc func(*config.Config) (Storage, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]FactoryFunc)
)

// Register makes a backend available under name. Backends call it from
// init(); a later registration under the same name wins.
func Register(name string, factory FactoryFunc) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// Backends lists the registered backend names, sorted.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewStorage creates the backend named by storage.default_backend.
func NewStorage(cfg *config.Config) (Storage, error) {
	name := cfg.Storage.DefaultBackend
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend %q (registered: %s)", name, strings.Join(Backends(), ", "))
	}

	s, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("storage backend %s: %w", name, err)
	}
	return s, nil
}
