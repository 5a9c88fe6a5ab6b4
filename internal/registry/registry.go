package registry

import (
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/samber/lo"

	"github.com/eugenenazirov/udc-experiments/internal/experiment"
)

// BaseName addresses the base configuration; it cannot be registered.
const BaseName = "base"

var (
	// ErrInvalidName indicates a named config name that is empty, reserved or malformed.
	ErrInvalidName = errors.New("named config name must match [A-Za-z0-9_-]+ and must not be \"base\"")
	// ErrDuplicateConfig indicates a named config was registered twice.
	ErrDuplicateConfig = errors.New("named config already registered")
	// ErrUnknownConfig indicates a lookup of a name that was never registered.
	ErrUnknownConfig = errors.New("unknown named config")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Registry provides access to the named configurations and resolves them.
type Registry interface {
	Register(named experiment.Named) error
	Get(name string) (experiment.Named, error)
	List() []experiment.Named
	Resolve(names []string, updates experiment.Overrides) (experiment.Params, error)
}

// MemoryRegistry keeps named configurations in-memory and guards access with a RWMutex.
type MemoryRegistry struct {
	env experiment.Environment

	mu    sync.RWMutex
	named map[string]experiment.Named
	order []string
}

// NewMemoryRegistry creates an empty registry resolving against env.
func NewMemoryRegistry(env experiment.Environment) *MemoryRegistry {
	return &MemoryRegistry{
		env:   env,
		named: make(map[string]experiment.Named),
	}
}

// NewDefault creates a registry holding every built-in named configuration.
func NewDefault(env experiment.Environment) (*MemoryRegistry, error) {
	reg := NewMemoryRegistry(env)
	if err := experiment.Initialise(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// Register stores a copy of named.
func (r *MemoryRegistry) Register(named experiment.Named) error {
	if named.Name == BaseName || !namePattern.MatchString(named.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, named.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.named[named.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateConfig, named.Name)
	}
	named.Overrides = named.Overrides.Clone()
	r.named[named.Name] = named
	r.order = append(r.order, named.Name)
	return nil
}

// Get returns a copy of the named configuration.
func (r *MemoryRegistry) Get(name string) (experiment.Named, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	named, ok := r.named[name]
	if !ok {
		return experiment.Named{}, fmt.Errorf("%w: %s", ErrUnknownConfig, name)
	}
	named.Overrides = named.Overrides.Clone()
	return named, nil
}

// List returns copies of every named configuration in registration order.
func (r *MemoryRegistry) List() []experiment.Named {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Map(r.order, func(name string, _ int) experiment.Named {
		named := r.named[name]
		named.Overrides = named.Overrides.Clone()
		return named
	})
}

// Resolve applies the named configurations in order, then updates, on top of the base.
// The name "base" is accepted and contributes nothing.
func (r *MemoryRegistry) Resolve(names []string, updates experiment.Overrides) (experiment.Params, error) {
	overrides := make([]experiment.Overrides, 0, len(names)+1)
	for _, name := range names {
		if name == BaseName {
			continue
		}
		named, err := r.Get(name)
		if err != nil {
			return experiment.Params{}, err
		}
		overrides = append(overrides, named.Overrides)
	}
	overrides = append(overrides, updates)

	return experiment.Resolve(r.env, overrides...)
}
