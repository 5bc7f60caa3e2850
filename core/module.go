package core

import (
	"fmt"
	"plugin"
	"strings"
	"sync"
)

const maxModuleType = 32

// ModuleLoader resolves a module that is not registered yet.
type ModuleLoader func(name string) (Module, error)

// ModuleRegistry maps module names to capability providers.
type ModuleRegistry struct {
	mu      sync.RWMutex
	modules map[string]Module
	loader  ModuleLoader
}

// NewModuleRegistry creates an empty registry. loader may be nil.
func NewModuleRegistry(loader ModuleLoader) *ModuleRegistry {
	return &ModuleRegistry{
		modules: make(map[string]Module),
		loader:  loader,
	}
}

// Register adds a module under name.
func (r *ModuleRegistry) Register(name string, m Module) error {
	if name == "" || m == nil {
		return fmt.Errorf("register module %q: invalid module", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[name]; exists {
		return fmt.Errorf("register module %q: %w", name, ErrModuleExists)
	}
	if len(r.modules) >= maxModuleType {
		return fmt.Errorf("register module %q: %w", name, ErrTooManyModules)
	}
	r.modules[name] = m
	return nil
}

// Query returns the module registered as name, consulting the loader on a
// miss.
func (r *ModuleRegistry) Query(name string) (Module, error) {
	r.mu.RLock()
	m, ok := r.modules[name]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.modules[name]; ok {
		return m, nil
	}
	if r.loader == nil || len(r.modules) >= maxModuleType {
		return nil, fmt.Errorf("module %q: %w", name, ErrModuleNotFound)
	}

	m, err := r.loader(name)
	if err != nil {
		return nil, fmt.Errorf("module %q: %w", name, err)
	}
	r.modules[name] = m
	return m, nil
}

// Names returns the registered module names.
func (r *ModuleRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	return names
}

// PluginLoader returns a loader that opens Go plugins. path is a list of
// patterns separated by ';' in which '?' stands for the module name, e.g.
// "./module/?.so". The plugin must export a variable named Module
// implementing Module.
func PluginLoader(path string) ModuleLoader {
	return func(name string) (Module, error) {
		var lastErr error
		for _, pattern := range strings.Split(path, ";") {
			if pattern == "" {
				continue
			}
			if !strings.Contains(pattern, "?") {
				return nil, fmt.Errorf("invalid module path %q", pattern)
			}
			p, err := plugin.Open(strings.Replace(pattern, "?", name, 1))
			if err != nil {
				lastErr = err
				continue
			}
			sym, err := p.Lookup("Module")
			if err != nil {
				return nil, err
			}
			switch m := sym.(type) {
			case Module:
				return m, nil
			case *Module:
				return *m, nil
			default:
				return nil, fmt.Errorf("symbol Module of %s has type %T", name, sym)
			}
		}
		if lastErr == nil {
			lastErr = ErrModuleNotFound
		}
		return nil, lastErr
	}
}
