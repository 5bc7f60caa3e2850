package core

import (
	"fmt"
	"sync"
)

// Env is the process wide key/value store. A key can only be set once.
type Env struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewEnv creates an empty store.
func NewEnv() *Env {
	return &Env{values: make(map[string]string)}
}

// Get returns the value of key.
func (e *Env) Get(key string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, ok := e.values[key]
	return v, ok
}

// Set stores value under key. Setting an existing key fails.
func (e *Env) Set(key, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.values[key]; ok {
		return fmt.Errorf("%s: %w", key, ErrEnvKeyExists)
	}
	e.values[key] = value
	return nil
}

// Keys returns every key.
func (e *Env) Keys() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	keys := make([]string, 0, len(e.values))
	for k := range e.values {
		keys = append(keys, k)
	}
	return keys
}
