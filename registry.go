package xmsg

import (
	"errors"
	"sort"
	"sync"
)

// StoreFactory constructs stores from a config blob.
type StoreFactory func(cfg map[string]any) (Store, error)

var (
	storeRegistryMu sync.RWMutex
	storeRegistry   = map[string]StoreFactory{}
)

// RegisterStore registers a storage adapter.
func RegisterStore(name string, factory StoreFactory) error {
	if name == "" {
		return errors.New("store name must not be empty")
	}
	if factory == nil {
		return errors.New("store factory must not be nil")
	}
	storeRegistryMu.Lock()
	storeRegistry[name] = factory
	storeRegistryMu.Unlock()
	return nil
}

// NewStore constructs a store by name with config.
func NewStore(name string, cfg map[string]any) (Store, error) {
	storeRegistryMu.RLock()
	f, ok := storeRegistry[name]
	storeRegistryMu.RUnlock()
	if !ok {
		return nil, ErrUnknownStore{name: name}
	}
	return f(cfg)
}

// Stores lists registered store names, sorted.
func Stores() []string {
	storeRegistryMu.RLock()
	names := make([]string, 0, len(storeRegistry))
	for n := range storeRegistry {
		names = append(names, n)
	}
	storeRegistryMu.RUnlock()
	sort.Strings(names)
	return names
}
