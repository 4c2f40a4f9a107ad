package datasource

import (
	"context"
	"sort"
	"sync"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// AdapterInfo describes a registered adapter.
type AdapterInfo struct {
	Type        string `json:"type"`         // "postgres", "mssql", "sqlite", "duckdb"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Description string `json:"description"`
}

// ConnectionFactory opens a Connection for a target through the connection manager.
type ConnectionFactory func(ctx context.Context, target models.TargetDescriptor, connMgr *ConnectionManager) (Connection, error)

// AdapterRegistration contains info and the factory for one target kind.
type AdapterRegistration struct {
	Info    AdapterInfo
	Dialect Dialect
	Factory ConnectionFactory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AdapterRegistration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetFactory returns the factory for a target kind, or nil if it is not registered.
func GetFactory(kind string) ConnectionFactory {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[kind]; ok {
		return reg.Factory
	}
	return nil
}

// GetDialect returns the dialect for a target kind.
func GetDialect(kind string) (Dialect, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	reg, ok := registry[kind]
	return reg.Dialect, ok
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(kind string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[kind]
	return ok
}
