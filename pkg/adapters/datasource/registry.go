package datasource

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
)

// AdapterInfo describes a registered adapter.
type AdapterInfo struct {
	Type        string            `json:"type"`         // "postgres", "mssql", "mongodb"
	DisplayName string            `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Description string            `json:"description"`
	Kind        models.SourceKind `json:"kind"`
}

// AdapterRegistration contains info and the constructor for an adapter.
// Constructors must not connect; the connection is opened on first use.
type AdapterRegistration struct {
	Info    AdapterInfo
	Factory func(config map[string]any, logger *zap.Logger) (Adapter, error)
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

// RegisteredAdapters returns info for all registered adapters sorted by type.
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

// GetRegistration returns the registration for an adapter type.
func GetRegistration(adapterType string) (AdapterRegistration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[adapterType]
	return reg, ok
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(adapterType string) bool {
	_, ok := GetRegistration(adapterType)
	return ok
}
