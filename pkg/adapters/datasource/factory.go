package datasource

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// AdapterFactory opens connections to targets using the adapter registry.
type AdapterFactory interface {
	// Open returns a connection for the target, reusing its pool when one exists.
	Open(ctx context.Context, target models.TargetDescriptor) (Connection, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []AdapterInfo
}

type registryFactory struct {
	connMgr *ConnectionManager
}

// NewAdapterFactory returns a factory that uses the global registry.
func NewAdapterFactory(connMgr *ConnectionManager) AdapterFactory {
	return &registryFactory{connMgr: connMgr}
}

func (f *registryFactory) Open(ctx context.Context, target models.TargetDescriptor) (Connection, error) {
	factory := GetFactory(target.Kind)
	if factory == nil {
		return nil, fmt.Errorf("unsupported datasource type: %s (not compiled in)", target.Kind)
	}
	return factory(ctx, target, f.connMgr)
}

func (f *registryFactory) ListTypes() []AdapterInfo {
	return RegisteredAdapters()
}

// Ensure registryFactory implements AdapterFactory at compile time.
var _ AdapterFactory = (*registryFactory)(nil)
