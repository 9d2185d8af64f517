package datasource

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
)

// AdapterFactory creates adapters for sources.
type AdapterFactory interface {
	// Open builds the adapter for a source without connecting.
	Open(source *models.Source) (Adapter, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []AdapterInfo
}

type registryFactory struct {
	logger *zap.Logger
}

// NewAdapterFactory returns a factory backed by the global registry.
func NewAdapterFactory(logger *zap.Logger) AdapterFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &registryFactory{logger: logger}
}

func (f *registryFactory) Open(source *models.Source) (Adapter, error) {
	if err := source.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidConfig, err)
	}

	reg, ok := GetRegistration(source.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s (not compiled in)", apperrors.ErrUnsupportedSource, source.Type)
	}
	if source.Kind != "" && source.Kind != reg.Info.Kind {
		return nil, fmt.Errorf("%w: source %s declares kind %s but %s adapters are %s",
			apperrors.ErrInvalidConfig, source.ID, source.Kind, source.Type, reg.Info.Kind)
	}

	adapter, err := reg.Factory(source.Config, f.logger.With(zap.String("source_id", source.ID)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", apperrors.ErrInvalidConfig, source.Type, err)
	}
	return adapter, nil
}

func (f *registryFactory) ListTypes() []AdapterInfo {
	return RegisteredAdapters()
}

// Ensure registryFactory implements AdapterFactory at compile time.
var _ AdapterFactory = (*registryFactory)(nil)
