//go:build mongodb || all_adapters

package mongodb

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        "mongodb",
			DisplayName: "MongoDB",
			Description: "MongoDB 5.0+, Atlas, DocumentDB",
			Kind:        models.SourceKindDocument,
		},
		Factory: func(config map[string]any, logger *zap.Logger) (datasource.Adapter, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewAdapter(cfg, logger), nil
		},
	})
}
