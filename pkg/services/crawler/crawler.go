// Package crawler discovers the structure and statistics of a source and
// returns them in a graceful-degradation envelope.
package crawler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/logging"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/metrics"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/retry"
)

// Service crawls sources.
type Service interface {
	// Crawl opens the source, runs every probe and closes the source.
	// It never fails: probe failures become warnings, and an unreachable
	// source yields an empty snapshot with Reachable=false.
	Crawl(ctx context.Context, source *models.Source, opts Options) *models.CrawlResult
}

// SnapshotProducer runs the probes for one store kind.
type SnapshotProducer interface {
	Produce(ctx context.Context, sink WarningSink, opts Options) (models.Snapshot, models.AvailableFeatures)
}

type service struct {
	factory     datasource.AdapterFactory
	metrics     *metrics.CrawlMetrics
	retryConfig *retry.Config
	logger      *zap.Logger
}

// NewService creates a crawler that opens adapters through factory.
// m may be nil.
func NewService(factory datasource.AdapterFactory, m *metrics.CrawlMetrics, logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		factory: factory,
		metrics: m,
		retryConfig: &retry.Config{
			MaxRetries:       3,
			InitialDelay:     500 * time.Millisecond,
			MaxDelay:         5 * time.Second,
			Multiplier:       2.0,
			JitterFactor:     0.1,
			MaxSameErrorType: 3,
		},
		logger: logger.Named("crawler"),
	}
}

func (s *service) Crawl(ctx context.Context, source *models.Source, opts Options) *models.CrawlResult {
	opts = opts.withDefaults()
	logger := s.logger.With(zap.String("source_id", source.ID), zap.String("type", source.Type))
	sink := newWarningRecorder(logger, s.metrics)

	result := &models.CrawlResult{
		SourceID:  source.ID,
		Kind:      source.Kind,
		StartedAt: time.Now().UTC(),
	}
	defer func() {
		result.FinishedAt = time.Now().UTC()
		result.Warnings = sink.Warnings()
		result.AvailableFeatures.HasPermissionErrors = sink.SawPermissionDenied()
		s.metrics.ObserveCrawl(string(result.Kind), result.FinishedAt.Sub(result.StartedAt))
	}()

	adapter, err := s.factory.Open(source)
	if err != nil {
		sink.Failure(models.WarningLevelError, models.FeatureConnection, "cannot open source", err, "Check the source type and connection settings")
		result.Data = emptySnapshot(source.Kind)
		return result
	}
	defer func() {
		if err := adapter.Close(); err != nil {
			logger.Warn("Failed to close adapter", zap.String("error", logging.SanitizeError(err)))
		}
	}()
	result.Kind = adapter.Kind()

	producer, err := newProducer(adapter, logger)
	if err != nil {
		sink.Failure(models.WarningLevelError, models.FeatureConnection, "cannot crawl source", err, "")
		result.Data = emptySnapshot(result.Kind)
		return result
	}

	err = retry.DoIfTransient(ctx, s.retryConfig, func() error {
		return adapter.HealthCheck(ctx)
	})
	if err != nil {
		sink.Failure(models.WarningLevelError, models.FeatureConnection, "source unreachable", err, connectionSuggestion(err))
		result.Data = emptySnapshot(result.Kind)
		return result
	}
	result.Reachable = true

	logger.Info("Crawling source", zap.String("kind", string(result.Kind)))
	result.Data, result.AvailableFeatures = producer.Produce(ctx, sink, opts)
	logger.Info("Crawl finished", zap.Bool("empty", result.Data.IsEmpty()))

	return result
}

// newProducer picks the probe set for the adapter's capability.
func newProducer(adapter datasource.Adapter, logger *zap.Logger) (SnapshotProducer, error) {
	switch a := adapter.(type) {
	case datasource.RelationalAdapter:
		return &relationalProducer{adapter: a, logger: logger}, nil
	case datasource.DocumentAdapter:
		return &documentProducer{adapter: a, logger: logger}, nil
	}
	return nil, fmt.Errorf("%w: adapter %T has no crawl capability", apperrors.ErrUnsupportedSource, adapter)
}

func emptySnapshot(kind models.SourceKind) models.Snapshot {
	if kind == models.SourceKindDocument {
		return &models.DocumentSnapshot{Collections: []models.Collection{}}
	}
	return &models.RelationalSnapshot{Tables: []models.Table{}, ForeignKeys: []models.ForeignKeyConstraint{}}
}
