// Package graph materializes crawl snapshots into the structural graph
// store: nodes, edges and append-only provenance.
package graph

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/metrics"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/repositories"
)

// TxRunner runs fn inside one transaction. *database.DB implements it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// WriteSummary counts the rows written by one materialization.
type WriteSummary struct {
	Nodes        int          `json:"nodes"`
	Edges        int          `json:"edges"`
	Provenance   int          `json:"provenance"`
	Connectivity Connectivity `json:"connectivity"`
}

// Service writes crawl results into the graph store.
type Service interface {
	// Materialize writes the result's snapshot as one transaction. It
	// returns apperrors.ErrSourceUnreachable without writing anything when
	// the crawl could not connect.
	Materialize(ctx context.Context, result *models.CrawlResult) (*WriteSummary, error)
}

type service struct {
	tx      TxRunner
	repo    repositories.GraphRepository
	metrics *metrics.CrawlMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a materializer. m may be nil.
func NewService(tx TxRunner, repo repositories.GraphRepository, m *metrics.CrawlMetrics, logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		tx:      tx,
		repo:    repo,
		metrics: m,
		logger:  logger.Named("graph"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type crawlSummaryMeta struct {
	Kind              models.SourceKind        `json:"kind"`
	StartedAt         time.Time                `json:"started_at"`
	FinishedAt        time.Time                `json:"finished_at"`
	AvailableFeatures models.AvailableFeatures `json:"available_features"`
	Warnings          []models.CrawlWarning    `json:"warnings"`
	Nodes             int                      `json:"nodes"`
	Edges             int                      `json:"edges"`
	Components        int                      `json:"components"`
	Islands           int                      `json:"islands"`
}

type sourceProps struct {
	SourceID      string            `json:"source_id"`
	Kind          models.SourceKind `json:"kind"`
	LastCrawledAt time.Time         `json:"last_crawled_at"`
}

func (s *service) Materialize(ctx context.Context, result *models.CrawlResult) (*WriteSummary, error) {
	if result == nil || result.Data == nil {
		return nil, fmt.Errorf("materialize: no crawl result")
	}
	if !result.Reachable {
		return nil, fmt.Errorf("materialize %s: %w", result.SourceID, apperrors.ErrSourceUnreachable)
	}

	logger := s.logger.With(zap.String("source_id", result.SourceID))
	now := s.now()

	p := newProjector(result.SourceID, now)
	err := p.addNode(p.rootID, models.NodeTypeSource, sourceProps{
		SourceID:      result.SourceID,
		Kind:          result.Kind,
		LastCrawledAt: result.FinishedAt,
	})
	if err != nil {
		return nil, err
	}
	if err := result.Data.Accept(p); err != nil {
		return nil, fmt.Errorf("project snapshot: %w", err)
	}

	connectivity := SnapshotConnectivity(result.Data)
	warnings := result.Warnings
	if warnings == nil {
		warnings = []models.CrawlWarning{}
	}
	p.addProvenance(models.NodeTypeSource, p.rootID, models.ProvenanceKindCrawlSummary, crawlSummaryMeta{
		Kind:              result.Kind,
		StartedAt:         result.StartedAt,
		FinishedAt:        result.FinishedAt,
		AvailableFeatures: result.AvailableFeatures,
		Warnings:          warnings,
		Nodes:             len(p.out.nodes),
		Edges:             len(p.out.edges),
		Components:        len(connectivity.Components),
		Islands:           len(connectivity.Islands),
	})

	out := p.out
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		for _, n := range out.nodes {
			if err := s.repo.UpsertNode(ctx, n); err != nil {
				return err
			}
		}
		for _, e := range out.edges {
			if err := s.repo.UpsertEdge(ctx, e); err != nil {
				return err
			}
		}
		for _, rec := range out.provenance {
			if err := s.repo.InsertProvenance(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("Graph write rolled back", zap.Error(err))
		return nil, fmt.Errorf("materialize %s: %w", result.SourceID, err)
	}

	s.metrics.AddGraphWrites("node", len(out.nodes))
	s.metrics.AddGraphWrites("edge", len(out.edges))
	s.metrics.AddGraphWrites("provenance", len(out.provenance))

	summary := &WriteSummary{
		Nodes:        len(out.nodes),
		Edges:        len(out.edges),
		Provenance:   len(out.provenance),
		Connectivity: connectivity,
	}
	logger.Info("Materialized crawl",
		zap.Int("nodes", summary.Nodes),
		zap.Int("edges", summary.Edges),
		zap.Int("provenance", summary.Provenance))
	if logger.Core().Enabled(zap.DebugLevel) {
		LogConnectivity(connectivity, logger)
	}
	return summary, nil
}
