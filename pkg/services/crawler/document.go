package crawler

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
)

// documentProducer samples each collection to infer its fields, profiles a
// second sample and counts documents. Collections are crawled one at a time.
type documentProducer struct {
	adapter datasource.DocumentAdapter
	logger  *zap.Logger
}

func (p *documentProducer) Produce(ctx context.Context, sink WarningSink, opts Options) (models.Snapshot, models.AvailableFeatures) {
	var features models.AvailableFeatures
	snap := &models.DocumentSnapshot{
		Database:    p.adapter.Database(),
		Collections: []models.Collection{},
		References:  []models.ForeignKeyConstraint{},
	}

	names, err := p.adapter.ListCollections(ctx)
	if err != nil {
		sink.Failure(models.WarningLevelError, models.FeatureSchema, "failed to list collections", err,
			"Grant listCollections on the database to the crawl user")
		return snap, features
	}

	for _, name := range names {
		coll := models.Collection{
			Database: snap.Database,
			Name:     name,
			Fields:   []models.Field{},
		}

		docs, err := p.adapter.Aggregate(ctx, name, samplePipeline(opts.SampleSize))
		if err != nil {
			sink.Failure(models.WarningLevelWarning, models.FeatureSampling, "failed to sample "+name, err, samplingSuggestion(name))
		} else {
			coll.Fields = InferFields(docs)
			coll.SampledCount = len(docs)
		}

		profileDocs, err := p.adapter.Aggregate(ctx, name, samplePipeline(opts.DocumentProfileSampleSize))
		if err != nil {
			sink.Failure(models.WarningLevelWarning, models.FeatureStatistics, "failed to profile "+name, err, samplingSuggestion(name))
		} else {
			coll.Profiles = ProfileDocuments(profileDocs)
			features.HasStatistics = true
		}

		if n, ok := p.countDocuments(ctx, sink, name); ok {
			coll.DocumentCount = &n
			features.HasRowCounts = true
		}

		p.logger.Debug("Crawled collection",
			zap.String("collection", name),
			zap.Int("sampled", coll.SampledCount),
			zap.Int("fields", len(coll.Fields)))
		snap.Collections = append(snap.Collections, coll)
	}

	snap.References = InferReferences(snap.Database, snap.Collections)
	return snap, features
}

func samplePipeline(size int) []map[string]any {
	return []map[string]any{
		{"$sample": map[string]any{"size": size}},
	}
}

// countDocuments runs a $count stage. An empty collection yields no
// output document, which means zero.
func (p *documentProducer) countDocuments(ctx context.Context, sink WarningSink, collection string) (int64, bool) {
	docs, err := p.adapter.Aggregate(ctx, collection, []map[string]any{
		{"$count": "n"},
	})
	if err != nil {
		sink.Failure(models.WarningLevelWarning, models.FeatureRowCounts, "failed to count documents in "+collection, err, samplingSuggestion(collection))
		return 0, false
	}
	if len(docs) == 0 {
		return 0, true
	}
	n, ok := datasource.AsInt64(docs[0]["n"])
	if !ok {
		sink.Warn(models.FeatureRowCounts, "document count of "+collection+" is not a number", "")
		return 0, false
	}
	return n, true
}
