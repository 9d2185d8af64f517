package crawler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
)

func crawlDocuments(t *testing.T, adapter *fakeDocumentAdapter) *models.CrawlResult {
	t.Helper()
	svc := NewService(&fakeFactory{adapter: adapter}, nil, zaptest.NewLogger(t))
	source := &models.Source{ID: "mongo1", Type: "mongodb", Kind: models.SourceKindDocument}
	return svc.Crawl(context.Background(), source, DefaultOptions())
}

func documentSnapshot(t *testing.T, result *models.CrawlResult) *models.DocumentSnapshot {
	t.Helper()
	snap, ok := result.Data.(*models.DocumentSnapshot)
	require.True(t, ok, "expected document snapshot, got %T", result.Data)
	return snap
}

func shopFixture() *fakeDocumentAdapter {
	return &fakeDocumentAdapter{
		database: "shop",
		collections: map[string][]map[string]any{
			"customers": {
				{"_id": datasource.ObjectID("c1"), "name": "Alice"},
				{"_id": datasource.ObjectID("c2"), "name": "Bob"},
			},
			"orders": {
				{"_id": datasource.ObjectID("o1"), "customerId": datasource.ObjectID("c1"), "total": 12.5},
				{"_id": datasource.ObjectID("o2"), "customerId": datasource.ObjectID("c2"), "total": 3.0, "note": "gift"},
				{"_id": datasource.ObjectID("o3"), "customerId": datasource.ObjectID("c1"), "total": 7.0},
			},
		},
	}
}

func TestCrawlDocuments_Collections(t *testing.T) {
	result := crawlDocuments(t, shopFixture())

	assert.True(t, result.Reachable)
	assert.Equal(t, models.SourceKindDocument, result.Kind)
	assert.Empty(t, result.Warnings)
	assert.True(t, result.AvailableFeatures.HasStatistics)
	assert.True(t, result.AvailableFeatures.HasRowCounts)

	snap := documentSnapshot(t, result)
	assert.Equal(t, "shop", snap.Database)
	require.Len(t, snap.Collections, 2)

	customers := snap.Collections[0]
	assert.Equal(t, "customers", customers.Name)
	assert.Equal(t, "shop", customers.Database)
	assert.Equal(t, 2, customers.SampledCount)
	require.NotNil(t, customers.DocumentCount)
	assert.Equal(t, int64(2), *customers.DocumentCount)

	name := profileByPath(t, customers.Profiles, "name")
	assert.InDelta(t, 0.0, *name.NullFraction, 1e-9)
	assert.Equal(t, int64(2), name.DistinctCount)

	orders := snap.Collections[1]
	assert.True(t, fieldByPath(t, orders.Fields, "note").Nullable)
	assert.False(t, fieldByPath(t, orders.Fields, "total").Nullable)
	assert.Equal(t, int64(3), *orders.DocumentCount)
}

func TestCrawlDocuments_InfersReferences(t *testing.T) {
	result := crawlDocuments(t, shopFixture())

	refs := result.ForeignKeys()
	require.Len(t, refs, 1)
	assert.Equal(t, "orders", refs[0].SourceTable)
	assert.Equal(t, "customerId", refs[0].SourceColumn)
	assert.Equal(t, "customers", refs[0].TargetTable)
	assert.True(t, refs[0].Inferred)
}

func TestCrawlDocuments_FailingCollectionIsIsolated(t *testing.T) {
	adapter := shopFixture()
	adapter.failing = map[string]error{"orders": errors.New("not authorized on shop to execute command { aggregate: \"orders\" }")}

	result := crawlDocuments(t, adapter)
	snap := documentSnapshot(t, result)

	require.Len(t, snap.Collections, 2)
	assert.NotEmpty(t, snap.Collections[0].Fields)
	assert.NotNil(t, snap.Collections[0].DocumentCount)

	orders := snap.Collections[1]
	assert.Equal(t, "orders", orders.Name)
	assert.NotNil(t, orders.Fields)
	assert.Empty(t, orders.Fields)
	assert.Nil(t, orders.DocumentCount)

	assert.True(t, result.HasWarning(models.FeatureSampling, models.WarningLevelWarning))
	assert.True(t, result.HasWarning(models.FeatureRowCounts, models.WarningLevelWarning))
	assert.True(t, result.AvailableFeatures.HasPermissionErrors)
	assert.Empty(t, result.ForeignKeys(), "orders fields were never inferred")
}

func TestCrawlDocuments_CountFailure(t *testing.T) {
	adapter := shopFixture()
	adapter.failingStage = map[string]error{"$count": errors.New("(Unauthorized) command aggregate requires authentication")}

	result := crawlDocuments(t, adapter)

	assert.False(t, result.AvailableFeatures.HasRowCounts)
	assert.True(t, result.AvailableFeatures.HasStatistics)
	for _, c := range documentSnapshot(t, result).Collections {
		assert.Nil(t, c.DocumentCount, c.Name)
		assert.NotEmpty(t, c.Fields, c.Name)
	}
}

func TestCrawlDocuments_EmptyCollectionCountsZero(t *testing.T) {
	adapter := &fakeDocumentAdapter{
		database:    "shop",
		collections: map[string][]map[string]any{"archive": nil},
	}

	result := crawlDocuments(t, adapter)
	coll := documentSnapshot(t, result).Collections[0]

	assert.Empty(t, coll.Fields)
	assert.Equal(t, 0, coll.SampledCount)
	require.NotNil(t, coll.DocumentCount)
	assert.Equal(t, int64(0), *coll.DocumentCount)
}

func TestCrawlDocuments_ListFailure(t *testing.T) {
	adapter := shopFixture()
	adapter.listErr = errors.New("not authorized on shop to execute command { listCollections: 1 }")

	result := crawlDocuments(t, adapter)

	assert.True(t, result.Reachable)
	assert.True(t, result.Data.IsEmpty())
	assert.True(t, result.HasWarning(models.FeatureSchema, models.WarningLevelError))
}

func TestCrawlDocuments_Unreachable(t *testing.T) {
	adapter := shopFixture()
	adapter.healthErr = errors.New("auth error: sasl conversation error: unable to authenticate")

	result := crawlDocuments(t, adapter)

	assert.False(t, result.Reachable)
	assert.True(t, result.Data.IsEmpty())
	assert.True(t, result.HasWarning(models.FeatureConnection, models.WarningLevelError))
}
