package graph

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/database"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/metrics"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/repositories"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/testhelpers"
)

type graphStore struct {
	db   *database.DB
	repo repositories.GraphRepository
	ctx  context.Context
}

func newGraphStore(t *testing.T) *graphStore {
	t.Helper()
	db := testhelpers.NewGraphStore(t)
	return &graphStore{db: db, repo: repositories.NewGraphRepository(), ctx: db.WithScope(context.Background())}
}

func (s *graphStore) nodes(t *testing.T, sourceID string) []*models.GraphNode {
	t.Helper()
	nodes, err := s.repo.ListNodesBySource(s.ctx, sourceID)
	require.NoError(t, err)
	return nodes
}

func (s *graphStore) edges(t *testing.T, sourceID string) []*models.GraphEdge {
	t.Helper()
	edges, err := s.repo.ListEdgesBySource(s.ctx, sourceID)
	require.NoError(t, err)
	return edges
}

func (s *graphStore) provenance(t *testing.T, ownerID string) []*models.ProvenanceRecord {
	t.Helper()
	recs, err := s.repo.ListProvenance(s.ctx, ownerID)
	require.NoError(t, err)
	return recs
}

func int64Ptr(n int64) *int64       { return &n }
func float64Ptr(f float64) *float64 { return &f }

func accountsResult() *models.CrawlResult {
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	return &models.CrawlResult{
		SourceID:          "src1",
		Kind:              models.SourceKindRelationalSQL,
		Reachable:         true,
		StartedAt:         start,
		FinishedAt:        start.Add(2 * time.Second),
		AvailableFeatures: models.AvailableFeatures{HasRowCounts: true, HasStatistics: true},
		Data: &models.RelationalSnapshot{
			Tables: []models.Table{{
				Schema:   "public",
				Name:     "accounts",
				Kind:     models.TableKindTable,
				RowCount: int64Ptr(5),
				Columns: []models.Column{
					{Name: "id", DataType: "integer", Nullable: false, OrdinalPosition: 1, IsPrimaryKey: true},
					{Name: "name", DataType: "text", Nullable: true, OrdinalPosition: 2},
				},
				Profiles: []models.ColumnProfile{
					{Column: "id", SampleCount: int64Ptr(5), NullCount: int64Ptr(0), NullFraction: float64Ptr(0)},
					{Column: "name", SampleCount: int64Ptr(5), NullCount: int64Ptr(1), NullFraction: float64Ptr(0.2)},
				},
			}},
			ForeignKeys: []models.ForeignKeyConstraint{},
		},
	}
}

func countByType[T any](items []T, typeOf func(T) string) map[string]int {
	out := map[string]int{}
	for _, it := range items {
		out[typeOf(it)]++
	}
	return out
}

func nodeType(n *models.GraphNode) string { return n.Type }
func edgeType(e *models.GraphEdge) string { return e.Type }

func TestMaterialize_AccountsScenario(t *testing.T) {
	store := newGraphStore(t)
	svc := NewService(store.db, store.repo, nil, zaptest.NewLogger(t))

	summary, err := svc.Materialize(context.Background(), accountsResult())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Nodes)
	assert.Equal(t, 3, summary.Edges)
	assert.Equal(t, 2, summary.Provenance)
	assert.Equal(t, []string{"public.accounts"}, summary.Connectivity.Islands)

	nodes := store.nodes(t, "src1")
	assert.Equal(t, map[string]int{
		models.NodeTypeSource: 1,
		models.NodeTypeTable:  1,
		models.NodeTypeColumn: 2,
	}, countByType(nodes, nodeType))

	edges := store.edges(t, "src1")
	assert.Equal(t, map[string]int{
		models.EdgeTypeContains:  1,
		models.EdgeTypeHasColumn: 2,
	}, countByType(edges, edgeType))

	var table *models.GraphNode
	for _, n := range nodes {
		if n.ID == "tbl_src1_public_accounts" {
			table = n
		}
	}
	require.NotNil(t, table)
	var props map[string]any
	require.NoError(t, json.Unmarshal(table.Props, &props))
	assert.Equal(t, "accounts", props["name"])
	assert.Equal(t, float64(5), props["row_count"])

	stats := store.provenance(t, "tbl_src1_public_accounts")
	require.Len(t, stats, 1)
	assert.Equal(t, models.ProvenanceKindProfileStats, stats[0].Kind)
	assert.Contains(t, string(stats[0].Meta), `"null_fraction":0.2`)

	summaries := store.provenance(t, "src_src1")
	require.Len(t, summaries, 1)
	assert.Equal(t, models.ProvenanceKindCrawlSummary, summaries[0].Kind)
	assert.Contains(t, string(summaries[0].Meta), `"islands":1`)
}

func TestMaterialize_Idempotent(t *testing.T) {
	store := newGraphStore(t)
	svc := NewService(store.db, store.repo, nil, zaptest.NewLogger(t))

	_, err := svc.Materialize(context.Background(), accountsResult())
	require.NoError(t, err)
	firstNodes := store.nodes(t, "src1")
	firstEdges := store.edges(t, "src1")

	_, err = svc.Materialize(context.Background(), accountsResult())
	require.NoError(t, err)
	secondNodes := store.nodes(t, "src1")
	secondEdges := store.edges(t, "src1")

	require.Len(t, secondNodes, len(firstNodes))
	require.Len(t, secondEdges, len(firstEdges))
	for i := range firstNodes {
		assert.Equal(t, firstNodes[i].ID, secondNodes[i].ID)
		assert.Equal(t, firstNodes[i].CreatedAt, secondNodes[i].CreatedAt, "created_at survives re-crawl")
		assert.JSONEq(t, string(firstNodes[i].Props), string(secondNodes[i].Props))
	}
	for i := range firstEdges {
		assert.Equal(t, firstEdges[i].ID, secondEdges[i].ID)
	}

	// Provenance is history: each crawl appends.
	assert.Len(t, store.provenance(t, "tbl_src1_public_accounts"), 2)
	assert.Len(t, store.provenance(t, "src_src1"), 2)
}

func TestMaterialize_PreservesCuration(t *testing.T) {
	store := newGraphStore(t)
	svc := NewService(store.db, store.repo, nil, zaptest.NewLogger(t))

	_, err := svc.Materialize(context.Background(), accountsResult())
	require.NoError(t, err)
	_, err = store.db.Exec(`UPDATE nodes SET tags = '["pii"]', sensitivity = 'restricted' WHERE id = 'col_tbl_src1_public_accounts_name'`)
	require.NoError(t, err)

	_, err = svc.Materialize(context.Background(), accountsResult())
	require.NoError(t, err)

	for _, n := range store.nodes(t, "src1") {
		if n.ID == "col_tbl_src1_public_accounts_name" {
			assert.Equal(t, []string{"pii"}, n.Tags)
			require.NotNil(t, n.Sensitivity)
			assert.Equal(t, "restricted", *n.Sensitivity)
			return
		}
	}
	t.Fatal("column node not found")
}

// failingRepo fails the nth edge upsert.
type failingRepo struct {
	repositories.GraphRepository
	failAt int
	edges  int
}

func (r *failingRepo) UpsertEdge(ctx context.Context, edge *models.GraphEdge) error {
	r.edges++
	if r.edges == r.failAt {
		return errors.New("disk I/O error")
	}
	return r.GraphRepository.UpsertEdge(ctx, edge)
}

func TestMaterialize_AtomicOnFailure(t *testing.T) {
	store := newGraphStore(t)

	_, err := NewService(store.db, store.repo, nil, zaptest.NewLogger(t)).Materialize(context.Background(), accountsResult())
	require.NoError(t, err)
	before := store.nodes(t, "src1")

	changed := accountsResult()
	snap := changed.Data.(*models.RelationalSnapshot)
	snap.Tables[0].Columns = append(snap.Tables[0].Columns, models.Column{Name: "email", DataType: "text", Nullable: true, OrdinalPosition: 3})
	snap.Tables[0].RowCount = int64Ptr(99)

	repo := &failingRepo{GraphRepository: store.repo, failAt: 3}
	_, err = NewService(store.db, repo, nil, zaptest.NewLogger(t)).Materialize(context.Background(), changed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")

	after := store.nodes(t, "src1")
	require.Len(t, after, len(before), "new column must not be visible")
	for i := range before {
		assert.JSONEq(t, string(before[i].Props), string(after[i].Props))
	}
	assert.Len(t, store.provenance(t, "src_src1"), 1)
}

func TestMaterialize_UnreachableWritesNothing(t *testing.T) {
	store := newGraphStore(t)
	svc := NewService(store.db, store.repo, nil, zaptest.NewLogger(t))

	result := &models.CrawlResult{
		SourceID: "down",
		Kind:     models.SourceKindRelationalSQL,
		Data:     &models.RelationalSnapshot{Tables: []models.Table{}},
	}
	_, err := svc.Materialize(context.Background(), result)
	assert.ErrorIs(t, err, apperrors.ErrSourceUnreachable)
	assert.Empty(t, store.nodes(t, "down"))
}

func TestMaterialize_ForeignKeys(t *testing.T) {
	store := newGraphStore(t)
	svc := NewService(store.db, store.repo, nil, zaptest.NewLogger(t))

	result := accountsResult()
	snap := result.Data.(*models.RelationalSnapshot)
	snap.Tables = append(snap.Tables, models.Table{
		Schema:  "public",
		Name:    "orders",
		Kind:    models.TableKindTable,
		Columns: []models.Column{{Name: "account_id", DataType: "integer", OrdinalPosition: 1}},
	})
	snap.ForeignKeys = []models.ForeignKeyConstraint{
		{ConstraintName: "orders_account_fk", SourceSchema: "public", SourceTable: "orders", SourceColumn: "account_id", TargetSchema: "public", TargetTable: "accounts", TargetColumn: "id"},
		{ConstraintName: "orders_region_fk", SourceSchema: "public", SourceTable: "orders", SourceColumn: "account_id", TargetSchema: "ref", TargetTable: "regions", TargetColumn: "id"},
	}

	summary, err := svc.Materialize(context.Background(), result)
	require.NoError(t, err)
	require.Len(t, summary.Connectivity.Components, 1)

	var fks []*models.GraphEdge
	for _, e := range store.edges(t, "src1") {
		if e.Type == models.EdgeTypeForeignKey {
			fks = append(fks, e)
		}
	}
	require.Len(t, fks, 1, "constraint into an uncrawled schema is not linked")
	assert.Equal(t, "col_tbl_src1_public_orders_account%5Fid", fks[0].SrcID)
	assert.Equal(t, "col_tbl_src1_public_accounts_id", fks[0].DstID)
	assert.Equal(t, EdgeID(fks[0].SrcID, fks[0].DstID, models.EdgeTypeForeignKey), fks[0].ID)
	assert.JSONEq(t, `{"constraint_name":"orders_account_fk"}`, string(fks[0].Props))
}

func TestMaterialize_Document(t *testing.T) {
	store := newGraphStore(t)
	reg := prometheus.NewRegistry()
	svc := NewService(store.db, store.repo, metrics.NewCrawlMetrics(reg), zaptest.NewLogger(t))

	result := &models.CrawlResult{
		SourceID:  "m1",
		Kind:      models.SourceKindDocument,
		Reachable: true,
		Data: &models.DocumentSnapshot{
			Database: "shop",
			Collections: []models.Collection{
				{Database: "shop", Name: "customers", Fields: []models.Field{
					{Path: "_id", Types: []string{models.FieldTypeObjectID}},
					{Path: "address.city", Types: []string{models.FieldTypeString}, Nullable: true},
				}},
				{Database: "shop", Name: "orders", Fields: []models.Field{
					{Path: "_id", Types: []string{models.FieldTypeObjectID}},
					{Path: "customerId", Types: []string{models.FieldTypeObjectID}},
				}, Profiles: []models.FieldProfile{{Path: "customerId", SampleCount: 3, ObservedCount: 3}}},
			},
			References: []models.ForeignKeyConstraint{{
				ConstraintName: "inferred_orders_customerId",
				SourceSchema:   "shop",
				SourceTable:    "orders",
				SourceColumn:   "customerId",
				TargetSchema:   "shop",
				TargetTable:    "customers",
				TargetColumn:   "_id",
				Inferred:       true,
			}},
		},
	}

	summary, err := svc.Materialize(context.Background(), result)
	require.NoError(t, err)
	// source + 2 collections + 4 fields
	assert.Equal(t, 7, summary.Nodes)

	ids := map[string]bool{}
	for _, n := range store.nodes(t, "m1") {
		ids[n.ID] = true
	}
	assert.True(t, ids["fld_coll_m1_shop_customers_address/city"])
	assert.True(t, ids["fld_coll_m1_shop_customers_%5Fid"])

	edges := countByType(store.edges(t, "m1"), edgeType)
	assert.Equal(t, 2, edges[models.EdgeTypeContains])
	assert.Equal(t, 4, edges[models.EdgeTypeHasField])
	assert.Equal(t, 1, edges[models.EdgeTypeForeignKey])

	assert.Len(t, store.provenance(t, "coll_m1_shop_orders"), 1)
	assert.Empty(t, store.provenance(t, "coll_m1_shop_customers"))

	assert.Equal(t, float64(7), graphWrites(t, reg, "node"))
}

// graphWrites reads metagraph_graph_writes_total{type=rowType}.
func graphWrites(t *testing.T, reg *prometheus.Registry, rowType string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "metagraph_graph_writes_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "type" && l.GetValue() == rowType {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	t.Fatalf("no graph writes counter for %s", rowType)
	return 0
}

func TestMaterialize_StoredConnectivityMatchesSnapshot(t *testing.T) {
	store := newGraphStore(t)
	svc := NewService(store.db, store.repo, nil, zaptest.NewLogger(t))

	_, err := svc.Materialize(context.Background(), accountsResult())
	require.NoError(t, err)

	c := StoredConnectivity(store.nodes(t, "src1"), store.edges(t, "src1"))
	assert.Equal(t, 0, c.Relationships)
	assert.Equal(t, []string{"tbl_src1_public_accounts"}, c.Islands)
}

func TestMaterialize_UnderscoreNamesKeepDistinctColumns(t *testing.T) {
	store := newGraphStore(t)
	svc := NewService(store.db, store.repo, nil, zaptest.NewLogger(t))

	result := accountsResult()
	result.Data = &models.RelationalSnapshot{
		Tables: []models.Table{
			{Schema: "public", Name: "user", Kind: models.TableKindTable, Columns: []models.Column{
				{Name: "group_id", DataType: "integer", OrdinalPosition: 1},
			}},
			{Schema: "public", Name: "user_group", Kind: models.TableKindTable, Columns: []models.Column{
				{Name: "id", DataType: "integer", OrdinalPosition: 1, IsPrimaryKey: true},
			}},
		},
		ForeignKeys: []models.ForeignKeyConstraint{},
	}

	summary, err := svc.Materialize(context.Background(), result)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Nodes)
	assert.Equal(t, 4, summary.Edges)

	nodes := store.nodes(t, "src1")
	assert.Equal(t, 2, countByType(nodes, nodeType)[models.NodeTypeColumn])

	hasColumn := map[string]string{}
	for _, e := range store.edges(t, "src1") {
		if e.Type == models.EdgeTypeHasColumn {
			hasColumn[e.SrcID] = e.DstID
		}
	}
	require.Len(t, hasColumn, 2)
	assert.NotEqual(t, hasColumn[TableNodeID("src1", "public", "user")], hasColumn[TableNodeID("src1", "public", "user_group")])
}

func TestMaterialize_ConflictingDuplicateNodeRollsBack(t *testing.T) {
	store := newGraphStore(t)
	svc := NewService(store.db, store.repo, nil, zaptest.NewLogger(t))

	result := accountsResult()
	snap := result.Data.(*models.RelationalSnapshot)
	snap.Tables[0].Columns = append(snap.Tables[0].Columns, models.Column{Name: "id", DataType: "text", OrdinalPosition: 3})

	_, err := svc.Materialize(context.Background(), result)
	require.Error(t, err)
	assert.ErrorContains(t, err, "col_tbl_src1_public_accounts_id")
	assert.Empty(t, store.nodes(t, "src1"))
}
