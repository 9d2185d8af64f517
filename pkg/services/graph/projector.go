package graph

import (
	"bytes"
	"fmt"
	"time"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
)

// projection is the complete write-set for one source's crawl.
type projection struct {
	nodes      []*models.GraphNode
	edges      []*models.GraphEdge
	provenance []*models.ProvenanceRecord

	nodeIndex map[string]*models.GraphNode
	edgeIndex map[string]bool
}

// projector maps a snapshot onto graph rows. It implements
// models.SnapshotVisitor.
type projector struct {
	sourceID string
	rootID   string
	now      time.Time
	out      *projection
}

func newProjector(sourceID string, now time.Time) *projector {
	return &projector{
		sourceID: sourceID,
		rootID:   SourceNodeID(sourceID),
		now:      now,
		out: &projection{
			nodeIndex: map[string]*models.GraphNode{},
			edgeIndex: map[string]bool{},
		},
	}
}

// addNode records a node once. A repeated id is accepted only when it
// carries the same type and props.
func (p *projector) addNode(id, nodeType string, props any) error {
	raw := jsonutil.MustMarshal(props)
	if existing, ok := p.out.nodeIndex[id]; ok {
		if existing.Type != nodeType || !bytes.Equal(existing.Props, raw) {
			return fmt.Errorf("node id %s projected twice with different properties", id)
		}
		return nil
	}
	node := &models.GraphNode{
		ID:        id,
		Type:      nodeType,
		SourceID:  p.sourceID,
		Props:     raw,
		Status:    models.NodeStatusActive,
		UpdatedAt: p.now,
	}
	p.out.nodeIndex[id] = node
	p.out.nodes = append(p.out.nodes, node)
	return nil
}

func (p *projector) addEdge(srcID, dstID, edgeType string, props any) {
	id := EdgeID(srcID, dstID, edgeType)
	if p.out.edgeIndex[id] {
		return
	}
	p.out.edgeIndex[id] = true
	edge := &models.GraphEdge{
		ID:       id,
		SrcID:    srcID,
		DstID:    dstID,
		Type:     edgeType,
		SourceID: p.sourceID,
	}
	if props != nil {
		edge.Props = jsonutil.MustMarshal(props)
	}
	p.out.edges = append(p.out.edges, edge)
}

func (p *projector) addProvenance(ownerType, ownerID, kind string, meta any) {
	p.out.provenance = append(p.out.provenance, &models.ProvenanceRecord{
		OwnerType: ownerType,
		OwnerID:   ownerID,
		Kind:      kind,
		Meta:      jsonutil.MustMarshal(meta),
		CreatedAt: p.now,
	})
}

type tableProps struct {
	Schema   string `json:"schema,omitempty"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Comment  string `json:"comment,omitempty"`
	RowCount *int64 `json:"row_count"`
}

type columnProps struct {
	Name            string `json:"name"`
	DataType        string `json:"data_type"`
	Nullable        bool   `json:"nullable"`
	OrdinalPosition int    `json:"ordinal_position"`
	IsPrimaryKey    bool   `json:"is_primary_key,omitempty"`
}

type collectionProps struct {
	Database      string `json:"database"`
	Name          string `json:"name"`
	DocumentCount *int64 `json:"document_count"`
	SampledCount  int    `json:"sampled_count"`
}

type fieldProps struct {
	Path     string   `json:"path"`
	Types    []string `json:"types"`
	Nullable bool     `json:"nullable"`
}

type foreignKeyProps struct {
	ConstraintName string `json:"constraint_name,omitempty"`
	Inferred       bool   `json:"inferred,omitempty"`
}

type columnProfileMeta struct {
	Profiles []models.ColumnProfile `json:"profiles"`
}

type fieldProfileMeta struct {
	SampledCount int                   `json:"sampled_count"`
	Profiles     []models.FieldProfile `json:"profiles"`
}

func (p *projector) VisitRelational(s *models.RelationalSnapshot) error {
	for _, t := range s.Tables {
		tableID := TableNodeID(p.sourceID, t.Schema, t.Name)
		err := p.addNode(tableID, models.NodeTypeTable, tableProps{
			Schema:   t.Schema,
			Name:     t.Name,
			Kind:     t.Kind,
			Comment:  t.Comment,
			RowCount: t.RowCount,
		})
		if err != nil {
			return err
		}
		p.addEdge(p.rootID, tableID, models.EdgeTypeContains, nil)

		for _, c := range t.Columns {
			colID := ColumnNodeID(tableID, c.Name)
			err := p.addNode(colID, models.NodeTypeColumn, columnProps{
				Name:            c.Name,
				DataType:        c.DataType,
				Nullable:        c.Nullable,
				OrdinalPosition: c.OrdinalPosition,
				IsPrimaryKey:    c.IsPrimaryKey,
			})
			if err != nil {
				return err
			}
			p.addEdge(tableID, colID, models.EdgeTypeHasColumn, nil)
		}

		if hasColumnStatistics(t.Profiles) {
			p.addProvenance(models.NodeTypeTable, tableID, models.ProvenanceKindProfileStats, columnProfileMeta{Profiles: t.Profiles})
		}
	}

	for _, fk := range s.ForeignKeys {
		src := ColumnNodeID(TableNodeID(p.sourceID, fk.SourceSchema, fk.SourceTable), fk.SourceColumn)
		dst := ColumnNodeID(TableNodeID(p.sourceID, fk.TargetSchema, fk.TargetTable), fk.TargetColumn)
		p.linkForeignKey(src, dst, fk)
	}
	return nil
}

func (p *projector) VisitDocument(s *models.DocumentSnapshot) error {
	for _, c := range s.Collections {
		db := c.Database
		if db == "" {
			db = s.Database
		}
		collID := CollectionNodeID(p.sourceID, db, c.Name)
		err := p.addNode(collID, models.NodeTypeCollection, collectionProps{
			Database:      db,
			Name:          c.Name,
			DocumentCount: c.DocumentCount,
			SampledCount:  c.SampledCount,
		})
		if err != nil {
			return err
		}
		p.addEdge(p.rootID, collID, models.EdgeTypeContains, nil)

		for _, f := range c.Fields {
			fieldID := FieldNodeID(collID, f.Path)
			err := p.addNode(fieldID, models.NodeTypeField, fieldProps{
				Path:     f.Path,
				Types:    f.Types,
				Nullable: f.Nullable,
			})
			if err != nil {
				return err
			}
			p.addEdge(collID, fieldID, models.EdgeTypeHasField, nil)
		}

		if len(c.Profiles) > 0 {
			p.addProvenance(models.NodeTypeCollection, collID, models.ProvenanceKindProfileStats, fieldProfileMeta{
				SampledCount: c.SampledCount,
				Profiles:     c.Profiles,
			})
		}
	}

	for _, ref := range s.References {
		src := FieldNodeID(CollectionNodeID(p.sourceID, ref.SourceSchema, ref.SourceTable), ref.SourceColumn)
		dst := FieldNodeID(CollectionNodeID(p.sourceID, ref.TargetSchema, ref.TargetTable), ref.TargetColumn)
		p.linkForeignKey(src, dst, ref)
	}
	return nil
}

// linkForeignKey adds a FOREIGN_KEY edge when both endpoints were projected.
// Constraints can point outside the crawled scope, e.g. into another schema.
func (p *projector) linkForeignKey(src, dst string, fk models.ForeignKeyConstraint) {
	if p.out.nodeIndex[src] == nil || p.out.nodeIndex[dst] == nil {
		return
	}
	p.addEdge(src, dst, models.EdgeTypeForeignKey, foreignKeyProps{
		ConstraintName: fk.ConstraintName,
		Inferred:       fk.Inferred,
	})
}

// hasColumnStatistics is false when every profile failed.
func hasColumnStatistics(profiles []models.ColumnProfile) bool {
	for _, prof := range profiles {
		if prof.SampleCount != nil {
			return true
		}
	}
	return false
}

var _ models.SnapshotVisitor = (*projector)(nil)
