package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/database"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
)

// GraphRepository defines data access for the structural graph.
// Every method runs on the database scope found in ctx; callers that need
// atomicity run them inside database.DB.WithTx.
type GraphRepository interface {
	// UpsertNode inserts a node or replaces its props, status and updated_at.
	// created_at and curated fields (owner_ids, tags, sensitivity) of an
	// existing node are preserved. node.CreatedAt is set to the stored value.
	UpsertNode(ctx context.Context, node *models.GraphNode) error

	// UpsertEdge inserts an edge or replaces its props.
	UpsertEdge(ctx context.Context, edge *models.GraphEdge) error

	// InsertProvenance appends a provenance record.
	InsertProvenance(ctx context.Context, rec *models.ProvenanceRecord) error

	// ListNodesBySource returns a source's nodes ordered by id.
	ListNodesBySource(ctx context.Context, sourceID string) ([]*models.GraphNode, error)

	// ListEdgesBySource returns a source's edges ordered by id.
	ListEdgesBySource(ctx context.Context, sourceID string) ([]*models.GraphEdge, error)

	// ListProvenance returns the records attached to ownerID, oldest first.
	ListProvenance(ctx context.Context, ownerID string) ([]*models.ProvenanceRecord, error)
}

// graphRepository implements GraphRepository using SQLite.
type graphRepository struct{}

// NewGraphRepository creates a new graph repository.
func NewGraphRepository() GraphRepository {
	return &graphRepository{}
}

func scopeFrom(ctx context.Context) (*database.Scope, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}
	return scope, nil
}

func (r *graphRepository) UpsertNode(ctx context.Context, node *models.GraphNode) error {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return err
	}

	if node.UpdatedAt.IsZero() {
		node.UpdatedAt = time.Now().UTC()
	}
	if node.Status == "" {
		node.Status = models.NodeStatusActive
	}
	ownerIDs, err := encodeStrings(node.OwnerIDs)
	if err != nil {
		return err
	}
	tags, err := encodeStrings(node.Tags)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO nodes (id, type, source_id, props, owner_ids, tags, sensitivity, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			type = excluded.type,
			source_id = excluded.source_id,
			props = excluded.props,
			status = excluded.status,
			updated_at = excluded.updated_at
		RETURNING created_at`

	var createdAt string
	err = scope.Conn.QueryRowContext(ctx, query,
		node.ID,
		node.Type,
		node.SourceID,
		rawOrEmpty(node.Props),
		ownerIDs,
		tags,
		node.Sensitivity,
		node.Status,
		formatTime(node.UpdatedAt),
		formatTime(node.UpdatedAt),
	).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("failed to upsert node %s: %w", node.ID, err)
	}

	node.CreatedAt, err = parseTime(createdAt)
	return err
}

func (r *graphRepository) UpsertEdge(ctx context.Context, edge *models.GraphEdge) error {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO edges (id, src_id, dst_id, type, source_id, props)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET props = excluded.props`

	_, err = scope.Conn.ExecContext(ctx, query,
		edge.ID,
		edge.SrcID,
		edge.DstID,
		edge.Type,
		edge.SourceID,
		rawOrEmpty(edge.Props),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert edge %s (%s -> %s): %w", edge.Type, edge.SrcID, edge.DstID, err)
	}
	return nil
}

func (r *graphRepository) InsertProvenance(ctx context.Context, rec *models.ProvenanceRecord) error {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return err
	}

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO provenance (id, owner_type, owner_id, kind, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err = scope.Conn.ExecContext(ctx, query,
		rec.ID.String(),
		rec.OwnerType,
		rec.OwnerID,
		rec.Kind,
		rawOrEmpty(rec.Meta),
		formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert provenance for %s: %w", rec.OwnerID, err)
	}
	return nil
}

func (r *graphRepository) ListNodesBySource(ctx context.Context, sourceID string) ([]*models.GraphNode, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, type, source_id, props, owner_ids, tags, sensitivity, status, created_at, updated_at
		FROM nodes
		WHERE source_id = ?
		ORDER BY id`

	rows, err := scope.Conn.QueryContext(ctx, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	nodes := make([]*models.GraphNode, 0)
	for rows.Next() {
		var n models.GraphNode
		var props, ownerIDs, tags, createdAt, updatedAt string
		var sensitivity sql.NullString
		if err := rows.Scan(&n.ID, &n.Type, &n.SourceID, &props, &ownerIDs, &tags, &sensitivity, &n.Status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		n.Props = json.RawMessage(props)
		if err := json.Unmarshal([]byte(ownerIDs), &n.OwnerIDs); err != nil {
			return nil, fmt.Errorf("failed to decode owner_ids of %s: %w", n.ID, err)
		}
		if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags of %s: %w", n.ID, err)
		}
		if sensitivity.Valid {
			n.Sensitivity = &sensitivity.String
		}
		if n.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if n.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		nodes = append(nodes, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate nodes: %w", err)
	}
	return nodes, nil
}

func (r *graphRepository) ListEdgesBySource(ctx context.Context, sourceID string) ([]*models.GraphEdge, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, src_id, dst_id, type, source_id, props
		FROM edges
		WHERE source_id = ?
		ORDER BY id`

	rows, err := scope.Conn.QueryContext(ctx, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	defer rows.Close()

	edges := make([]*models.GraphEdge, 0)
	for rows.Next() {
		var e models.GraphEdge
		var props string
		if err := rows.Scan(&e.ID, &e.SrcID, &e.DstID, &e.Type, &e.SourceID, &props); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.Props = json.RawMessage(props)
		edges = append(edges, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate edges: %w", err)
	}
	return edges, nil
}

func (r *graphRepository) ListProvenance(ctx context.Context, ownerID string) ([]*models.ProvenanceRecord, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, owner_type, owner_id, kind, meta, created_at
		FROM provenance
		WHERE owner_id = ?
		ORDER BY created_at, rowid`

	rows, err := scope.Conn.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list provenance: %w", err)
	}
	defer rows.Close()

	records := make([]*models.ProvenanceRecord, 0)
	for rows.Next() {
		var rec models.ProvenanceRecord
		var id, meta, createdAt string
		if err := rows.Scan(&id, &rec.OwnerType, &rec.OwnerID, &rec.Kind, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan provenance: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid provenance id %q: %w", id, err)
		}
		rec.Meta = json.RawMessage(meta)
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate provenance: %w", err)
	}
	return records, nil
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func encodeStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(b), nil
}

func rawOrEmpty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

// Ensure graphRepository implements GraphRepository at compile time.
var _ GraphRepository = (*graphRepository)(nil)
