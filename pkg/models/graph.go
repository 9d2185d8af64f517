package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Graph node types.
const (
	NodeTypeSource     = "source"
	NodeTypeTable      = "table"
	NodeTypeColumn     = "column"
	NodeTypeCollection = "collection"
	NodeTypeField      = "field"
)

// Graph edge types.
const (
	EdgeTypeContains   = "CONTAINS"
	EdgeTypeHasColumn  = "HAS_COLUMN"
	EdgeTypeHasField   = "HAS_FIELD"
	EdgeTypeForeignKey = "FOREIGN_KEY"
)

// Node statuses.
const (
	NodeStatusActive = "active"
)

// Provenance record kinds.
const (
	ProvenanceKindProfileStats = "profile_stats"
	ProvenanceKindCrawlSummary = "crawl_summary"
)

// GraphNode is a persisted structural node. IDs are deterministic from the
// logical path of the object so re-crawls overwrite instead of duplicating.
// OwnerIDs, Tags and Sensitivity are curated outside the crawler and are
// preserved across upserts.
type GraphNode struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	SourceID    string          `json:"source_id"`
	Props       json.RawMessage `json:"props"`
	OwnerIDs    []string        `json:"owner_ids,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	Sensitivity *string         `json:"sensitivity,omitempty"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// GraphEdge links two nodes. The ID is derived from (SrcID, DstID, Type).
type GraphEdge struct {
	ID       string          `json:"id"`
	SrcID    string          `json:"src_id"`
	DstID    string          `json:"dst_id"`
	Type     string          `json:"type"`
	SourceID string          `json:"source_id"`
	Props    json.RawMessage `json:"props,omitempty"`
}

// ProvenanceRecord is an append-only historical entry. Each crawl adds new
// records; they are never deduplicated.
type ProvenanceRecord struct {
	ID        uuid.UUID       `json:"id"`
	OwnerType string          `json:"owner_type"`
	OwnerID   string          `json:"owner_id"`
	Kind      string          `json:"kind"`
	Meta      json.RawMessage `json:"meta"`
	CreatedAt time.Time       `json:"created_at"`
}
