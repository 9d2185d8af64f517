package models

import "time"

// WarningLevel is the severity of a crawl warning.
type WarningLevel string

const (
	WarningLevelInfo    WarningLevel = "info"
	WarningLevelWarning WarningLevel = "warning"
	WarningLevelError   WarningLevel = "error"
)

// Crawl features that can produce warnings.
const (
	FeatureConnection    = "connection"
	FeatureSchema        = "schema"
	FeatureColumns       = "columns"
	FeatureStatistics    = "statistics"
	FeatureRelationships = "relationships"
	FeatureRowCounts     = "row_counts"
	FeatureSampling      = "sampling"
)

// CrawlWarning explains a gap in a crawl result. Warnings never fail a crawl.
type CrawlWarning struct {
	Level      WarningLevel `json:"level"`
	Feature    string       `json:"feature"`
	Message    string       `json:"message"`
	Suggestion string       `json:"suggestion,omitempty"`
}

// AvailableFeatures summarizes which probes produced data.
type AvailableFeatures struct {
	HasRowCounts  bool `json:"has_row_counts"`
	HasStatistics bool `json:"has_statistics"`
	// HasComments is set only when at least one table carries a comment.
	HasComments         bool `json:"has_comments"`
	HasPermissionErrors bool `json:"has_permission_errors"`
}

// CrawlResult is the graceful-degradation envelope returned by every crawl.
// Data is never nil: an unreachable source yields an empty snapshot.
type CrawlResult struct {
	SourceID          string            `json:"source_id"`
	Kind              SourceKind        `json:"kind"`
	Data              Snapshot          `json:"data"`
	Warnings          []CrawlWarning    `json:"warnings"`
	AvailableFeatures AvailableFeatures `json:"available_features"`
	Reachable         bool              `json:"reachable"`
	StartedAt         time.Time         `json:"started_at"`
	FinishedAt        time.Time         `json:"finished_at"`
}

// ForeignKeys returns discovered relationships regardless of snapshot variant.
func (r *CrawlResult) ForeignKeys() []ForeignKeyConstraint {
	switch s := r.Data.(type) {
	case *RelationalSnapshot:
		return s.ForeignKeys
	case *DocumentSnapshot:
		return s.References
	}
	return nil
}

// HasWarning reports whether any warning matches the feature and level.
func (r *CrawlResult) HasWarning(feature string, level WarningLevel) bool {
	for _, w := range r.Warnings {
		if w.Feature == feature && w.Level == level {
			return true
		}
	}
	return false
}
