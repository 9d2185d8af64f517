package models

import "fmt"

// SourceKind classifies a data store by how it is crawled.
type SourceKind string

const (
	SourceKindRelationalSQL        SourceKind = "relational-sql"
	SourceKindRelationalSQLVariant SourceKind = "relational-sql-variant"
	SourceKindDocument             SourceKind = "document"
	SourceKindEmbeddedAnalytical   SourceKind = "embedded-analytical"
)

// IsValid returns true if the kind is one of the known store kinds.
func (k SourceKind) IsValid() bool {
	switch k {
	case SourceKindRelationalSQL, SourceKindRelationalSQLVariant, SourceKindDocument, SourceKindEmbeddedAnalytical:
		return true
	}
	return false
}

// IsRelational returns true for kinds that are crawled through SQL catalogs.
func (k SourceKind) IsRelational() bool {
	return k == SourceKindRelationalSQL || k == SourceKindRelationalSQLVariant || k == SourceKindEmbeddedAnalytical
}

// Source is a registered connection to a data store.
// Config holds adapter-specific connection details (host/port/credentials,
// file path or URI); its structure varies by Type.
type Source struct {
	ID     string         `json:"id" yaml:"id"`
	Name   string         `json:"name,omitempty" yaml:"name"`
	Kind   SourceKind     `json:"kind" yaml:"kind"`
	Type   string         `json:"type" yaml:"type"` // "postgres", "mysql", "mssql", "oracle", "sqlite", "mongodb"
	Config map[string]any `json:"config,omitempty" yaml:"config"`
}

// Validate checks that the source carries enough identity to be crawled.
func (s *Source) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("source id is required")
	}
	if s.Type == "" {
		return fmt.Errorf("source %s: type is required", s.ID)
	}
	if s.Kind != "" && !s.Kind.IsValid() {
		return fmt.Errorf("source %s: unknown kind %q", s.ID, s.Kind)
	}
	return nil
}
