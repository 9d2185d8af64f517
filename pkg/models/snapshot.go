package models

// Snapshot is the point-in-time structure of a source: either tables and
// columns or collections and fields. Consumers dispatch on the concrete
// variant through Accept so that a new store kind forces every visitor to
// handle it.
type Snapshot interface {
	Accept(v SnapshotVisitor) error
	IsEmpty() bool
}

// SnapshotVisitor handles each snapshot variant.
type SnapshotVisitor interface {
	VisitRelational(s *RelationalSnapshot) error
	VisitDocument(s *DocumentSnapshot) error
}

// Table kinds reported by relational catalogs.
const (
	TableKindTable = "table"
	TableKindView  = "view"
)

// RelationalSnapshot is the structure discovered from a SQL catalog.
type RelationalSnapshot struct {
	Tables      []Table                `json:"tables"`
	ForeignKeys []ForeignKeyConstraint `json:"foreign_keys"`
}

func (s *RelationalSnapshot) Accept(v SnapshotVisitor) error { return v.VisitRelational(s) }

func (s *RelationalSnapshot) IsEmpty() bool { return len(s.Tables) == 0 }

// Table is a relational table or view with its columns and derived statistics.
type Table struct {
	Schema   string          `json:"schema,omitempty"`
	Name     string          `json:"name"`
	Kind     string          `json:"kind"` // "table" or "view"
	Comment  string          `json:"comment,omitempty"`
	Columns  []Column        `json:"columns"`
	RowCount *int64          `json:"row_count"`
	Profiles []ColumnProfile `json:"profiles,omitempty"`
}

// Column describes one relational column.
type Column struct {
	Name            string `json:"name"`
	DataType        string `json:"data_type"`
	Nullable        bool   `json:"nullable"`
	OrdinalPosition int    `json:"ordinal_position"`
	IsPrimaryKey    bool   `json:"is_primary_key,omitempty"`
}

// ColumnProfile holds sample-bounded statistics for one column.
// Every statistic is nil when the profiling query failed or sampled no rows.
type ColumnProfile struct {
	Column           string   `json:"column"`
	SampleCount      *int64   `json:"sample_count"`
	NullCount        *int64   `json:"null_count"`
	NullFraction     *float64 `json:"null_fraction"`
	DistinctCount    *int64   `json:"distinct_count"`
	DistinctFraction *float64 `json:"distinct_fraction"`
	Min              *string  `json:"min,omitempty"`
	Max              *string  `json:"max,omitempty"`
}

// ForeignKeyConstraint is a discovered reference between two columns.
// Absence of a constraint means it could not be discovered, not that the
// reference does not exist.
type ForeignKeyConstraint struct {
	ConstraintName string `json:"constraint_name"`
	SourceSchema   string `json:"source_schema,omitempty"`
	SourceTable    string `json:"source_table"`
	SourceColumn   string `json:"source_column"`
	TargetSchema   string `json:"target_schema,omitempty"`
	TargetTable    string `json:"target_table"`
	TargetColumn   string `json:"target_column"`
	Inferred       bool   `json:"inferred,omitempty"` // naming-convention reference, not a catalog constraint
}

// DocumentSnapshot is the structure inferred from sampled documents.
type DocumentSnapshot struct {
	Database    string                 `json:"database"`
	Collections []Collection           `json:"collections"`
	References  []ForeignKeyConstraint `json:"references,omitempty"`
}

func (s *DocumentSnapshot) Accept(v SnapshotVisitor) error { return v.VisitDocument(s) }

func (s *DocumentSnapshot) IsEmpty() bool { return len(s.Collections) == 0 }

// Collection is a document collection with its inferred fields.
type Collection struct {
	Database      string         `json:"database"`
	Name          string         `json:"name"`
	Fields        []Field        `json:"fields"`
	DocumentCount *int64         `json:"document_count"`
	SampledCount  int            `json:"sampled_count"`
	Profiles      []FieldProfile `json:"profiles,omitempty"`
}

// Field is one dotted path observed in a collection. Array elements use a
// "[]" suffix, e.g. "tags[]" or "items[].sku".
type Field struct {
	Path     string   `json:"path"`
	Types    []string `json:"types"` // sorted set
	Nullable bool     `json:"nullable"`
}

// FieldProfile holds sample-bounded statistics for one field path.
type FieldProfile struct {
	Path             string   `json:"path"`
	SampleCount      int64    `json:"sample_count"`   // documents sampled, or elements for "[]" paths
	ObservedCount    int64    `json:"observed_count"` // non-null observations
	NullCount        int64    `json:"null_count"`     // explicit nulls
	NullFraction     *float64 `json:"null_fraction"`
	DistinctCount    int64    `json:"distinct_count"`
	DistinctFraction *float64 `json:"distinct_fraction"`
	Min              *string  `json:"min,omitempty"`
	Max              *string  `json:"max,omitempty"`
}

// Document field value types.
const (
	FieldTypeNull     = "null"
	FieldTypeArray    = "array"
	FieldTypeObject   = "object"
	FieldTypeDate     = "date"
	FieldTypeString   = "string"
	FieldTypeNumber   = "number"
	FieldTypeBoolean  = "boolean"
	FieldTypeObjectID = "objectId"
	FieldTypeBinary   = "binary"
	FieldTypeUnknown  = "unknown"
)
