package crawler

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/logging"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/retry"
)

type tableKey struct {
	schema string
	name   string
}

// relationalProducer runs the schema, profiling, relationship and row-count
// probes against a SQL store, one statement at a time.
type relationalProducer struct {
	adapter datasource.RelationalAdapter
	logger  *zap.Logger
}

func (p *relationalProducer) Produce(ctx context.Context, sink WarningSink, opts Options) (models.Snapshot, models.AvailableFeatures) {
	var features models.AvailableFeatures
	dialect := p.adapter.Dialect()

	tables, listed := p.crawlSchema(ctx, sink)
	features.HasComments = listed && dialect.SupportsComments() && anyTableComment(tables)

	features.HasStatistics = p.profileTables(ctx, sink, tables, opts.ProfileSampleSize)
	foreignKeys := p.discoverForeignKeys(ctx, sink)
	features.HasRowCounts = p.countRows(ctx, sink, tables)

	return &models.RelationalSnapshot{Tables: tables, ForeignKeys: foreignKeys}, features
}

func anyTableComment(tables []models.Table) bool {
	for _, t := range tables {
		if t.Comment != "" {
			return true
		}
	}
	return false
}

// crawlSchema lists tables, then columns, and joins them by (schema, table).
// The second result is false when the table listing itself failed.
func (p *relationalProducer) crawlSchema(ctx context.Context, sink WarningSink) ([]models.Table, bool) {
	dialect := p.adapter.Dialect()

	res, err := p.adapter.Query(ctx, dialect.TablesQuery())
	if err != nil {
		sink.Failure(models.WarningLevelError, models.FeatureSchema, "failed to list tables", err, catalogSuggestion(dialect.Name()))
		return []models.Table{}, false
	}

	tables := make([]models.Table, 0, len(res.Rows))
	index := make(map[tableKey]int, len(res.Rows))
	for _, row := range res.Rows {
		name, ok := row.GetString(datasource.ColTableName)
		if !ok || name == "" {
			p.logger.Warn("Skipping table row without a name", zap.Any("row", row))
			continue
		}
		schema, _ := row.GetString(datasource.ColTableSchema)
		key := tableKey{schema: schema, name: name}
		if _, dup := index[key]; dup {
			continue
		}

		kind := models.TableKindTable
		if k, _ := row.GetString(datasource.ColTableKind); k == models.TableKindView {
			kind = models.TableKindView
		}
		comment, _ := row.GetString(datasource.ColTableComment)

		index[key] = len(tables)
		tables = append(tables, models.Table{
			Schema:  schema,
			Name:    name,
			Kind:    kind,
			Comment: comment,
			Columns: []models.Column{},
		})
	}

	res, err = p.adapter.Query(ctx, dialect.ColumnsQuery())
	if err != nil {
		sink.Failure(models.WarningLevelWarning, models.FeatureColumns, "failed to list columns", err, catalogSuggestion(dialect.Name()))
		return tables, true
	}

	for _, row := range res.Rows {
		col, key, err := parseColumnRow(row)
		if err != nil {
			p.logger.Warn("Skipping malformed column row", zap.Error(err))
			continue
		}
		i, ok := index[key]
		if !ok {
			// Table created or dropped between the two catalog reads.
			p.logger.Debug("Skipping column of unlisted table",
				zap.String("schema", key.schema),
				zap.String("table", key.name),
				zap.String("column", col.Name))
			continue
		}
		tables[i].Columns = append(tables[i].Columns, col)
	}

	for i := range tables {
		cols := tables[i].Columns
		sort.SliceStable(cols, func(a, b int) bool { return cols[a].OrdinalPosition < cols[b].OrdinalPosition })
	}

	p.logger.Debug("Listed schema", zap.Int("tables", len(tables)), zap.Int("column_rows", len(res.Rows)))
	return tables, true
}

func parseColumnRow(row datasource.Row) (models.Column, tableKey, error) {
	table, ok := row.GetString(datasource.ColTableName)
	if !ok || table == "" {
		return models.Column{}, tableKey{}, fmt.Errorf("%w: missing %s", apperrors.ErrMalformedRow, datasource.ColTableName)
	}
	name, ok := row.GetString(datasource.ColColumnName)
	if !ok || name == "" {
		return models.Column{}, tableKey{}, fmt.Errorf("%w: missing %s in %s", apperrors.ErrMalformedRow, datasource.ColColumnName, table)
	}
	schema, _ := row.GetString(datasource.ColTableSchema)
	dataType, _ := row.GetString(datasource.ColDataType)

	nullable, ok := row.GetBool(datasource.ColIsNullable)
	if !ok {
		nullable = true
	}
	ordinal, _ := row.GetInt64(datasource.ColOrdinalPosition)
	pk, _ := row.GetBool(datasource.ColIsPrimaryKey)

	return models.Column{
		Name:            name,
		DataType:        dataType,
		Nullable:        nullable,
		OrdinalPosition: int(ordinal),
		IsPrimaryKey:    pk,
	}, tableKey{schema: schema, name: table}, nil
}

// profileTables profiles every column of every table. Each column is one
// bounded query; a failure affects only that column. Returns true when at
// least one column produced statistics.
func (p *relationalProducer) profileTables(ctx context.Context, sink WarningSink, tables []models.Table, sampleSize int) bool {
	profiled := false
	for i := range tables {
		t := &tables[i]
		if len(t.Columns) == 0 {
			continue
		}
		t.Profiles = make([]models.ColumnProfile, 0, len(t.Columns))
		for _, col := range t.Columns {
			prof, ok := p.profileColumn(ctx, sink, t, col, sampleSize)
			t.Profiles = append(t.Profiles, prof)
			profiled = profiled || ok
		}
	}
	return profiled
}

// profileColumn runs the full profile query, retrying without MIN/MAX when
// the column type has no ordering. If both fail the profile is all nil.
func (p *relationalProducer) profileColumn(ctx context.Context, sink WarningSink, t *models.Table, col models.Column, sampleSize int) (models.ColumnProfile, bool) {
	dialect := p.adapter.Dialect()
	target := qualifiedLabel(t.Schema, t.Name) + "." + col.Name
	sample := dialect.SampleQuery(t.Schema, t.Name, col.Name, sampleSize)

	res, err := p.adapter.Query(ctx, datasource.BuildProfileQuery(sample))
	if err != nil {
		fullErr := err
		res, err = p.adapter.Query(ctx, datasource.BuildProfileCountsQuery(sample))
		if err != nil {
			sink.Failure(models.WarningLevelWarning, models.FeatureStatistics, "failed to profile "+target, fullErr, statisticsSuggestion(fullErr))
			return models.ColumnProfile{Column: col.Name}, false
		}
		sink.Failure(models.WarningLevelInfo, models.FeatureStatistics, "min/max unavailable for "+target, fullErr, statisticsSuggestion(fullErr))
	}

	if len(res.Rows) == 0 {
		sink.Warn(models.FeatureStatistics, "profile query for "+target+" returned no rows", "")
		return models.ColumnProfile{Column: col.Name}, false
	}
	prof, err := buildColumnProfile(col.Name, res.Rows[0])
	if err != nil {
		sink.Failure(models.WarningLevelWarning, models.FeatureStatistics, "failed to read profile of "+target, err, "")
		return models.ColumnProfile{Column: col.Name}, false
	}
	return prof, true
}

// buildColumnProfile converts an aggregate row into a profile. Fractions are
// nil when nothing was sampled.
func buildColumnProfile(column string, row datasource.Row) (models.ColumnProfile, error) {
	sampled, ok := row.GetInt64(datasource.ColSampled)
	if !ok {
		return models.ColumnProfile{}, fmt.Errorf("%w: missing %s", apperrors.ErrMalformedRow, datasource.ColSampled)
	}
	// SUM over zero rows is NULL.
	nulls, _ := row.GetInt64(datasource.ColNullCount)
	distinct, _ := row.GetInt64(datasource.ColDistinctCount)

	prof := models.ColumnProfile{
		Column:        column,
		SampleCount:   &sampled,
		NullCount:     &nulls,
		DistinctCount: &distinct,
	}
	if sampled > 0 {
		nf := float64(nulls) / float64(sampled)
		prof.NullFraction = &nf
	}
	if nonNull := sampled - nulls; nonNull > 0 {
		df := float64(distinct) / float64(nonNull)
		prof.DistinctFraction = &df
	}
	if v, ok := row.Get(datasource.ColMinValue); ok {
		prof.Min = jsonutil.FlexibleString(v)
	}
	if v, ok := row.Get(datasource.ColMaxValue); ok {
		prof.Max = jsonutil.FlexibleString(v)
	}
	return prof, nil
}

// discoverForeignKeys tries each catalog tier in order and keeps the first
// that answers. When none answers the result is empty; that is expected on
// restricted roles and reported as info unless the cause looks transient.
func (p *relationalProducer) discoverForeignKeys(ctx context.Context, sink WarningSink) []models.ForeignKeyConstraint {
	dialect := p.adapter.Dialect()
	tiers := dialect.ForeignKeyQueries()
	if len(tiers) == 0 {
		sink.Info(models.FeatureRelationships, "foreign key discovery is not supported for "+dialect.Name(), relationshipSuggestion(dialect.Name()))
		return []models.ForeignKeyConstraint{}
	}

	var lastErr error
	for tier, query := range tiers {
		res, err := p.adapter.Query(ctx, query)
		if err != nil {
			lastErr = err
			p.logger.Debug("Foreign key tier failed",
				zap.Int("tier", tier),
				zap.String("query", logging.SanitizeQuery(query)),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}
		return p.parseForeignKeys(res.Rows)
	}

	level := models.WarningLevelInfo
	message := "foreign key catalogs are not accessible"
	if retry.IsTransient(lastErr) {
		level = models.WarningLevelError
		message = "foreign key discovery failed"
	}
	sink.Failure(level, models.FeatureRelationships, message, lastErr, relationshipSuggestion(dialect.Name()))
	return []models.ForeignKeyConstraint{}
}

func (p *relationalProducer) parseForeignKeys(rows []datasource.Row) []models.ForeignKeyConstraint {
	fks := make([]models.ForeignKeyConstraint, 0, len(rows))
	seen := make(map[models.ForeignKeyConstraint]bool, len(rows))
	for _, row := range rows {
		fk, err := parseForeignKeyRow(row)
		if err != nil {
			p.logger.Warn("Skipping malformed foreign key row", zap.Error(err))
			continue
		}
		if seen[fk] {
			continue
		}
		seen[fk] = true
		fks = append(fks, fk)
	}
	return fks
}

// parseForeignKeyRow validates one reference row. Source table and column
// and target table and column must be non-empty strings. The target schema
// is required whenever the row names a source schema.
func parseForeignKeyRow(row datasource.Row) (models.ForeignKeyConstraint, error) {
	required := func(col string) (string, error) {
		v, ok := row.GetString(col)
		if !ok || v == "" {
			return "", fmt.Errorf("%w: %s is missing or null", apperrors.ErrMalformedRow, col)
		}
		return v, nil
	}

	var fk models.ForeignKeyConstraint
	var err error
	if fk.SourceTable, err = required(datasource.ColSourceTable); err != nil {
		return fk, err
	}
	if fk.SourceColumn, err = required(datasource.ColSourceColumn); err != nil {
		return fk, err
	}
	if fk.TargetTable, err = required(datasource.ColTargetTable); err != nil {
		return fk, err
	}
	if fk.TargetColumn, err = required(datasource.ColTargetColumn); err != nil {
		return fk, err
	}
	fk.ConstraintName, _ = row.GetString(datasource.ColConstraintName)
	fk.SourceSchema, _ = row.GetString(datasource.ColSourceSchema)
	if fk.SourceSchema != "" {
		if fk.TargetSchema, err = required(datasource.ColTargetSchema); err != nil {
			return fk, err
		}
	} else {
		fk.TargetSchema, _ = row.GetString(datasource.ColTargetSchema)
	}
	return fk, nil
}

// countRows prefers the catalog estimate and falls back to COUNT(*) for
// tables without a usable one. Views are not counted.
func (p *relationalProducer) countRows(ctx context.Context, sink WarningSink, tables []models.Table) bool {
	if len(tables) == 0 {
		return false
	}
	dialect := p.adapter.Dialect()

	estimates := map[tableKey]int64{}
	if query := dialect.RowEstimateQuery(); query != "" {
		res, err := p.adapter.Query(ctx, query)
		if err != nil {
			p.logger.Debug("Row estimates unavailable, counting exactly",
				zap.String("query", logging.SanitizeQuery(query)),
				zap.String("error", logging.SanitizeError(err)))
		} else {
			for _, row := range res.Rows {
				name, ok := row.GetString(datasource.ColTableName)
				if !ok {
					continue
				}
				schema, _ := row.GetString(datasource.ColTableSchema)
				if n, ok := row.GetInt64(datasource.ColRowEstimate); ok && n >= 0 {
					estimates[tableKey{schema: schema, name: name}] = n
				}
			}
		}
	}

	counted := false
	for i := range tables {
		t := &tables[i]
		if t.Kind == models.TableKindView {
			continue
		}
		if n, ok := estimates[tableKey{schema: t.Schema, name: t.Name}]; ok {
			t.RowCount = &n
			counted = true
			continue
		}

		label := qualifiedLabel(t.Schema, t.Name)
		res, err := p.adapter.Query(ctx, dialect.ExactCountQuery(t.Schema, t.Name))
		if err != nil {
			sink.Failure(models.WarningLevelWarning, models.FeatureRowCounts, "failed to count rows of "+label, err, rowCountSuggestion(dialect.Name()))
			continue
		}
		if len(res.Rows) == 0 {
			sink.Warn(models.FeatureRowCounts, "row count query for "+label+" returned no rows", "")
			continue
		}
		n, ok := res.Rows[0].GetInt64(datasource.ColRowCount)
		if !ok {
			sink.Warn(models.FeatureRowCounts, "row count of "+label+" is not a number", "")
			continue
		}
		t.RowCount = &n
		counted = true
	}
	return counted
}

func qualifiedLabel(schema, name string) string {
	if schema == "" {
		return name
	}
	return schema + "." + name
}
