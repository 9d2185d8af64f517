package crawler

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
)

// arraySuffix marks the pseudo-path of array elements.
const arraySuffix = "[]"

// valueType classifies a normalized document value.
func valueType(v any) string {
	switch v.(type) {
	case nil:
		return models.FieldTypeNull
	case map[string]any:
		return models.FieldTypeObject
	case []any:
		return models.FieldTypeArray
	case time.Time:
		return models.FieldTypeDate
	case string:
		return models.FieldTypeString
	case bool:
		return models.FieldTypeBoolean
	case int, int32, int64, float32, float64:
		return models.FieldTypeNumber
	case datasource.ObjectID:
		return models.FieldTypeObjectID
	case datasource.Binary, []byte:
		return models.FieldTypeBinary
	}
	return models.FieldTypeUnknown
}

// walkDocument calls visit for every path in doc. scope is the nearest
// enclosing array-element path, or "" at document level.
func walkDocument(doc map[string]any, visit func(path, scope string, v any)) {
	for k, v := range doc {
		walkValue(k, "", v, visit)
	}
}

func walkValue(path, scope string, v any, visit func(path, scope string, v any)) {
	visit(path, scope, v)
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			walkValue(path+"."+k, scope, child, visit)
		}
	case []any:
		elem := path + arraySuffix
		for _, child := range val {
			walkValue(elem, elem, child, visit)
		}
	}
}

type fieldAccumulator struct {
	types    map[string]bool
	docs     int
	sawNull  bool
	lastSeen int
}

// InferFields merges every path of the sampled documents. A field is
// nullable when a null was observed or when it is absent from at least one
// sampled document. Fields are sorted by path.
func InferFields(docs []map[string]any) []models.Field {
	acc := map[string]*fieldAccumulator{}

	for i, doc := range docs {
		walkDocument(doc, func(path, _ string, v any) {
			a, ok := acc[path]
			if !ok {
				a = &fieldAccumulator{types: map[string]bool{}, lastSeen: -1}
				acc[path] = a
			}
			a.types[valueType(v)] = true
			if v == nil {
				a.sawNull = true
			}
			// Array element paths are visited once per element.
			if a.lastSeen != i {
				a.docs++
				a.lastSeen = i
			}
		})
	}

	fields := make([]models.Field, 0, len(acc))
	for path, a := range acc {
		types := make([]string, 0, len(a.types))
		for t := range a.types {
			types = append(types, t)
		}
		sort.Strings(types)
		fields = append(fields, models.Field{
			Path:     path,
			Types:    types,
			Nullable: a.sawNull || a.docs < len(docs),
		})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Path < fields[j].Path })
	return fields
}

type profileAccumulator struct {
	scope      string
	total      int64 // observations including nulls
	observed   int64
	nulls      int64
	signatures map[string]struct{}
	ordered    orderedRange
}

// orderedRange tracks min and max while every observed scalar has the same
// comparable type.
type orderedRange struct {
	kind     string
	mixed    bool
	min, max any
}

func (r *orderedRange) observe(v any) {
	if r.mixed {
		return
	}
	kind := valueType(v)
	switch kind {
	case models.FieldTypeString, models.FieldTypeNumber, models.FieldTypeDate:
	default:
		r.mixed = true
		return
	}
	if r.kind == "" {
		r.kind, r.min, r.max = kind, v, v
		return
	}
	if r.kind != kind {
		r.mixed = true
		return
	}
	if less(v, r.min) {
		r.min = v
	}
	if less(r.max, v) {
		r.max = v
	}
}

func less(a, b any) bool {
	switch av := a.(type) {
	case string:
		return av < b.(string)
	case time.Time:
		return av.Before(b.(time.Time))
	}
	af, _ := toFloat(a)
	bf, _ := toFloat(b)
	return af < bf
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// ProfileDocuments computes per-path statistics over sampled documents.
// Document-level paths use the number of documents as the denominator, so a
// missing field counts toward its null fraction. Paths under arrays use the
// number of elements of their enclosing array path.
func ProfileDocuments(docs []map[string]any) []models.FieldProfile {
	acc := map[string]*profileAccumulator{}

	for _, doc := range docs {
		walkDocument(doc, func(path, scope string, v any) {
			a, ok := acc[path]
			if !ok {
				a = &profileAccumulator{scope: scope, signatures: map[string]struct{}{}}
				acc[path] = a
			}
			a.total++
			if v == nil {
				a.nulls++
				return
			}
			a.observed++
			a.signatures[signature(v)] = struct{}{}
			a.ordered.observe(v)
		})
	}

	profiles := make([]models.FieldProfile, 0, len(acc))
	for path, a := range acc {
		denominator := int64(len(docs))
		if a.scope != "" {
			if parent, ok := acc[a.scope]; ok {
				denominator = parent.total
			}
		}

		prof := models.FieldProfile{
			Path:          path,
			SampleCount:   denominator,
			ObservedCount: a.observed,
			NullCount:     a.nulls,
			DistinctCount: int64(len(a.signatures)),
		}
		if denominator > 0 {
			nf := float64(denominator-a.observed) / float64(denominator)
			prof.NullFraction = &nf
		}
		if a.observed > 0 {
			df := float64(len(a.signatures)) / float64(a.observed)
			prof.DistinctFraction = &df
		}
		if !a.ordered.mixed && a.ordered.kind != "" {
			prof.Min = jsonutil.FlexibleString(a.ordered.min)
			prof.Max = jsonutil.FlexibleString(a.ordered.max)
		}
		profiles = append(profiles, prof)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Path < profiles[j].Path })
	return profiles
}

// signature is the canonical serialization used to count distinct values.
// The type prefix keeps the string "1" apart from the number 1.
func signature(v any) string {
	s, err := jsonutil.Canonical(v)
	if err != nil {
		s = fmt.Sprintf("%v", v)
	}
	return valueType(v) + ":" + s
}

// referenceSuffixes are the naming conventions for stored references,
// longest first so "_ids" wins over "_id".
var referenceSuffixes = []string{"_ids", "Ids", "IDs", "_id", "Id", "ID"}

// InferReferences links object-id fields named after another collection,
// e.g. orders.customerId or orders.customer_id to customers._id.
func InferReferences(database string, collections []models.Collection) []models.ForeignKeyConstraint {
	byName := make(map[string]string, len(collections))
	for _, c := range collections {
		byName[strings.ToLower(c.Name)] = c.Name
	}

	refs := []models.ForeignKeyConstraint{}
	for _, c := range collections {
		for _, f := range c.Fields {
			if f.Path == "_id" || !containsString(f.Types, models.FieldTypeObjectID) {
				continue
			}
			base := referenceBase(f.Path)
			if base == "" {
				continue
			}
			target, ok := resolveCollection(byName, base)
			if !ok {
				continue
			}
			refs = append(refs, models.ForeignKeyConstraint{
				ConstraintName: "inferred_" + c.Name + "_" + f.Path,
				SourceSchema:   database,
				SourceTable:    c.Name,
				SourceColumn:   f.Path,
				TargetSchema:   database,
				TargetTable:    target,
				TargetColumn:   "_id",
				Inferred:       true,
			})
		}
	}
	return refs
}

// referenceBase returns "customer" for "customerId", "order.customer_id" or
// "customerIds[]", and "" when the last segment carries no id suffix.
func referenceBase(path string) string {
	last := path
	if i := strings.LastIndex(path, "."); i >= 0 {
		last = path[i+1:]
	}
	for strings.HasSuffix(last, arraySuffix) {
		last = strings.TrimSuffix(last, arraySuffix)
	}
	for _, suffix := range referenceSuffixes {
		if strings.HasSuffix(last, suffix) && len(last) > len(suffix) {
			return strings.TrimSuffix(last, suffix)
		}
	}
	return ""
}

func resolveCollection(byName map[string]string, base string) (string, bool) {
	candidates := []string{inflection.Plural(base), base}
	for _, c := range candidates {
		if name, ok := byName[strings.ToLower(c)]; ok {
			return name, true
		}
	}
	return "", false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
