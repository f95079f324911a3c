package query

import (
	"time"

	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// Operator is a predicate comparison kind.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpContains Operator = "contains"
	OpIn       Operator = "in"
	OpIsSet    Operator = "isSet"
)

func (op Operator) String() string { return string(op) }

// Meta field names a filter or order may address instead of a schema
// field
const (
	MetaOwner      = "owner"
	MetaDocumentID = "documentid"
	MetaViewID     = "viewid"
	MetaEdited     = "edited"
	MetaDeleted    = "deleted"
)

func isMetaField(field string) bool {
	switch field {
	case MetaOwner, MetaDocumentID, MetaViewID, MetaEdited, MetaDeleted:
		return true
	default:
		return false
	}
}

// IsMetaField reports whether field names one of the fixed meta fields
// (owner, documentid, viewid, edited, deleted; the match is case-sensitive
// and the parser lowercases field names) rather than a schema field.
func IsMetaField(field string) bool { return isMetaField(field) }

// Filter is a tree of predicates over field names and meta fields. A leaf
// carries Field/Op/Value(s); an interior node carries exactly one of
// And/Or, each with two children. Not negates whatever the node (leaf or
// group) otherwise means.
type Filter struct {
	Not bool

	Field  string
	Op     Operator
	Value  string
	Values []string // populated for OpIn

	And []*Filter
	Or  []*Filter
}

// IsLeaf reports whether f is a predicate rather than an And/Or group.
func (f *Filter) IsLeaf() bool {
	return len(f.And) == 0 && len(f.Or) == 0
}

// referencesField reports whether the filter tree mentions field anywhere,
// e.g. to detect an explicit meta.deleted predicate.
func (f *Filter) referencesField(field string) bool {
	if f == nil {
		return false
	}
	if f.IsLeaf() {
		return f.Field == field
	}
	for _, c := range f.And {
		if c.referencesField(field) {
			return true
		}
	}
	for _, c := range f.Or {
		if c.referencesField(field) {
			return true
		}
	}
	return false
}

// ReferencesField reports whether the filter tree mentions field anywhere.
func (f *Filter) ReferencesField(field string) bool { return f.referencesField(field) }

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Order is a single (field, direction) sort key. Ties are always broken by
// document_view_id
type Order struct {
	Field     string
	Direction Direction
}

// Pagination is a cursor-based page request.
type Pagination struct {
	First int
	After string // opaque cursor from a prior Result.EndCursor
}

// Query is the abstract query the planner compiles to SQL.
type Query struct {
	SchemaID types.SchemaID
	// Select lists the field names to return per document; empty means
	// every field the schema declares.
	Select     []string
	Filter     *Filter
	Order      *Order
	Pagination Pagination
}

// Row is one document in a Result, reassembled from its current view.
type Row struct {
	DocumentID types.DocumentID
	ViewID     types.ViewID
	Owner      types.PublicKey
	Edited     time.Time
	Deleted    bool
	Fields     map[string]types.FieldValue
}

// Result is a single page of a compiled Query.
type Result struct {
	Rows        []Row
	TotalCount  int
	EndCursor   string
	HasNextPage bool
}
