// Package plan compiles an abstract query.Query into parameterized SQL
// against the documents/document_views/document_view_fields tables,
// sharing the store package's Dialect seam so the same compiler targets
// SQLite and PostgreSQL without branching on backend.
package plan

import (
	"fmt"
	"strings"

	"github.com/aquadoggo-go/aquadoggo/internal/query"
	"github.com/aquadoggo-go/aquadoggo/internal/store"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// Compiled is a ready-to-run SQL statement pair: the page query and a
// count query, both sharing the same WHERE clause so totalCount reflects
// exactly the filter applied to the page.
type Compiled struct {
	SQL       string
	Args      []any
	CountSQL  string
	CountArgs []any
}

// compiler accumulates bound parameters as it walks a query.Query so every
// untrusted value, field names included, ends up bound, never
// interpolated.
type compiler struct {
	dialect store.Dialect
	schema  *types.Schema
	args    []any
}

func (c *compiler) bind(v any) string {
	c.args = append(c.args, v)
	return c.dialect.Placeholder(len(c.args))
}

// Compile turns q into a page query and a matching count query. schema
// describes the fields q.SchemaID names; Compile does not itself verify
// q.SchemaID matches schema, callers are expected to look it up via the
// schema registry first.
func Compile(q *query.Query, schema *types.Schema, dialect store.Dialect) (*Compiled, error) {
	pageC := &compiler{dialect: dialect, schema: schema}
	orderField, orderDir := "d.current_view_id", "ASC"
	var orderJoin string
	if q.Order != nil {
		orderDir = string(q.Order.Direction)
		if orderDir != string(query.Asc) && orderDir != string(query.Desc) {
			return nil, fmt.Errorf("plan: invalid order direction %q", orderDir)
		}
		col, join, err := pageC.fieldColumn(q.Order.Field, "order_key")
		if err != nil {
			return nil, err
		}
		orderField = col
		orderJoin = join
	}

	whereClauses := []string{}
	if w, err := pageC.compileFilter(effectiveFilter(q.Filter)); err != nil {
		return nil, err
	} else if w != "" {
		whereClauses = append(whereClauses, w)
	}

	if q.Pagination.After != "" {
		cur, err := DecodeCursor(q.Pagination.After)
		if err != nil {
			return nil, fmt.Errorf("plan: decode cursor: %w", err)
		}
		cmp := ">"
		if orderDir == string(query.Desc) {
			cmp = "<"
		}
		keyPh := pageC.bind(cur.OrderKey)
		viewPh := pageC.bind(string(cur.ViewID))
		whereClauses = append(whereClauses, fmt.Sprintf("(%s, d.current_view_id) %s (%s, %s)", orderField, cmp, keyPh, viewPh))
	}

	limit := q.Pagination.First
	if limit <= 0 {
		limit = 50
	}

	var b strings.Builder
	b.WriteString("SELECT d.document_id, d.current_view_id, d.owner, d.edited, d.is_deleted FROM documents d")
	b.WriteString(orderJoin)
	if len(whereClauses) > 0 {
		fmt.Fprintf(&b, " WHERE %s", strings.Join(whereClauses, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY %s %s, d.current_view_id %s", orderField, orderDir, orderDir)
	fmt.Fprintf(&b, " LIMIT %d", limit+1)

	countC := &compiler{dialect: dialect, schema: schema}
	countWhere, err := countC.compileFilter(effectiveFilter(q.Filter))
	if err != nil {
		return nil, err
	}
	countSQL := "SELECT COUNT(*) FROM documents d"
	if countWhere != "" {
		countSQL += " WHERE " + countWhere
	}

	return &Compiled{
		SQL:       b.String(),
		Args:      pageC.args,
		CountSQL:  countSQL,
		CountArgs: countC.args,
	}, nil
}

// effectiveFilter adds the implicit "not deleted" predicate unless the
// caller's filter already references meta.deleted explicitly.
func effectiveFilter(f *query.Filter) *query.Filter {
	notDeleted := &query.Filter{Field: query.MetaDeleted, Op: query.OpEq, Value: "false"}
	if f == nil {
		return notDeleted
	}
	if f.ReferencesField(query.MetaDeleted) {
		return f
	}
	return &query.Filter{And: []*query.Filter{notDeleted, f}}
}

func (c *compiler) compileFilter(f *query.Filter) (string, error) {
	if f == nil {
		return "", nil
	}
	if !f.IsLeaf() {
		joiner, children := " AND ", f.And
		if len(f.Or) > 0 {
			joiner, children = " OR ", f.Or
		}
		parts := make([]string, 0, len(children))
		for _, child := range children {
			part, err := c.compileFilter(child)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		clause := "(" + strings.Join(parts, joiner) + ")"
		if f.Not {
			clause = "NOT " + clause
		}
		return clause, nil
	}
	return c.compileLeaf(f)
}

func (c *compiler) compileLeaf(f *query.Filter) (string, error) {
	if query.IsMetaField(f.Field) {
		return c.compileMetaLeaf(f)
	}
	return c.compileSchemaLeaf(f)
}

func (c *compiler) compileMetaLeaf(f *query.Filter) (string, error) {
	var col string
	numeric := false
	switch f.Field {
	case query.MetaOwner:
		col = "d.owner"
	case query.MetaDocumentID:
		col = "d.document_id"
	case query.MetaViewID:
		col = "d.current_view_id"
	case query.MetaEdited:
		col = c.dialect.CastNumeric("d.edited")
		numeric = true
	case query.MetaDeleted:
		col = "d.is_deleted"
	default:
		return "", fmt.Errorf("plan: unknown meta field %q", f.Field)
	}
	return c.compareExpr(col, f, numeric)
}

func (c *compiler) compileSchemaLeaf(f *query.Filter) (string, error) {
	field, err := c.lookupField(f.Field)
	if err != nil {
		return "", err
	}
	numeric := field.Type == types.FieldTypeInt || field.Type == types.FieldTypeFloat
	namePh := c.bind(f.Field)

	if f.Op == query.OpIsSet {
		exists := fmt.Sprintf("EXISTS (SELECT 1 FROM document_view_fields WHERE view_id = d.current_view_id AND name = %s)", namePh)
		if f.Not {
			return "NOT " + exists, nil
		}
		return exists, nil
	}

	valueCol := "value"
	if numeric {
		valueCol = c.dialect.CastNumeric("value")
	}
	cmp, err := c.predicateExpr(valueCol, f, numeric)
	if err != nil {
		return "", err
	}
	exists := fmt.Sprintf("EXISTS (SELECT 1 FROM document_view_fields WHERE view_id = d.current_view_id AND name = %s AND %s)", namePh, cmp)
	if f.Not {
		return "NOT " + exists, nil
	}
	return exists, nil
}

func (c *compiler) lookupField(name string) (types.SchemaField, error) {
	for _, sf := range c.schema.Fields {
		if sf.Key == name {
			return sf, nil
		}
	}
	return types.SchemaField{}, fmt.Errorf("plan: schema %s has no field %q", c.schema.SchemaID, name)
}

// compareExpr compiles a meta-field leaf, where Not negates the whole
// comparison rather than wrapping an EXISTS subquery.
func (c *compiler) compareExpr(col string, f *query.Filter, numeric bool) (string, error) {
	expr, err := c.predicateExpr(col, f, numeric)
	if err != nil {
		return "", err
	}
	if f.Not {
		return "NOT (" + expr + ")", nil
	}
	return expr, nil
}

func (c *compiler) predicateExpr(col string, f *query.Filter, numeric bool) (string, error) {
	switch f.Op {
	case query.OpEq:
		return fmt.Sprintf("%s = %s", col, c.bindValue(f.Value, numeric)), nil
	case query.OpNe:
		return fmt.Sprintf("%s != %s", col, c.bindValue(f.Value, numeric)), nil
	case query.OpGt:
		return fmt.Sprintf("%s > %s", col, c.bindValue(f.Value, numeric)), nil
	case query.OpGte:
		return fmt.Sprintf("%s >= %s", col, c.bindValue(f.Value, numeric)), nil
	case query.OpLt:
		return fmt.Sprintf("%s < %s", col, c.bindValue(f.Value, numeric)), nil
	case query.OpLte:
		return fmt.Sprintf("%s <= %s", col, c.bindValue(f.Value, numeric)), nil
	case query.OpContains:
		return fmt.Sprintf("%s LIKE %s", col, c.bind("%"+f.Value+"%")), nil
	case query.OpIn:
		if len(f.Values) == 0 {
			return "1 = 0", nil
		}
		phs := make([]string, len(f.Values))
		for i, v := range f.Values {
			phs[i] = c.bindValue(v, numeric)
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(phs, ", ")), nil
	default:
		return "", fmt.Errorf("plan: unsupported operator %q for %s", f.Op, col)
	}
}

// bindValue binds a filter value as a parameter. numeric is accepted for
// symmetry with the column expression it's compared against (both sides
// are plain text bind params either way; CastNumeric lives on the column).
func (c *compiler) bindValue(v string, _ bool) string {
	return c.bind(v)
}

// fieldColumn resolves an Order.Field to a SQL expression and, for schema
// fields, the LEFT JOIN needed to bring its value into scope, aliased
// alias so multiple resolved fields never collide.
func (c *compiler) fieldColumn(field, alias string) (col string, join string, err error) {
	switch field {
	case query.MetaOwner:
		return "d.owner", "", nil
	case query.MetaDocumentID:
		return "d.document_id", "", nil
	case query.MetaViewID:
		return "d.current_view_id", "", nil
	case query.MetaEdited:
		return c.dialect.CastNumeric("d.edited"), "", nil
	case query.MetaDeleted:
		return "d.is_deleted", "", nil
	}
	sf, err := c.lookupField(field)
	if err != nil {
		return "", "", err
	}
	namePh := c.bind(field)
	join = fmt.Sprintf(" LEFT JOIN document_view_fields %s ON %s.view_id = d.current_view_id AND %s.name = %s", alias, alias, alias, namePh)
	col = fmt.Sprintf("%s.value", alias)
	if sf.Type == types.FieldTypeInt || sf.Type == types.FieldTypeFloat {
		col = c.dialect.CastNumeric(col)
	}
	return col, join, nil
}
