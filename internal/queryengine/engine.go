// Package queryengine wires the abstract query package and its plan
// compiler to a live store and schema registry, resolving a Query into a
// Result against committed document views.
package queryengine

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/aquadoggo-go/aquadoggo/internal/query"
	"github.com/aquadoggo-go/aquadoggo/internal/query/plan"
	"github.com/aquadoggo-go/aquadoggo/internal/schema"
	"github.com/aquadoggo-go/aquadoggo/internal/store"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// Engine runs a query.Query against the store, the component
// cmd/aquadoggod's `query` subcommand calls into.
type Engine struct {
	store    *store.Store
	registry *schema.Registry
}

// New builds an Engine over the given store and schema registry.
func New(s *store.Store, registry *schema.Registry) *Engine {
	return &Engine{store: s, registry: registry}
}

// Run compiles q and executes it, reassembling each matching document's
// selected fields from its current view.
func (e *Engine) Run(ctx context.Context, q *query.Query) (*query.Result, error) {
	sch, ok := e.registry.Schema(q.SchemaID)
	if !ok {
		return nil, fmt.Errorf("queryengine: unknown schema %s", q.SchemaID)
	}

	compiled, err := plan.Compile(q, sch, e.store.Dialect())
	if err != nil {
		return nil, fmt.Errorf("queryengine: compile: %w", err)
	}

	limit := q.Pagination.First
	if limit <= 0 {
		limit = 50
	}

	rows, err := e.store.DB().QueryContext(ctx, compiled.SQL, compiled.Args...)
	if err != nil {
		return nil, fmt.Errorf("queryengine: run: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []query.Row
	for rows.Next() {
		var documentID, viewID, owner, edited, isDeleted string
		if err := rows.Scan(&documentID, &viewID, &owner, &edited, &isDeleted); err != nil {
			return nil, fmt.Errorf("queryengine: scan row: %w", err)
		}

		row, err := e.hydrateRow(ctx, q, types.DocumentID(documentID), types.ViewID(viewID), owner, edited, isDeleted)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queryengine: run: %w", err)
	}

	result := &query.Result{Rows: out, TotalCount: -1}
	if len(out) > limit {
		result.HasNextPage = true
		result.Rows = out[:limit]
	}
	if len(result.Rows) > 0 {
		last := result.Rows[len(result.Rows)-1]
		result.EndCursor = plan.EncodeCursor(plan.Cursor{OrderKey: orderKeyFor(q, last), ViewID: last.ViewID})
	}

	var count int
	if err := e.store.DB().QueryRowContext(ctx, compiled.CountSQL, compiled.CountArgs...).Scan(&count); err != nil {
		return nil, fmt.Errorf("queryengine: count: %w", err)
	}
	result.TotalCount = count

	return result, nil
}

func (e *Engine) hydrateRow(ctx context.Context, q *query.Query, documentID types.DocumentID, viewID types.ViewID, owner, edited, isDeleted string) (query.Row, error) {
	row := query.Row{DocumentID: documentID, ViewID: viewID, Deleted: isDeleted == "true"}
	if pub, err := types.ParsePublicKey(owner); err == nil {
		row.Owner = pub
	}
	if n, err := parseUnixNanos(edited); err == nil {
		row.Edited = n
	}

	view, err := e.store.GetDocumentView(ctx, viewID)
	if err == sql.ErrNoRows || view == nil {
		return row, nil
	}
	if err != nil {
		return query.Row{}, fmt.Errorf("queryengine: load view %s: %w", viewID, err)
	}

	row.Fields = map[string]types.FieldValue{}
	for name, vf := range view.Fields {
		if len(q.Select) > 0 && !containsField(q.Select, name) {
			continue
		}
		row.Fields[name] = vf.Value
	}
	return row, nil
}

func containsField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

// parseUnixNanos parses the decimal Unix-nanoseconds text the documents
// table stores its edited column as (see store.InsertDocument).
func parseUnixNanos(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n).UTC(), nil
}

// orderKeyFor reads back the value a row was ordered on, so the next
// page's cursor can resume from exactly that key.
func orderKeyFor(q *query.Query, row query.Row) string {
	field := query.MetaViewID
	if q.Order != nil {
		field = q.Order.Field
	}
	switch field {
	case query.MetaOwner:
		return row.Owner.String()
	case query.MetaDocumentID:
		return string(row.DocumentID)
	case query.MetaViewID:
		return string(row.ViewID)
	case query.MetaEdited:
		return fmt.Sprintf("%d", row.Edited.UnixNano())
	case query.MetaDeleted:
		if row.Deleted {
			return "true"
		}
		return "false"
	default:
		if fv, ok := row.Fields[field]; ok {
			return fv.String()
		}
		return ""
	}
}
