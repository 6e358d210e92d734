package relate

import "context"

// Sort directions.
const (
	ASC  = "ASC"
	DESC = "DESC"
)

// Join kinds.
const (
	joinTypeInner = "INNER"
	joinTypeLeft  = "LEFT"
)

// predicate is one filter fragment. Structured predicates carry a column
// reference that is validated against the field mapping at compile time; raw
// predicates carry a textual template with "?" markers and are rendered
// verbatim. Bound values never end up interpolated into the template text.
type predicate struct {
	column string
	op     string
	expr   string
	args   []any
}

type orderSpec struct {
	column string
	dir    string
}

type joinClause struct {
	kind  string
	table string
	onLhs string
	onRhs string
	raw   string
}

// Relation is an immutable, composable query specification. Every builder
// operation returns a new Relation; the receiver is never mutated, so a base
// Relation can be derived from concurrently without interference. A Relation
// is inert until one of the terminal operations (All, First, Count,
// UpdateAll, DeleteAll) executes it against the engine's backend.
type Relation struct {
	engine     *Engine
	entityType string

	predicates []predicate
	orders     []orderSpec
	limit      *int
	offset     *int
	projection []string
	joins      []joinClause
	eager      []string
	groups     []string

	// rawProjection carries internal partition-key columns that the eager
	// loader projects alongside the mapped columns. Not part of the public
	// builder surface.
	rawProjection []string
}

// Filter appends a raw condition template. Placeholders are "?" and are
// resolved positionally against args at compile time.
func (r Relation) Filter(expr string, args ...any) Relation {
	r.predicates = appendCopy(r.predicates, predicate{expr: expr, args: args})
	return r
}

// FilterEq appends an equality condition on a mapped column.
func (r Relation) FilterEq(column string, value any) Relation {
	r.predicates = appendCopy(r.predicates, predicate{column: column, op: "=", args: []any{value}})
	return r
}

// FilterIn appends a set-membership condition on a mapped column.
func (r Relation) FilterIn(column string, values ...any) Relation {
	r.predicates = appendCopy(r.predicates, predicate{column: column, op: "IN", args: values})
	return r
}

// OrderBy replaces the ordering: the last OrderBy call wins.
func (r Relation) OrderBy(column string, dir string) Relation {
	r.orders = []orderSpec{{column: column, dir: dir}}
	return r
}

// ThenOrderBy appends a secondary ordering column.
func (r Relation) ThenOrderBy(column string, dir string) Relation {
	r.orders = appendCopy(r.orders, orderSpec{column: column, dir: dir})
	return r
}

// Limit replaces the row limit: the last Limit call wins.
func (r Relation) Limit(n int) Relation {
	r.limit = &n
	return r
}

// Offset replaces the row offset: the last Offset call wins.
func (r Relation) Offset(n int) Relation {
	r.offset = &n
	return r
}

// Select appends projection columns. When no Select is made, all mapped
// columns are projected.
func (r Relation) Select(columns ...string) Relation {
	r.projection = appendCopy(r.projection, columns...)
	return r
}

// Join appends an INNER JOIN clause.
func (r Relation) Join(table string, onLhs string, onRhs string) Relation {
	r.joins = appendCopy(r.joins, joinClause{kind: joinTypeInner, table: table, onLhs: onLhs, onRhs: onRhs})
	return r
}

// LeftJoin appends a LEFT JOIN clause.
func (r Relation) LeftJoin(table string, onLhs string, onRhs string) Relation {
	r.joins = appendCopy(r.joins, joinClause{kind: joinTypeLeft, table: table, onLhs: onLhs, onRhs: onRhs})
	return r
}

// RawJoin appends a verbatim join clause.
func (r Relation) RawJoin(clause string) Relation {
	r.joins = appendCopy(r.joins, joinClause{raw: clause})
	return r
}

// selectRaw appends a verbatim projection expression, bypassing column
// validation. Used internally for eager-load partition keys.
func (r Relation) selectRaw(expr string) Relation {
	r.rawProjection = appendCopy(r.rawProjection, expr)
	return r
}

// GroupBy appends grouping columns.
func (r Relation) GroupBy(columns ...string) Relation {
	r.groups = appendCopy(r.groups, columns...)
	return r
}

// EagerLoad marks association names for batch fetching alongside All.
func (r Relation) EagerLoad(names ...string) Relation {
	r.eager = appendCopy(r.eager, names...)
	return r
}

// Merge composes two Relations, used for through composition. Filter, join,
// group and eager lists concatenate; limit and offset take the more
// restrictive of the two, with the argument winning ties; ordering and
// projection take the argument's when set.
func (r Relation) Merge(other Relation) Relation {
	out := r
	out.predicates = concatCopy(r.predicates, other.predicates)
	out.joins = concatCopy(r.joins, other.joins)
	out.groups = concatCopy(r.groups, other.groups)
	out.eager = concatCopy(r.eager, other.eager)

	if other.limit != nil && (r.limit == nil || *other.limit <= *r.limit) {
		out.limit = other.limit
	}
	if other.offset != nil && (r.offset == nil || *other.offset >= *r.offset) {
		out.offset = other.offset
	}
	if len(other.orders) > 0 {
		out.orders = other.orders
	}
	if len(other.projection) > 0 {
		out.projection = other.projection
	}

	return out
}

// EntityType returns the source entity type of the Relation.
func (r Relation) EntityType() string {
	return r.entityType
}

// ToSQL compiles the Relation to a SELECT statement and its bound values
// without executing it.
func (r Relation) ToSQL() (string, []any, error) {
	return r.engine.compileSelect(r)
}

// All executes the query and materializes every matching row. Results are
// not cached: each call re-queries the backend.
func (r Relation) All(ctx context.Context) ([]*Entity, error) {
	return r.engine.runSelect(ctx, r)
}

// First executes the query with a limit of one and returns the single
// matching entity, or nil when nothing matches.
func (r Relation) First(ctx context.Context) (*Entity, error) {
	out, err := r.Limit(1).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

// Count executes a count-projected query; no rows are materialized.
func (r Relation) Count(ctx context.Context) (int64, error) {
	return r.engine.runCount(ctx, r)
}

// UpdateAll compiles the accumulated filters into a bulk UPDATE, bypassing
// entity-level dirty tracking and lifecycle hooks. It returns the number of
// affected rows.
func (r Relation) UpdateAll(ctx context.Context, fields map[string]any) (int64, error) {
	return r.engine.runUpdateAll(ctx, r, fields)
}

// DeleteAll compiles the accumulated filters into a bulk DELETE, bypassing
// entity-level state tracking and lifecycle hooks.
func (r Relation) DeleteAll(ctx context.Context) (int64, error) {
	return r.engine.runDeleteAll(ctx, r)
}

// appendCopy appends onto a fresh backing array so that derived Relations
// never share clause storage with their parents.
func appendCopy[T any](in []T, items ...T) []T {
	out := make([]T, 0, len(in)+len(items))
	out = append(out, in...)
	return append(out, items...)
}

func concatCopy[T any](a, b []T) []T {
	if len(b) == 0 {
		return a
	}
	return appendCopy(a, b...)
}
