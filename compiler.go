package relate

import (
	"fmt"
	"sort"
	"strings"
)

// renderedPredicate pairs a rendered condition fragment with the bound
// values that belong to it, so fragments can be reordered without detaching
// their arguments.
type renderedPredicate struct {
	text string
	args []any
}

// compileSelect renders a Relation into a parameterized SELECT statement.
// Clauses always land in one canonical position (SELECT, FROM, JOIN, WHERE,
// GROUP BY, ORDER BY, LIMIT, OFFSET) and the accumulated filter fragments
// are canonically ordered, so two Relations built from the same fragment set
// in different call orders compile to identical statements.
func (e *Engine) compileSelect(r Relation) (string, []any, error) {
	m, err := e.mappingForQuery(r.entityType)
	if err != nil {
		return "", nil, err
	}

	projection := r.projection
	if len(projection) == 0 {
		projection = m.ColumnNames()
		if len(r.joins) > 0 {
			// Qualify the default projection so joined tables cannot shadow
			// the source columns.
			qualified := make([]string, len(projection))
			for i, col := range projection {
				qualified[i] = qualify(m.Table, col)
			}
			projection = qualified
		}
	}
	for _, col := range projection {
		if err := e.resolveRef(m, col); err != nil {
			return "", nil, err
		}
	}
	if len(r.rawProjection) > 0 {
		projection = concatCopy(projection, r.rawProjection)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(projection, ", "))
	b.WriteString(" FROM ")
	b.WriteString(m.Table)

	for _, j := range r.joins {
		b.WriteString(" ")
		b.WriteString(renderJoin(j))
	}

	where, args, err := e.renderWhere(m, r.predicates)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	if len(r.groups) > 0 {
		for _, col := range r.groups {
			if err := e.resolveRef(m, col); err != nil {
				return "", nil, err
			}
		}
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(r.groups, ", "))
	}

	if len(r.orders) > 0 {
		parts := make([]string, 0, len(r.orders))
		for _, o := range r.orders {
			if err := e.resolveRef(m, o.column); err != nil {
				return "", nil, err
			}
			parts = append(parts, o.column+" "+o.dir)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}

	if r.limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *r.limit)
	}
	if r.offset != nil {
		fmt.Fprintf(&b, " OFFSET %d", *r.offset)
	}

	return e.dialect.finalize(b.String()), args, nil
}

// compileCount renders the count projection of a Relation. Ordering,
// pagination and grouping do not affect the single-row count and are
// dropped.
func (e *Engine) compileCount(r Relation) (string, []any, error) {
	m, err := e.mappingForQuery(r.entityType)
	if err != nil {
		return "", nil, err
	}

	pk := m.PrimaryKey
	if len(r.joins) > 0 {
		pk = qualify(m.Table, pk)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT COUNT(%s) FROM %s", pk, m.Table)

	for _, j := range r.joins {
		b.WriteString(" ")
		b.WriteString(renderJoin(j))
	}

	where, args, err := e.renderWhere(m, r.predicates)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	return e.dialect.finalize(b.String()), args, nil
}

// compileUpdate renders a bulk UPDATE from the accumulated filters. Field
// names are sorted so the statement is deterministic regardless of map
// iteration order.
func (e *Engine) compileUpdate(r Relation, fields map[string]any) (string, []any, error) {
	m, err := e.mappingForQuery(r.entityType)
	if err != nil {
		return "", nil, err
	}
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("relate: UpdateAll requires at least one field")
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		if err := m.resolveColumn(name); err != nil {
			return "", nil, err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names))
	args := make([]any, 0, len(names))
	for _, name := range names {
		sets = append(sets, name+" = ?")
		args = append(args, fields[name])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s SET %s", m.Table, strings.Join(sets, ", "))

	where, whereArgs, err := e.renderWhere(m, r.predicates)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
		args = append(args, whereArgs...)
	}

	return e.dialect.finalize(b.String()), args, nil
}

// compileDelete renders a bulk DELETE from the accumulated filters. An empty
// filter list deletes every row, mirroring the unconditioned SELECT case.
func (e *Engine) compileDelete(r Relation) (string, []any, error) {
	m, err := e.mappingForQuery(r.entityType)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "DELETE FROM %s", m.Table)

	where, args, err := e.renderWhere(m, r.predicates)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	return e.dialect.finalize(b.String()), args, nil
}

// renderWhere renders and canonically orders the filter fragments. An empty
// predicate list yields an empty string: the statement is unconditioned and
// matches all rows, which is intentional.
func (e *Engine) renderWhere(m *FieldMapping, predicates []predicate) (string, []any, error) {
	if len(predicates) == 0 {
		return "", nil, nil
	}

	rendered := make([]renderedPredicate, 0, len(predicates))
	for _, p := range predicates {
		rp, err := e.renderPredicate(m, p)
		if err != nil {
			return "", nil, err
		}
		rendered = append(rendered, rp)
	}

	// Conjoined conditions commute, so sorting by fragment text is safe and
	// makes compilation independent of builder call order.
	sort.SliceStable(rendered, func(i, j int) bool {
		return rendered[i].text < rendered[j].text
	})

	parts := make([]string, 0, len(rendered))
	var args []any
	for _, rp := range rendered {
		parts = append(parts, rp.text)
		args = append(args, rp.args...)
	}

	return strings.Join(parts, " AND "), args, nil
}

func (e *Engine) renderPredicate(m *FieldMapping, p predicate) (renderedPredicate, error) {
	if p.column == "" {
		// Raw fragment: rendered verbatim, args resolved positionally.
		return renderedPredicate{text: p.expr, args: p.args}, nil
	}

	if err := e.resolveRef(m, p.column); err != nil {
		return renderedPredicate{}, err
	}

	switch p.op {
	case "IN":
		if len(p.args) == 0 {
			// Membership in the empty set matches nothing.
			return renderedPredicate{text: "1 = 0"}, nil
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(p.args)), ", ")
		return renderedPredicate{
			text: fmt.Sprintf("%s IN (%s)", p.column, marks),
			args: p.args,
		}, nil
	default:
		return renderedPredicate{
			text: fmt.Sprintf("%s %s ?", p.column, p.op),
			args: p.args,
		}, nil
	}
}

// resolveRef validates a possibly table-qualified column reference. An
// unqualified name must be a column of the source mapping; a qualified name
// is checked against the mapping registered for its table.
func (e *Engine) resolveRef(m *FieldMapping, ref string) error {
	table, col, qualified := strings.Cut(ref, ".")
	if !qualified {
		return m.resolveColumn(ref)
	}

	if table == m.Table {
		return m.resolveColumn(col)
	}
	if joined, ok := e.schema.mappingForTable(table); ok {
		return joined.resolveColumn(col)
	}
	// Join tables of many-to-many associations carry no mapping of their
	// own; their key columns are declared on the descriptor instead.
	if e.associations.isJoinTableColumn(table, col) {
		return nil
	}
	return fmt.Errorf("%w: %q references unmapped table %q", ErrUnknownField, ref, table)
}

func renderJoin(j joinClause) string {
	if j.raw != "" {
		return j.raw
	}
	return fmt.Sprintf("%s JOIN %s ON %s = %s", j.kind, j.table, j.onLhs, j.onRhs)
}
