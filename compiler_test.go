package relate

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCompileSelectDefaultProjection(t *testing.T) {
	e := newTestEngine(t, nil)

	query, args, err := e.Query("Gadget").ToSQL()
	if err != nil {
		t.Fatalf("compiling: %v", err)
	}

	expected := "SELECT id, name, widget_id FROM gadgets"
	if query != expected {
		t.Errorf("expected %q, got %q", expected, query)
	}
	if len(args) != 0 {
		t.Errorf("expected no args, got %v", args)
	}
}

// TestCompileSelectUnconditioned verifies that an empty filter list compiles
// to a statement without a WHERE clause and matches all rows.
func TestCompileSelectUnconditioned(t *testing.T) {
	e := newTestEngine(t, nil)

	query, _, err := e.Query("Widget").ToSQL()
	if err != nil {
		t.Fatalf("compiling: %v", err)
	}
	if strings.Contains(query, "WHERE") {
		t.Errorf("unconditioned query grew a WHERE clause: %q", query)
	}
}

func TestCompileSelectUnknownField(t *testing.T) {
	e := newTestEngine(t, nil)

	tests := []struct {
		name string
		rel  Relation
	}{
		{"Filter column", e.Query("Widget").FilterEq("colour", "red")},
		{"Order column", e.Query("Widget").OrderBy("colour", ASC)},
		{"Projection column", e.Query("Widget").Select("colour")},
		{"Group column", e.Query("Widget").GroupBy("colour")},
		{"Qualified unmapped table", e.Query("Widget").Join("gadgets", "gadgets.widget_id", "widgets.id").FilterEq("doohickeys.id", 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.rel.ToSQL()
			if !errors.Is(err, ErrUnknownField) {
				t.Errorf("expected ErrUnknownField, got %v", err)
			}
		})
	}
}

func TestCompileEmptyIn(t *testing.T) {
	e := newTestEngine(t, nil)

	query, args, err := e.Query("Widget").FilterIn("id").ToSQL()
	if err != nil {
		t.Fatalf("compiling: %v", err)
	}
	if !strings.Contains(query, "1 = 0") {
		t.Errorf("empty IN should match nothing, got %q", query)
	}
	if len(args) != 0 {
		t.Errorf("expected no args, got %v", args)
	}
}

func TestCompileIn(t *testing.T) {
	e := newTestEngine(t, nil)

	query, args, err := e.Query("Widget").FilterIn("id", 1, 2, 3).ToSQL()
	if err != nil {
		t.Fatalf("compiling: %v", err)
	}
	if !strings.Contains(query, "id IN (?, ?, ?)") {
		t.Errorf("expected membership markers, got %q", query)
	}
	if len(args) != 3 {
		t.Errorf("expected 3 args, got %v", args)
	}
}

func TestCompileRawFilter(t *testing.T) {
	e := newTestEngine(t, nil)

	query, args, err := e.Query("Widget").Filter("name LIKE ? OR id > ?", "an%", 10).ToSQL()
	if err != nil {
		t.Fatalf("compiling: %v", err)
	}
	if !strings.Contains(query, "name LIKE ? OR id > ?") {
		t.Errorf("raw fragment not rendered verbatim: %q", query)
	}
	if len(args) != 2 || args[0] != "an%" || args[1] != 10 {
		t.Errorf("expected positional args, got %v", args)
	}
}

// TestCompileJoinQualifiesProjection checks that adding a join qualifies the
// default projection with the source table.
func TestCompileJoinQualifiesProjection(t *testing.T) {
	e := newTestEngine(t, nil)

	query, _, err := e.Query("Widget").Join("gadgets", "gadgets.widget_id", "widgets.id").ToSQL()
	if err != nil {
		t.Fatalf("compiling: %v", err)
	}
	if !strings.HasPrefix(query, "SELECT widgets.id, widgets.name FROM widgets") {
		t.Errorf("expected qualified projection, got %q", query)
	}
	if !strings.Contains(query, "INNER JOIN gadgets ON gadgets.widget_id = widgets.id") {
		t.Errorf("expected join clause, got %q", query)
	}
}

func TestCompileCountDropsOrdering(t *testing.T) {
	backend := &fakeBackend{affected: 42}
	e := newTestEngine(t, backend)

	n, err := e.Query("Widget").FilterEq("name", "anvil").OrderBy("id", DESC).Limit(10).GroupBy("name").Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 42 {
		t.Errorf("expected 42, got %d", n)
	}

	query := backend.queries[0]
	if !strings.HasPrefix(query, "SELECT COUNT(id) FROM widgets WHERE name = ?") {
		t.Errorf("unexpected count statement: %q", query)
	}
	if strings.Contains(query, "ORDER BY") || strings.Contains(query, "LIMIT") || strings.Contains(query, "GROUP BY") {
		t.Errorf("count statement kept ordering, pagination or grouping: %q", query)
	}
}

func TestCompileUpdateAll(t *testing.T) {
	backend := &fakeBackend{affected: 2}
	e := newTestEngine(t, backend)

	n, err := e.Query("Widget").FilterEq("id", 1).UpdateAll(context.Background(), map[string]any{
		"name": "hammer",
	})
	if err != nil {
		t.Fatalf("UpdateAll: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 affected rows, got %d", n)
	}

	expected := "UPDATE widgets SET name = ? WHERE id = ?"
	if backend.queries[0] != expected {
		t.Errorf("expected %q, got %q", expected, backend.queries[0])
	}
	args := backend.argsLog[0]
	if len(args) != 2 || args[0] != "hammer" || args[1] != 1 {
		t.Errorf("expected [hammer 1], got %v", args)
	}
}

// TestCompileUpdateAllUnknownField verifies that compilation fails before
// anything reaches the backend.
func TestCompileUpdateAllUnknownField(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestEngine(t, backend)

	_, err := e.Query("Widget").UpdateAll(context.Background(), map[string]any{"colour": "red"})
	if !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
	if len(backend.queries) != 0 {
		t.Errorf("failed compilation still reached the backend: %v", backend.queries)
	}
}

func TestCompileDeleteAll(t *testing.T) {
	backend := &fakeBackend{affected: 3}
	e := newTestEngine(t, backend)

	n, err := e.Query("Widget").FilterEq("name", "anvil").DeleteAll(context.Background())
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 affected rows, got %d", n)
	}

	expected := "DELETE FROM widgets WHERE name = ?"
	if backend.queries[0] != expected {
		t.Errorf("expected %q, got %q", expected, backend.queries[0])
	}
}

func TestCompilePostgresPlaceholders(t *testing.T) {
	schema := testSchema(t)
	e, err := NewEngine(Config{Schema: schema, Dialect: Dialects.PostgreSQL})
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}

	query, _, err := e.Query("Widget").FilterEq("id", 1).FilterEq("name", "anvil").ToSQL()
	if err != nil {
		t.Fatalf("compiling: %v", err)
	}
	expected := "SELECT id, name FROM widgets WHERE id = $1 AND name = $2"
	if query != expected {
		t.Errorf("expected %q, got %q", expected, query)
	}
}
