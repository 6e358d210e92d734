package relate

import (
	"context"
	"testing"
)

// fakeBackend records every statement it receives and answers row queries
// through a pluggable respond function.
type fakeBackend struct {
	queries  []string
	argsLog  [][]any
	respond  func(query string, args []any) []Row
	affected int64
	nextID   int64
}

func (f *fakeBackend) record(query string, args []any) {
	f.queries = append(f.queries, query)
	f.argsLog = append(f.argsLog, args)
}

func (f *fakeBackend) Execute(_ context.Context, query string, args []any) ([]Row, error) {
	f.record(query, args)
	if f.respond != nil {
		return f.respond(query, args), nil
	}
	return nil, nil
}

func (f *fakeBackend) ExecuteScalar(_ context.Context, query string, args []any) (int64, error) {
	f.record(query, args)
	return f.affected, nil
}

func (f *fakeBackend) ExecuteCommand(_ context.Context, query string, args []any) (int64, error) {
	f.record(query, args)
	return f.affected, nil
}

func (f *fakeBackend) ExecuteInsert(_ context.Context, query string, args []any) (int64, error) {
	f.record(query, args)
	f.nextID++
	return f.nextID, nil
}

// testSchema maps the widget domain used across the test suite: plain
// tables, a polymorphic pair, a many-to-many join table and a single-table
// badge hierarchy.
func testSchema(t *testing.T) *Schema {
	t.Helper()

	schema, err := NewSchema(
		NewMapping("Widget").
			Column("name", ColumnText).
			MustBuild(),
		NewMapping("Gadget").
			Column("name", ColumnText).
			Column("widget_id", ColumnInteger).
			MustBuild(),
		NewMapping("Sprocket").
			Column("label", ColumnText).
			Column("gadget_id", ColumnInteger).
			MustBuild(),
		NewMapping("Cog").
			Column("sprocket_id", ColumnInteger).
			MustBuild(),
		NewMapping("Control").
			Column("name", ColumnText).
			Column("displayable_type", ColumnText).
			Column("displayable_id", ColumnInteger).
			MustBuild(),
		NewMapping("Tag").
			Column("label", ColumnText).
			MustBuild(),
		NewMapping("Badge").
			Column("name", ColumnText).
			Column("type", ColumnText).
			Discriminator("type").
			MustBuild(),
	)
	if err != nil {
		t.Fatalf("building schema: %v", err)
	}
	return schema
}

func testTypes(t *testing.T) *TypeResolver {
	t.Helper()

	types := NewTypeResolver()
	for _, reg := range []struct{ name, parent string }{
		{"Badge", ""},
		{"GoldBadge", "Badge"},
		{"SilverBadge", "Badge"},
		{"EnamelGoldBadge", "GoldBadge"},
	} {
		var err error
		if reg.parent == "" {
			err = types.RegisterBase(reg.name)
		} else {
			err = types.RegisterSubtype(reg.name, reg.parent)
		}
		if err != nil {
			t.Fatalf("registering type %s: %v", reg.name, err)
		}
	}
	return types
}

func testRegistry(t *testing.T, schema *Schema, types *TypeResolver) *Registry {
	t.Helper()

	registry := NewRegistry(schema, types)
	regs := []struct {
		source string
		desc   Descriptor
	}{
		{"Gadget", Descriptor{Name: "widget", Kind: KindBelongsTo}},
		{"Widget", Descriptor{Name: "gadgets", Kind: KindHasMany}},
		{"Gadget", Descriptor{Name: "sprockets", Kind: KindHasMany}},
		{"Sprocket", Descriptor{Name: "cogs", Kind: KindHasMany}},
		{"Widget", Descriptor{Name: "sprockets", Kind: KindHasManyThrough, Through: "gadgets"}},
		{"Widget", Descriptor{Name: "cogs", Kind: KindHasManyThrough, Through: "sprockets"}},
		{"Widget", Descriptor{Name: "tags", Kind: KindHasAndBelongsToMany, JoinTable: "widgets_tags"}},
		{"Control", Descriptor{Name: "displayable", Kind: KindBelongsTo, Polymorphic: true}},
		{"Widget", Descriptor{Name: "controls", Kind: KindHasMany, Target: "Control", Polymorphic: true, As: "displayable"}},
		{"Badge", Descriptor{Name: "controls", Kind: KindHasMany, Target: "Control", Polymorphic: true, As: "displayable"}},
	}
	for _, reg := range regs {
		if err := registry.Register(reg.source, reg.desc); err != nil {
			t.Fatalf("registering %s.%s: %v", reg.source, reg.desc.Name, err)
		}
	}
	return registry
}

func newTestEngine(t *testing.T, backend Backend) *Engine {
	t.Helper()

	schema := testSchema(t)
	types := testTypes(t)
	registry := testRegistry(t, schema, types)

	engine, err := NewEngine(Config{
		Backend:      backend,
		Schema:       schema,
		Types:        types,
		Associations: registry,
	})
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}
	return engine
}

// widgetEntity is a persisted Widget with the given id, for association
// tests that start from a loaded instance.
func widgetEntity(id any) *Entity {
	ent := NewEntity("Widget")
	ent.setQuiet("id", id)
	ent.markPersisted()
	return ent
}
