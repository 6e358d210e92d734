package relate

import (
	"errors"
	"strings"
	"testing"
)

func TestBelongsToRelation(t *testing.T) {
	e := newTestEngine(t, nil)

	gadget := NewEntity("Gadget")
	gadget.setQuiet("id", 3)
	gadget.setQuiet("widget_id", 5)

	rel, err := e.Association(gadget, "widget")
	if err != nil {
		t.Fatalf("Association: %v", err)
	}

	query, args, err := rel.ToSQL()
	if err != nil {
		t.Fatalf("compiling: %v", err)
	}
	expected := "SELECT id, name FROM widgets WHERE id = ? LIMIT 1"
	if query != expected {
		t.Errorf("expected %q, got %q", expected, query)
	}
	if len(args) != 1 || args[0] != 5 {
		t.Errorf("expected [5], got %v", args)
	}
}

func TestHasManyRelation(t *testing.T) {
	e := newTestEngine(t, nil)

	rel, err := e.Association(widgetEntity(5), "gadgets")
	if err != nil {
		t.Fatalf("Association: %v", err)
	}

	query, args, err := rel.ToSQL()
	if err != nil {
		t.Fatalf("compiling: %v", err)
	}
	expected := "SELECT id, name, widget_id FROM gadgets WHERE widget_id = ?"
	if query != expected {
		t.Errorf("expected %q, got %q", expected, query)
	}
	if len(args) != 1 || args[0] != 5 {
		t.Errorf("expected [5], got %v", args)
	}
}

// TestPolymorphicBelongsTo resolves the stored type value to the target
// mapping at runtime.
func TestPolymorphicBelongsTo(t *testing.T) {
	e := newTestEngine(t, nil)

	control := NewEntity("Control")
	control.setQuiet("displayable_type", "Widget")
	control.setQuiet("displayable_id", 5)

	rel, err := e.Association(control, "displayable")
	if err != nil {
		t.Fatalf("Association: %v", err)
	}
	if rel.EntityType() != "Widget" {
		t.Errorf("expected Widget target, got %s", rel.EntityType())
	}

	query, args, err := rel.ToSQL()
	if err != nil {
		t.Fatalf("compiling: %v", err)
	}
	expected := "SELECT id, name FROM widgets WHERE id = ? LIMIT 1"
	if query != expected {
		t.Errorf("expected %q, got %q", expected, query)
	}
	if args[0] != 5 {
		t.Errorf("expected [5], got %v", args)
	}
}

func TestPolymorphicBelongsToUnknownType(t *testing.T) {
	e := newTestEngine(t, nil)

	control := NewEntity("Control")
	control.setQuiet("displayable_type", "Whatsit")
	control.setQuiet("displayable_id", 5)

	_, err := e.Association(control, "displayable")
	if !errors.Is(err, ErrUnknownDiscriminator) {
		t.Errorf("expected ErrUnknownDiscriminator, got %v", err)
	}
}

func TestPolymorphicHasMany(t *testing.T) {
	e := newTestEngine(t, nil)

	rel, err := e.Association(widgetEntity(5), "controls")
	if err != nil {
		t.Fatalf("Association: %v", err)
	}

	query, args, err := rel.ToSQL()
	if err != nil {
		t.Fatalf("compiling: %v", err)
	}
	if !strings.Contains(query, "displayable_type = ?") || !strings.Contains(query, "displayable_id = ?") {
		t.Errorf("expected type and id filters, got %q", query)
	}
	if len(args) != 2 {
		t.Fatalf("expected 2 args, got %v", args)
	}
	// Fragments are canonically ordered, id before type.
	if args[0] != 5 || args[1] != "Widget" {
		t.Errorf("expected [5 Widget], got %v", args)
	}
}

func TestInheritedPolymorphicHasMany(t *testing.T) {
	e := newTestEngine(t, nil)

	// controls is registered on Badge; a variant instance picks it up and
	// binds its own discriminator value as the type filter.
	ent := NewEntity("GoldBadge")
	ent.setQuiet("id", 9)
	ent.markPersisted()

	rel, err := e.Association(ent, "controls")
	if err != nil {
		t.Fatalf("Association: %v", err)
	}

	query, args, err := rel.ToSQL()
	if err != nil {
		t.Fatalf("compiling: %v", err)
	}
	if !strings.Contains(query, "displayable_type = ?") {
		t.Errorf("expected the type filter, got %q", query)
	}
	if len(args) != 2 || args[0] != 9 || args[1] != "GoldBadge" {
		t.Errorf("expected [9 GoldBadge], got %v", args)
	}
}

func TestManyToManyRelation(t *testing.T) {
	e := newTestEngine(t, nil)

	rel, err := e.Association(widgetEntity(5), "tags")
	if err != nil {
		t.Fatalf("Association: %v", err)
	}

	query, args, err := rel.ToSQL()
	if err != nil {
		t.Fatalf("compiling: %v", err)
	}
	expected := "SELECT tags.id, tags.label FROM tags" +
		" INNER JOIN widgets_tags ON widgets_tags.tag_id = tags.id" +
		" WHERE widgets_tags.widget_id = ?"
	if query != expected {
		t.Errorf("expected %q, got %q", expected, query)
	}
	if len(args) != 1 || args[0] != 5 {
		t.Errorf("expected [5], got %v", args)
	}
}

// TestThroughRelation checks that a two-hop chain compiles to a single join
// plus one filter anchored on the source instance.
func TestThroughRelation(t *testing.T) {
	e := newTestEngine(t, nil)

	rel, err := e.Association(widgetEntity(5), "sprockets")
	if err != nil {
		t.Fatalf("Association: %v", err)
	}

	query, args, err := rel.ToSQL()
	if err != nil {
		t.Fatalf("compiling: %v", err)
	}
	expected := "SELECT sprockets.id, sprockets.label, sprockets.gadget_id FROM sprockets" +
		" INNER JOIN gadgets ON sprockets.gadget_id = gadgets.id" +
		" WHERE gadgets.widget_id = ?"
	if query != expected {
		t.Errorf("expected %q, got %q", expected, query)
	}
	if len(args) != 1 || args[0] != 5 {
		t.Errorf("expected [5], got %v", args)
	}
}

// TestNestedThroughRelation walks a chain of three hops and expects exactly
// two joins: one per hop past the first.
func TestNestedThroughRelation(t *testing.T) {
	e := newTestEngine(t, nil)

	rel, err := e.Association(widgetEntity(5), "cogs")
	if err != nil {
		t.Fatalf("Association: %v", err)
	}

	query, args, err := rel.ToSQL()
	if err != nil {
		t.Fatalf("compiling: %v", err)
	}
	if joins := strings.Count(query, " JOIN "); joins != 2 {
		t.Errorf("expected 2 joins for a 3-hop chain, got %d in %q", joins, query)
	}
	if !strings.Contains(query, "FROM cogs") {
		t.Errorf("expected the final target table, got %q", query)
	}
	if !strings.Contains(query, "WHERE gadgets.widget_id = ?") {
		t.Errorf("expected one filter on the first hop, got %q", query)
	}
	if len(args) != 1 || args[0] != 5 {
		t.Errorf("expected [5], got %v", args)
	}
}

func TestAssociationUnknownName(t *testing.T) {
	e := newTestEngine(t, nil)

	_, err := e.Association(widgetEntity(5), "doodads")
	if !errors.Is(err, ErrUnknownAssociation) {
		t.Errorf("expected ErrUnknownAssociation, got %v", err)
	}
}
