package relate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMaterializeDispatchesOnDiscriminator queries the hierarchy root and
// expects each row back as the concrete variant its discriminator names.
func TestMaterializeDispatchesOnDiscriminator(t *testing.T) {
	backend := &fakeBackend{respond: widgetRows(map[string][]Row{
		"badges": {
			{"id": int64(1), "name": "first", "type": "GoldBadge"},
			{"id": int64(2), "name": "second", "type": "SilverBadge"},
			{"id": int64(3), "name": "third", "type": "Badge"},
		},
	})}
	e := newTestEngine(t, backend)

	badges, err := e.Query("Badge").All(context.Background())
	require.NoError(t, err)
	require.Len(t, badges, 3)

	require.Equal(t, "GoldBadge", badges[0].Type())
	require.Equal(t, "SilverBadge", badges[1].Type())
	require.Equal(t, "Badge", badges[2].Type())

	require.Equal(t, "first", badges[0].Get("name"))
	require.Equal(t, StatePersisted, badges[0].State())
	require.Empty(t, badges[0].DirtyFields(), "materialized values must not be dirty")
}

func TestMaterializeWithoutDiscriminatorValue(t *testing.T) {
	backend := &fakeBackend{respond: widgetRows(map[string][]Row{
		"badges": {
			{"id": int64(1), "name": "untyped", "type": nil},
		},
	})}
	e := newTestEngine(t, backend)

	badges, err := e.Query("Badge").All(context.Background())
	require.NoError(t, err)
	require.Len(t, badges, 1)
	require.Equal(t, "Badge", badges[0].Type(), "rows without a discriminator stay the source type")
}

func TestMaterializeUnresolvedType(t *testing.T) {
	rows := map[string][]Row{
		"badges": {
			{"id": int64(1), "name": "first", "type": "GoldBadge"},
			{"id": int64(2), "name": "second", "type": "PlatinumBadge"},
		},
	}

	t.Run("Fail", func(t *testing.T) {
		backend := &fakeBackend{respond: widgetRows(rows)}
		e := newTestEngine(t, backend)

		_, err := e.Query("Badge").All(context.Background())
		require.ErrorIs(t, err, ErrUnknownDiscriminator)
	})

	t.Run("Skip", func(t *testing.T) {
		backend := &fakeBackend{respond: widgetRows(rows)}
		schema := testSchema(t)
		types := testTypes(t)
		e, err := NewEngine(Config{
			Backend:          backend,
			Schema:           schema,
			Types:            types,
			Associations:     testRegistry(t, schema, types),
			OnUnresolvedType: SkipUnresolvedType,
		})
		require.NoError(t, err)

		badges, err := e.Query("Badge").All(context.Background())
		require.NoError(t, err)
		require.Len(t, badges, 1, "the unresolvable row is dropped, the batch survives")
		require.Equal(t, "GoldBadge", badges[0].Type())
	})
}

// TestSubtypeQueryMaterializesScoped runs a subtype query end to end and
// checks both the discriminator filter and the materialized type.
func TestSubtypeQueryMaterializesScoped(t *testing.T) {
	backend := &fakeBackend{respond: widgetRows(map[string][]Row{
		"badges": {
			{"id": int64(1), "name": "shiny", "type": "SilverBadge"},
		},
	})}
	e := newTestEngine(t, backend)

	badges, err := e.Query("SilverBadge").All(context.Background())
	require.NoError(t, err)
	require.Len(t, badges, 1)
	require.Equal(t, "SilverBadge", badges[0].Type())
	require.Contains(t, backend.queries[0], "type = ?")
	require.Equal(t, []any{"SilverBadge"}, backend.argsLog[0])
}
