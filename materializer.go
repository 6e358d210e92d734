package relate

import "fmt"

// UnresolvedTypeMode selects how a batch reacts to a row whose discriminator
// value resolves to no registered type.
type UnresolvedTypeMode int

const (
	// FailOnUnresolvedType aborts the whole batch fetch. The default.
	FailOnUnresolvedType UnresolvedTypeMode = iota

	// SkipUnresolvedType drops the offending row and keeps the batch, for
	// tolerant batch processing.
	SkipUnresolvedType
)

// materializer turns raw rows into entity instances, dispatching on the
// discriminator column when the source mapping declares one.
type materializer struct {
	schema *Schema
	types  *TypeResolver
	mode   UnresolvedTypeMode
}

// materialize converts a batch of rows fetched for sourceType. Rows of a
// shared table come back as the concrete variant named by their
// discriminator value; rows without a discriminator value stay the source
// type.
func (mt materializer) materialize(rows []Row, sourceType string) ([]*Entity, error) {
	out := make([]*Entity, 0, len(rows))
	for _, row := range rows {
		ent, err := mt.materializeRow(row, sourceType)
		if err != nil {
			return nil, err
		}
		if ent != nil {
			out = append(out, ent)
		}
	}
	return out, nil
}

// materializeRow converts a single row. It returns (nil, nil) when the row
// is skipped under SkipUnresolvedType.
func (mt materializer) materializeRow(row Row, sourceType string) (*Entity, error) {
	m, err := resolveMapping(mt.schema, mt.types, sourceType)
	if err != nil {
		return nil, err
	}

	concrete := sourceType
	if m.Discriminator != "" {
		if value := asString(row[m.Discriminator]); value != "" {
			resolved, err := mt.types.ResolveType(value)
			if err != nil {
				if mt.mode == SkipUnresolvedType {
					return nil, nil
				}
				return nil, fmt.Errorf("row in %s: %w", m.Table, err)
			}
			concrete = resolved
		}
	}

	// A subtype may carry its own mapping (a field superset of the base);
	// fall back to the shared mapping otherwise.
	fields := m
	if concrete != sourceType {
		if own, err := resolveMapping(mt.schema, mt.types, concrete); err == nil {
			fields = own
		}
	}

	ent := NewEntity(concrete)
	for _, col := range fields.Columns {
		if value, ok := row[col.Name]; ok {
			ent.setQuiet(col.Name, value)
		}
	}
	ent.markPersisted()

	return ent, nil
}
