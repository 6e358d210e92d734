package relate

import (
	"context"
	"fmt"
	"strings"
)

// Insert writes a new entity row and fills in the generated primary key.
// For registered hierarchy variants the discriminator column is set from the
// type resolver before the row is built.
func (e *Engine) Insert(ctx context.Context, ent *Entity) error {
	if err := e.requireBackend(); err != nil {
		return err
	}
	m, err := resolveMapping(e.schema, e.types, ent.Type())
	if err != nil {
		return err
	}
	if err := e.dispatch(ctx, EventPrePersist, ent); err != nil {
		return err
	}

	if m.Discriminator != "" {
		if disc, err := e.types.DiscriminatorFor(ent.Type()); err == nil {
			ent.setQuiet(m.Discriminator, disc)
		}
	}

	columns := make([]string, 0, len(m.Columns))
	args := make([]any, 0, len(m.Columns))
	pkOmitted := false
	for _, name := range m.ColumnNames() {
		if name == m.PrimaryKey && isZero(ent.Get(name)) {
			pkOmitted = true
			continue
		}
		v := ent.Get(name)
		if v == nil {
			continue
		}
		columns = append(columns, name)
		args = append(args, v)
	}
	if len(columns) == 0 {
		return fmt.Errorf("relate: insert into %s has no values", m.Table)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(m.Table)
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES (")
	b.WriteString(strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "))
	b.WriteString(")")

	var id int64
	if e.dialect.InsertReturning {
		// Drivers without LastInsertId support hand the generated key back
		// through a RETURNING clause instead.
		query := e.dialect.finalize(b.String() + " RETURNING " + m.PrimaryKey)
		id, err = e.backend.ExecuteScalar(ctx, query, args)
		if err != nil {
			return wrapBackendError(query, args, err)
		}
	} else {
		query := e.dialect.finalize(b.String())
		id, err = e.backend.ExecuteInsert(ctx, query, args)
		if err != nil {
			return wrapBackendError(query, args, err)
		}
	}
	if pkOmitted {
		ent.setQuiet(m.PrimaryKey, id)
	}
	ent.markPersisted()
	return e.dispatch(ctx, EventPostPersist, ent)
}

// Update writes the entity's dirty fields back to its row. A clean entity is
// a no-op and runs no hooks.
func (e *Engine) Update(ctx context.Context, ent *Entity) error {
	if err := e.requireBackend(); err != nil {
		return err
	}
	m, err := resolveMapping(e.schema, e.types, ent.Type())
	if err != nil {
		return err
	}

	fields := make([]string, 0, len(ent.DirtyFields()))
	for _, name := range ent.DirtyFields() {
		if name == m.PrimaryKey {
			continue
		}
		if err := m.resolveColumn(name); err != nil {
			return err
		}
		fields = append(fields, name)
	}
	if len(fields) == 0 {
		return nil
	}

	pk, err := e.pkValue(ent)
	if err != nil {
		return err
	}
	if err := e.dispatch(ctx, EventPrePersist, ent); err != nil {
		return err
	}

	assignments := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	for _, name := range fields {
		assignments = append(assignments, name+" = ?")
		args = append(args, ent.Get(name))
	}
	args = append(args, pk)

	query := e.dialect.finalize(fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", m.Table, strings.Join(assignments, ", "), m.PrimaryKey))
	if _, err := e.backend.ExecuteCommand(ctx, query, args); err != nil {
		return wrapBackendError(query, args, err)
	}
	ent.markPersisted()
	return e.dispatch(ctx, EventPostPersist, ent)
}

// Save inserts when the primary key is still zero and updates otherwise.
func (e *Engine) Save(ctx context.Context, ent *Entity) error {
	m, err := resolveMapping(e.schema, e.types, ent.Type())
	if err != nil {
		return err
	}
	if isZero(ent.Get(m.PrimaryKey)) {
		return e.Insert(ctx, ent)
	}
	return e.Update(ctx, ent)
}

// Delete removes the entity's row and marks the entity deleted.
func (e *Engine) Delete(ctx context.Context, ent *Entity) error {
	if err := e.requireBackend(); err != nil {
		return err
	}
	m, err := resolveMapping(e.schema, e.types, ent.Type())
	if err != nil {
		return err
	}
	pk, err := e.pkValue(ent)
	if err != nil {
		return err
	}
	if err := e.dispatch(ctx, EventPreDelete, ent); err != nil {
		return err
	}

	query := e.dialect.finalize(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", m.Table, m.PrimaryKey))
	if _, err := e.backend.ExecuteCommand(ctx, query, []any{pk}); err != nil {
		return wrapBackendError(query, []any{pk}, err)
	}
	ent.markDeleted()
	return nil
}
