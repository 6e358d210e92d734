package relate

import (
	"context"
	"fmt"
)

// eagerParentKey aliases the partition column that batched join queries
// carry alongside the target's own columns, so each child row can be routed
// back to the parent it belongs to.
const eagerParentKey = "__parent_id"

// loadEager runs one batched query per requested association over the whole
// result set and attaches the partitioned results to each entity. The query
// count depends on the number of association names, not on the number of
// rows.
func (e *Engine) loadEager(ctx context.Context, r Relation, batch []*Entity) error {
	if len(batch) == 0 {
		return nil
	}

	done := make(map[string]bool, len(r.eager))
	for _, name := range r.eager {
		if done[name] {
			continue
		}
		done[name] = true

		d, err := e.associations.Lookup(r.entityType, name)
		if err != nil {
			return err
		}

		switch d.Kind {
		case KindBelongsTo:
			if d.Polymorphic {
				err = e.eagerMorphTo(ctx, batch, d)
			} else {
				err = e.eagerBelongsTo(ctx, batch, d)
			}
		case KindHasMany:
			err = e.eagerHasMany(ctx, r.entityType, batch, d)
		case KindHasAndBelongsToMany:
			err = e.eagerManyToMany(ctx, batch, d)
		case KindHasManyThrough:
			err = e.eagerThrough(ctx, r.entityType, batch, d)
		default:
			err = fmt.Errorf("relate: association %s.%s has unknown kind %q", r.entityType, d.Name, d.Kind)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) eagerBelongsTo(ctx context.Context, batch []*Entity, d Descriptor) error {
	targetMapping, err := resolveMapping(e.schema, e.types, d.Target)
	if err != nil {
		return err
	}

	keys := batchKeys(batch, d.ForeignKey)
	byKey := make(map[string]*Entity, len(keys))
	if len(keys) > 0 {
		children, err := e.Query(d.Target).FilterIn(targetMapping.PrimaryKey, keys...).All(ctx)
		if err != nil {
			return err
		}
		for _, child := range children {
			byKey[keyOf(child.Get(targetMapping.PrimaryKey))] = child
		}
	}

	for _, ent := range batch {
		var child *Entity
		if fk := ent.Get(d.ForeignKey); fk != nil {
			child = byKey[keyOf(fk)]
		}
		ent.attachLoaded(d.Name, child)
	}
	return nil
}

// eagerMorphTo groups the batch by stored type value and runs one batched
// query per distinct target type. Unresolvable type values follow the
// engine's unresolved-type mode: skip leaves the association empty, fail
// aborts the load.
func (e *Engine) eagerMorphTo(ctx context.Context, batch []*Entity, d Descriptor) error {
	byTarget := make(map[string][]*Entity)
	for _, ent := range batch {
		ent.attachLoaded(d.Name, (*Entity)(nil))

		typeValue := asString(ent.Get(d.TypeColumn))
		if typeValue == "" || ent.Get(d.IDColumn) == nil {
			continue
		}
		target, err := e.polymorphicTarget(typeValue)
		if err != nil {
			if e.mat.mode == SkipUnresolvedType {
				continue
			}
			return err
		}
		byTarget[target] = append(byTarget[target], ent)
	}

	for target, owners := range byTarget {
		targetMapping, err := resolveMapping(e.schema, e.types, target)
		if err != nil {
			return err
		}
		keys := batchKeys(owners, d.IDColumn)
		children, err := e.Query(target).FilterIn(targetMapping.PrimaryKey, keys...).All(ctx)
		if err != nil {
			return err
		}

		byKey := make(map[string]*Entity, len(children))
		for _, child := range children {
			byKey[keyOf(child.Get(targetMapping.PrimaryKey))] = child
		}
		for _, ent := range owners {
			if child, ok := byKey[keyOf(ent.Get(d.IDColumn))]; ok {
				ent.attachLoaded(d.Name, child)
			}
		}
	}
	return nil
}

func (e *Engine) eagerHasMany(ctx context.Context, sourceType string, batch []*Entity, d Descriptor) error {
	sourceMapping, err := resolveMapping(e.schema, e.types, sourceType)
	if err != nil {
		return err
	}

	keys := batchKeys(batch, sourceMapping.PrimaryKey)
	groups := make(map[string][]*Entity, len(keys))
	if len(keys) > 0 {
		rel := e.Query(d.Target)
		partitionKey := d.ForeignKey
		if d.Polymorphic {
			partitionKey = d.IDColumn
			rel = rel.FilterEq(d.TypeColumn, e.typeIdentity(sourceType))
		}
		children, err := rel.FilterIn(partitionKey, keys...).All(ctx)
		if err != nil {
			return err
		}
		for _, child := range children {
			k := keyOf(child.Get(partitionKey))
			groups[k] = append(groups[k], child)
		}
	}

	attachGroups(batch, sourceMapping.PrimaryKey, d.Name, groups)
	return nil
}

// eagerManyToMany loads the whole batch through the join table in a single
// query, carrying the join table's source key as the partition column.
func (e *Engine) eagerManyToMany(ctx context.Context, batch []*Entity, d Descriptor) error {
	sourceMapping, err := resolveMapping(e.schema, e.types, batch[0].Type())
	if err != nil {
		return err
	}
	targetMapping, err := resolveMapping(e.schema, e.types, d.Target)
	if err != nil {
		return err
	}

	keys := batchKeys(batch, sourceMapping.PrimaryKey)
	groups := make(map[string][]*Entity, len(keys))
	if len(keys) > 0 {
		rel := e.Query(d.Target).
			Join(d.JoinTable,
				qualify(d.JoinTable, d.JoinTargetKey),
				qualify(targetMapping.Table, targetMapping.PrimaryKey)).
			FilterIn(qualify(d.JoinTable, d.JoinSourceKey), keys...)
		groups, err = e.runPartitioned(ctx, rel, qualify(d.JoinTable, d.JoinSourceKey), d.Target)
		if err != nil {
			return err
		}
	}

	attachGroups(batch, sourceMapping.PrimaryKey, d.Name, groups)
	return nil
}

// eagerThrough batches a flattened chain: the intermediate hops become joins
// exactly as in the single-instance case, and the first hop's linking column
// doubles as the partition column for the whole batch.
func (e *Engine) eagerThrough(ctx context.Context, sourceType string, batch []*Entity, d Descriptor) error {
	hops, err := e.associations.flatten(sourceType, d, map[string]bool{})
	if err != nil {
		return err
	}
	sourceMapping, err := resolveMapping(e.schema, e.types, sourceType)
	if err != nil {
		return err
	}

	last := hops[len(hops)-1]
	rel := e.Query(last.desc.Target)
	for i := len(hops) - 1; i >= 1; i-- {
		rel, err = e.joinHop(rel, hops[i])
		if err != nil {
			return err
		}
	}

	first := hops[0]
	firstTarget, err := resolveMapping(e.schema, e.types, first.desc.Target)
	if err != nil {
		return err
	}

	// The column each parent is identified by in the joined rows, and the
	// field that same key lives in on the parent side.
	var partitionCol, parentField string
	switch first.desc.Kind {
	case KindHasMany:
		parentField = sourceMapping.PrimaryKey
		if first.desc.Polymorphic {
			partitionCol = qualify(firstTarget.Table, first.desc.IDColumn)
			rel = rel.FilterEq(qualify(firstTarget.Table, first.desc.TypeColumn), e.typeIdentity(sourceType))
		} else {
			partitionCol = qualify(firstTarget.Table, first.desc.ForeignKey)
		}
	case KindBelongsTo:
		parentField = first.desc.ForeignKey
		partitionCol = qualify(firstTarget.Table, firstTarget.PrimaryKey)
	case KindHasAndBelongsToMany:
		parentField = sourceMapping.PrimaryKey
		partitionCol = qualify(first.desc.JoinTable, first.desc.JoinSourceKey)
		rel = rel.Join(first.desc.JoinTable,
			qualify(first.desc.JoinTable, first.desc.JoinTargetKey),
			qualify(firstTarget.Table, firstTarget.PrimaryKey))
	default:
		return fmt.Errorf("relate: association %s.%s cannot anchor a through chain", sourceType, first.desc.Name)
	}

	keys := batchKeys(batch, parentField)
	groups := make(map[string][]*Entity, len(keys))
	if len(keys) > 0 {
		rel = rel.FilterIn(partitionCol, keys...)
		groups, err = e.runPartitioned(ctx, rel, partitionCol, last.desc.Target)
		if err != nil {
			return err
		}
	}

	attachGroups(batch, parentField, d.Name, groups)
	return nil
}

// runPartitioned executes a relation with an extra aliased partition column
// and groups the materialized entities by that column's value.
func (e *Engine) runPartitioned(ctx context.Context, r Relation, partitionCol, targetType string) (map[string][]*Entity, error) {
	if err := e.requireBackend(); err != nil {
		return nil, err
	}

	query, args, err := e.compileSelect(r.selectRaw(partitionCol + " AS " + eagerParentKey))
	if err != nil {
		return nil, err
	}
	rows, err := e.backend.Execute(ctx, query, args)
	if err != nil {
		return nil, wrapBackendError(query, args, err)
	}

	groups := make(map[string][]*Entity)
	for _, row := range rows {
		ent, err := e.mat.materializeRow(row, targetType)
		if err != nil {
			return nil, err
		}
		if ent == nil {
			continue
		}
		if err := e.dispatch(ctx, EventPostMaterialize, ent); err != nil {
			return nil, err
		}
		k := keyOf(row[eagerParentKey])
		groups[k] = append(groups[k], ent)
	}
	return groups, nil
}

// attachGroups hands each parent its slice of children, an empty one when
// nothing matched, so the association reads as loaded either way.
func attachGroups(batch []*Entity, parentField, name string, groups map[string][]*Entity) {
	for _, ent := range batch {
		children := groups[keyOf(ent.Get(parentField))]
		if children == nil {
			children = []*Entity{}
		}
		ent.attachLoaded(name, children)
	}
}

// batchKeys collects the distinct non-nil values of one field across a
// batch, preserving first-seen order.
func batchKeys(batch []*Entity, field string) []any {
	seen := make(map[string]bool, len(batch))
	keys := make([]any, 0, len(batch))
	for _, ent := range batch {
		v := ent.Get(field)
		if v == nil {
			continue
		}
		k := keyOf(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, v)
	}
	return keys
}
