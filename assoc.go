package relate

import "fmt"

// Association returns a Relation scoped to the named association of a loaded
// entity. The relation is an ordinary query value: filter it further, count
// it, or run it with All/First.
func (e *Engine) Association(src *Entity, name string) (Relation, error) {
	d, err := e.associations.Lookup(src.Type(), name)
	if err != nil {
		return Relation{}, err
	}
	return e.RelationFor(src, d)
}

// RelationFor builds the query a descriptor implies for one source instance.
// Direct kinds become a single filter on the linking column; many-to-many
// joins through the join table; through chains flatten to one join per
// intermediate hop plus a single filter anchored on the source instance.
func (e *Engine) RelationFor(src *Entity, d Descriptor) (Relation, error) {
	switch d.Kind {
	case KindBelongsTo:
		return e.belongsToRelation(src, d)
	case KindHasMany:
		return e.hasManyRelation(src, d)
	case KindHasAndBelongsToMany:
		return e.manyToManyRelation(src, d)
	case KindHasManyThrough:
		return e.throughRelation(src, d)
	}
	return Relation{}, fmt.Errorf("relate: association %s.%s has unknown kind %q", src.Type(), d.Name, d.Kind)
}

func (e *Engine) belongsToRelation(src *Entity, d Descriptor) (Relation, error) {
	target := d.Target
	var idValue any
	if d.Polymorphic {
		resolved, err := e.polymorphicTarget(asString(src.Get(d.TypeColumn)))
		if err != nil {
			return Relation{}, err
		}
		target = resolved
		idValue = src.Get(d.IDColumn)
	} else {
		idValue = src.Get(d.ForeignKey)
	}

	targetMapping, err := resolveMapping(e.schema, e.types, target)
	if err != nil {
		return Relation{}, err
	}
	return e.Query(target).FilterEq(targetMapping.PrimaryKey, idValue).Limit(1), nil
}

func (e *Engine) hasManyRelation(src *Entity, d Descriptor) (Relation, error) {
	pk, err := e.pkValue(src)
	if err != nil {
		return Relation{}, err
	}
	if d.Polymorphic {
		return e.Query(d.Target).
			FilterEq(d.TypeColumn, e.typeIdentity(src.Type())).
			FilterEq(d.IDColumn, pk), nil
	}
	return e.Query(d.Target).FilterEq(d.ForeignKey, pk), nil
}

func (e *Engine) manyToManyRelation(src *Entity, d Descriptor) (Relation, error) {
	pk, err := e.pkValue(src)
	if err != nil {
		return Relation{}, err
	}
	targetMapping, err := resolveMapping(e.schema, e.types, d.Target)
	if err != nil {
		return Relation{}, err
	}
	return e.Query(d.Target).
		Join(d.JoinTable,
			qualify(d.JoinTable, d.JoinTargetKey),
			qualify(targetMapping.Table, targetMapping.PrimaryKey)).
		FilterEq(qualify(d.JoinTable, d.JoinSourceKey), pk), nil
}

// throughRelation composes a flattened chain of hops into one query on the
// final target: each intermediate hop contributes a join walking the chain
// backwards from the target table, and the first hop anchors the whole thing
// to the source instance with a single filter.
func (e *Engine) throughRelation(src *Entity, d Descriptor) (Relation, error) {
	hops, err := e.associations.flatten(src.Type(), d, map[string]bool{})
	if err != nil {
		return Relation{}, err
	}

	last := hops[len(hops)-1]
	r := e.Query(last.desc.Target)

	for i := len(hops) - 1; i >= 1; i-- {
		r, err = e.joinHop(r, hops[i])
		if err != nil {
			return Relation{}, err
		}
	}
	return e.anchorHop(r, src, hops[0])
}

// joinHop joins a hop's owner table onto the relation, assuming the hop's
// target table is already part of the query.
func (e *Engine) joinHop(r Relation, h hop) (Relation, error) {
	ownerMapping, err := resolveMapping(e.schema, e.types, h.owner)
	if err != nil {
		return Relation{}, err
	}
	targetMapping, err := resolveMapping(e.schema, e.types, h.desc.Target)
	if err != nil {
		return Relation{}, err
	}

	switch h.desc.Kind {
	case KindHasMany:
		if h.desc.Polymorphic {
			return r.Join(ownerMapping.Table,
				qualify(targetMapping.Table, h.desc.IDColumn),
				qualify(ownerMapping.Table, ownerMapping.PrimaryKey)).
				FilterEq(qualify(targetMapping.Table, h.desc.TypeColumn), e.typeIdentity(h.owner)), nil
		}
		return r.Join(ownerMapping.Table,
			qualify(targetMapping.Table, h.desc.ForeignKey),
			qualify(ownerMapping.Table, ownerMapping.PrimaryKey)), nil
	case KindBelongsTo:
		return r.Join(ownerMapping.Table,
			qualify(ownerMapping.Table, h.desc.ForeignKey),
			qualify(targetMapping.Table, targetMapping.PrimaryKey)), nil
	case KindHasAndBelongsToMany:
		return r.Join(h.desc.JoinTable,
			qualify(h.desc.JoinTable, h.desc.JoinTargetKey),
			qualify(targetMapping.Table, targetMapping.PrimaryKey)).
			Join(ownerMapping.Table,
				qualify(ownerMapping.Table, ownerMapping.PrimaryKey),
				qualify(h.desc.JoinTable, h.desc.JoinSourceKey)), nil
	}
	return Relation{}, fmt.Errorf("relate: association %s.%s cannot appear inside a through chain", h.owner, h.desc.Name)
}

// anchorHop applies the first hop of a chain as a filter on the source
// instance instead of a join back to its table.
func (e *Engine) anchorHop(r Relation, src *Entity, h hop) (Relation, error) {
	targetMapping, err := resolveMapping(e.schema, e.types, h.desc.Target)
	if err != nil {
		return Relation{}, err
	}

	switch h.desc.Kind {
	case KindHasMany:
		pk, err := e.pkValue(src)
		if err != nil {
			return Relation{}, err
		}
		if h.desc.Polymorphic {
			return r.FilterEq(qualify(targetMapping.Table, h.desc.TypeColumn), e.typeIdentity(src.Type())).
				FilterEq(qualify(targetMapping.Table, h.desc.IDColumn), pk), nil
		}
		return r.FilterEq(qualify(targetMapping.Table, h.desc.ForeignKey), pk), nil
	case KindBelongsTo:
		return r.FilterEq(qualify(targetMapping.Table, targetMapping.PrimaryKey), src.Get(h.desc.ForeignKey)), nil
	case KindHasAndBelongsToMany:
		pk, err := e.pkValue(src)
		if err != nil {
			return Relation{}, err
		}
		return r.Join(h.desc.JoinTable,
			qualify(h.desc.JoinTable, h.desc.JoinTargetKey),
			qualify(targetMapping.Table, targetMapping.PrimaryKey)).
			FilterEq(qualify(h.desc.JoinTable, h.desc.JoinSourceKey), pk), nil
	}
	return Relation{}, fmt.Errorf("relate: association %s.%s cannot anchor a through chain", src.Type(), h.desc.Name)
}

// polymorphicTarget resolves a stored type value to an entity type: a mapped
// type name is taken as-is, anything else goes through the type resolver.
func (e *Engine) polymorphicTarget(value string) (string, error) {
	if value == "" {
		return "", fmt.Errorf("%w: empty type value", ErrUnknownDiscriminator)
	}
	if _, err := e.schema.MappingFor(value); err == nil {
		return value, nil
	}
	if e.types.isVariant(value) {
		return value, nil
	}
	return e.types.ResolveType(value)
}
