package relate

import (
	"context"
	"errors"
)

// Config assembles the collaborators of an Engine. Schema is required;
// Types and Associations default to empty registries; Dialect defaults to
// SQLite3.
type Config struct {
	Backend      Backend
	Dialect      *Dialect
	Schema       *Schema
	Types        *TypeResolver
	Associations *Registry

	// OnUnresolvedType selects the batch behavior for rows whose
	// discriminator resolves to no registered type.
	OnUnresolvedType UnresolvedTypeMode
}

// Engine ties the schema, the association registry, the type resolver and
// the execution backend together. All of its metadata is immutable once
// NewEngine returns, so an Engine is safe for concurrent use; each Relation
// derived from it is independently owned by its caller.
type Engine struct {
	backend      Backend
	dialect      *Dialect
	schema       *Schema
	types        *TypeResolver
	associations *Registry
	mat          materializer
	hooks        map[LifecycleEvent][]Hook
}

// NewEngine validates the configuration and returns a ready engine.
// Registration-time failures (cyclic through chains, unmapped association
// targets) surface here: the engine refuses to become ready rather than
// letting them escape into live queries. The type resolver is sealed before
// the first query can run.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Schema == nil {
		return nil, errors.New("relate: config requires a schema")
	}

	types := cfg.Types
	if types == nil {
		types = NewTypeResolver()
	}

	associations := cfg.Associations
	if associations == nil {
		associations = NewRegistry(cfg.Schema, types)
	}
	if err := associations.Validate(); err != nil {
		return nil, err
	}

	dialect := cfg.Dialect
	if dialect == nil {
		dialect = Dialects.SQLite3
	}

	types.seal()

	return &Engine{
		backend:      cfg.Backend,
		dialect:      dialect,
		schema:       cfg.Schema,
		types:        types,
		associations: associations,
		mat: materializer{
			schema: cfg.Schema,
			types:  types,
			mode:   cfg.OnUnresolvedType,
		},
	}, nil
}

// Query returns the base Relation for an entity type. When the type is a
// declared subtype of a shared table, the discriminator filter narrowing
// the table to the subtype and its descendants is merged in transparently.
func (e *Engine) Query(entityType string) Relation {
	r := Relation{engine: e, entityType: entityType}

	if e.types.isVariant(entityType) {
		if m, err := resolveMapping(e.schema, e.types, entityType); err == nil {
			if p, ok := e.types.scopedPredicate(entityType, m); ok {
				r.predicates = []predicate{p}
			}
		}
	}

	return r
}

// Schema returns the engine's mapping registry.
func (e *Engine) Schema() *Schema { return e.schema }

// Types returns the engine's type resolver.
func (e *Engine) Types() *TypeResolver { return e.types }

// Associations returns the engine's association registry.
func (e *Engine) Associations() *Registry { return e.associations }

func (e *Engine) mappingForQuery(entityType string) (*FieldMapping, error) {
	return resolveMapping(e.schema, e.types, entityType)
}

func (e *Engine) requireBackend() error {
	if e.backend == nil {
		return errors.New("relate: engine has no execution backend")
	}
	return nil
}

func (e *Engine) runSelect(ctx context.Context, r Relation) ([]*Entity, error) {
	if err := e.requireBackend(); err != nil {
		return nil, err
	}

	query, args, err := e.compileSelect(r)
	if err != nil {
		return nil, err
	}

	rows, err := e.backend.Execute(ctx, query, args)
	if err != nil {
		return nil, wrapBackendError(query, args, err)
	}

	entities, err := e.mat.materialize(rows, r.entityType)
	if err != nil {
		return nil, err
	}

	if len(r.eager) > 0 {
		if err := e.loadEager(ctx, r, entities); err != nil {
			return nil, err
		}
	}

	if err := e.dispatch(ctx, EventPostMaterialize, entities...); err != nil {
		return nil, err
	}

	return entities, nil
}

func (e *Engine) runCount(ctx context.Context, r Relation) (int64, error) {
	if err := e.requireBackend(); err != nil {
		return 0, err
	}

	query, args, err := e.compileCount(r)
	if err != nil {
		return 0, err
	}

	n, err := e.backend.ExecuteScalar(ctx, query, args)
	if err != nil {
		return 0, wrapBackendError(query, args, err)
	}
	return n, nil
}

func (e *Engine) runUpdateAll(ctx context.Context, r Relation, fields map[string]any) (int64, error) {
	if err := e.requireBackend(); err != nil {
		return 0, err
	}

	// Compilation must fail atomically before anything reaches the backend.
	query, args, err := e.compileUpdate(r, fields)
	if err != nil {
		return 0, err
	}

	n, err := e.backend.ExecuteCommand(ctx, query, args)
	if err != nil {
		return 0, wrapBackendError(query, args, err)
	}
	return n, nil
}

func (e *Engine) runDeleteAll(ctx context.Context, r Relation) (int64, error) {
	if err := e.requireBackend(); err != nil {
		return 0, err
	}

	query, args, err := e.compileDelete(r)
	if err != nil {
		return 0, err
	}

	n, err := e.backend.ExecuteCommand(ctx, query, args)
	if err != nil {
		return 0, wrapBackendError(query, args, err)
	}
	return n, nil
}

// typeIdentity returns the name stored in polymorphic type columns for rows
// owned by entityType: its discriminator value when the type participates
// in a hierarchy, the type name itself otherwise.
func (e *Engine) typeIdentity(entityType string) string {
	if value, err := e.types.DiscriminatorFor(entityType); err == nil {
		return value
	}
	return entityType
}

// pkValue reads the primary-key value of an entity via its mapping.
func (e *Engine) pkValue(ent *Entity) (any, error) {
	m, err := e.mappingForQuery(ent.Type())
	if err != nil {
		return nil, err
	}
	return ent.Get(m.PrimaryKey), nil
}
