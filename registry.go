package relate

import (
	"errors"
	"fmt"
	"sort"

	"github.com/iancoleman/strcase"
)

// Kind is the relationship kind of an association descriptor.
type Kind string

const (
	KindBelongsTo           Kind = "belongs_to"
	KindHasMany             Kind = "has_many"
	KindHasManyThrough      Kind = "has_many_through"
	KindHasAndBelongsToMany Kind = "has_and_belongs_to_many"
)

// Descriptor declares one relationship of a source entity type. Descriptors
// hold linkage metadata only, never data; they are registered once and are
// immutable afterwards. Missing linkage columns are inferred from the
// association name and the table names involved.
type Descriptor struct {
	Name string
	Kind Kind

	// Target is the related entity type. It stays empty for polymorphic
	// belongs_to, whose target is resolved per instance at runtime.
	Target string

	// ForeignKey is the linking column for the direct kinds: on the source
	// table for belongs_to, on the target table for has_many.
	ForeignKey string

	// Join-table triple for has_and_belongs_to_many. The join table carries
	// only the two foreign keys and is never materialized as an entity.
	JoinTable     string
	JoinSourceKey string
	JoinTargetKey string

	// Through names the intermediate association on the source type, and
	// Source the association on the intermediate's target that continues the
	// chain (defaults to Name). Chains may nest.
	Through string
	Source  string

	// Polymorphic kinds encode the link as a (type column, id column) pair
	// instead of a fixed foreign key. As is the polymorphic name the pair is
	// derived from when the columns are not set explicitly.
	Polymorphic bool
	As          string
	TypeColumn  string
	IDColumn    string
}

// Registry is the per-entity-type table of declared associations. It is
// populated during setup and read-only afterwards; Validate must pass before
// the engine accepts queries, so chain cycles and unmapped targets can never
// surface during a live query.
type Registry struct {
	schema *Schema
	types  *TypeResolver
	assocs map[string]map[string]Descriptor
}

// NewRegistry returns an empty registry bound to the schema and type
// resolver that validate its descriptors.
func NewRegistry(schema *Schema, types *TypeResolver) *Registry {
	return &Registry{
		schema: schema,
		types:  types,
		assocs: make(map[string]map[string]Descriptor),
	}
}

// Register declares an association for the source entity type, inferring
// any linkage metadata the descriptor leaves blank. Registration fails when
// the declared target has no mapping, when a linking column is missing from
// the relevant mapping, or when a through chain closes a cycle over
// already-registered associations.
func (g *Registry) Register(sourceType string, d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("relate: association on %s has no name", sourceType)
	}

	sourceMapping, err := resolveMapping(g.schema, g.types, sourceType)
	if err != nil {
		return err
	}

	switch d.Kind {
	case KindBelongsTo:
		if err := g.fillBelongsTo(sourceMapping, &d); err != nil {
			return err
		}
	case KindHasMany:
		if err := g.fillHasMany(sourceMapping, &d); err != nil {
			return err
		}
	case KindHasManyThrough:
		if d.Through == "" {
			return fmt.Errorf("relate: association %s.%s requires a through association", sourceType, d.Name)
		}
		if d.Source == "" {
			d.Source = d.Name
		}
	case KindHasAndBelongsToMany:
		if err := g.fillManyToMany(sourceMapping, &d); err != nil {
			return err
		}
	default:
		return fmt.Errorf("relate: association %s.%s has unknown kind %q", sourceType, d.Name, d.Kind)
	}

	byName := g.assocs[sourceType]
	if byName == nil {
		byName = make(map[string]Descriptor)
		g.assocs[sourceType] = byName
	}
	if _, dup := byName[d.Name]; dup {
		return fmt.Errorf("relate: association %s.%s registered twice", sourceType, d.Name)
	}
	byName[d.Name] = d

	if d.Kind == KindHasManyThrough {
		// Reject cycles as early as the chain becomes resolvable; Validate
		// re-checks once every descriptor is in.
		if _, err := g.flatten(sourceType, d, map[string]bool{}); err != nil && isCycle(err) {
			delete(byName, d.Name)
			return err
		}
	}

	return nil
}

func (g *Registry) fillBelongsTo(source *FieldMapping, d *Descriptor) error {
	if d.Polymorphic {
		if d.As == "" {
			d.As = d.Name
		}
		if d.TypeColumn == "" {
			d.TypeColumn = d.As + "_type"
		}
		if d.IDColumn == "" {
			d.IDColumn = d.As + "_id"
		}
		if err := source.resolveColumn(d.TypeColumn); err != nil {
			return err
		}
		return source.resolveColumn(d.IDColumn)
	}

	if d.Target == "" {
		d.Target = strcase.ToCamel(d.Name)
	}
	if _, err := resolveMapping(g.schema, g.types, d.Target); err != nil {
		return err
	}
	if d.ForeignKey == "" {
		d.ForeignKey = strcase.ToSnake(d.Name) + "_id"
	}
	return source.resolveColumn(d.ForeignKey)
}

func (g *Registry) fillHasMany(source *FieldMapping, d *Descriptor) error {
	if d.Target == "" {
		d.Target = strcase.ToCamel(plural.Singular(d.Name))
	}
	target, err := resolveMapping(g.schema, g.types, d.Target)
	if err != nil {
		return err
	}

	if d.Polymorphic {
		if d.As == "" {
			return fmt.Errorf("relate: polymorphic association %s requires the polymorphic name (As)", d.Name)
		}
		if d.TypeColumn == "" {
			d.TypeColumn = d.As + "_type"
		}
		if d.IDColumn == "" {
			d.IDColumn = d.As + "_id"
		}
		if err := target.resolveColumn(d.TypeColumn); err != nil {
			return err
		}
		return target.resolveColumn(d.IDColumn)
	}

	if d.ForeignKey == "" {
		d.ForeignKey = plural.Singular(source.Table) + "_id"
	}
	return target.resolveColumn(d.ForeignKey)
}

func (g *Registry) fillManyToMany(source *FieldMapping, d *Descriptor) error {
	if d.Target == "" {
		d.Target = strcase.ToCamel(plural.Singular(d.Name))
	}
	target, err := resolveMapping(g.schema, g.types, d.Target)
	if err != nil {
		return err
	}

	// The join table cannot be inferred reliably from the two table names.
	if d.JoinTable == "" {
		return fmt.Errorf("relate: association %s requires an explicit join table", d.Name)
	}
	if d.JoinSourceKey == "" {
		d.JoinSourceKey = plural.Singular(source.Table) + "_id"
	}
	if d.JoinTargetKey == "" {
		d.JoinTargetKey = plural.Singular(target.Table) + "_id"
	}
	return nil
}

// Lookup returns the descriptor registered under (sourceType, name). A
// hierarchy variant inherits the associations of its ancestors, so the walk
// climbs toward the base until a registration is found.
func (g *Registry) Lookup(sourceType, name string) (Descriptor, error) {
	for t := sourceType; t != ""; {
		if byName, ok := g.assocs[t]; ok {
			if d, ok := byName[name]; ok {
				return d, nil
			}
		}
		if g.types == nil {
			break
		}
		v, ok := g.types.variants[t]
		if !ok {
			break
		}
		t = v.parent
	}
	return Descriptor{}, fmt.Errorf("%w: %s.%s", ErrUnknownAssociation, sourceType, name)
}

// AssociationsFor returns the descriptors of a source type, sorted by name.
func (g *Registry) AssociationsFor(sourceType string) []Descriptor {
	byName := g.assocs[sourceType]
	out := make([]Descriptor, 0, len(byName))
	for _, d := range byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Validate re-checks every registered descriptor once declarations are
// complete: through chains must resolve without cycles and every fixed
// target must be mapped. The engine refuses to become ready otherwise.
func (g *Registry) Validate() error {
	for sourceType, byName := range g.assocs {
		for _, d := range byName {
			if d.Kind == KindHasManyThrough {
				hops, err := g.flatten(sourceType, d, map[string]bool{})
				if err != nil {
					return err
				}
				// The chain is complete now, so the final target is known.
				d.Target = hops[len(hops)-1].desc.Target
				byName[d.Name] = d
				continue
			}
			if d.Target != "" {
				if _, err := resolveMapping(g.schema, g.types, d.Target); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// hop is one resolved step of a flattened through chain.
type hop struct {
	owner string // entity type the hop was declared on
	desc  Descriptor
}

// flatten expands a descriptor into its chain of direct hops. Through hops
// recurse on both the intermediate association and the continuation on the
// intermediate's target. The seen set keys on (type, name) so a chain that
// reaches itself, directly or transitively, fails with ErrCyclicAssociation
// instead of recursing forever.
func (g *Registry) flatten(sourceType string, d Descriptor, seen map[string]bool) ([]hop, error) {
	key := sourceType + "." + d.Name
	if seen[key] {
		return nil, fmt.Errorf("%w: %s", ErrCyclicAssociation, key)
	}
	seen[key] = true

	if d.Kind != KindHasManyThrough {
		return []hop{{owner: sourceType, desc: d}}, nil
	}

	intermediate, err := g.Lookup(sourceType, d.Through)
	if err != nil {
		return nil, err
	}
	head, err := g.flatten(sourceType, intermediate, seen)
	if err != nil {
		return nil, err
	}

	lastTarget := head[len(head)-1].desc.Target
	if lastTarget == "" {
		return nil, fmt.Errorf("relate: through association %s.%s crosses a polymorphic hop", sourceType, d.Name)
	}

	continuation, err := g.Lookup(lastTarget, d.Source)
	if err != nil {
		return nil, err
	}
	tail, err := g.flatten(lastTarget, continuation, seen)
	if err != nil {
		return nil, err
	}

	return append(head, tail...), nil
}

// isJoinTableColumn reports whether (table, column) is a declared join-table
// key of some many-to-many association. Join tables have no field mapping,
// so the compiler consults the registry for them.
func (g *Registry) isJoinTableColumn(table, column string) bool {
	for _, byName := range g.assocs {
		for _, d := range byName {
			if d.Kind != KindHasAndBelongsToMany || d.JoinTable != table {
				continue
			}
			if column == d.JoinSourceKey || column == d.JoinTargetKey {
				return true
			}
		}
	}
	return false
}

func isCycle(err error) bool {
	return errors.Is(err, ErrCyclicAssociation)
}

// resolveMapping looks up the mapping for an entity type, falling back to
// the hierarchy root's mapping for registered subtypes that share a table.
func resolveMapping(s *Schema, tr *TypeResolver, entityType string) (*FieldMapping, error) {
	m, err := s.MappingFor(entityType)
	if err == nil {
		return m, nil
	}
	if tr != nil && tr.isVariant(entityType) {
		if base := tr.baseOf(entityType); base != entityType {
			return s.MappingFor(base)
		}
	}
	return nil, err
}
