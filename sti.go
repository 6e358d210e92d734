package relate

import (
	"fmt"
	"sort"
)

// subtype is one node of a single-table inheritance hierarchy.
type subtype struct {
	name     string // entity type name, also the stored discriminator value
	parent   string // "" for a hierarchy root
	base     string // root entity type whose mapping owns the shared table
	children []string
}

// TypeResolver maps discriminator values to concrete entity types and back.
// The map is populated during setup and sealed when the engine is
// constructed; after sealing it is immutable, so concurrent lookups need no
// locking. Registering a variant after sealing fails: silently redefining a
// type while rows already carry its old discriminator would reinterpret
// stored data.
type TypeResolver struct {
	variants map[string]*subtype
	sealed   bool
}

// NewTypeResolver returns an empty resolver.
func NewTypeResolver() *TypeResolver {
	return &TypeResolver{variants: make(map[string]*subtype)}
}

// RegisterBase declares the root entity type of a shared table. The root's
// own discriminator value is its type name.
func (tr *TypeResolver) RegisterBase(entityType string) error {
	return tr.register(entityType, "")
}

// RegisterSubtype declares entityType as a variant stored in its parent's
// table. Parents may themselves be subtypes, forming hierarchies of more
// than one level. The discriminator value is the type name.
func (tr *TypeResolver) RegisterSubtype(entityType, parent string) error {
	if parent == "" {
		return fmt.Errorf("relate: subtype %s requires a parent type", entityType)
	}
	return tr.register(entityType, parent)
}

func (tr *TypeResolver) register(entityType, parent string) error {
	if tr.sealed {
		return fmt.Errorf("%w: cannot register %s", ErrResolverSealed, entityType)
	}
	if _, dup := tr.variants[entityType]; dup {
		return fmt.Errorf("relate: type %s registered twice", entityType)
	}

	base := entityType
	if parent != "" {
		p, ok := tr.variants[parent]
		if !ok {
			return fmt.Errorf("%w: parent %s of %s", ErrUnregisteredType, parent, entityType)
		}
		base = p.base
		p.children = append(p.children, entityType)
	}

	tr.variants[entityType] = &subtype{name: entityType, parent: parent, base: base}
	return nil
}

// seal closes the resolver before the first query.
func (tr *TypeResolver) seal() {
	tr.sealed = true
}

// ResolveType maps a stored discriminator value to the registered entity type.
func (tr *TypeResolver) ResolveType(value string) (string, error) {
	v, ok := tr.variants[value]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDiscriminator, value)
	}
	return v.name, nil
}

// DiscriminatorFor returns the stored discriminator value for an entity type.
func (tr *TypeResolver) DiscriminatorFor(entityType string) (string, error) {
	v, ok := tr.variants[entityType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnregisteredType, entityType)
	}
	return v.name, nil
}

// isVariant reports whether the entity type participates in a hierarchy.
func (tr *TypeResolver) isVariant(entityType string) bool {
	_, ok := tr.variants[entityType]
	return ok
}

// baseOf returns the hierarchy root owning the shared table, or the type
// itself when it is not a registered variant.
func (tr *TypeResolver) baseOf(entityType string) string {
	if v, ok := tr.variants[entityType]; ok {
		return v.base
	}
	return entityType
}

// descendantValues returns the discriminator values of the type and all of
// its registered descendants, sorted for deterministic compilation.
func (tr *TypeResolver) descendantValues(entityType string) []string {
	v, ok := tr.variants[entityType]
	if !ok {
		return nil
	}

	values := []string{v.name}
	for i := 0; i < len(values); i++ {
		if node, ok := tr.variants[values[i]]; ok {
			values = append(values, node.children...)
		}
	}
	sort.Strings(values[1:])
	return values
}

// scopedPredicate yields the filter fragment that narrows the shared table
// to the given subtype and its descendants. Querying the hierarchy root
// needs no narrowing: the root owns every row of the table.
func (tr *TypeResolver) scopedPredicate(entityType string, m *FieldMapping) (predicate, bool) {
	v, ok := tr.variants[entityType]
	if !ok || v.parent == "" || m.Discriminator == "" {
		return predicate{}, false
	}

	values := tr.descendantValues(entityType)
	if len(values) == 1 {
		return predicate{column: m.Discriminator, op: "=", args: []any{values[0]}}, true
	}

	args := make([]any, len(values))
	for i, val := range values {
		args[i] = val
	}
	return predicate{column: m.Discriminator, op: "IN", args: args}, true
}

// registeredTypes returns every registered variant name, sorted.
func (tr *TypeResolver) registeredTypes() []string {
	names := make([]string, 0, len(tr.variants))
	for name := range tr.variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
