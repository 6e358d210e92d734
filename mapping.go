package relate

import (
	"fmt"
	"strings"

	"github.com/gertd/go-pluralize"
	"github.com/iancoleman/strcase"
)

var plural = pluralize.NewClient()

// ColumnType is the semantic type of a mapped column.
type ColumnType string

const (
	ColumnInteger ColumnType = "integer"
	ColumnFloat   ColumnType = "float"
	ColumnText    ColumnType = "text"
	ColumnBool    ColumnType = "bool"
	ColumnTime    ColumnType = "time"
	ColumnBinary  ColumnType = "binary"
)

// Column describes one mapped column of an entity's table.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// FieldMapping is the static table/column description for one entity type.
// It is built once at startup and never mutated afterwards, so concurrent
// readers need no locking.
type FieldMapping struct {
	EntityType    string
	Table         string
	Columns       []Column
	PrimaryKey    string
	Discriminator string

	byName map[string]int
}

// HasColumn reports whether name is a mapped column.
func (m *FieldMapping) HasColumn(name string) bool {
	_, ok := m.byName[name]
	return ok
}

// Column returns the mapped column with the given name.
func (m *FieldMapping) Column(name string) (Column, bool) {
	idx, ok := m.byName[name]
	if !ok {
		return Column{}, false
	}
	return m.Columns[idx], true
}

// ColumnNames returns the mapped column names in declaration order.
func (m *FieldMapping) ColumnNames() []string {
	names := make([]string, 0, len(m.Columns))
	for _, c := range m.Columns {
		names = append(names, c.Name)
	}
	return names
}

// resolveColumn validates that name refers to a mapped column.
func (m *FieldMapping) resolveColumn(name string) error {
	if m.HasColumn(name) {
		return nil
	}
	return fmt.Errorf("%w: %q is not a column of %s", ErrUnknownField, name, m.Table)
}

// MappingBuilder assembles a FieldMapping with a fluent API. Table name and
// primary key are inferred from the entity type name when not set
// explicitly.
type MappingBuilder struct {
	m    FieldMapping
	errs []error
}

// NewMapping starts a mapping for the given entity type. The table name
// defaults to the pluralized snake_case of the type name ("Widget" ->
// "widgets") and the primary key defaults to "id".
func NewMapping(entityType string) *MappingBuilder {
	return &MappingBuilder{
		m: FieldMapping{
			EntityType: entityType,
			Table:      plural.Plural(strcase.ToSnake(entityType)),
			PrimaryKey: "id",
		},
	}
}

// Table overrides the inferred table name.
func (b *MappingBuilder) Table(name string) *MappingBuilder {
	b.m.Table = name
	return b
}

// Column declares a non-nullable column.
func (b *MappingBuilder) Column(name string, typ ColumnType) *MappingBuilder {
	b.m.Columns = append(b.m.Columns, Column{Name: name, Type: typ})
	return b
}

// NullableColumn declares a nullable column.
func (b *MappingBuilder) NullableColumn(name string, typ ColumnType) *MappingBuilder {
	b.m.Columns = append(b.m.Columns, Column{Name: name, Type: typ, Nullable: true})
	return b
}

// PrimaryKey overrides the primary-key column name.
func (b *MappingBuilder) PrimaryKey(name string) *MappingBuilder {
	b.m.PrimaryKey = name
	return b
}

// Discriminator declares the single-table discriminator column.
func (b *MappingBuilder) Discriminator(name string) *MappingBuilder {
	b.m.Discriminator = name
	return b
}

// Build finalizes the mapping. The primary-key column is prepended when not
// declared explicitly; the discriminator column must be declared.
func (b *MappingBuilder) Build() (*FieldMapping, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if b.m.Table == "" {
		return nil, fmt.Errorf("relate: mapping for %s has no table name", b.m.EntityType)
	}

	m := b.m
	m.Columns = append([]Column(nil), b.m.Columns...)

	m.byName = make(map[string]int, len(m.Columns)+1)
	for i, c := range m.Columns {
		if _, dup := m.byName[c.Name]; dup {
			return nil, fmt.Errorf("relate: duplicate column %q in mapping for %s", c.Name, m.EntityType)
		}
		m.byName[c.Name] = i
	}

	if _, ok := m.byName[m.PrimaryKey]; !ok {
		m.Columns = append([]Column{{Name: m.PrimaryKey, Type: ColumnInteger}}, m.Columns...)
		m.byName = make(map[string]int, len(m.Columns))
		for i, c := range m.Columns {
			m.byName[c.Name] = i
		}
	}

	if m.Discriminator != "" {
		if _, ok := m.byName[m.Discriminator]; !ok {
			return nil, fmt.Errorf("relate: discriminator column %q not declared in mapping for %s",
				m.Discriminator, m.EntityType)
		}
	}

	return &m, nil
}

// MustBuild is Build for static declarations known to be well formed.
func (b *MappingBuilder) MustBuild() *FieldMapping {
	m, err := b.Build()
	if err != nil {
		panic(err)
	}
	return m
}

// Schema is the registry of field mappings, keyed by entity type. It is the
// mapping provider consumed by the compiler, the materializer and the
// association registry. Populate it during setup; it is read-only afterwards.
type Schema struct {
	mappings map[string]*FieldMapping
	byTable  map[string]*FieldMapping
}

// NewSchema builds a schema from the given mappings.
func NewSchema(mappings ...*FieldMapping) (*Schema, error) {
	s := &Schema{
		mappings: make(map[string]*FieldMapping, len(mappings)),
		byTable:  make(map[string]*FieldMapping, len(mappings)),
	}
	for _, m := range mappings {
		if err := s.add(m); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Schema) add(m *FieldMapping) error {
	if _, dup := s.mappings[m.EntityType]; dup {
		return fmt.Errorf("relate: duplicate mapping for entity type %s", m.EntityType)
	}
	s.mappings[m.EntityType] = m
	if _, shared := s.byTable[m.Table]; !shared {
		// Subtype mappings share the base table; first registration wins for
		// table-based lookups.
		s.byTable[m.Table] = m
	}
	return nil
}

// MappingFor returns the field mapping registered for the entity type.
func (s *Schema) MappingFor(entityType string) (*FieldMapping, error) {
	m, ok := s.mappings[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnmappedType, entityType)
	}
	return m, nil
}

// mappingForTable resolves a mapping by table name, used to validate
// qualified column references against joined tables.
func (s *Schema) mappingForTable(table string) (*FieldMapping, bool) {
	m, ok := s.byTable[table]
	return m, ok
}

// entityTypes returns the registered type names in no particular order.
func (s *Schema) entityTypes() []string {
	types := make([]string, 0, len(s.mappings))
	for t := range s.mappings {
		types = append(types, t)
	}
	return types
}

// qualify prefixes a column with a table name unless already qualified.
func qualify(table, column string) string {
	if strings.Contains(column, ".") {
		return column
	}
	return table + "." + column
}
