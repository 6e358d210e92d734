package relate

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/table"
)

// PrintSchematic renders every mapping, its associations and the subtype
// hierarchy to w in a human-readable layout. Meant for debugging a schema
// setup, not for machine consumption.
func (e *Engine) PrintSchematic(w io.Writer) {
	fmt.Fprintf(w, "SQL Dialect: %s\n", e.dialect.DriverName)

	for _, entityType := range e.schema.entityTypes() {
		m, err := e.schema.MappingFor(entityType)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "%s (table %s)\n", entityType, m.Table)

		tw := table.NewWriter()
		tw.AppendHeader(table.Row{"Column", "Type", "Nullable", "Primary Key", "Discriminator"})
		for _, col := range m.Columns {
			tw.AppendRow(table.Row{
				col.Name,
				col.Type,
				col.Nullable,
				col.Name == m.PrimaryKey,
				col.Name == m.Discriminator,
			})
		}
		fmt.Fprintln(w, tw.Render())

		for _, d := range e.associations.AssociationsFor(entityType) {
			switch d.Kind {
			case KindBelongsTo:
				if d.Polymorphic {
					fmt.Fprintf(w, "%s N-1 <%s> via (%s, %s)\n", entityType, d.As, d.TypeColumn, d.IDColumn)
				} else {
					fmt.Fprintf(w, "%s N-1 %s via %s\n", entityType, d.Target, d.ForeignKey)
				}
			case KindHasMany:
				if d.Polymorphic {
					fmt.Fprintf(w, "%s 1-N %s as <%s> via (%s, %s)\n", entityType, d.Target, d.As, d.TypeColumn, d.IDColumn)
				} else {
					fmt.Fprintf(w, "%s 1-N %s via %s\n", entityType, d.Target, d.ForeignKey)
				}
			case KindHasManyThrough:
				fmt.Fprintf(w, "%s 1-N %s through %s (source %s)\n", entityType, d.Target, d.Through, d.Source)
			case KindHasAndBelongsToMany:
				fmt.Fprintf(w, "%s N-N %s via %s (%s, %s)\n", entityType, d.Target, d.JoinTable, d.JoinSourceKey, d.JoinTargetKey)
			}
		}

		if variants := e.subtypeLines(entityType); len(variants) > 0 {
			for _, line := range variants {
				fmt.Fprintln(w, line)
			}
		}
		fmt.Fprintln(w)
	}
}

// subtypeLines lists the registered variants rooted at a mapped type, one
// indented line per subtype with its discriminator value.
func (e *Engine) subtypeLines(entityType string) []string {
	var lines []string
	for _, t := range e.types.registeredTypes() {
		if t == entityType || e.types.baseOf(t) != entityType {
			continue
		}
		disc, err := e.types.DiscriminatorFor(t)
		if err != nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("  subtype %s (discriminator %q)", t, disc))
	}
	return lines
}
