package relate

import (
	"strings"
	"testing"
)

func TestPrintSchematic(t *testing.T) {
	e := newTestEngine(t, nil)

	var out strings.Builder
	e.PrintSchematic(&out)
	rendered := out.String()

	for _, want := range []string{
		"SQL Dialect: sqlite3",
		"Widget (table widgets)",
		"Widget 1-N Gadget via widget_id",
		"Widget N-N Tag via widgets_tags (widget_id, tag_id)",
		"Widget 1-N Sprocket through gadgets (source sprockets)",
		"Control N-1 <displayable> via (displayable_type, displayable_id)",
		"subtype GoldBadge",
	} {
		if !strings.Contains(rendered, want) {
			t.Errorf("expected %q in schematic output:\n%s", want, rendered)
		}
	}
}
