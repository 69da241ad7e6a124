// Package dot renders a built machine's state tree and transitions as
// Graphviz DOT, for feeding into `dot -Tsvg` or similar.
package dot

import (
	"fmt"
	"io"
	"strings"

	"github.com/orthohsm/hsm"
)

func id(qualifiedName string) string {
	return strings.NewReplacer("/", "_", "-", "_").Replace(strings.TrimPrefix(qualifiedName, "/"))
}

func label(n *hsm.StateNode) string {
	name := n.Name()
	if n.IsParallel() {
		return name + " (parallel)"
	}
	return name
}

func generateState(builder *strings.Builder, depth int, n *hsm.StateNode) {
	indent := strings.Repeat("  ", depth)
	nodeID := id(n.QualifiedName())
	if len(n.Children()) == 0 {
		fmt.Fprintf(builder, "%s%s [label=%q shape=box style=rounded];\n", indent, nodeID, label(n))
		return
	}
	fmt.Fprintf(builder, "%ssubgraph cluster_%s {\n", indent, nodeID)
	fmt.Fprintf(builder, "%s  label=%q;\n", indent, label(n))
	if n.IsParallel() {
		fmt.Fprintf(builder, "%s  style=dashed;\n", indent)
	}
	for _, c := range n.Children() {
		generateState(builder, depth+1, c)
	}
	fmt.Fprintf(builder, "%s}\n", indent)
}

func generateTransitions(builder *strings.Builder, n *hsm.StateNode, seen map[*hsm.StateNode]bool) {
	if seen[n] {
		return
	}
	seen[n] = true
	for _, events := range n.TransitionsByEvent() {
		for _, tr := range events {
			if tr.Target() == nil {
				fmt.Fprintf(builder, "  %s -> %s [label=%q style=dashed];\n", id(n.QualifiedName()), id(n.QualifiedName()), tr.Event())
				continue
			}
			fmt.Fprintf(builder, "  %s -> %s [label=%q];\n", id(n.QualifiedName()), id(tr.Target().QualifiedName()), tr.Event())
		}
	}
	for _, c := range n.Children() {
		generateTransitions(builder, c, seen)
	}
}

// Generate writes a DOT digraph describing m's state tree (as nested
// clusters, dashed for parallel regions) and its transitions (as labeled
// edges; targetless transitions appear as a dashed self-loop on their source).
func Generate(w io.Writer, m *hsm.Machine) error {
	var b strings.Builder
	fmt.Fprintln(&b, "digraph {")
	fmt.Fprintln(&b, "  compound=true;")
	generateState(&b, 1, m.Root())
	generateTransitions(&b, m.Root(), map[*hsm.StateNode]bool{})
	fmt.Fprintln(&b, "}")
	_, err := w.Write([]byte(b.String()))
	return err
}
