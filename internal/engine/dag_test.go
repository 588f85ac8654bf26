package engine

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/shaiso/flowrun/internal/domain"
)

// doc строит документ из узлов и рёбер source->target.
func doc(nodes []domain.Node, edges ...[2]string) *domain.FlowDocument {
	d := &domain.FlowDocument{Nodes: nodes, Edges: make([]domain.Edge, 0, len(edges))}
	for i := range d.Nodes {
		d.Nodes[i].Index = i
		if d.Nodes[i].Kind == "" {
			d.Nodes[i].Kind = domain.KindConstant
		}
	}
	for _, e := range edges {
		d.Edges = append(d.Edges, domain.Edge{ID: e[0] + "-" + e[1], Source: e[0], Target: e[1]})
	}
	return d
}

func TestBuildGraph_SimpleChain(t *testing.T) {
	g, err := BuildGraph(doc([]domain.Node{{ID: "A"}, {ID: "B"}, {ID: "C"}},
		[2]string{"A", "B"}, [2]string{"B", "C"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if g.Size() != 3 {
		t.Errorf("expected 3 nodes, got %d", g.Size())
	}
	if diff := cmp.Diff([]string{"A"}, g.Roots); diff != "" {
		t.Errorf("roots mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"A", "B", "C"}, g.Order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"B"}, g.Predecessors("C")); diff != "" {
		t.Errorf("predecessors mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildGraph_Diamond(t *testing.T) {
	// A → B → D
	// A → C → D
	g, err := BuildGraph(doc([]domain.Node{{ID: "A"}, {ID: "B"}, {ID: "C"}, {ID: "D"}},
		[2]string{"A", "B"}, [2]string{"A", "C"}, [2]string{"C", "D"}, [2]string{"B", "D"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Порядок рёбер сохраняется.
	if diff := cmp.Diff([]string{"C", "B"}, g.Predecessors("D")); diff != "" {
		t.Errorf("predecessors of D mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"B", "C"}, g.Successors("A")); diff != "" {
		t.Errorf("successors of A mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildGraph_DuplicateEdgesCollapse(t *testing.T) {
	g, err := BuildGraph(doc([]domain.Node{{ID: "A"}, {ID: "B"}},
		[2]string{"A", "B"}, [2]string{"A", "B"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g.Predecessors("B")) != 1 {
		t.Errorf("expected 1 predecessor, got %v", g.Predecessors("B"))
	}
}

func TestBuildGraph_RootsInCreationOrder(t *testing.T) {
	g, err := BuildGraph(doc([]domain.Node{{ID: "z"}, {ID: "a"}, {ID: "m"}}, [2]string{"z", "m"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"z", "a"}, g.Roots); diff != "" {
		t.Errorf("roots mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildGraph_Cycle(t *testing.T) {
	_, err := BuildGraph(doc([]domain.Node{{ID: "A"}, {ID: "B"}, {ID: "C"}},
		[2]string{"A", "B"}, [2]string{"B", "C"}, [2]string{"C", "B"}))
	if !errors.Is(err, ErrCyclicEdges) {
		t.Fatalf("expected ErrCyclicEdges, got %v", err)
	}
	if !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("cycle should be an invalid document error, got %v", err)
	}
}

func TestBuildGraph_UnknownNode(t *testing.T) {
	_, err := BuildGraph(doc([]domain.Node{{ID: "A"}}, [2]string{"A", "ghost"}))
	if !errors.Is(err, ErrMissingNode) {
		t.Fatalf("expected ErrMissingNode, got %v", err)
	}
}

func TestGraph_RootAncestors(t *testing.T) {
	// r2 создан раньше r1, оба — предки G.
	g, err := BuildGraph(doc([]domain.Node{{ID: "r2"}, {ID: "r1"}, {ID: "x"}, {ID: "G"}},
		[2]string{"r1", "x"}, [2]string{"x", "G"}, [2]string{"r2", "G"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff([]string{"r2", "r1"}, g.RootAncestors("G")); diff != "" {
		t.Errorf("root ancestors mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"r1"}, g.RootAncestors("r1")); diff != "" {
		t.Errorf("root is its own ancestor (-want +got):\n%s", diff)
	}
}
