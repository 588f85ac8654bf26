package engine

import (
	"fmt"
	"slices"

	"github.com/shaiso/flowrun/internal/domain"
)

// Graph — индекс flow-документа для обхода.
//
// Порядок рёбер в Incoming/Outgoing совпадает с порядком в документе:
// от него зависят порядок входов узла и порядок обхода наследников.
type Graph struct {
	// Doc — исходный документ.
	Doc *domain.FlowDocument

	// Nodes — узлы по ID.
	Nodes map[string]*domain.Node

	// Incoming — предшественники узла (source рёбер с target = id).
	Incoming map[string][]string

	// Outgoing — наследники узла (target рёбер с source = id).
	Outgoing map[string][]string

	// Roots — узлы без входящих рёбер в порядке создания.
	Roots []string

	// Order — топологический порядок (алгоритм Кана).
	Order []string
}

// BuildGraph строит индекс документа.
//
// Повторяющиеся рёбра схлопываются. Цикл в статических рёбрах
// возвращает *ValidationError с ErrCyclicEdges.
func BuildGraph(doc *domain.FlowDocument) (*Graph, error) {
	g := &Graph{
		Doc:      doc,
		Nodes:    make(map[string]*domain.Node, len(doc.Nodes)),
		Incoming: make(map[string][]string, len(doc.Nodes)),
		Outgoing: make(map[string][]string, len(doc.Nodes)),
	}

	for i := range doc.Nodes {
		node := &doc.Nodes[i]
		g.Nodes[node.ID] = node
	}

	seen := make(map[[2]string]bool, len(doc.Edges))
	for _, edge := range doc.Edges {
		if g.Nodes[edge.Source] == nil || g.Nodes[edge.Target] == nil {
			return nil, NewValidationError(edge.Source, "edges",
				fmt.Sprintf("edge %s -> %s references unknown node", edge.Source, edge.Target), ErrMissingNode)
		}
		key := [2]string{edge.Source, edge.Target}
		if seen[key] {
			continue
		}
		seen[key] = true
		g.Outgoing[edge.Source] = append(g.Outgoing[edge.Source], edge.Target)
		g.Incoming[edge.Target] = append(g.Incoming[edge.Target], edge.Source)
	}

	for i := range doc.Nodes {
		if id := doc.Nodes[i].ID; len(g.Incoming[id]) == 0 {
			g.Roots = append(g.Roots, id)
		}
	}

	order, err := g.topologicalSort()
	if err != nil {
		return nil, err
	}
	g.Order = order

	return g, nil
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
// Возвращает ошибку, если обнаружен цикл.
func (g *Graph) topologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	for id := range g.Nodes {
		inDegree[id] = len(g.Incoming[id])
	}

	queue := make([]string, len(g.Roots))
	copy(queue, g.Roots)

	order := make([]string, 0, len(g.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		for _, next := range g.Outgoing[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	// Если не все узлы обработаны — есть цикл
	if len(order) != len(g.Nodes) {
		return nil, NewValidationError("", "edges",
			fmt.Sprintf("cyclic edges: %d of %d nodes sorted", len(order), len(g.Nodes)), ErrCyclicEdges)
	}

	return order, nil
}

// Node возвращает узел по ID.
func (g *Graph) Node(id string) *domain.Node {
	return g.Nodes[id]
}

// Predecessors возвращает предшественников узла в порядке рёбер.
func (g *Graph) Predecessors(id string) []string {
	return g.Incoming[id]
}

// Successors возвращает наследников узла в порядке рёбер.
func (g *Graph) Successors(id string) []string {
	return g.Outgoing[id]
}

// Size возвращает количество узлов.
func (g *Graph) Size() int {
	return len(g.Nodes)
}

// RootAncestors возвращает предков узла без входящих рёбер,
// отсортированные по порядку создания. Узел без входящих рёбер
// сам является своим корнем.
func (g *Graph) RootAncestors(id string) []string {
	visited := map[string]bool{id: true}
	stack := []string{id}
	var roots []*domain.Node

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		preds := g.Incoming[cur]
		if len(preds) == 0 {
			roots = append(roots, g.Nodes[cur])
			continue
		}
		for _, p := range preds {
			if !visited[p] {
				visited[p] = true
				stack = append(stack, p)
			}
		}
	}

	slices.SortFunc(roots, func(a, b *domain.Node) int { return a.Index - b.Index })

	ids := make([]string, 0, len(roots))
	for _, n := range roots {
		ids = append(ids, n.ID)
	}
	return ids
}
