package engine

import (
	"fmt"
	"log/slog"

	"github.com/shaiso/flowrun/internal/domain"
)

// ResolveEntry выбирает узел, с которого начинается обход.
//
// Приоритет:
//  1. узел с isStarterNode (первый по порядку создания, если их несколько)
//  2. если есть goto-узлы: корневой предок самого раннего goto-узла
//     (среди нескольких корней — самый ранний)
//  3. самый ранний узел без входящих рёбер
func ResolveEntry(g *Graph, logger *slog.Logger) (string, error) {
	var starters []string
	var firstGoto *domain.Node

	for i := range g.Doc.Nodes {
		node := &g.Doc.Nodes[i]
		if node.IsStarterNode {
			starters = append(starters, node.ID)
		}
		if node.Kind == domain.KindGoto && firstGoto == nil {
			firstGoto = node
		}
	}

	if len(starters) > 0 {
		if len(starters) > 1 {
			logger.Warn("several starter nodes, using the first one",
				"starters", starters,
				"entry", starters[0],
			)
		}
		return starters[0], nil
	}

	if firstGoto != nil {
		if roots := g.RootAncestors(firstGoto.ID); len(roots) > 0 {
			return roots[0], nil
		}
	}

	if len(g.Roots) > 0 {
		return g.Roots[0], nil
	}

	return "", &DocumentError{
		Path: g.Doc.Path,
		Err:  fmt.Errorf("%w: no starter node and no node without incoming edges", ErrNoEntryNode),
	}
}
