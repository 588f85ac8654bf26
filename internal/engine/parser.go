package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/shaiso/flowrun/internal/domain"
)

// LoadFile читает и валидирует документ с диска.
//
// Документ читается заново при каждом вызове, кэша нет.
// Все ошибки возвращаются как *DocumentError.
func LoadFile(path string) (*domain.FlowDocument, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &DocumentError{Path: path, Err: fmt.Errorf("%w: %v", ErrInvalidDocument, err)}
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &DocumentError{Path: abs, Err: ErrDocumentNotFound}
		}
		return nil, &DocumentError{Path: abs, Err: fmt.Errorf("%w: %v", ErrDocumentNotFound, err)}
	}

	doc, err := Parse(data, filepath.Dir(abs))
	if err != nil {
		var docErr *DocumentError
		if errors.As(err, &docErr) {
			docErr.Path = abs
		}
		return nil, err
	}
	doc.Path = abs

	return doc, nil
}

// Parse разбирает и валидирует документ.
// dir — базовая директория для относительных путей узлов.
func Parse(data []byte, dir string) (*domain.FlowDocument, error) {
	var doc domain.FlowDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &DocumentError{Err: fmt.Errorf("%w: %v", ErrInvalidDocument, err)}
	}
	doc.Dir = dir

	if err := Validate(&doc); err != nil {
		return nil, &DocumentError{Err: err}
	}

	return &doc, nil
}

// Validate выполняет полную валидацию документа.
//
// Проверяет:
//   - наличие узлов
//   - уникальность и непустоту ID
//   - известность типов узлов
//   - правила goto (выражение и существующая цель)
//   - рёбра (существующие узлы, без петель)
//   - ацикличность статического графа
func Validate(doc *domain.FlowDocument) error {
	if doc == nil || len(doc.Nodes) == 0 {
		return NewValidationError("", "nodes", "document has no nodes", ErrEmptyNodes)
	}

	ids := make(map[string]bool, len(doc.Nodes))
	for i := range doc.Nodes {
		if err := validateNode(&doc.Nodes[i], ids); err != nil {
			return err
		}
	}

	for i := range doc.Nodes {
		node := &doc.Nodes[i]
		for j, cond := range node.Conditions {
			if !ids[cond.Goto] {
				return NewValidationError(node.ID, "conditions",
					fmt.Sprintf("condition %d jumps to unknown node: %q", j, cond.Goto), ErrMissingNode)
			}
		}
	}

	for _, edge := range doc.Edges {
		if err := validateEdge(edge, ids); err != nil {
			return err
		}
	}

	if _, err := BuildGraph(doc); err != nil {
		return err
	}

	return nil
}

// validateNode проверяет отдельный узел.
// ids — уже встреченные ID (для проверки уникальности).
func validateNode(node *domain.Node, ids map[string]bool) error {
	if node.ID == "" {
		return NewValidationError("", "id",
			fmt.Sprintf("node %d has empty ID", node.Index), ErrEmptyNodeID)
	}

	if ids[node.ID] {
		return NewValidationError(node.ID, "id",
			fmt.Sprintf("duplicate node ID: %s", node.ID), ErrDuplicateNodeID)
	}
	ids[node.ID] = true

	if !node.Kind.IsValid() {
		return NewValidationError(node.ID, "type",
			fmt.Sprintf("unknown node kind: %q", node.Kind), ErrUnknownNodeKind)
	}

	if node.Kind == domain.KindGoto {
		for i, cond := range node.Conditions {
			if cond.Expr == "" {
				return NewValidationError(node.ID, "conditions",
					fmt.Sprintf("condition %d has empty expression", i), ErrBadCondition)
			}
			if cond.Goto == "" {
				return NewValidationError(node.ID, "conditions",
					fmt.Sprintf("condition %d has empty target", i), ErrBadCondition)
			}
		}
	}

	return nil
}

// validateEdge проверяет, что ребро ссылается на существующие узлы.
func validateEdge(edge domain.Edge, ids map[string]bool) error {
	if !ids[edge.Source] {
		return NewValidationError(edge.Target, "edges",
			fmt.Sprintf("edge %q from unknown node: %q", edge.ID, edge.Source), ErrMissingNode)
	}
	if !ids[edge.Target] {
		return NewValidationError(edge.Source, "edges",
			fmt.Sprintf("edge %q to unknown node: %q", edge.ID, edge.Target), ErrMissingNode)
	}
	if edge.Source == edge.Target {
		return NewValidationError(edge.Source, "edges",
			"edge points to its own source", ErrSelfLoop)
	}
	return nil
}

// ResolveCode возвращает исходный код узла: содержимое CodeFilePath
// (относительно dir), если путь задан, иначе Code.
func ResolveCode(node *domain.Node, dir string) (string, error) {
	if node.CodeFilePath == "" {
		return node.Code, nil
	}

	path := node.CodeFilePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: node %s: %v", ErrCodeFile, node.ID, err)
	}
	return string(data), nil
}

// CheckSources проверяет, что codeFilePath всех исполняемых узлов читается.
// Используется командой validate; при запуске код читает worker.
func CheckSources(doc *domain.FlowDocument) error {
	var errs []error
	for i := range doc.Nodes {
		node := &doc.Nodes[i]
		if node.Kind.IsControl() {
			continue
		}
		if _, err := ResolveCode(node, doc.Dir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ResolveFlowPath возвращает абсолютный путь вложенного документа
// относительно директории вызывающего документа.
func ResolveFlowPath(ref, dir string) (string, error) {
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	return filepath.Abs(path)
}
