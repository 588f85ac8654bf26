package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shaiso/flowrun/internal/domain"
)

const chainJSON = `{
  "nodes": [
    {"id": "a", "type": "custom", "data": {"type": "constant", "value": 5, "label": "five"}},
    {"id": "b", "type": "javascript", "data": {"code": "return input * 2", "timeout": 1500}}
  ],
  "edges": [{"id": "e1", "source": "a", "target": "b"}]
}`

func TestParse_EditorFormat(t *testing.T) {
	d, err := Parse([]byte(chainJSON), "/flows")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if d.Dir != "/flows" {
		t.Errorf("expected dir /flows, got %q", d.Dir)
	}
	if d.Nodes[0].Kind != domain.KindConstant {
		t.Errorf("data.type should win over type, got %q", d.Nodes[0].Kind)
	}
	if d.Nodes[0].Value != float64(5) {
		t.Errorf("expected value 5, got %v", d.Nodes[0].Value)
	}
	// Тип из верхнего уровня, если data.type пуст.
	if d.Nodes[1].Kind != domain.KindJavaScript {
		t.Errorf("expected javascript kind, got %q", d.Nodes[1].Kind)
	}
	if d.Nodes[1].TimeoutMs != 1500 || d.Nodes[1].Index != 1 {
		t.Errorf("unexpected node b: %+v", d.Nodes[1])
	}
}

func TestParse_MalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"nodes": [`), "")

	var docErr *DocumentError
	if !errors.As(err, &docErr) {
		t.Fatalf("expected DocumentError, got %T", err)
	}
	if !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("expected ErrInvalidDocument, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  *domain.FlowDocument
		want error
	}{
		{
			name: "nil document",
			doc:  nil,
			want: ErrEmptyNodes,
		},
		{
			name: "no nodes",
			doc:  &domain.FlowDocument{},
			want: ErrEmptyNodes,
		},
		{
			name: "empty id",
			doc:  doc([]domain.Node{{ID: ""}}),
			want: ErrEmptyNodeID,
		},
		{
			name: "duplicate id",
			doc:  doc([]domain.Node{{ID: "a"}, {ID: "a"}}),
			want: ErrDuplicateNodeID,
		},
		{
			name: "unknown kind",
			doc:  doc([]domain.Node{{ID: "a", Kind: "cobol"}}),
			want: ErrUnknownNodeKind,
		},
		{
			name: "goto without expression",
			doc: doc([]domain.Node{
				{ID: "g", Kind: domain.KindGoto, Conditions: []domain.Condition{{Goto: "a"}}},
				{ID: "a"},
			}),
			want: ErrBadCondition,
		},
		{
			name: "goto to unknown node",
			doc: doc([]domain.Node{
				{ID: "g", Kind: domain.KindGoto, Conditions: []domain.Condition{{Expr: "true", Goto: "nope"}}},
			}),
			want: ErrMissingNode,
		},
		{
			name: "edge to unknown node",
			doc:  doc([]domain.Node{{ID: "a"}}, [2]string{"a", "b"}),
			want: ErrMissingNode,
		},
		{
			name: "self loop",
			doc:  doc([]domain.Node{{ID: "a"}}, [2]string{"a", "a"}),
			want: ErrSelfLoop,
		},
		{
			name: "cycle",
			doc:  doc([]domain.Node{{ID: "a"}, {ID: "b"}}, [2]string{"a", "b"}, [2]string{"b", "a"}),
			want: ErrCyclicEdges,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.doc)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !errors.Is(err, ErrInvalidDocument) {
				t.Errorf("expected ErrInvalidDocument in chain, got %v", err)
			}

			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("expected ValidationError, got %T", err)
			}
		})
	}
}

func TestValidate_Valid(t *testing.T) {
	d := doc([]domain.Node{
		{ID: "a"},
		{ID: "g", Kind: domain.KindGoto, Conditions: []domain.Condition{{Expr: "input > 1", Goto: "a"}}},
	}, [2]string{"a", "g"})

	if err := Validate(d); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flow.json")
	if err := os.WriteFile(path, []byte(chainJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Path != path || d.Dir != dir {
		t.Errorf("unexpected path/dir: %q %q", d.Path, d.Dir)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))

	var docErr *DocumentError
	if !errors.As(err, &docErr) {
		t.Fatalf("expected DocumentError, got %T", err)
	}
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestLoadFile_InvalidSetsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"nodes": []}`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFile(path)

	var docErr *DocumentError
	if !errors.As(err, &docErr) {
		t.Fatalf("expected DocumentError, got %T", err)
	}
	if docErr.Path != path {
		t.Errorf("expected path %q, got %q", path, docErr.Path)
	}
	if !errors.Is(err, ErrEmptyNodes) {
		t.Errorf("expected ErrEmptyNodes, got %v", err)
	}
}

func TestResolveCode(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "job.py"), []byte("return 1"), 0o644); err != nil {
		t.Fatal(err)
	}

	code, err := ResolveCode(&domain.Node{ID: "n", Code: "inline", CodeFilePath: "job.py"}, dir)
	if err != nil || code != "return 1" {
		t.Errorf("expected file code, got %q, %v", code, err)
	}

	code, err = ResolveCode(&domain.Node{ID: "n", Code: "inline"}, dir)
	if err != nil || code != "inline" {
		t.Errorf("expected inline code, got %q, %v", code, err)
	}

	_, err = ResolveCode(&domain.Node{ID: "n", CodeFilePath: "missing.py"}, dir)
	if !errors.Is(err, ErrCodeFile) {
		t.Errorf("expected ErrCodeFile, got %v", err)
	}
}

func TestCheckSources(t *testing.T) {
	d := doc([]domain.Node{
		{ID: "c", CodeFilePath: "ignored-for-constants.txt"},
		{ID: "p", Kind: domain.KindPython, CodeFilePath: "missing.py"},
	})
	d.Dir = t.TempDir()

	if err := CheckSources(d); !errors.Is(err, ErrCodeFile) {
		t.Errorf("expected ErrCodeFile, got %v", err)
	}
}
