package backend

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"

	"github.com/shaiso/flowrun/internal/domain"
)

func TestDecodeOutput(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{"empty", "  \n", nil},
		{"number", "42\n", float64(42)},
		{"object", `{"a":[1,"b"]}`, map[string]any{"a": []any{float64(1), "b"}}},
		{"plain text", "  hello world \n", "hello world"},
		{"not json", "{broken", "{broken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeOutput([]byte(tt.in))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DecodeOutput mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDetectError(t *testing.T) {
	tests := []struct {
		name   string
		kind   domain.NodeKind
		output string
		want   string
	}{
		{
			name:   "shell not found",
			kind:   domain.KindShell,
			output: "start\nsh: 1: foo: not found\nend",
			want:   "sh: 1: foo: not found",
		},
		{
			name:   "bash command not found",
			kind:   domain.KindShell,
			output: "bash: line 1: foo: command not found",
			want:   "bash: line 1: foo: command not found",
		},
		{
			name:   "powershell category info",
			kind:   domain.KindPowerShell,
			output: "Get-Item : Cannot find path\n    + CategoryInfo          : ObjectNotFound\n",
			want:   "+ CategoryInfo          : ObjectNotFound",
		},
		{
			name:   "python traceback",
			kind:   domain.KindPython,
			output: "Traceback (most recent call last):\n  File x\nValueError: no",
			want:   "Traceback (most recent call last):",
		},
		{
			name:   "clean output",
			kind:   domain.KindShell,
			output: "all good",
			want:   "",
		},
		{
			name:   "kind without patterns",
			kind:   domain.KindJavaScript,
			output: "Error: whatever",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectError(tt.kind, tt.output); got != tt.want {
				t.Errorf("DetectError() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadOutputFile(t *testing.T) {
	dir := t.TempDir()

	_, ok, err := ReadOutputFile(filepath.Join(dir, "missing.json"))
	if err != nil || ok {
		t.Fatalf("missing file: ok=%v err=%v", ok, err)
	}

	empty := filepath.Join(dir, "empty.json")
	os.WriteFile(empty, []byte("\n"), 0o644)
	if _, ok, _ := ReadOutputFile(empty); ok {
		t.Error("empty file should not count as output")
	}

	full := filepath.Join(dir, "out.json")
	os.WriteFile(full, []byte(`{"ok":true}`), 0o644)
	v, ok, err := ReadOutputFile(full)
	if err != nil || !ok {
		t.Fatalf("unexpected: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(map[string]any{"ok": true}, v); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderWrapper_PythonIndent(t *testing.T) {
	out, err := renderWrapper("python", pythonWrapper, "x = input * 2\n\nreturn x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "def __flow_main(input):\n    x = input * 2\n\n    return x\n"
	if !strings.Contains(out, want) {
		t.Errorf("wrapper does not contain indented body:\n%s", out)
	}

	out, err = renderWrapper("python", pythonWrapper, "   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "def __flow_main(input):\n    pass\n") {
		t.Errorf("empty body should become pass:\n%s", out)
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize(map[string]any{"n": int64(3), "l": []int{1, 2}})
	want := map[string]any{"n": float64(3), "l": []any{float64(1), float64(2)}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize mismatch (-want +got):\n%s", diff)
	}
	if Normalize(nil) != nil {
		t.Error("Normalize(nil) should be nil")
	}
}

func TestErrorMessage(t *testing.T) {
	if got := errorMessage(3, "  \n"); got != "process exited with code 3" {
		t.Errorf("empty stderr: got %q", got)
	}
	if got := errorMessage(1, "boom\n"); got != "boom" {
		t.Errorf("short stderr: got %q", got)
	}

	// Трёхбайтовые руны: граница обрезки попадает в середину руны.
	long := strings.Repeat("€", maxErrorLen)
	got := errorMessage(1, long)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated message is not valid UTF-8: %q", got[:10])
	}
	if !strings.HasPrefix(got, "...€") {
		t.Errorf("unexpected prefix: %q", got[:10])
	}
	if len(got) > maxErrorLen+len("...") {
		t.Errorf("message too long: %d", len(got))
	}
}
