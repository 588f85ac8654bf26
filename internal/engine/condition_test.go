package engine

import "testing"

func TestEvalCondition(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		input any
		want  bool
	}{
		{"less than", "input < 10", float64(3), true},
		{"not less than", "input < 10", float64(15), false},
		{"greater or equal", "input >= 10", float64(15), true},
		{"numeric string via num", "num > 5", "7", true},
		{"num is null for text", "num == null", "abc", true},
		{"string equality", `input == "go"`, "go", true},
		{"object field", `input.status == "ok" && length(input.items) > 1`,
			map[string]any{"status": "ok", "items": []any{1.0, 2.0}}, true},
		{"logical or", "input == 1 || input == 2", float64(2), true},
		{"function", `upper(input) == "ABC"`, "abc", true},
		{"bool literal", "true", nil, true},
		{"zero is falsy", "input", float64(0), false},
		{"non-empty string is truthy", "input", "x", true},
		{"null is falsy", "input", nil, false},
		{"num from bool", "num == 1", true, true},
		{"num from false", "num", false, false},

		// Выражения, которые HCL не принимает, вычисляются как JavaScript.
		{"js strict equality", `input === "ok"`, "ok", true},
		{"js strict inequality", `input !== "ok"`, "ok", false},
		{"js single quotes", `input == 'go'`, "go", true},
		{"js string length", "input.length > 2", "abcd", true},
		{"js array length", "input.items.length === 0", map[string]any{"items": []any{}}, true},
		{"js missing field is undefined", "input.nope == 1", map[string]any{"a": 1.0}, false},
		{"js object compared to number", "input < 10", map[string]any{"a": 1.0}, false},
		{"js num", "num * 2 === 8", "4", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvalCondition(tt.expr, tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("EvalCondition(%q, %v) = %v, want %v", tt.expr, tt.input, got, tt.want)
			}
		})
	}
}

func TestEvalCondition_Errors(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		input any
	}{
		{"syntax error", "input +* 2", float64(1)},
		{"unknown variable", "missing > 1", float64(1)},
		{"js exception", "input.a.b.c", map[string]any{"a": 1.0}},
		{"endless loop", "(function() { while (true) {} })()", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EvalCondition(tt.expr, tt.input); err == nil {
				t.Errorf("expected error for %q", tt.expr)
			}
		})
	}
}
