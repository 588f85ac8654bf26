package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shaiso/flowrun/internal/backend"
	"github.com/shaiso/flowrun/internal/domain"
	"github.com/shaiso/flowrun/internal/telemetry"
)

// fakeSubmitter исполняет задачи встроенным JS backend'ом синхронно в Await.
type fakeSubmitter struct {
	mu        sync.Mutex
	js        *backend.JavaScriptBackend
	seq       int
	jobs      map[string]*domain.Job
	submitted []string // ID узлов в порядке отправки
	awaited   []string
	override  map[string]*domain.Result // ID узла → готовый результат
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{
		js:       backend.NewJavaScriptBackend(),
		jobs:     make(map[string]*domain.Job),
		override: make(map[string]*domain.Result),
	}
}

func (f *fakeSubmitter) Submit(_ context.Context, job *domain.Job) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	job.ID = fmt.Sprintf("job-%d", f.seq)
	f.jobs[job.ID] = job
	f.submitted = append(f.submitted, job.NodeID)
	return job.ID, nil
}

func (f *fakeSubmitter) Await(ctx context.Context, jobID string, _ time.Duration) (*domain.Result, error) {
	f.mu.Lock()
	job := f.jobs[jobID]
	f.awaited = append(f.awaited, job.NodeID)
	override := f.override[job.NodeID]
	f.mu.Unlock()

	if override != nil {
		res := *override
		res.ID = jobID
		return &res, nil
	}

	req, err := f.js.Prepare(job)
	if err != nil {
		return nil, err
	}
	defer req.Cleanup()

	raw, err := f.js.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return &domain.Result{ID: jobID, Output: raw.Output, Log: raw.Log, Error: raw.Error}, nil
}

func newTestEngine(sub Submitter) *Engine {
	return New(Config{Submitter: sub, Logger: telemetry.Discard()})
}

func js(id, code string) domain.Node {
	return domain.Node{ID: id, Kind: domain.KindJavaScript, Code: code}
}

func constant(id string, v any) domain.Node {
	return domain.Node{ID: id, Kind: domain.KindConstant, Value: v}
}

func gotoNode(id string, conds ...domain.Condition) domain.Node {
	return domain.Node{ID: id, Kind: domain.KindGoto, Conditions: conds}
}

func hasLine(logs []string, substr string) bool {
	for _, l := range logs {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

// --- Scenario Tests ---

func TestRun_ConstantIntoScript(t *testing.T) {
	sub := newFakeSubmitter()
	e := newTestEngine(sub)

	d := doc([]domain.Node{constant("A", float64(5)), js("B", "return input * 2")}, [2]string{"A", "B"})

	report, err := e.RunDocument(context.Background(), d, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Output != float64(10) {
		t.Errorf("expected output 10, got %v", report.Output)
	}
	// Constant не попадает в очередь.
	if diff := cmp.Diff([]string{"B"}, sub.submitted); diff != "" {
		t.Errorf("submitted mismatch (-want +got):\n%s", diff)
	}
	if report.Entry != "A" {
		t.Errorf("expected entry A, got %q", report.Entry)
	}
}

func TestRun_GotoRoutesByInput(t *testing.T) {
	build := func() *domain.FlowDocument {
		return doc([]domain.Node{
			gotoNode("G",
				domain.Condition{Expr: "input < 10", Goto: "X"},
				domain.Condition{Expr: "input >= 10", Goto: "Y"},
			),
			js("X", `return "x:" + input`),
			js("Y", `return "y:" + input`),
		})
	}

	tests := []struct {
		input    float64
		want     string
		executed []string
	}{
		{3, "x:3", []string{"G", "X"}},
		{15, "y:15", []string{"G", "Y"}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.input), func(t *testing.T) {
			e := newTestEngine(newFakeSubmitter())

			report, err := e.RunDocument(context.Background(), build(), tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if report.Output != tt.want {
				t.Errorf("expected %q, got %v", tt.want, report.Output)
			}
			if diff := cmp.Diff(tt.executed, report.Executed); diff != "" {
				t.Errorf("executed mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRun_GotoLoopRefreshesStaleNodes(t *testing.T) {
	// S → I → G → D; G возвращается в I, пока input < 3,
	// передавая свой вход (счётчик) через forwardInput.
	sub := newFakeSubmitter()
	e := newTestEngine(sub)

	d := doc([]domain.Node{
		constant("S", float64(0)),
		js("I", "return input + 1"),
		gotoNode("G", domain.Condition{Expr: "input < 3", Goto: "I", ForwardInput: true}),
		js("D", `return "done:" + input`),
	}, [2]string{"S", "I"}, [2]string{"I", "G"}, [2]string{"G", "D"})

	report, err := e.RunDocument(context.Background(), d, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Output != "done:3" {
		t.Errorf("expected done:3, got %v", report.Output)
	}
	want := []string{"S", "I", "G", "I", "G", "I", "G", "D"}
	if diff := cmp.Diff(want, report.Executed); diff != "" {
		t.Errorf("executed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"I", "I", "I", "D"}, sub.submitted); diff != "" {
		t.Errorf("submitted mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_GotoFallsThrough(t *testing.T) {
	d := doc([]domain.Node{
		gotoNode("G",
			domain.Condition{Expr: "input +* 2", Goto: "X"},
			domain.Condition{Expr: "input > 100", Goto: "X"},
		),
		js("X", `return "jumped"`),
		js("Z", `return "structural:" + input`),
	}, [2]string{"G", "Z"})

	report, err := newTestEngine(newFakeSubmitter()).RunDocument(context.Background(), d, float64(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Output != "structural:1" {
		t.Errorf("expected structural:1, got %v", report.Output)
	}
}

func TestRun_FirstTruthyRuleWins(t *testing.T) {
	d := doc([]domain.Node{
		gotoNode("G",
			domain.Condition{Expr: "missing_var", Goto: "A"},
			domain.Condition{Expr: "input == 1", Goto: "B"},
			domain.Condition{Expr: "true", Goto: "C"},
		),
		constant("A", "a"),
		constant("B", "b"),
		constant("C", "c"),
	})

	report, err := newTestEngine(nil).RunDocument(context.Background(), d, float64(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Output != "b" {
		t.Errorf("expected b, got %v", report.Output)
	}
}

func TestRun_AncestorsOfStarterRunOnce(t *testing.T) {
	// A → B → D, A → C → D; D — стартовый узел.
	sub := newFakeSubmitter()
	e := newTestEngine(sub)

	d := doc([]domain.Node{
		js("A", "return 1"),
		js("B", "return input + 1"),
		js("C", "return input + 10"),
		js("D", "return input[0] + input[1]"),
	}, [2]string{"A", "B"}, [2]string{"A", "C"}, [2]string{"B", "D"}, [2]string{"C", "D"})
	d.Nodes[3].IsStarterNode = true

	report, err := e.RunDocument(context.Background(), d, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Output != float64(13) {
		t.Errorf("expected 13, got %v", report.Output)
	}
	if diff := cmp.Diff([]string{"A", "B", "C", "D"}, sub.submitted); diff != "" {
		t.Errorf("submitted mismatch (-want +got):\n%s", diff)
	}
}

func TestEnsureExecuted_Idempotent(t *testing.T) {
	sub := newFakeSubmitter()
	e := newTestEngine(sub)

	d := doc([]domain.Node{constant("A", float64(2)), js("B", "return input * input")}, [2]string{"A", "B"})
	g, err := BuildGraph(d)
	if err != nil {
		t.Fatal(err)
	}
	s := newRunState(context.Background(), e, g, "A", nil, telemetry.Discard())

	for i := 0; i < 2; i++ {
		if err := s.ensureExecuted("B", false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if len(sub.submitted) != 1 {
		t.Errorf("expected one submission, got %v", sub.submitted)
	}
	if s.results["B"] != float64(4) {
		t.Errorf("expected 4, got %v", s.results["B"])
	}

	// force перевыполняет узел, но не его предшественников.
	if err := s.ensureExecuted("B", true); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"A", "B", "B"}, s.order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

// --- Budget Tests ---

func infiniteLoop() *domain.FlowDocument {
	return doc([]domain.Node{
		constant("I", float64(1)),
		gotoNode("G", domain.Condition{Expr: "true", Goto: "I"}),
	}, [2]string{"I", "G"})
}

func TestRun_StepBudgetStopsLoop(t *testing.T) {
	e := New(Config{StepBudget: 50, Logger: telemetry.Discard()})

	report, err := e.RunDocument(context.Background(), infiniteLoop(), nil)
	if err != nil {
		t.Fatalf("budget exhaustion should not be an error: %v", err)
	}
	if report.Steps != 50 {
		t.Errorf("expected 50 steps, got %d", report.Steps)
	}
	if !hasLine(report.Logs, "step budget exhausted") {
		t.Errorf("expected budget warning in logs: %v", report.Logs)
	}
	if report.Output != float64(1) {
		t.Errorf("expected output 1, got %v", report.Output)
	}
}

func TestRun_VisitCapSkipsNode(t *testing.T) {
	e := New(Config{VisitCap: 3, Logger: telemetry.Discard()})

	report, err := e.RunDocument(context.Background(), infiniteLoop(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Steps != 6 {
		t.Errorf("expected 6 steps, got %d", report.Steps)
	}
	if !hasLine(report.Logs, "visit cap exceeded") {
		t.Errorf("expected visit cap warning in logs: %v", report.Logs)
	}
}

// --- Job Dispatch Tests ---

func TestRun_DontWaitForOutput(t *testing.T) {
	sub := newFakeSubmitter()
	e := newTestEngine(sub)

	fire := js("F", "return 42")
	fire.DontWaitForOutput = true
	d := doc([]domain.Node{constant("A", "payload"), fire}, [2]string{"A", "F"})

	report, err := e.RunDocument(context.Background(), d, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Output != "payload" {
		t.Errorf("placeholder should echo input, got %v", report.Output)
	}
	if len(sub.submitted) != 1 || len(sub.awaited) != 0 {
		t.Errorf("expected submit without await, got submitted=%v awaited=%v", sub.submitted, sub.awaited)
	}
}

func TestRun_BackendErrorAbortsTraversal(t *testing.T) {
	sub := newFakeSubmitter()
	e := newTestEngine(sub)

	d := doc([]domain.Node{
		js("A", `console.log("before"); throw new Error("boom")`),
		js("B", "return 1"),
	}, [2]string{"A", "B"})

	report, err := e.RunDocument(context.Background(), d, nil)

	var nodeErr *NodeError
	if !errors.As(err, &nodeErr) || nodeErr.NodeID != "A" {
		t.Fatalf("expected NodeError for A, got %v", err)
	}
	if !errors.Is(err, ErrBackendFailed) {
		t.Errorf("expected ErrBackendFailed, got %v", err)
	}
	if diff := cmp.Diff([]string{"A"}, sub.submitted); diff != "" {
		t.Errorf("B must not run (-want +got):\n%s", diff)
	}
	if !hasLine(report.Logs, "[A] before") {
		t.Errorf("logs should be returned on failure: %v", report.Logs)
	}
}

func TestRun_TerminatedByUser(t *testing.T) {
	sub := newFakeSubmitter()
	sub.override["A"] = &domain.Result{Error: domain.MsgTerminatedByUser}

	_, err := newTestEngine(sub).RunDocument(context.Background(), doc([]domain.Node{js("A", "")}), nil)
	if !errors.Is(err, domain.ErrTerminatedByUser) {
		t.Fatalf("expected ErrTerminatedByUser, got %v", err)
	}
	if errors.Is(err, ErrBackendFailed) {
		t.Error("cancellation must not be reported as backend failure")
	}
}

func TestRun_NoSubmitter(t *testing.T) {
	_, err := newTestEngine(nil).RunDocument(context.Background(), doc([]domain.Node{js("A", "return 1")}), nil)
	if !errors.Is(err, ErrNoSubmitter) {
		t.Fatalf("expected ErrNoSubmitter, got %v", err)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine(nil).RunDocument(ctx, doc([]domain.Node{constant("A", 1.0)}), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// --- Nested Flow Tests ---

func writeFlow(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_NestedFlow(t *testing.T) {
	dir := t.TempDir()
	writeFlow(t, dir, "child.json", `{
  "nodes": [{"id": "triple", "type": "javascript", "data": {"code": "console.log('in child'); return input * 3"}}],
  "edges": []
}`)
	parent := writeFlow(t, dir, "parent.json", `{
  "nodes": [
    {"id": "seed", "data": {"type": "constant", "value": 7}},
    {"id": "sub", "data": {"type": "flow", "codeFilePath": "child.json"}}
  ],
  "edges": [{"source": "seed", "target": "sub"}]
}`)

	report, err := newTestEngine(newFakeSubmitter()).Run(context.Background(), parent, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Output != float64(21) {
		t.Errorf("expected 21, got %v", report.Output)
	}
	if !hasLine(report.Logs, "[sub] [triple] in child") {
		t.Errorf("nested logs should be merged: %v", report.Logs)
	}
}

func TestRun_InlineNestedFlow(t *testing.T) {
	d := doc([]domain.Node{
		constant("seed", "hi"),
		{ID: "sub", Kind: domain.KindFlow, Code: `{"nodes": [{"id": "c", "data": {"type": "constant", "value": "inner"}}]}`},
	}, [2]string{"seed", "sub"})

	report, err := newTestEngine(nil).RunDocument(context.Background(), d, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Output != "inner" {
		t.Errorf("expected inner, got %v", report.Output)
	}
}

func TestRun_CircularFlowReference(t *testing.T) {
	dir := t.TempDir()
	self := writeFlow(t, dir, "self.json", `{
  "nodes": [{"id": "again", "data": {"type": "flow", "codeFilePath": "./self.json"}}],
  "edges": []
}`)

	done := make(chan struct{})
	var (
		report *Report
		err    error
	)
	go func() {
		report, err = newTestEngine(nil).Run(context.Background(), self, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("self-referencing flow did not return")
	}

	if err != nil {
		t.Fatalf("circular reference is not an error: %v", err)
	}
	if report.Output != nil {
		t.Errorf("expected nil output, got %v", report.Output)
	}
	if !hasLine(report.Logs, "circular flow reference") {
		t.Errorf("expected circular reference warning: %v", report.Logs)
	}
}

func TestRun_TransitiveCircularReference(t *testing.T) {
	dir := t.TempDir()
	a := writeFlow(t, dir, "a.json", `{"nodes": [{"id": "toB", "data": {"type": "flow", "codeFilePath": "b.json"}}]}`)
	writeFlow(t, dir, "b.json", `{"nodes": [{"id": "toA", "data": {"type": "flow", "codeFilePath": "a.json"}}]}`)

	report, err := newTestEngine(nil).Run(context.Background(), a, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasLine(report.Logs, "[toB] warning: circular flow reference") {
		t.Errorf("expected nested circular warning: %v", report.Logs)
	}
}

func TestRun_MissingDocument(t *testing.T) {
	_, err := newTestEngine(nil).Run(context.Background(), filepath.Join(t.TempDir(), "nope.json"), nil)

	var docErr *DocumentError
	if !errors.As(err, &docErr) || !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected DocumentError with ErrDocumentNotFound, got %v", err)
	}
}
