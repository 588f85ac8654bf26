package backend

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/flowrun/internal/domain"
	"github.com/shaiso/flowrun/internal/process"
	"github.com/shaiso/flowrun/internal/telemetry"
)

// --- Registry Tests ---

func TestRegistry_Defaults(t *testing.T) {
	r := NewRegistry(process.NewManager(telemetry.Discard()))

	assert.Equal(t, []string{"javascript", "node", "powershell", "python", "shell"}, r.Kinds())

	_, err := r.Get(domain.KindConstant)
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestResolveSource_CodeFilePath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.js"), []byte("return 1"), 0o644))

	src, err := ResolveSource(&domain.Job{Code: "ignored", CodeFilePath: "main.js", BasePath: dir})
	require.NoError(t, err)
	assert.Equal(t, "return 1", src)

	_, err = ResolveSource(&domain.Job{CodeFilePath: "missing.js", BasePath: dir})
	require.ErrorIs(t, err, ErrCodeFile)
}

// --- JavaScriptBackend Tests ---

func runJS(t *testing.T, ctx context.Context, code string, input any) (*RawResult, error) {
	t.Helper()
	b := NewJavaScriptBackend()
	req, err := b.Prepare(&domain.Job{ID: "js", Kind: domain.KindJavaScript, Code: code, Input: input})
	require.NoError(t, err)
	defer req.Cleanup()
	return b.Run(ctx, req)
}

func TestJavaScript_ReturnValue(t *testing.T) {
	res, err := runJS(t, context.Background(), "return input * 2", float64(5))
	require.NoError(t, err)
	assert.Empty(t, res.Error)
	assert.Equal(t, float64(10), res.Output)
}

func TestJavaScript_ObjectInputAndConsole(t *testing.T) {
	code := `
console.log("name is", input.name);
console.warn("careful");
return {greeting: "hi " + input.name, n: input.items.length};
`
	input := map[string]any{"name": "ann", "items": []any{1.0, 2.0, 3.0}}

	res, err := runJS(t, context.Background(), code, input)
	require.NoError(t, err)
	assert.Empty(t, res.Error)
	assert.Equal(t, map[string]any{"greeting": "hi ann", "n": float64(3)}, res.Output)
	assert.Equal(t, "name is ann\n[warn] careful", res.Log)
}

func TestJavaScript_Throw(t *testing.T) {
	res, err := runJS(t, context.Background(), `throw new Error("boom")`, nil)
	require.NoError(t, err)
	assert.Contains(t, res.Error, "boom")
	assert.Nil(t, res.Output)
}

func TestJavaScript_Interrupted(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	time.AfterFunc(50*time.Millisecond, func() { cancel(domain.ErrTerminatedByUser) })

	_, err := runJS(t, ctx, `while (true) {}`, nil)
	require.ErrorIs(t, err, domain.ErrTerminatedByUser)
}

// --- ScriptBackend Tests ---

func shellBackend(t *testing.T) *ScriptBackend {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("sh scripts only")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	for _, spec := range DefaultScriptSpecs() {
		if spec.Kind == domain.KindShell {
			return NewScriptBackend(spec, process.NewManager(telemetry.Discard()))
		}
	}
	t.Fatal("shell spec missing")
	return nil
}

func runScript(t *testing.T, b *ScriptBackend, job *domain.Job) (*RawResult, *Request, error) {
	t.Helper()
	m := b.procs
	req, err := b.Prepare(job)
	require.NoError(t, err)
	defer req.Cleanup()

	ctx, release, err := m.Track(context.Background(), job.ID, 0)
	require.NoError(t, err)
	defer release()

	res, err := b.Run(ctx, req)
	return res, req, err
}

func TestShell_StdoutJSON(t *testing.T) {
	b := shellBackend(t)

	res, _, err := runScript(t, b, &domain.Job{ID: "sh-1", Kind: domain.KindShell, Code: `echo '{"a": 1}'`})
	require.NoError(t, err)
	assert.Empty(t, res.Error)
	assert.Equal(t, map[string]any{"a": float64(1)}, res.Output)
}

func TestShell_OutputFileWinsOverStdout(t *testing.T) {
	b := shellBackend(t)

	code := `echo "progress"
printf '%s' "$FLOW_INPUT" > "$FLOW_OUTPUT_FILE"`
	res, _, err := runScript(t, b, &domain.Job{ID: "sh-2", Kind: domain.KindShell, Code: code, Input: []any{"x", 2.0}})
	require.NoError(t, err)
	assert.Empty(t, res.Error)
	assert.Equal(t, []any{"x", float64(2)}, res.Output)
	assert.Equal(t, "progress", res.Log)
}

func TestShell_BackgroundChildDoesNotDelayResult(t *testing.T) {
	b := shellBackend(t)

	start := time.Now()
	res, _, err := runScript(t, b, &domain.Job{ID: "sh-bg", Kind: domain.KindShell, Code: "sleep 30 &\necho 42"})
	require.NoError(t, err)
	assert.Empty(t, res.Error)
	assert.Equal(t, 42.0, res.Output)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestShell_NonZeroExit(t *testing.T) {
	b := shellBackend(t)

	res, _, err := runScript(t, b, &domain.Job{ID: "sh-3", Kind: domain.KindShell, Code: "echo bad >&2; exit 2"})
	require.NoError(t, err)
	assert.Equal(t, "bad", res.Error)
}

func TestShell_HeuristicCommandNotFound(t *testing.T) {
	b := shellBackend(t)

	res, _, err := runScript(t, b, &domain.Job{ID: "sh-4", Kind: domain.KindShell, Code: "flowrun_no_such_command_xyz\necho done"})
	require.NoError(t, err)
	assert.Contains(t, res.Error, "not found")
}

func TestShell_TempFilesRemoved(t *testing.T) {
	b := shellBackend(t)

	_, req, err := runScript(t, b, &domain.Job{ID: "sh-5", Kind: domain.KindShell, Code: "echo 1"})
	require.NoError(t, err)

	_, statErr := os.Stat(req.Script)
	assert.True(t, os.IsNotExist(statErr), "script should be removed after Cleanup")
}
