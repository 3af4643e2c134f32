package process

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/registry"
)

func skipWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
}

func TestRunner_Execute(t *testing.T) {
	skipWindows(t)
	r := NewRunner()
	r.Register(ProcessConfig{Name: "greet", Command: "sh", Args: []string{"-c", `echo "hello $AGENTGRAPH_ARG_NAME"`}})
	r.Register(ProcessConfig{Name: "json", Command: "sh", Args: []string{"-c", `echo '{"n": 2}'`}})
	r.Register(ProcessConfig{Name: "crash", Command: "sh", Args: []string{"-c", `echo boom >&2; exit 3`}})

	t.Run("Passes Arguments via Env Vars", func(t *testing.T) {
		out, err := r.Execute(context.Background(), "greet", map[string]any{"name": "ada"})
		require.NoError(t, err)
		assert.Equal(t, "hello ada", out)
	})

	t.Run("Parses JSON Output", func(t *testing.T) {
		out, err := r.Execute(context.Background(), "json", nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"n": 2.0}, out)
	})

	t.Run("Reports Exit Status and Stderr", func(t *testing.T) {
		_, err := r.Execute(context.Background(), "crash", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exit status 3")
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("Fails For Unregistered Command", func(t *testing.T) {
		_, err := r.Execute(context.Background(), "hacker_script", nil)
		var unknown *domain.UnknownToolError
		assert.ErrorAs(t, err, &unknown)
	})
}

func TestRunner_Timeout(t *testing.T) {
	skipWindows(t)
	r := NewRunner(WithGracePeriod(100 * time.Millisecond))
	r.Register(ProcessConfig{Name: "slow", Command: "sleep", Args: []string{"5"}, Timeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := r.Execute(context.Background(), "slow", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRunner_AttachToRegistry(t *testing.T) {
	skipWindows(t)
	path := filepath.Join(t.TempDir(), "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tools:
  - name: count
    description: Counts words
    command: sh
    args: ["-c", "echo $AGENTGRAPH_ARG_TEXT | wc -w"]
    params:
      text: string
    timeout: 5s
`), 0644))

	cfgs, err := LoadTools(path)
	require.NoError(t, err)
	require.Contains(t, cfgs, "count")
	assert.Equal(t, 5*time.Second, cfgs["count"].Timeout)

	reg := registry.NewRegistry()
	require.NoError(t, NewRunner(WithRegistry(cfgs)).Attach(reg))

	specs := reg.Specs()
	require.Len(t, specs, 1)
	assert.Equal(t, "Counts words", specs[0].Description)

	out, err := reg.Invoke(context.Background(), "count", map[string]any{"text": "one two three"})
	require.NoError(t, err)
	assert.Equal(t, "3", out)

	_, err = reg.Invoke(context.Background(), "count", map[string]any{})
	assert.Error(t, err, "text is required")
}

func TestLoadTools_Missing(t *testing.T) {
	cfgs, err := LoadTools(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfgs)
}

func TestRunner_BadParams(t *testing.T) {
	r := NewRunner()
	r.Register(ProcessConfig{Name: "x", Command: "true", Params: map[string]string{"a": "date"}})
	_, err := r.Tools()
	assert.Error(t, err)
}
