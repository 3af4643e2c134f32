package docs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/agentgraph/pkg/registry"
)

func newRegistry(t *testing.T) (*registry.Registry, *Workspace) {
	t.Helper()
	ws, err := New(t.TempDir())
	require.NoError(t, err)
	r := registry.NewRegistry()
	ws.Register(r)
	return r, ws
}

func invoke(t *testing.T, r *registry.Registry, name string, args map[string]any) any {
	t.Helper()
	out, err := r.Invoke(context.Background(), name, args)
	require.NoError(t, err)
	return out
}

func TestWorkspace_Specs(t *testing.T) {
	r, _ := newRegistry(t)
	var names []string
	for _, s := range r.Specs() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"create_outline", "edit_document", "list_files", "read_document", "write_document"}, names)
}

func TestWorkspace_OutlineAndRead(t *testing.T) {
	r, ws := newRegistry(t)

	out := invoke(t, r, "create_outline", map[string]any{
		"points":    []any{"Intro", "Body", "Conclusion"},
		"file_name": "outline.txt",
	})
	assert.Equal(t, "Outline saved to outline.txt", out)

	data, err := os.ReadFile(filepath.Join(ws.Root(), "outline.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1. Intro\n2. Body\n3. Conclusion\n", string(data))

	out = invoke(t, r, "read_document", map[string]any{"file_name": "outline.txt", "start": float64(1), "end": float64(2)})
	assert.Equal(t, "2. Body", out)

	out = invoke(t, r, "read_document", map[string]any{"file_name": "outline.txt"})
	assert.Equal(t, "1. Intro\n2. Body\n3. Conclusion", out)
}

func TestWorkspace_EditDocument(t *testing.T) {
	r, ws := newRegistry(t)
	invoke(t, r, "write_document", map[string]any{"content": "a\nb\nc\n", "file_name": "doc.md"})

	out := invoke(t, r, "edit_document", map[string]any{
		"file_name": "doc.md",
		"inserts":   map[string]any{"1": "first", "3": "middle"},
	})
	assert.Equal(t, "Document edited and saved to doc.md", out)

	data, err := os.ReadFile(filepath.Join(ws.Root(), "doc.md"))
	require.NoError(t, err)
	assert.Equal(t, "first\na\nmiddle\nb\nc\n", string(data))

	out = invoke(t, r, "edit_document", map[string]any{
		"file_name": "doc.md",
		"inserts":   map[string]any{"40": "late"},
	})
	assert.Equal(t, "Error: Line number 40 is out of range.", out)
}

func TestWorkspace_ListFiles(t *testing.T) {
	r, _ := newRegistry(t)
	assert.Equal(t, "No files found in the working directory.", invoke(t, r, "list_files", nil))

	invoke(t, r, "write_document", map[string]any{"content": "hello", "file_name": "a.txt"})
	assert.Equal(t, "Generated files:\na.txt (5 bytes)", invoke(t, r, "list_files", nil))
}

func TestWorkspace_RejectsEscapingPaths(t *testing.T) {
	r, _ := newRegistry(t)
	for _, name := range []string{"../secret.txt", "/etc/passwd", ""} {
		_, err := r.Invoke(context.Background(), "write_document", map[string]any{"content": "x", "file_name": name})
		assert.Error(t, err, name)
	}
}

func TestWorkspace_ReadMissing(t *testing.T) {
	r, _ := newRegistry(t)
	_, err := r.Invoke(context.Background(), "read_document", map[string]any{"file_name": "missing.txt"})
	assert.ErrorContains(t, err, "failed to read document")
}
