// Package docs provides document tools bound to one working directory: outline
// creation, reading, writing, line insertion and listing.
package docs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/registry"
	"github.com/aretw0/agentgraph/pkg/schema"
)

// Workspace confines file operations to a directory.
type Workspace struct {
	root string
}

// New creates the directory if needed and returns a workspace rooted at it.
func New(dir string) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid workspace path: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute workspace directory.
func (w *Workspace) Root() string { return w.root }

func (w *Workspace) resolve(name string) (string, error) {
	if name == "" || !filepath.IsLocal(name) {
		return "", fmt.Errorf("file name %q must be a relative path inside the workspace", name)
	}
	return filepath.Join(w.root, name), nil
}

// Tools returns the workspace tools.
func (w *Workspace) Tools() []registry.Tool {
	tool := func(name, desc string, params schema.Schema, fn registry.ToolFunction) registry.Tool {
		return registry.Tool{
			ToolSpec: domain.ToolSpec{Name: name, Description: desc, Parameters: params},
			Fn:       fn,
		}
	}
	return []registry.Tool{
		tool("create_outline", "Create and save an outline.", schema.Schema{
			"points":    schema.Describe(schema.Slice(schema.String()), "List of main points or sections."),
			"file_name": schema.Describe(schema.String(), "File path to save the outline."),
		}, w.createOutline),
		tool("read_document", "Read the specified document.", schema.Schema{
			"file_name": schema.Describe(schema.String(), "File path to read the document from."),
			"start":     schema.Optional(schema.Describe(schema.Int(), "The start line. Default is 0")),
			"end":       schema.Optional(schema.Describe(schema.Int(), "The end line. Default is the last line")),
		}, w.readDocument),
		tool("write_document", "Create and save a text document.", schema.Schema{
			"content":   schema.Describe(schema.String(), "Text content to be written into the document."),
			"file_name": schema.Describe(schema.String(), "File path to save the document."),
		}, w.writeDocument),
		tool("edit_document", "Edit a document by inserting text at specific line numbers.", schema.Schema{
			"file_name": schema.Describe(schema.String(), "Path of the document to be edited."),
			"inserts": schema.Describe(schema.Custom("object", isObject),
				"Object where each key is a line number (1-indexed) and each value is the text to insert at that line."),
		}, w.editDocument),
		tool("list_files", "List all files in the working directory.", nil, w.listFiles),
	}
}

// Register adds the workspace tools to r.
func (w *Workspace) Register(r *registry.Registry) {
	for _, t := range w.Tools() {
		r.Add(t)
	}
}

func isObject(v any) error {
	if _, ok := v.(map[string]any); !ok {
		return fmt.Errorf("expected object, got %T", v)
	}
	return nil
}

func decode(args map[string]any, out any) error {
	if err := mapstructure.WeakDecode(args, out); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (w *Workspace) createOutline(ctx context.Context, args map[string]any) (any, error) {
	var in struct {
		Points   []string `mapstructure:"points"`
		FileName string   `mapstructure:"file_name"`
	}
	if err := decode(args, &in); err != nil {
		return nil, err
	}
	path, err := w.resolve(in.FileName)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	for i, p := range in.Points {
		fmt.Fprintf(&b, "%d. %s\n", i+1, p)
	}
	if err := writeFile(path, b.String()); err != nil {
		return nil, err
	}
	return "Outline saved to " + in.FileName, nil
}

func (w *Workspace) readDocument(ctx context.Context, args map[string]any) (any, error) {
	var in struct {
		FileName string `mapstructure:"file_name"`
		Start    *int   `mapstructure:"start"`
		End      *int   `mapstructure:"end"`
	}
	if err := decode(args, &in); err != nil {
		return nil, err
	}
	path, err := w.resolve(in.FileName)
	if err != nil {
		return nil, err
	}
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	start, end := 0, len(lines)
	if in.Start != nil {
		start = min(max(*in.Start, 0), len(lines))
	}
	if in.End != nil {
		end = min(max(*in.End, start), len(lines))
	}
	return strings.Join(lines[start:end], "\n"), nil
}

func (w *Workspace) writeDocument(ctx context.Context, args map[string]any) (any, error) {
	var in struct {
		Content  string `mapstructure:"content"`
		FileName string `mapstructure:"file_name"`
	}
	if err := decode(args, &in); err != nil {
		return nil, err
	}
	path, err := w.resolve(in.FileName)
	if err != nil {
		return nil, err
	}
	if err := writeFile(path, in.Content); err != nil {
		return nil, err
	}
	return "Document saved to " + in.FileName, nil
}

func (w *Workspace) editDocument(ctx context.Context, args map[string]any) (any, error) {
	var in struct {
		FileName string         `mapstructure:"file_name"`
		Inserts  map[int]string `mapstructure:"inserts"`
	}
	if err := decode(args, &in); err != nil {
		return nil, err
	}
	path, err := w.resolve(in.FileName)
	if err != nil {
		return nil, err
	}
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}

	numbers := make([]int, 0, len(in.Inserts))
	for n := range in.Inserts {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	for _, n := range numbers {
		// Out-of-range lines are reported to the model rather than failing the step.
		if n < 1 || n > len(lines)+1 {
			return fmt.Sprintf("Error: Line number %d is out of range.", n), nil
		}
		lines = slices.Insert(lines, n-1, in.Inserts[n])
	}

	if err := writeFile(path, strings.Join(lines, "\n")+"\n"); err != nil {
		return nil, err
	}
	return "Document edited and saved to " + in.FileName, nil
}

func (w *Workspace) listFiles(ctx context.Context, args map[string]any) (any, error) {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, fmt.Sprintf("%s (%d bytes)", e.Name(), info.Size()))
	}
	if len(out) == 0 {
		return "No files found in the working directory.", nil
	}
	return "Generated files:\n" + strings.Join(out, "\n"), nil
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return []string{}, nil
	}
	return strings.Split(text, "\n"), nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}
