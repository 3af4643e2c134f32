package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aretw0/agentgraph/pkg/domain"
)

// ContentRenderer transforms assistant content before it is printed, e.g. markdown to ANSI.
type ContentRenderer func(string) (string, error)

// TextHandler implements the standard text-based interface.
type TextHandler struct {
	Reader   *bufio.Reader
	Writer   io.Writer
	Renderer ContentRenderer
	Prompt   string
	// Verbose prints a line per step and the tool results.
	Verbose bool

	inputChan chan inputResult
	startOnce sync.Once
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the content renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// WithVerbose prints step and tool details.
func WithVerbose(v bool) TextHandlerOption {
	return func(h *TextHandler) {
		h.Verbose = v
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	h := &TextHandler{
		Reader: bufio.NewReader(r),
		Writer: w,
		Prompt: "> ",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// initPump reads lines in the background so Input can honour ctx.
func (h *TextHandler) initPump() {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go func() {
			defer close(h.inputChan)
			for {
				text, err := h.Reader.ReadString('\n')
				if err != nil && text == "" {
					h.inputChan <- inputResult{err: err}
					return
				}
				h.inputChan <- inputResult{text: strings.TrimSpace(text)}
			}
		}()
	})
}

// Input implements IOHandler.
func (h *TextHandler) Input(ctx context.Context) (string, error) {
	h.initPump()
	fmt.Fprint(h.Writer, h.Prompt)

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-h.inputChan:
		if !ok {
			return "", io.EOF
		}
		return res.text, res.err
	}
}

// Output implements IOHandler.
func (h *TextHandler) Output(ctx context.Context, event domain.StepEvent) error {
	if h.Verbose {
		path := strings.Join(append(append([]string{}, event.Namespace...), event.Node), "/")
		fmt.Fprintf(h.Writer, "[step %d] %s -> %s\n", event.Step, path, event.Next)
	}

	for _, msg := range event.Delta.Messages() {
		switch msg.Role {
		case domain.RoleAssistant:
			for _, call := range msg.ToolCalls {
				fmt.Fprintf(h.Writer, "  calling %s\n", call.Name)
			}
			if msg.Content == "" {
				continue
			}
			out := msg.Content
			if h.Renderer != nil {
				if rendered, err := h.Renderer(out); err == nil {
					out = rendered
				}
			}
			if msg.Name != "" {
				fmt.Fprintf(h.Writer, "%s: ", msg.Name)
			}
			fmt.Fprintln(h.Writer, strings.TrimSpace(out))
		case domain.RoleTool:
			if h.Verbose || msg.IsError {
				fmt.Fprintf(h.Writer, "  %s returned: %s\n", msg.Name, truncate(msg.Content, 200))
			}
		}
	}
	return nil
}

// SystemOutput implements IOHandler.
func (h *TextHandler) SystemOutput(ctx context.Context, msg string) error {
	_, err := fmt.Fprintf(h.Writer, "! %s\n", msg)
	return err
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
