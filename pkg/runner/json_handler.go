package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/aretw0/agentgraph/pkg/domain"
)

// JSONHandler implements the IOHandler interface for structured JSON-Lines communication.
// Every output line is an object with a "type" of "step" or "system".
type JSONHandler struct {
	Reader  *bufio.Reader
	Encoder *json.Encoder
}

type jsonLine struct {
	Type    string            `json:"type"`
	Event   *domain.StepEvent `json:"event,omitempty"`
	Message string            `json:"message,omitempty"`
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Encoder: json.NewEncoder(w),
	}
}

// Input reads one line holding a JSON string, an object with an "input" field, or raw text.
func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	text, err := h.Reader.ReadString('\n')
	if err != nil && text == "" {
		return "", err
	}
	text = strings.TrimSpace(text)

	var val string
	if err := json.Unmarshal([]byte(text), &val); err == nil {
		return val, nil
	}
	var obj struct {
		Input string `json:"input"`
	}
	if err := json.Unmarshal([]byte(text), &obj); err == nil && obj.Input != "" {
		return obj.Input, nil
	}
	return text, nil
}

// Output implements IOHandler.
func (h *JSONHandler) Output(ctx context.Context, event domain.StepEvent) error {
	return h.Encoder.Encode(jsonLine{Type: "step", Event: &event})
}

// SystemOutput implements IOHandler.
func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.Encoder.Encode(jsonLine{Type: "system", Message: msg})
}
