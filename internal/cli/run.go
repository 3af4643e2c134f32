package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/agentgraph"
	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/runner"
	"github.com/aretw0/agentgraph/pkg/thread"
)

// RunOptions configures a single non-interactive run.
type RunOptions struct {
	Graph    string
	ThreadID string
	Input    string
	// State is a raw JSON object merged into the input.
	State string
	JSON  bool
	// Stream prints each step as it completes.
	Stream bool
}

// RunResult is the JSON rendering of a finished run.
type RunResult struct {
	ThreadID string           `json:"thread_id"`
	Status   domain.RunStatus `json:"status"`
	Step     int              `json:"step"`
	Steps    int              `json:"steps"`
	Next     string           `json:"next"`
	Reply    string           `json:"reply,omitempty"`
	State    domain.State     `json:"state"`
}

// BuildInput sanitizes text and merges the optional JSON state into a run input.
func BuildInput(text, rawState string) (domain.State, error) {
	input := domain.State{}
	if rawState != "" {
		if err := json.Unmarshal([]byte(rawState), &input); err != nil {
			return nil, fmt.Errorf("error parsing --state JSON: %w", err)
		}
	}
	if strings.TrimSpace(text) != "" {
		clean, err := runner.SanitizeInput(text)
		if err != nil {
			return nil, err
		}
		input[domain.MessagesKey] = []domain.Message{domain.Human(clean)}
	}
	return input, nil
}

// Execute runs opts.Graph once and writes the outcome to w.
func Execute(ctx context.Context, eng *agentgraph.Engine, opts RunOptions, w io.Writer) error {
	input, err := BuildInput(opts.Input, opts.State)
	if err != nil {
		return err
	}
	if opts.ThreadID == "" {
		opts.ThreadID = thread.NewID()
	}

	var outcome *agentgraph.Outcome
	if opts.Stream {
		enc := json.NewEncoder(w)
		for event, err := range eng.Stream(ctx, opts.Graph, opts.ThreadID, input) {
			if err != nil {
				return handleExecutionError(err)
			}
			if err := enc.Encode(event); err != nil {
				return err
			}
		}
		// Stream yields steps only; read the persisted result back.
		cp, err := eng.GetThreadState(ctx, opts.ThreadID)
		if err != nil {
			return err
		}
		outcome = &agentgraph.Outcome{
			ThreadID: cp.ThreadID,
			Status:   cp.Status(),
			State:    cp.State,
			Step:     cp.Step,
			Next:     cp.Next,
		}
	} else {
		outcome, err = eng.Run(ctx, opts.Graph, opts.ThreadID, input)
		if err != nil {
			return handleExecutionError(err)
		}
	}

	return printOutcome(w, outcome, opts.JSON)
}

func printOutcome(w io.Writer, outcome *agentgraph.Outcome, asJSON bool) error {
	reply := ""
	if last, ok := outcome.State.LastMessage(); ok && last.Role == domain.RoleAssistant {
		reply = last.Content
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(RunResult{
			ThreadID: outcome.ThreadID,
			Status:   outcome.Status,
			Step:     outcome.Step,
			Steps:    outcome.Steps,
			Next:     outcome.Next,
			Reply:    reply,
			State:    outcome.State,
		})
	}

	if reply != "" {
		fmt.Fprintln(w, reply)
	}
	printSystemMessage(w, "Thread '%s' %s at step %d.", outcome.ThreadID, outcome.Status, outcome.Step)
	return nil
}
