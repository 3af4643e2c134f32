package runner_test

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/agentgraph"
	"github.com/aretw0/agentgraph/internal/testutils"
	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/prebuilt"
	"github.com/aretw0/agentgraph/pkg/runner"
)

func newEngine(t *testing.T) *agentgraph.Engine {
	t.Helper()
	eng := agentgraph.New()
	g, err := prebuilt.ReactAgent("assistant", testutils.EchoModel(), nil)
	require.NoError(t, err)
	require.NoError(t, eng.Register(g))
	return eng
}

func TestRunner_TextConversation(t *testing.T) {
	eng := newEngine(t)
	in := strings.NewReader("hi\n\nthere\nexit\nignored\n")
	var out bytes.Buffer

	r := runner.New(eng, "assistant",
		runner.WithThreadID("t1"),
		runner.WithHandler(runner.NewTextHandler(in, &out)),
		runner.WithInterruptSource(make(chan struct{})),
	)
	require.NoError(t, r.Run(context.Background()))

	assert.Contains(t, out.String(), "Hello World! You said: 'hi'")
	assert.Contains(t, out.String(), "Hello World! You said: 'there'")
	assert.NotContains(t, out.String(), "ignored")

	cp, err := eng.GetThreadState(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, cp.State.Messages(), 4)
}

func TestRunner_JSONConversation(t *testing.T) {
	eng := newEngine(t)
	in := strings.NewReader(`{"input":"one"}` + "\n" + `"two"` + "\n")
	var out bytes.Buffer

	r := runner.New(eng, "assistant",
		runner.WithHandler(runner.NewJSONHandler(in, &out)),
		runner.WithInterruptSource(make(chan struct{})),
	)
	require.NoError(t, r.Run(context.Background()))
	assert.NotEmpty(t, r.ThreadID())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"type":"step"`)
	assert.Contains(t, lines[0], "You said: 'one'")
	assert.Contains(t, lines[1], "You said: 'two'")
}

func TestRunner_RejectsOversizedInput(t *testing.T) {
	t.Setenv(runner.EnvMaxInputSize, "4")
	eng := newEngine(t)
	var out bytes.Buffer

	r := runner.New(eng, "assistant",
		runner.WithHandler(runner.NewTextHandler(strings.NewReader("too long\n"), &out)),
		runner.WithInterruptSource(make(chan struct{})),
	)
	require.NoError(t, r.Run(context.Background()))
	assert.Contains(t, out.String(), "Input rejected")
	assert.NotContains(t, out.String(), "You said")
}

type failingEngine struct{ err error }

func (f failingEngine) Stream(ctx context.Context, graphName, threadID string, input domain.State) iter.Seq2[domain.StepEvent, error] {
	return func(yield func(domain.StepEvent, error) bool) {
		yield(domain.StepEvent{}, f.err)
	}
}

func TestRunner_ReportsRunErrors(t *testing.T) {
	var out bytes.Buffer
	r := runner.New(failingEngine{err: errors.New("model unavailable")}, "assistant",
		runner.WithHandler(runner.NewTextHandler(strings.NewReader("hi\n"), &out)),
		runner.WithInterruptSource(make(chan struct{})),
	)
	require.NoError(t, r.Run(context.Background()))
	assert.Contains(t, out.String(), "! Error: model unavailable")
}

type blockingEngine struct{}

func (blockingEngine) Stream(ctx context.Context, graphName, threadID string, input domain.State) iter.Seq2[domain.StepEvent, error] {
	return func(yield func(domain.StepEvent, error) bool) {
		<-ctx.Done()
		yield(domain.StepEvent{}, &domain.RunError{Kind: domain.KindCancelled, Err: ctx.Err()})
	}
}

func TestRunner_InterruptCancelsTurnOnly(t *testing.T) {
	interrupts := make(chan struct{}, 1)
	interrupts <- struct{}{}
	var out bytes.Buffer

	r := runner.New(blockingEngine{}, "assistant",
		runner.WithHandler(runner.NewTextHandler(strings.NewReader("hi\n"), &out)),
		runner.WithInterruptSource(interrupts),
	)
	require.NoError(t, r.Run(context.Background()))
	assert.Contains(t, out.String(), "Interrupted")
}

func TestSanitizeInput(t *testing.T) {
	clean, err := runner.SanitizeInput("hello\x1b[31m\tworld\x00\n")
	require.NoError(t, err)
	assert.Equal(t, "hello[31m\tworld\n", clean)

	_, err = runner.SanitizeInput(string([]byte{0xff, 0xfe}))
	assert.ErrorIs(t, err, runner.ErrInvalidUTF8)

	t.Setenv(runner.EnvMaxInputSize, "3")
	_, err = runner.SanitizeInput("abcd")
	assert.ErrorIs(t, err, runner.ErrInputTooLarge)
}
