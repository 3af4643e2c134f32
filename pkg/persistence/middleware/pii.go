package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/ports"
)

// Mask replaces redacted values.
const Mask = "***"

type piiMiddleware struct {
	next     ports.Checkpointer
	patterns []*regexp.Regexp
}

// NewPIIMiddleware masks state fields whose key matches one of the patterns,
// at any depth of nested maps. Masking happens before the write and is not
// reversible: a resumed thread sees the mask.
func NewPIIMiddleware(patterns []string) (Middleware, error) {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		compiled[i] = re
	}
	return func(next ports.Checkpointer) ports.Checkpointer {
		return &piiMiddleware{next: next, patterns: compiled}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, cp *domain.Checkpoint) error {
	// The executor keeps using cp.State after the save.
	masked := *cp
	masked.State = maskMap(cp.State, m.patterns)
	return m.next.Save(ctx, &masked)
}

func (m *piiMiddleware) LoadLatest(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	return m.next.LoadLatest(ctx, threadID)
}

func (m *piiMiddleware) History(ctx context.Context, threadID string) ([]*domain.Checkpoint, error) {
	return m.next.History(ctx, threadID)
}

func (m *piiMiddleware) ListThreads(ctx context.Context) ([]string, error) {
	return m.next.ListThreads(ctx)
}

func (m *piiMiddleware) Delete(ctx context.Context, threadID string) error {
	return m.next.Delete(ctx, threadID)
}

// maskMap returns a masked copy of in; nested maps are copied, other values shared.
func maskMap(in map[string]any, patterns []*regexp.Regexp) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if matches(k, patterns) {
			out[k] = Mask
			continue
		}
		switch sub := v.(type) {
		case domain.State:
			out[k] = domain.State(maskMap(sub, patterns))
		case map[string]any:
			out[k] = maskMap(sub, patterns)
		default:
			out[k] = v
		}
	}
	return out
}

func matches(key string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
