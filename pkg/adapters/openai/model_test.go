package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/agentgraph/pkg/adapters/openai"
	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/schema"
)

type capture struct {
	body map[string]any
}

func server(t *testing.T, c *capture, status int, reply map[string]any) *openai.Model {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		if c != nil {
			assert.NoError(t, json.Unmarshal(raw, &c.body))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return openai.New(openai.Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "test-model"})
}

func completion(msg map[string]any) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"choices": []any{map[string]any{"index": 0, "message": msg, "finish_reason": "stop"}},
	}
}

func TestModel_InvokeWithTools(t *testing.T) {
	c := &capture{}
	model := server(t, c, http.StatusOK, completion(map[string]any{
		"role":    "assistant",
		"content": "",
		"tool_calls": []any{map[string]any{
			"id":   "call_1",
			"type": "function",
			"function": map[string]any{
				"name":      "search",
				"arguments": `{"query": "go generics",}`,
			},
		}},
	}))

	history := []domain.Message{
		domain.System("be brief"),
		domain.Human("find docs"),
		{Role: domain.RoleAssistant, Name: "researcher", ToolCalls: []domain.ToolCall{{ID: "c0", Name: "search", Args: map[string]any{"query": "x"}}}},
		domain.ToolMessage("c0", "search", "nothing", false),
	}
	reply, err := model.Invoke(context.Background(), history, []domain.ToolSpec{{
		Name:        "search",
		Description: "web search",
		Parameters:  schema.Schema{"query": schema.String()},
	}})
	require.NoError(t, err)

	assert.Equal(t, "chatcmpl-1", reply.ID)
	assert.Equal(t, domain.RoleAssistant, reply.Role)
	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, "call_1", reply.ToolCalls[0].ID)
	assert.Equal(t, map[string]any{"query": "go generics"}, reply.ToolCalls[0].Args, "trailing comma is repaired")

	assert.Equal(t, "test-model", c.body["model"])
	msgs := c.body["messages"].([]any)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
	assistant := msgs[2].(map[string]any)
	assert.Equal(t, "researcher", assistant["name"])
	assert.Len(t, assistant["tool_calls"], 1)
	assert.Equal(t, "c0", msgs[3].(map[string]any)["tool_call_id"])

	tools := c.body["tools"].([]any)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "search", fn["name"])
	params := fn["parameters"].(map[string]any)
	assert.Equal(t, "object", params["type"])
}

func TestModel_InvokeStructured(t *testing.T) {
	c := &capture{}
	model := server(t, c, http.StatusOK, completion(map[string]any{
		"role":    "assistant",
		"content": `{"next": "search"}`,
	}))

	out, err := model.InvokeStructured(context.Background(), []domain.Message{domain.Human("route")},
		schema.Schema{"next": schema.Enum("search", "FINISH")})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"next": "search"}, out)

	format := c.body["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	js := format["json_schema"].(map[string]any)
	assert.Equal(t, "output", js["name"])
	assert.NotNil(t, js["schema"])
}

func TestModel_InvokeStructuredRejectsInvalidOutput(t *testing.T) {
	model := server(t, nil, http.StatusOK, completion(map[string]any{
		"role":    "assistant",
		"content": `{"next": "elsewhere"}`,
	}))
	_, err := model.InvokeStructured(context.Background(), nil, schema.Schema{"next": schema.Enum("search")})
	assert.Error(t, err)
}

func TestModel_APIError(t *testing.T) {
	model := server(t, nil, http.StatusTooManyRequests, map[string]any{
		"error": map[string]any{"message": "rate limited", "type": "rate_limit"},
	})
	_, err := model.Invoke(context.Background(), []domain.Message{domain.Human("hi")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestDecodeArguments(t *testing.T) {
	args, err := openai.DecodeArguments("")
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = openai.DecodeArguments(`{"a": 1}`)
	require.NoError(t, err)
	assert.Equal(t, float64(1), args["a"])

	args, err = openai.DecodeArguments(`{a: 'x'`)
	require.NoError(t, err)
	assert.Equal(t, "x", args["a"])
}
