package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converge-ai/support-platform/internal/schema"
)

type fakeClient struct {
	content string
	lastReq *CompletionRequest
}

func (f *fakeClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	f.lastReq = req
	return &CompletionResponse{Content: f.content}, nil
}

func (f *fakeClient) Name() string     { return "fake" }
func (f *fakeClient) Models() []string { return nil }

func TestClassify(t *testing.T) {
	client := &fakeClient{content: "  billing\n"}
	p := NewTextProvider(client, WithModel("test-model"))

	out, err := p.Classify(context.Background(), "which handler?")
	require.NoError(t, err)
	assert.Equal(t, "billing", out, "response is trimmed, not interpreted")
	assert.Equal(t, "test-model", client.lastReq.Model)
	assert.Equal(t, classifyMaxTokens, client.lastReq.MaxTokens)
	assert.Zero(t, client.lastReq.Temperature)
}

func TestExtract(t *testing.T) {
	sch := schema.InputSchema{Params: []schema.Param{
		{Name: "order_id", Type: schema.TypeString, Required: true},
	}}

	t.Run("plain JSON object", func(t *testing.T) {
		client := &fakeClient{content: `{"order_id": "ord-9"}`}
		p := NewTextProvider(client)

		values, err := p.Extract(context.Background(), "prompt", sch)
		require.NoError(t, err)
		assert.Equal(t, "ord-9", values["order_id"])
	})

	t.Run("fenced JSON is unwrapped", func(t *testing.T) {
		client := &fakeClient{content: "```json\n{\"order_id\": \"ord-9\"}\n```"}
		p := NewTextProvider(client)

		values, err := p.Extract(context.Background(), "prompt", sch)
		require.NoError(t, err)
		assert.Equal(t, "ord-9", values["order_id"])
	})

	t.Run("non-object response errors", func(t *testing.T) {
		client := &fakeClient{content: "I could not find any parameters."}
		p := NewTextProvider(client)

		_, err := p.Extract(context.Background(), "prompt", sch)
		assert.Error(t, err)
	})

	t.Run("schema drives the instruction", func(t *testing.T) {
		client := &fakeClient{content: "{}"}
		p := NewTextProvider(client)

		_, err := p.Extract(context.Background(), "prompt", sch)
		require.NoError(t, err)
		require.NotEmpty(t, client.lastReq.Messages)
		assert.Contains(t, client.lastReq.Messages[0].Content, "order_id")
		assert.Contains(t, client.lastReq.Messages[0].Content, "required")
	})
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences(`{"a":1}`))
}
