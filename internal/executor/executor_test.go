package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converge-ai/support-platform/internal/capability"
	"github.com/converge-ai/support-platform/internal/contextstore"
	"github.com/converge-ai/support-platform/internal/model"
	"github.com/converge-ai/support-platform/internal/registry"
	"github.com/converge-ai/support-platform/internal/schema"
	"github.com/converge-ai/support-platform/pkg/logger"
)

type fakeExtractor struct {
	// params per capability, keyed by the first schema param name so one
	// extractor can serve multi-capability handlers.
	byFirstParam map[string]map[string]any
	err          error
}

func (f *fakeExtractor) Extract(ctx context.Context, prompt string, sch schema.InputSchema) (map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(sch.Params) == 0 {
		return map[string]any{}, nil
	}
	if p, ok := f.byFirstParam[sch.Params[0].Name]; ok {
		return p, nil
	}
	return map[string]any{}, nil
}

type fakeInvoker struct {
	results map[string]*capability.Result
	errs    map[string]error
	calls   map[string]int
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{
		results: make(map[string]*capability.Result),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (f *fakeInvoker) Invoke(ctx context.Context, def *model.CapabilityDefinition, params map[string]any) (*capability.Result, error) {
	f.calls[def.Name]++
	if err, ok := f.errs[def.Name]; ok && err != nil {
		return nil, err
	}
	if r, ok := f.results[def.Name]; ok {
		return r, nil
	}
	return &capability.Result{Output: "ok"}, nil
}

func orderHandler() model.HandlerDefinition {
	return model.HandlerDefinition{
		Name:                "order_status",
		Description:         "Order tracking",
		InstructionTemplate: "Extract order lookup parameters from the conversation.",
		OutputTemplate:      "Here's what I found: {{result}}",
		Capabilities: []model.CapabilityDefinition{
			{
				Name:     "track_order",
				Priority: 1,
				InputSchema: schema.InputSchema{Params: []schema.Param{
					{Name: "account_id", Type: schema.TypeString, Required: true},
					{Name: "order_id", Type: schema.TypeString, Required: true},
				}},
				Idempotent: true,
			},
			{
				Name:     "recent_orders",
				Priority: 2,
				InputSchema: schema.InputSchema{Params: []schema.Param{
					{Name: "email", Type: schema.TypeString, Required: true},
				}},
				Idempotent: true,
			},
		},
	}
}

func newTestExecutor(t *testing.T, ext Extractor, inv capability.Invoker) (*Executor, *contextstore.MemoryStore) {
	t.Helper()
	reg := registry.New()
	reg.Register("tenant-a", orderHandler())
	store := contextstore.NewMemoryStore()
	ex := New(reg, store, ext, inv, logger.NewNop(), Config{
		CapabilityTimeout: time.Second,
		RetryBackoff:      time.Millisecond,
	})
	return ex, store
}

func TestExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("capability answer through output template", func(t *testing.T) {
		ext := &fakeExtractor{byFirstParam: map[string]map[string]any{
			"account_id": {"account_id": "acct-1", "order_id": "ord-9"},
		}}
		inv := newFakeInvoker()
		inv.results["track_order"] = &capability.Result{Output: "order ord-9 ships Friday"}

		ex, store := newTestExecutor(t, ext, inv)
		reply, err := ex.Execute(ctx, "c1", "tenant-a", "order_status", "where is ord-9?")
		require.NoError(t, err)

		assert.Equal(t, ReplyAnswer, reply.Kind)
		assert.Equal(t, "track_order", reply.Capability)
		assert.Equal(t, "Here's what I found: order ord-9 ships Friday", reply.Text)

		turns, err := store.ReadLastN(ctx, "tenant-a", "c1", 10)
		require.NoError(t, err)
		require.Len(t, turns, 2)
		assert.Equal(t, model.RoleUser, turns[0].Role)
		assert.Equal(t, model.RoleHandler, turns[1].Role)
		require.NotNil(t, turns[1].Handler)
		assert.Equal(t, "order_status", *turns[1].Handler)
	})

	t.Run("missing parameter yields one clarifying question, nothing invoked", func(t *testing.T) {
		ext := &fakeExtractor{byFirstParam: map[string]map[string]any{
			"account_id": {"order_id": "ord-9"},
		}}
		inv := newFakeInvoker()

		ex, store := newTestExecutor(t, ext, inv)
		reply, err := ex.Execute(ctx, "c1", "tenant-a", "order_status", "where is ord-9?")
		require.NoError(t, err)

		assert.Equal(t, ReplyClarification, reply.Kind)
		assert.Equal(t, "track_order", reply.Capability)
		assert.Contains(t, reply.Text, "account_id")
		assert.Equal(t, []string{"account_id"}, reply.MissingFields)
		assert.Zero(t, inv.calls["track_order"])
		assert.Zero(t, inv.calls["recent_orders"])

		// Clarification is still a handler turn.
		turns, err := store.ReadLastN(ctx, "tenant-a", "c1", 10)
		require.NoError(t, err)
		assert.Len(t, turns, 2)
	})

	t.Run("lower-priority capability serves when first cannot validate", func(t *testing.T) {
		ext := &fakeExtractor{byFirstParam: map[string]map[string]any{
			"account_id": {},
			"email":      {"email": "a@b.example"},
		}}
		inv := newFakeInvoker()
		inv.results["recent_orders"] = &capability.Result{Output: "3 recent orders"}

		ex, _ := newTestExecutor(t, ext, inv)
		reply, err := ex.Execute(ctx, "c1", "tenant-a", "order_status", "show my orders")
		require.NoError(t, err)

		assert.Equal(t, ReplyAnswer, reply.Kind)
		assert.Equal(t, "recent_orders", reply.Capability)
	})

	t.Run("cannot-help from every capability needs escalation, no handler turn", func(t *testing.T) {
		ext := &fakeExtractor{byFirstParam: map[string]map[string]any{
			"account_id": {"account_id": "acct-1", "order_id": "ord-9"},
			"email":      {"email": "a@b.example"},
		}}
		inv := newFakeInvoker()
		inv.results["track_order"] = &capability.Result{CannotHelp: true}
		inv.results["recent_orders"] = &capability.Result{CannotHelp: true}

		ex, store := newTestExecutor(t, ext, inv)
		reply, err := ex.Execute(ctx, "c1", "tenant-a", "order_status", "where is ord-9?")
		require.NoError(t, err)

		assert.Equal(t, ReplyNeedsEscalation, reply.Kind)

		turns, err := store.ReadLastN(ctx, "tenant-a", "c1", 10)
		require.NoError(t, err)
		require.Len(t, turns, 1)
		assert.Equal(t, model.RoleUser, turns[0].Role)
	})

	t.Run("persistent invocation failure degrades", func(t *testing.T) {
		ext := &fakeExtractor{byFirstParam: map[string]map[string]any{
			"account_id": {"account_id": "acct-1", "order_id": "ord-9"},
		}}
		inv := newFakeInvoker()
		inv.errs["track_order"] = errors.New("backend down")

		ex, _ := newTestExecutor(t, ext, inv)
		reply, err := ex.Execute(ctx, "c1", "tenant-a", "order_status", "where is ord-9?")
		require.NoError(t, err)

		assert.Equal(t, ReplyDegraded, reply.Kind)
		assert.Equal(t, "track_order", reply.Capability)
		assert.NotEmpty(t, reply.Text)
		// Idempotent capability: one attempt plus two retries.
		assert.Equal(t, 3, inv.calls["track_order"])
	})

	t.Run("non-idempotent capability is never retried", func(t *testing.T) {
		def := orderHandler()
		def.Capabilities = def.Capabilities[:1]
		def.Capabilities[0].Idempotent = false

		reg := registry.New()
		reg.Register("tenant-a", def)

		ext := &fakeExtractor{byFirstParam: map[string]map[string]any{
			"account_id": {"account_id": "acct-1", "order_id": "ord-9"},
		}}
		inv := newFakeInvoker()
		inv.errs["track_order"] = errors.New("backend down")

		ex := New(reg, contextstore.NewMemoryStore(), ext, inv, logger.NewNop(), Config{
			CapabilityTimeout: time.Second,
			RetryBackoff:      time.Millisecond,
		})
		reply, err := ex.Execute(ctx, "c1", "tenant-a", "order_status", "where is ord-9?")
		require.NoError(t, err)

		assert.Equal(t, ReplyDegraded, reply.Kind)
		assert.Equal(t, 1, inv.calls["track_order"])
	})

	t.Run("unknown handler appends nothing and invokes nothing", func(t *testing.T) {
		ext := &fakeExtractor{}
		inv := newFakeInvoker()

		ex, store := newTestExecutor(t, ext, inv)
		_, err := ex.Execute(ctx, "c1", "tenant-a", "warranty", "is it covered?")
		assert.ErrorIs(t, err, registry.ErrHandlerUnavailable)

		turns, err := store.ReadLastN(ctx, "tenant-a", "c1", 10)
		require.NoError(t, err)
		assert.Empty(t, turns)
		assert.Empty(t, inv.calls)
	})

	t.Run("extraction failure on all capabilities needs escalation", func(t *testing.T) {
		ext := &fakeExtractor{err: errors.New("model unavailable")}
		inv := newFakeInvoker()

		ex, _ := newTestExecutor(t, ext, inv)
		reply, err := ex.Execute(ctx, "c1", "tenant-a", "order_status", "where is ord-9?")
		require.NoError(t, err)
		assert.Equal(t, ReplyNeedsEscalation, reply.Kind)
		assert.Empty(t, inv.calls)
	})
}

func TestFormatOutput(t *testing.T) {
	assert.Equal(t, "raw", formatOutput("", "raw"))
	assert.Equal(t, "Result: raw.", formatOutput("Result: {{result}}.", "raw"))
}
