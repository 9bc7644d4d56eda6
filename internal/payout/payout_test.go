package payout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wallet = "0x1111111111111111111111111111111111111111"

func TestClassifyRecipient(t *testing.T) {
	assert.Equal(t, RecipientAddress, ClassifyRecipient(wallet))
	assert.Equal(t, RecipientEmail, ClassifyRecipient("a@b.co"))
	assert.Equal(t, RecipientContact, ClassifyRecipient("alice"))
	assert.Equal(t, RecipientContact, ClassifyRecipient("0x123"))
}

func TestSelectTool(t *testing.T) {
	tools := []Tool{{Name: "get_balance"}, {Name: "send_to_email"}, {Name: "send_to_contact"}}

	got, err := SelectTool(tools, RecipientContact)
	require.NoError(t, err)
	assert.Equal(t, "send_to_contact", got.Name)

	got, err = SelectTool(tools, RecipientAddress)
	require.NoError(t, err)
	assert.Equal(t, "send_to_contact", got.Name)

	got, err = SelectTool([]Tool{{Name: "locus__send_to_address"}}, RecipientAddress)
	require.NoError(t, err)
	assert.Equal(t, "locus__send_to_address", got.Name)

	got, err = SelectTool([]Tool{{Name: "get_balance"}, {Name: "create_payout"}}, RecipientEmail)
	require.NoError(t, err)
	assert.Equal(t, "create_payout", got.Name)

	_, err = SelectTool([]Tool{{Name: "get_balance"}, {Name: "list_contacts"}}, RecipientEmail)
	require.ErrorIs(t, err, ErrNoPayoutTool)
	assert.Contains(t, err.Error(), "Available tools: get_balance, list_contacts")
}

func TestIntrospectJSONSchema(t *testing.T) {
	p := Introspect(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"contact": map[string]any{"type": "string"},
			"amount":  map[string]any{"type": "number"},
			"memo":    map[string]any{"type": "string"},
		},
		"required": []any{"contact", "amount"},
	})
	assert.Equal(t, []string{"amount", "contact", "memo"}, p.Names)
	assert.Equal(t, []string{"contact", "amount"}, p.Required)
	assert.Equal(t, "number", p.Types["amount"])
}

func TestIntrospectTypedShape(t *testing.T) {
	p := Introspect(map[string]any{
		"_def": map[string]any{
			"typeName": "ZodObject",
			"shape": map[string]any{
				"address": map[string]any{"_def": map[string]any{"typeName": "ZodString"}},
				"value":   map[string]any{},
			},
		},
	})
	assert.Equal(t, []string{"address", "value"}, p.Names)
	assert.Equal(t, "ZodString", p.Types["address"])
	assert.Equal(t, "unknown", p.Types["value"])
}

func TestIntrospectFallbackAndEmpty(t *testing.T) {
	p := Introspect(map[string]any{"args": map[string]any{"email": "string"}})
	assert.Equal(t, []string{"args", "email"}, p.Names)
	assert.Empty(t, Introspect(nil).Names)
	assert.Empty(t, Introspect("not a schema").Names)
}

func TestBuilderOrdersSchemaFirst(t *testing.T) {
	tool := Tool{Name: "send_to_contact"}
	params := Params{Names: []string{"amount", "contact", "currency", "memo"}}
	req := Request{Recipient: "alice", Amount: 0.35, Purpose: "coffee"}

	got := NewBuilder(Settings{}).Build(tool, params, req)
	require.NotEmpty(t, got)
	assert.Equal(t, map[string]any{"contact": "alice", "amount": 0.35, "currency": "USDC", "memo": "coffee"}, got[0].Params)
	assert.Equal(t, "exact schema with currency", got[1].Description)
	assert.Equal(t, map[string]any{"contact": "alice", "amount": 0.35}, got[2].Params)

	// The guess that duplicates the exact pair is dropped.
	for _, c := range got[3:] {
		assert.NotEqual(t, map[string]any{"contact": "alice", "amount": 0.35}, c.Params)
	}
	var descs []string
	for _, c := range got {
		descs = append(descs, c.Description)
	}
	assert.Contains(t, descs, "contact + usdc_amount (minor units)")
	assert.Contains(t, descs, "contact + amount + currency + chain/network")
}

func TestSchemaStrategyKeepsDeclaredCasing(t *testing.T) {
	params := Params{Names: []string{"Amount", "Chain", "Currency", "Recipient", "Token"}}
	req := Request{Recipient: "alice", Amount: 0.35, Purpose: "coffee"}

	got := SchemaStrategy{}.Candidates(Tool{Name: "send_payment"}, params, req, Settings{}.withDefaults())
	require.Len(t, got, 4)
	assert.Equal(t, map[string]any{"Recipient": "alice", "Amount": 0.35, "Chain": "base", "Currency": "USDC", "Token": "USDC"}, got[0].Params)
	assert.Equal(t, map[string]any{"Recipient": "alice", "Amount": 0.35, "Token": "USDC"}, got[1].Params)
	assert.Equal(t, map[string]any{"Recipient": "alice", "Amount": 0.35, "Currency": "USDC"}, got[2].Params)
	assert.Equal(t, "exact schema: Recipient + Amount", got[3].Description)
	for _, c := range got {
		for key := range c.Params {
			assert.NotEqual(t, strings.ToLower(key), key, "key %q lost the declared casing", key)
		}
	}
}

func TestGuessStrategyEmailHasFourShapes(t *testing.T) {
	got := GuessStrategy{}.Candidates(Tool{Name: "send_to_email"}, Params{}, Request{Recipient: "a@b.co", Amount: 1.5}, Settings{}.withDefaults())
	require.Len(t, got, 4)
	assert.Equal(t, "1.50", got[1].Params["amount"])
	assert.Equal(t, int64(1_500_000), got[3].Params["usdc_amount"])
}

func TestBasicStrategyOnlyWithoutSchema(t *testing.T) {
	req := Request{Recipient: "alice", Amount: 1}
	assert.Nil(t, BasicStrategy{}.Candidates(Tool{Name: "pay_contact"}, Params{Names: []string{"x"}}, req, Settings{}))
	got := BasicStrategy{}.Candidates(Tool{Name: "pay_contact"}, Params{}, req, Settings{})
	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{"contact": "alice", "amount": 1.0}, got[0].Params)
}

func TestClassifyResultAndExtractTxID(t *testing.T) {
	cases := []struct {
		name  string
		value any
		err   error
		kind  ResultKind
		txID  string
		hasTx bool
	}{
		{"object", map[string]any{"transactionId": "tx_1"}, nil, ResultStructured, "tx_1", true},
		{"json string", `{"tx_id":"0xabc"}`, nil, ResultStructured, "0xabc", true},
		{"nested", map[string]any{"data": map[string]any{"id": "tx_9"}}, nil, ResultStructured, "tx_9", true},
		{"placeholder", map[string]any{"id": "pending"}, nil, ResultStructured, "", false},
		{"success flag", map[string]any{"txId": "SUCCESS", "ok": true}, nil, ResultStructured, "", false},
		{"free text", "Payment sent! Transaction ID: tx_fake", nil, ResultOpaque, "", false},
		{"plain success", "success", nil, ResultOpaque, "", false},
		{"failure", nil, errors.New("boom"), ResultFailure, "", false},
		{"struct", struct {
			TransactionID string `json:"transactionId"`
		}{"tx_s"}, nil, ResultStructured, "tx_s", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := ClassifyResult(tc.value, tc.err)
			assert.Equal(t, tc.kind, r.Kind)
			id, ok := ExtractTxID(r)
			assert.Equal(t, tc.hasTx, ok)
			assert.Equal(t, tc.txID, id)
		})
	}
}

type call struct {
	method string
	params map[string]any
}

type fakeProvider struct {
	tools   []Tool
	calls   []call
	listErr error
	// respond decides the outcome of the n-th callTool invocation (0-based).
	respond func(n int, params map[string]any) (any, error)
}

func (f *fakeProvider) ListTools(context.Context) ([]Tool, error) { return f.tools, f.listErr }

func (f *fakeProvider) CallTool(_ context.Context, server, tool string, params map[string]any) (any, error) {
	if server != DefaultServerName {
		return nil, fmt.Errorf("unexpected server %q", server)
	}
	n := len(f.calls)
	f.calls = append(f.calls, call{method: MethodCallTool, params: params})
	return f.respond(n, params)
}

func contactTool() Tool {
	return Tool{Name: "send_to_contact", Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"contact": map[string]any{"type": "string"},
			"amount":  map[string]any{"type": "number"},
		},
	}}
}

func TestExecuteStopsAtFirstSuccess(t *testing.T) {
	fp := &fakeProvider{tools: []Tool{contactTool()}, respond: func(n int, _ map[string]any) (any, error) {
		if n < 2 {
			return nil, errors.New("invalid params")
		}
		return map[string]any{"transactionId": "tx_123", "status": "submitted"}, nil
	}}
	out, err := NewExecutor(fp, Options{}).Execute(context.Background(), Request{Recipient: "alice", Amount: 0.35})
	require.NoError(t, err)
	assert.True(t, out.Verified)
	assert.Equal(t, "tx_123", out.TxID)
	assert.Equal(t, 3, out.Attempts)
	assert.Len(t, fp.calls, 3)
	assert.Equal(t, MethodCallTool, out.Method)
}

func TestExecuteFallsBackToInvoke(t *testing.T) {
	var invoked []map[string]any
	tool := contactTool()
	tool.Invoke = func(_ context.Context, params map[string]any) (any, error) {
		invoked = append(invoked, params)
		return `{"id":"tx_inv"}`, nil
	}
	fp := &fakeProvider{tools: []Tool{tool}, respond: func(int, map[string]any) (any, error) {
		return nil, errors.New("transport closed")
	}}
	out, err := NewExecutor(fp, Options{}).Execute(context.Background(), Request{Recipient: "alice", Amount: 1})
	require.NoError(t, err)
	assert.Equal(t, MethodInvoke, out.Method)
	assert.Equal(t, "tx_inv", out.TxID)
	assert.Len(t, fp.calls, 1)
	assert.Len(t, invoked, 1)
}

func TestExecuteUnverifiedResult(t *testing.T) {
	fp := &fakeProvider{tools: []Tool{contactTool()}, respond: func(int, map[string]any) (any, error) {
		return "Sent 1 USDC. Transaction ID: tx_made_up", nil
	}}
	out, err := NewExecutor(fp, Options{}).Execute(context.Background(), Request{Recipient: "alice", Amount: 1})
	require.NoError(t, err)
	assert.False(t, out.Verified)
	assert.Empty(t, out.TxID)
	assert.Equal(t, ResultOpaque, out.Result.Kind)
	assert.Len(t, fp.calls, 1)
}

func TestExecuteExhausted(t *testing.T) {
	fp := &fakeProvider{tools: []Tool{contactTool()}, respond: func(n int, _ map[string]any) (any, error) {
		return nil, fmt.Errorf("rejected %d", n)
	}}
	_, err := NewExecutor(fp, Options{}).Execute(context.Background(), Request{Recipient: "alice", Amount: 0.5})
	require.Error(t, err)
	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.True(t, IsExhausted(err))
	assert.Equal(t, len(fp.calls), len(ex.Attempts))
	assert.Equal(t, ex.Candidates, len(ex.Attempts))
	assert.True(t, strings.HasPrefix(err.Error(), fmt.Sprintf("All %d parameter combinations failed. Last attempt: callTool with params {", ex.Candidates)))
	assert.True(t, strings.HasSuffix(err.Error(), fmt.Sprintf("Error: rejected %d", len(fp.calls)-1)))
}

func TestExecuteStopsWhenContextEndsMidCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fp := &fakeProvider{tools: []Tool{contactTool()}, respond: func(int, map[string]any) (any, error) {
		cancel()
		return nil, context.Canceled
	}}
	_, err := NewExecutor(fp, Options{}).Execute(ctx, Request{Recipient: "alice", Amount: 0.5})
	require.ErrorIs(t, err, ErrOutcomeUnknown)
	assert.Len(t, fp.calls, 1)
}

func TestExecutePreconditions(t *testing.T) {
	ctx := context.Background()
	_, err := NewExecutor(&fakeProvider{}, Options{}).Execute(ctx, Request{Amount: 1})
	require.ErrorIs(t, err, ErrNoRecipient)

	_, err = NewExecutor(&fakeProvider{}, Options{}).Execute(ctx, Request{Recipient: "a", Amount: 1})
	require.ErrorIs(t, err, ErrNoTools)

	_, err = NewExecutor(nil, Options{}).Execute(ctx, Request{Recipient: "a", Amount: 1})
	require.ErrorIs(t, err, ErrNoTools)

	_, err = NewExecutor(&fakeProvider{listErr: errors.New("down")}, Options{}).Execute(ctx, Request{Recipient: "a", Amount: 1})
	require.ErrorContains(t, err, "list tools: down")
}

type invokeOnly struct{ tools []Tool }

func (p invokeOnly) ListTools(context.Context) ([]Tool, error) { return p.tools, nil }

func TestExecuteWithoutCallPath(t *testing.T) {
	_, err := NewExecutor(invokeOnly{tools: []Tool{contactTool()}}, Options{}).
		Execute(context.Background(), Request{Recipient: "alice", Amount: 1})
	require.ErrorIs(t, err, ErrNoCallPath)
	assert.True(t, IsExhausted(err))
}
