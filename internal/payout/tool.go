// Package payout turns an approved claim into a single transfer through a
// payment tool discovered at runtime, and decides whether the transfer's
// identifier can be trusted.
package payout

import (
	"context"
	"errors"
)

var (
	ErrNoTools        = errors.New("payment provider exposes no tools")
	ErrListTools      = errors.New("list tools")
	ErrNoPayoutTool   = errors.New("no payout tool found")
	ErrNoRecipient    = errors.New("no recipient for payout")
	ErrNoCandidates   = errors.New("no parameter candidates for payout tool")
	ErrNoCallPath     = errors.New("no callable method available (callTool or invoke)")
	ErrOutcomeUnknown = errors.New("payout outcome unknown")
)

// Tool is a payment capability discovered from a provider. Schema is the
// declared parameter schema as decoded JSON and may be nil. Invoke is the
// secondary call path and may be nil.
type Tool struct {
	Name        string
	Description string
	Schema      any
	Invoke      func(ctx context.Context, params map[string]any) (any, error)
}

type Provider interface {
	ListTools(ctx context.Context) ([]Tool, error)
}

// ToolCaller is the primary call path. Providers that implement it are
// called through it before falling back to Tool.Invoke.
type ToolCaller interface {
	CallTool(ctx context.Context, server, tool string, params map[string]any) (any, error)
}

// Request is one transfer to make.
type Request struct {
	Recipient string
	Amount    float64
	Purpose   string
}
