package payout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

const (
	MethodCallTool = "callTool"
	MethodInvoke   = "invoke"
)

// DefaultServerName is the provider server addressed by the primary path.
const DefaultServerName = "locus"

type Attempt struct {
	Candidate Candidate
	Method    string
	Err       string
}

// ExhaustedError reports that every candidate failed. Attempts lists each
// payload and call path tried, in order.
type ExhaustedError struct {
	Tool       string
	Candidates int
	Attempts   []Attempt
	Last       error
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("All %d parameter combinations failed. Last error: %v", e.Candidates, e.Last)
	}
	last := e.Attempts[len(e.Attempts)-1]
	params, _ := json.Marshal(last.Candidate.Params)
	return fmt.Sprintf("All %d parameter combinations failed. Last attempt: %s with params %s. Error: %s",
		e.Candidates, last.Method, params, last.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Outcome describes the one accepted invocation.
type Outcome struct {
	Tool      string
	Candidate Candidate
	Method    string
	Result    ToolResult
	// TxID is set only when Verified.
	TxID     string
	Verified bool
	Attempts int
}

type Options struct {
	ServerName string
	Settings   Settings
	Builder    *Builder
	Logger     *slog.Logger
}

type Executor struct {
	provider Provider
	server   string
	builder  *Builder
	logger   *slog.Logger
}

func NewExecutor(provider Provider, opts Options) *Executor {
	if opts.ServerName == "" {
		opts.ServerName = DefaultServerName
	}
	if opts.Builder == nil {
		opts.Builder = NewBuilder(opts.Settings)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Executor{
		provider: provider,
		server:   opts.ServerName,
		builder:  opts.Builder,
		logger:   opts.Logger.With("component", "payout"),
	}
}

// Execute makes at most one accepted tool invocation. Candidates are tried
// strictly in order and none is tried after a success. If the context ends
// while a call is in flight, Execute stops with ErrOutcomeUnknown because
// the transfer may have gone through.
func (e *Executor) Execute(ctx context.Context, req Request) (Outcome, error) {
	if req.Recipient == "" {
		return Outcome{}, ErrNoRecipient
	}
	if e.provider == nil {
		return Outcome{}, ErrNoTools
	}
	tools, err := e.provider.ListTools(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrListTools, err)
	}
	if len(tools) == 0 {
		return Outcome{}, ErrNoTools
	}

	kind := ClassifyRecipient(req.Recipient)
	tool, err := SelectTool(tools, kind)
	if err != nil {
		return Outcome{}, err
	}
	params := Introspect(tool.Schema)
	candidates := e.builder.Build(tool, params, req)
	e.logger.Info("payout tool selected",
		"tool", tool.Name, "recipient_kind", kind, "params", params.Names, "candidates", len(candidates))
	if len(candidates) == 0 {
		return Outcome{}, fmt.Errorf("%w %q", ErrNoCandidates, tool.Name)
	}

	caller, _ := e.provider.(ToolCaller)
	exhausted := &ExhaustedError{Tool: tool.Name, Candidates: len(candidates)}

	for i, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return Outcome{}, fmt.Errorf("payout cancelled after %d attempts: %w", len(exhausted.Attempts), err)
		}
		e.logger.Info("payout attempt", "tool", tool.Name, "attempt", i+1, "of", len(candidates), "shape", cand.Description)

		paths := e.paths(caller, tool)
		if len(paths) == 0 {
			exhausted.Attempts = append(exhausted.Attempts, Attempt{Candidate: cand, Method: "unknown", Err: ErrNoCallPath.Error()})
			exhausted.Last = ErrNoCallPath
			continue
		}
		for _, path := range paths {
			raw, callErr := path.call(ctx, cand.Params)
			if callErr == nil {
				result := ClassifyResult(raw, nil)
				out := Outcome{Tool: tool.Name, Candidate: cand, Method: path.method, Result: result, Attempts: i + 1}
				out.TxID, out.Verified = ExtractTxID(result)
				e.logger.Info("payout accepted",
					"tool", tool.Name, "method", path.method, "shape", cand.Description,
					"result_kind", result.Kind.String(), "verified", out.Verified)
				return out, nil
			}
			exhausted.Attempts = append(exhausted.Attempts, Attempt{Candidate: cand, Method: path.method, Err: callErr.Error()})
			exhausted.Last = callErr
			e.logger.Warn("payout attempt failed", "tool", tool.Name, "method", path.method, "error", callErr)
			if ctx.Err() != nil {
				return Outcome{}, fmt.Errorf("%w: %w", ErrOutcomeUnknown, callErr)
			}
		}
	}
	return Outcome{}, exhausted
}

type callPath struct {
	method string
	call   func(ctx context.Context, params map[string]any) (any, error)
}

func (e *Executor) paths(caller ToolCaller, tool Tool) []callPath {
	var out []callPath
	if caller != nil {
		out = append(out, callPath{method: MethodCallTool, call: func(ctx context.Context, params map[string]any) (any, error) {
			return caller.CallTool(ctx, e.server, tool.Name, params)
		}})
	}
	if tool.Invoke != nil {
		out = append(out, callPath{method: MethodInvoke, call: tool.Invoke})
	}
	return out
}

// IsExhausted reports whether err means every candidate was rejected.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}
