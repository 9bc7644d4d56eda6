package payout

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/techmehedi/Autopay-Agent/internal/money"
)

const defaultMemo = "Expense reimbursement"

// Candidate is one parameter payload to try against the selected tool.
type Candidate struct {
	Description string         `json:"description"`
	Params      map[string]any `json:"params"`
}

// Settings are the provider-wide values some payloads carry.
type Settings struct {
	Currency string
	Chain    string
	Network  string
}

func (s Settings) withDefaults() Settings {
	if s.Currency == "" {
		s.Currency = "USDC"
	}
	if s.Chain == "" {
		s.Chain = "base"
	}
	if s.Network == "" {
		s.Network = "mainnet"
	}
	return s
}

// Strategy proposes candidates for a tool, most promising first.
type Strategy interface {
	Candidates(tool Tool, params Params, req Request, s Settings) []Candidate
}

// Builder concatenates its strategies' candidates in order and drops
// payloads already proposed.
type Builder struct {
	strategies []Strategy
	settings   Settings
}

// NewBuilder uses the schema, name-guess and basic strategies when none are given.
func NewBuilder(settings Settings, strategies ...Strategy) *Builder {
	if len(strategies) == 0 {
		strategies = []Strategy{SchemaStrategy{}, GuessStrategy{}, BasicStrategy{}}
	}
	return &Builder{strategies: strategies, settings: settings.withDefaults()}
}

func (b *Builder) Build(tool Tool, params Params, req Request) []Candidate {
	var out []Candidate
	seen := map[string]struct{}{}
	for _, s := range b.strategies {
		for _, c := range s.Candidates(tool, params, req, b.settings) {
			key, err := json.Marshal(c.Params)
			if err != nil {
				continue
			}
			if _, dup := seen[string(key)]; dup {
				continue
			}
			seen[string(key)] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

var (
	recipientFields = []string{"contact", "address", "email", "recipient", "to"}
	amountFields    = []string{"amount", "value", "usdc_amount"}
	memoFields      = []string{"memo", "note", "purpose", "description"}
)

// firstField returns the first of fields the schema declares, in the
// schema's own spelling.
func firstField(params Params, fields []string) string {
	for _, f := range fields {
		if declared, ok := params.Declared(f); ok {
			return declared
		}
	}
	return ""
}

// SchemaStrategy builds payloads from the introspected parameter names. Keys
// keep the casing the schema declares.
type SchemaStrategy struct{}

func (SchemaStrategy) Candidates(_ Tool, params Params, req Request, s Settings) []Candidate {
	rf := firstField(params, recipientFields)
	af := firstField(params, amountFields)
	if rf == "" || af == "" {
		return nil
	}

	var out []Candidate
	all := map[string]any{rf: req.Recipient, af: req.Amount}
	filled := map[string]bool{strings.ToLower(rf): true, strings.ToLower(af): true}
	set := func(key, canonical string, v any) {
		if !filled[canonical] {
			all[key] = v
			filled[canonical] = true
		}
	}
	for _, p := range params.Names {
		lower := strings.ToLower(p)
		switch {
		case lower == "currency" || lower == "token":
			set(p, lower, s.Currency)
		case lower == "chain":
			set(p, lower, s.Chain)
		case lower == "network":
			set(p, lower, s.Network)
		case slices.Contains(memoFields, lower):
			all[p] = memo(req)
		}
	}
	if len(all) > 2 {
		out = append(out, Candidate{Description: "all schema params: " + strings.Join(sortedKeys(all), ", "), Params: all})
	}
	if token, ok := params.Declared("token"); ok {
		out = append(out, Candidate{Description: "exact schema with " + token,
			Params: map[string]any{rf: req.Recipient, af: req.Amount, token: s.Currency}})
	}
	if currency, ok := params.Declared("currency"); ok {
		out = append(out, Candidate{Description: "exact schema with " + currency,
			Params: map[string]any{rf: req.Recipient, af: req.Amount, currency: s.Currency}})
	}
	out = append(out, Candidate{Description: "exact schema: " + rf + " + " + af,
		Params: map[string]any{rf: req.Recipient, af: req.Amount}})
	return out
}

// GuessStrategy tries the payload shapes known to work for send_to_* tools.
type GuessStrategy struct{}

func (GuessStrategy) Candidates(tool Tool, _ Params, req Request, s Settings) []Candidate {
	name := strings.ToLower(tool.Name)
	var field string
	switch {
	case strings.Contains(name, "send_to_contact"):
		field = "contact"
	case strings.Contains(name, "send_to_address"):
		field = "address"
	case strings.Contains(name, "send_to_email"):
		field = "email"
	default:
		return nil
	}

	amountString := money.Format(req.Amount)
	minor := money.ToMicros(req.Amount)
	out := []Candidate{
		{field + " + amount (number)", map[string]any{field: req.Recipient, "amount": req.Amount}},
		{field + " + amount (string)", map[string]any{field: req.Recipient, "amount": amountString}},
		{field + " + amount + currency", map[string]any{field: req.Recipient, "amount": req.Amount, "currency": s.Currency}},
		{field + " + usdc_amount (minor units)", map[string]any{field: req.Recipient, "usdc_amount": minor}},
	}
	if field == "email" {
		return out
	}
	return append(out,
		Candidate{field + " + value + currency", map[string]any{field: req.Recipient, "value": req.Amount, "currency": s.Currency}},
		Candidate{field + " + amount + token", map[string]any{field: req.Recipient, "amount": req.Amount, "token": s.Currency}},
		Candidate{field + " + amount + currency + chain/network", map[string]any{
			field: req.Recipient, "amount": req.Amount, "currency": s.Currency, "chain": s.Chain, "network": s.Network,
		}},
	)
}

// BasicStrategy is the last resort when the schema revealed no parameters.
type BasicStrategy struct{}

func (BasicStrategy) Candidates(tool Tool, params Params, req Request, _ Settings) []Candidate {
	if len(params.Names) > 0 {
		return nil
	}
	name := strings.ToLower(tool.Name)
	field := "recipient"
	switch {
	case strings.Contains(name, "contact"):
		field = "contact"
	case strings.Contains(name, "address"):
		field = "address"
	case strings.Contains(name, "email"):
		field = "email"
	}
	return []Candidate{{
		Description: "basic: " + field + " + amount",
		Params:      map[string]any{field: req.Recipient, "amount": req.Amount},
	}}
}

func memo(req Request) string {
	if req.Purpose != "" {
		return req.Purpose
	}
	return defaultMemo
}
