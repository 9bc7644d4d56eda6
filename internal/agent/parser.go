// Package agent is the boundary to the language-model collaborator that
// parses free-text claims and gives an advisory opinion on them. Nothing the
// agent says is trusted without re-checking: the orchestrator recomputes the
// decision, and transaction ids count only when they come from structured
// payout tool results.
package agent

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/techmehedi/Autopay-Agent/internal/money"
)

// Parsed is the structured form of a free-text claim. Recipient is empty when
// the text names none.
type Parsed struct {
	Amount    float64 `json:"amount"`
	Purpose   string  `json:"purpose"`
	Recipient string  `json:"recipient,omitempty"`
}

type Parser interface {
	Parse(ctx context.Context, text string) (Parsed, error)
}

// FallbackParser takes the first number in the text as the amount and the
// whole text as the purpose.
type FallbackParser struct{}

func (FallbackParser) Parse(_ context.Context, text string) (Parsed, error) {
	return Parsed{Amount: ExtractAmount(text), Purpose: text}, nil
}

var amountPattern = regexp.MustCompile(`\$?([\d.]+)`)

// ExtractAmount returns the first number in text, optionally prefixed with
// "$", or 0 when there is none.
func ExtractAmount(text string) float64 {
	for _, m := range amountPattern.FindAllStringSubmatch(text, -1) {
		if v, ok := leadingNumber(m[1]); ok {
			return v
		}
	}
	return 0
}

// leadingNumber parses the longest decimal prefix of s, so "1.2.3" reads as
// 1.2 and a lone "." is skipped.
func leadingNumber(s string) (float64, bool) {
	if first := strings.IndexByte(s, '.'); first >= 0 {
		if second := strings.IndexByte(s[first+1:], '.'); second >= 0 {
			s = s[:first+1+second]
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !money.Finite(v) {
		return 0, false
	}
	return v, true
}
