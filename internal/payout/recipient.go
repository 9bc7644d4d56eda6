package payout

import (
	"fmt"
	"regexp"
	"strings"
)

type RecipientKind string

const (
	RecipientAddress RecipientKind = "address"
	RecipientEmail   RecipientKind = "email"
	RecipientContact RecipientKind = "contact"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

func ClassifyRecipient(recipient string) RecipientKind {
	switch {
	case strings.Contains(recipient, "@"):
		return RecipientEmail
	case addressPattern.MatchString(recipient):
		return RecipientAddress
	default:
		return RecipientContact
	}
}

// preference lists tool names best suited to each kind, most specific first.
var preference = map[RecipientKind][]string{
	RecipientAddress: {"send_to_address", "send_to_contact", "send_to_email"},
	RecipientEmail:   {"send_to_email", "send_to_contact", "send_to_address"},
	RecipientContact: {"send_to_contact", "send_to_address", "send_to_email"},
}

var genericPayoutWords = []string{"payout", "send", "payment"}

// IsPayoutToolName reports whether a tool name looks like it moves money.
func IsPayoutToolName(name string) bool {
	lower := strings.ToLower(name)
	for _, w := range genericPayoutWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// SelectTool picks the tool for kind: an exact preferred name, then a
// namespaced or decorated variant of one, then any payout-looking tool.
func SelectTool(tools []Tool, kind RecipientKind) (Tool, error) {
	names := preference[kind]
	if names == nil {
		names = preference[RecipientContact]
	}
	for _, want := range names {
		for _, t := range tools {
			if t.Name == want {
				return t, nil
			}
		}
	}
	for _, want := range names {
		for _, t := range tools {
			if strings.Contains(strings.ToLower(t.Name), want) {
				return t, nil
			}
		}
	}
	for _, t := range tools {
		if IsPayoutToolName(t.Name) {
			return t, nil
		}
	}

	available := make([]string, 0, len(tools))
	for _, t := range tools {
		available = append(available, t.Name)
	}
	return Tool{}, fmt.Errorf("%w. Available tools: %s", ErrNoPayoutTool, strings.Join(available, ", "))
}
