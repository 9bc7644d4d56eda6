// Package policy holds each tenant's static payout limits: the recipient
// whitelist, default recipient, per-transaction maximum and daily maximum.
package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/techmehedi/Autopay-Agent/internal/crypto"
	"github.com/techmehedi/Autopay-Agent/internal/ledger"
	"github.com/techmehedi/Autopay-Agent/internal/money"
)

// DefaultTenant is used when a request does not name an organization.
const DefaultTenant = ledger.UnscopedTenant

var ErrInvalidPolicy = errors.New("invalid policy")

// Policy is the effective limit set for one tenant. DefaultContact is either
// empty or a member of WhitelistedContacts.
type Policy struct {
	WhitelistedContacts []string `json:"whitelistedContacts" yaml:"whitelistedContacts"`
	DefaultContact      string   `json:"defaultContact,omitempty" yaml:"defaultContact,omitempty"`
	PerTxnMax           float64  `json:"perTxnMax" yaml:"perTxnMax"`
	DailyMax            float64  `json:"dailyMax" yaml:"dailyMax"`
}

// IsWhitelisted matches recipients exactly; wallet addresses are case-sensitive.
func (p Policy) IsWhitelisted(recipient string) bool {
	for _, c := range p.WhitelistedContacts {
		if c == recipient {
			return true
		}
	}
	return false
}

// DefaultRecipient returns the configured default, falling back to the first
// whitelisted contact.
func (p Policy) DefaultRecipient() string {
	if p.DefaultContact != "" {
		return p.DefaultContact
	}
	if len(p.WhitelistedContacts) > 0 {
		return p.WhitelistedContacts[0]
	}
	return ""
}

// Hash is a content address over the policy with amounts in micro-units.
func (p Policy) Hash() string {
	view := map[string]any{
		"whitelisted_contacts": p.WhitelistedContacts,
		"default_contact":      p.DefaultContact,
		"per_txn_max_micros":   money.ToMicros(p.PerTxnMax),
		"daily_max_micros":     money.ToMicros(p.DailyMax),
	}
	canonical, err := crypto.Canonicalize(view)
	if err != nil {
		// Only strings and integers are present, so this cannot happen.
		panic(fmt.Sprintf("policy: canonicalize: %v", err))
	}
	return crypto.DigestWithPrefix(canonical)
}

func (p Policy) clone() Policy {
	p.WhitelistedContacts = append([]string(nil), p.WhitelistedContacts...)
	return p
}

// normalize trims and de-duplicates the whitelist and repairs the default
// contact invariant.
func (p *Policy) normalize() {
	p.WhitelistedContacts = cleanContacts(p.WhitelistedContacts)
	if p.DefaultContact != "" && !p.IsWhitelisted(p.DefaultContact) {
		p.DefaultContact = ""
		if len(p.WhitelistedContacts) > 0 {
			p.DefaultContact = p.WhitelistedContacts[0]
		}
	}
}

func cleanContacts(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Update is a partial change; nil or empty fields keep the current value.
type Update struct {
	WhitelistedContacts []string `json:"whitelistedContacts,omitempty"`
	DefaultContact      *string  `json:"defaultContact,omitempty"`
	PerTxnMax           *float64 `json:"perTxnMax,omitempty"`
	DailyMax            *float64 `json:"dailyMax,omitempty"`
}

func (u Update) Validate() error {
	if u.PerTxnMax != nil && (!money.Finite(*u.PerTxnMax) || *u.PerTxnMax < 0) {
		return fmt.Errorf("%w: perTxnMax must be >= 0", ErrInvalidPolicy)
	}
	if u.DailyMax != nil && (!money.Finite(*u.DailyMax) || *u.DailyMax < 0) {
		return fmt.Errorf("%w: dailyMax must be >= 0", ErrInvalidPolicy)
	}
	return nil
}

func (u Update) apply(current Policy) Policy {
	next := current.clone()
	if cleaned := cleanContacts(u.WhitelistedContacts); len(cleaned) > 0 {
		next.WhitelistedContacts = cleaned
	}
	if u.DefaultContact != nil && strings.TrimSpace(*u.DefaultContact) != "" {
		next.DefaultContact = strings.TrimSpace(*u.DefaultContact)
	}
	if u.PerTxnMax != nil {
		next.PerTxnMax = *u.PerTxnMax
	}
	if u.DailyMax != nil {
		next.DailyMax = *u.DailyMax
	}
	next.normalize()
	return next
}

// document is the persisted shape. Every field is optional so persisted
// values can win field by field over the environment seed.
type document struct {
	WhitelistedContacts []string `json:"whitelistedContacts,omitempty" yaml:"whitelistedContacts,omitempty"`
	DefaultContact      string   `json:"defaultContact,omitempty" yaml:"defaultContact,omitempty"`
	PerTxnMax           *float64 `json:"perTxnMax,omitempty" yaml:"perTxnMax,omitempty"`
	DailyMax            *float64 `json:"dailyMax,omitempty" yaml:"dailyMax,omitempty"`
}

func (d document) mergeOver(seed Policy) Policy {
	merged := seed.clone()
	if contacts := cleanContacts(d.WhitelistedContacts); len(contacts) > 0 {
		merged.WhitelistedContacts = contacts
	}
	if d.DefaultContact != "" {
		merged.DefaultContact = d.DefaultContact
	}
	if d.PerTxnMax != nil && money.Finite(*d.PerTxnMax) && *d.PerTxnMax >= 0 {
		merged.PerTxnMax = *d.PerTxnMax
	}
	if d.DailyMax != nil && money.Finite(*d.DailyMax) && *d.DailyMax >= 0 {
		merged.DailyMax = *d.DailyMax
	}
	merged.normalize()
	return merged
}
