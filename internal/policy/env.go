package policy

import (
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/techmehedi/Autopay-Agent/internal/money"
)

const (
	DefaultPerTxnMax = 0.50
	DefaultDailyMax  = 3.0
)

// envSeed keeps the limits as strings so an unparsable value falls back to
// the default instead of failing startup.
type envSeed struct {
	WhitelistedContact  string `env:"WHITELISTED_CONTACT"`
	WhitelistedContacts string `env:"WHITELISTED_CONTACTS"`
	PerTxnMax           string `env:"PER_TXN_MAX" envDefault:"0.50"`
	DailyMax            string `env:"DAILY_MAX" envDefault:"3.0"`
}

// SeedFromEnv builds the default policy from environment variables. A nil
// environ reads the process environment.
func SeedFromEnv(environ map[string]string) (Policy, error) {
	var raw envSeed
	var err error
	if environ == nil {
		err = env.Parse(&raw)
	} else {
		err = env.ParseWithOptions(&raw, env.Options{Environment: environ})
	}
	if err != nil {
		return Policy{}, err
	}

	var contacts []string
	if strings.TrimSpace(raw.WhitelistedContacts) != "" {
		contacts = strings.Split(raw.WhitelistedContacts, ",")
	} else if raw.WhitelistedContact != "" {
		contacts = []string{raw.WhitelistedContact}
	}

	p := Policy{
		WhitelistedContacts: cleanContacts(contacts),
		PerTxnMax:           parseLimit(raw.PerTxnMax, DefaultPerTxnMax),
		DailyMax:            parseLimit(raw.DailyMax, DefaultDailyMax),
	}
	if len(p.WhitelistedContacts) > 0 {
		p.DefaultContact = p.WhitelistedContacts[0]
	}
	return p, nil
}

func parseLimit(raw string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || !money.Finite(v) || v < 0 {
		return fallback
	}
	return v
}
