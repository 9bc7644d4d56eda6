package custompolicy

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

var ErrInvalidPolicies = errors.New("invalid custom policies")

//go:embed schema.json
var schemaJSON string

const schemaURL = "https://autopay.schemas.local/custom-policies.schema.json"

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("custom policy schema load failed: %w", err)
	}
	return c.Compile(schemaURL)
})

// policyIDSpace namespaces ids derived for policies that do not carry one.
var policyIDSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://autopay.schemas.local/custom-policy"))

// filePolicy lets a document omit "active"; omitted means active.
type filePolicy struct {
	CustomPolicy
	Active *bool `json:"active"`
}

func LoadFile(path string) ([]CustomPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	policies, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return policies, nil
}

// Parse reads a YAML or JSON list of policies and validates it against the
// embedded schema.
func Parse(data []byte) ([]CustomPolicy, error) {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicies, err)
	}
	if doc == nil {
		return nil, nil
	}

	// Round-trip through JSON so the validator sees JSON-native values.
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicies, err)
	}
	var instance any
	if err := json.Unmarshal(asJSON, &instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicies, err)
	}
	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicies, err)
	}

	var raw []filePolicy
	if err := json.Unmarshal(asJSON, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicies, err)
	}

	out := make([]CustomPolicy, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, fp := range raw {
		p := fp.CustomPolicy
		p.Active = fp.Active == nil || *fp.Active
		if p.ID == "" {
			p.ID = uuid.NewSHA1(policyIDSpace, []byte(p.OrganizationID+"/"+p.Name)).String()
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate policy id %q", ErrInvalidPolicies, p.ID)
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// ForTenant returns the policies owned by tenant plus those with no owner.
func ForTenant(policies []CustomPolicy, tenant string) []CustomPolicy {
	var out []CustomPolicy
	for _, p := range policies {
		if p.OrganizationID == "" || p.OrganizationID == tenant {
			out = append(out, p)
		}
	}
	return out
}
