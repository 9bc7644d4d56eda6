package policy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/techmehedi/Autopay-Agent/internal/crypto"
	"github.com/techmehedi/Autopay-Agent/internal/ledger"
)

// Backend persists one serialized policy document per tenant. Load returns
// nil data and no error when nothing has been saved yet.
type Backend interface {
	Load(ctx context.Context, tenant string) ([]byte, error)
	Save(ctx context.Context, tenant string, data []byte) error
}

// FileBackend stores <dir>/<tenant>.yaml.
type FileBackend struct {
	dir string
}

func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir}
}

func (b *FileBackend) path(tenant string) string {
	return filepath.Join(b.dir, safeName(tenant)+".yaml")
}

func (b *FileBackend) Load(_ context.Context, tenant string) ([]byte, error) {
	data, err := os.ReadFile(b.path(tenant))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func (b *FileBackend) Save(_ context.Context, tenant string, data []byte) error {
	return ledger.WriteFileAtomic(b.path(tenant), data, 0o600)
}

func safeName(tenant string) string {
	var sb strings.Builder
	for _, r := range tenant {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return DefaultTenant
	}
	return sb.String()
}

// VersionStore is the subset of the ledger that records policy versions.
type VersionStore interface {
	PutPolicyVersion(policy ledger.PolicyVersionRecord) error
	GetLatestPolicyVersion(policyID string) (ledger.PolicyVersionRecord, bool)
}

// LedgerBackend keeps every saved policy as a new version row; Load returns
// the newest one.
type LedgerBackend struct {
	store VersionStore
	now   func() time.Time
}

func NewLedgerBackend(store VersionStore) *LedgerBackend {
	return &LedgerBackend{store: store, now: time.Now}
}

func (b *LedgerBackend) Load(_ context.Context, tenant string) ([]byte, error) {
	rec, ok := b.store.GetLatestPolicyVersion(tenant)
	if !ok {
		return nil, nil
	}
	return []byte(rec.PolicyYAML), nil
}

func (b *LedgerBackend) Save(_ context.Context, tenant string, data []byte) error {
	version := 1
	if latest, ok := b.store.GetLatestPolicyVersion(tenant); ok {
		n, err := strconv.Atoi(latest.PolicyVersion)
		if err != nil {
			return fmt.Errorf("policy version %q: %w", latest.PolicyVersion, err)
		}
		version = n + 1
	}
	// The hash covers tenant and version so re-saving an older document
	// still yields a new latest row.
	canonical, err := crypto.Canonicalize(map[string]any{
		"policy_id":      tenant,
		"policy_version": int64(version),
		"policy_yaml":    string(data),
	})
	if err != nil {
		return err
	}
	return b.store.PutPolicyVersion(ledger.PolicyVersionRecord{
		PolicyHash:    crypto.DigestWithPrefix(canonical),
		PolicyID:      tenant,
		PolicyVersion: strconv.Itoa(version),
		PolicyYAML:    string(data),
		CreatedAt:     b.now().UTC().Format(time.RFC3339),
	})
}
