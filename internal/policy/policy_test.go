package policy

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techmehedi/Autopay-Agent/internal/ledger"
)

func ptr[T any](v T) *T { return &v }

func TestSeedFromEnvDefaults(t *testing.T) {
	p, err := SeedFromEnv(map[string]string{})
	require.NoError(t, err)
	assert.Empty(t, p.WhitelistedContacts)
	assert.Equal(t, "", p.DefaultContact)
	assert.Equal(t, DefaultPerTxnMax, p.PerTxnMax)
	assert.Equal(t, DefaultDailyMax, p.DailyMax)
}

func TestSeedFromEnvContactList(t *testing.T) {
	p, err := SeedFromEnv(map[string]string{
		"WHITELISTED_CONTACT":  "ignored@example.com",
		"WHITELISTED_CONTACTS": " alice@example.com, bob , alice@example.com,, ",
		"PER_TXN_MAX":          "1.25",
		"DAILY_MAX":            "NaN",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@example.com", "bob"}, p.WhitelistedContacts)
	assert.Equal(t, "alice@example.com", p.DefaultContact)
	assert.Equal(t, 1.25, p.PerTxnMax)
	assert.Equal(t, DefaultDailyMax, p.DailyMax)
}

func TestSeedFromEnvSingleContact(t *testing.T) {
	p, err := SeedFromEnv(map[string]string{"WHITELISTED_CONTACT": "carol", "PER_TXN_MAX": "abc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, p.WhitelistedContacts)
	assert.Equal(t, DefaultPerTxnMax, p.PerTxnMax)
}

func TestPolicyDefaultRecipient(t *testing.T) {
	assert.Equal(t, "", Policy{}.DefaultRecipient())
	assert.Equal(t, "a", Policy{WhitelistedContacts: []string{"a", "b"}}.DefaultRecipient())
	assert.Equal(t, "b", Policy{WhitelistedContacts: []string{"a", "b"}, DefaultContact: "b"}.DefaultRecipient())
}

func TestPolicyHashStable(t *testing.T) {
	a := Policy{WhitelistedContacts: []string{"a"}, PerTxnMax: 0.5, DailyMax: 3}
	b := Policy{WhitelistedContacts: []string{"a"}, PerTxnMax: 0.1 + 0.4, DailyMax: 3}
	assert.Equal(t, a.Hash(), b.Hash())
	b.DailyMax = 4
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestUpdateValidate(t *testing.T) {
	require.NoError(t, Update{PerTxnMax: ptr(0.0)}.Validate())
	require.ErrorIs(t, Update{PerTxnMax: ptr(-1.0)}.Validate(), ErrInvalidPolicy)
	require.ErrorIs(t, Update{DailyMax: ptr(math.Inf(1))}.Validate(), ErrInvalidPolicy)
}

func TestStoreSetNormalizesAndRepairsDefault(t *testing.T) {
	ctx := context.Background()
	seed := Policy{WhitelistedContacts: []string{"alice"}, DefaultContact: "alice", PerTxnMax: 0.5, DailyMax: 3}
	s := NewStore(seed, NewFileBackend(t.TempDir()), nil, nil)

	got, err := s.Set(ctx, "acme", Update{WhitelistedContacts: []string{" bob ", "carol", "bob"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, got.WhitelistedContacts)
	assert.Equal(t, "bob", got.DefaultContact)
	assert.Equal(t, 0.5, got.PerTxnMax)

	got, err = s.Set(ctx, "acme", Update{DefaultContact: ptr("carol"), DailyMax: ptr(10.0)})
	require.NoError(t, err)
	assert.Equal(t, "carol", got.DefaultContact)
	assert.Equal(t, 10.0, got.DailyMax)
	assert.Equal(t, "carol", s.DefaultRecipient(ctx, "acme"))

	// Other tenants still see the seed.
	assert.Equal(t, seed, s.Get(ctx, "other"))
}

func TestStoreSetRejectsNegative(t *testing.T) {
	s := NewStore(Policy{}, nil, nil, nil)
	_, err := s.Set(context.Background(), "", Update{DailyMax: ptr(-3.0)})
	require.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestStorePersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	seed := Policy{PerTxnMax: 0.5, DailyMax: 3}

	first := NewStore(seed, NewFileBackend(dir), nil, nil)
	_, err := first.Set(ctx, "acme", Update{WhitelistedContacts: []string{"dave"}, PerTxnMax: ptr(2.0)})
	require.NoError(t, err)

	second := NewStore(seed, NewFileBackend(dir), nil, nil)
	got := second.Get(ctx, "acme")
	assert.Equal(t, []string{"dave"}, got.WhitelistedContacts)
	assert.Equal(t, 2.0, got.PerTxnMax)
	assert.Equal(t, 3.0, got.DailyMax)
}

type staticBackend struct{ data []byte }

func (b staticBackend) Load(context.Context, string) ([]byte, error) { return b.data, nil }
func (b staticBackend) Save(context.Context, string, []byte) error  { return nil }

func TestStoreMergesFieldByField(t *testing.T) {
	seed := Policy{WhitelistedContacts: []string{"alice"}, DefaultContact: "alice", PerTxnMax: 0.5, DailyMax: 3}

	s := NewStore(seed, staticBackend{data: []byte(`{"dailyMax": 7, "whitelistedContacts": []}`)}, nil, nil)
	got := s.Get(context.Background(), "acme")
	assert.Equal(t, []string{"alice"}, got.WhitelistedContacts)
	assert.Equal(t, 0.5, got.PerTxnMax)
	assert.Equal(t, 7.0, got.DailyMax)

	s = NewStore(seed, staticBackend{data: []byte("whitelistedContacts: [zed]\ndefaultContact: nobody\n")}, nil, nil)
	got = s.Get(context.Background(), "acme")
	assert.Equal(t, []string{"zed"}, got.WhitelistedContacts)
	assert.Equal(t, "zed", got.DefaultContact)
}

func TestStoreMalformedDocumentIsAbsent(t *testing.T) {
	seed := Policy{WhitelistedContacts: []string{"alice"}, DefaultContact: "alice", PerTxnMax: 0.5, DailyMax: 3}
	s := NewStore(seed, staticBackend{data: []byte("{not: [valid")}, nil, nil)
	assert.Equal(t, seed, s.Get(context.Background(), "acme"))
}

func TestStoreWithoutBackendKeepsUpdatesInCache(t *testing.T) {
	ctx := context.Background()
	s := NewStore(Policy{PerTxnMax: 0.5, DailyMax: 3}, nil, nil, nil)
	_, err := s.Set(ctx, "acme", Update{PerTxnMax: ptr(1.0)})
	require.NoError(t, err)
	_, err = s.Set(ctx, "acme", Update{DailyMax: ptr(9.0)})
	require.NoError(t, err)
	got := s.Get(ctx, "acme")
	assert.Equal(t, 1.0, got.PerTxnMax)
	assert.Equal(t, 9.0, got.DailyMax)
}

func TestLedgerBackendVersions(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemoryStore()
	b := NewLedgerBackend(store)

	data, err := b.Load(ctx, "acme")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, b.Save(ctx, "acme", []byte("perTxnMax: 1\n")))
	require.NoError(t, b.Save(ctx, "acme", []byte("perTxnMax: 2\n")))
	require.NoError(t, b.Save(ctx, "acme", []byte("perTxnMax: 1\n")))

	latest, ok := store.GetLatestPolicyVersion("acme")
	require.True(t, ok)
	assert.Equal(t, "3", latest.PolicyVersion)

	data, err = b.Load(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "perTxnMax: 1\n", string(data))

	s := NewStore(Policy{DailyMax: 3}, b, nil, nil)
	assert.Equal(t, 1.0, s.Get(ctx, "acme").PerTxnMax)
}

func TestFileBackendSanitizesTenant(t *testing.T) {
	b := NewFileBackend("/srv/policies")
	assert.Equal(t, "/srv/policies/___etc.yaml", b.path("../etc"))
	assert.Equal(t, "/srv/policies/default.yaml", b.path(""))
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	p := Policy{WhitelistedContacts: []string{"a"}}
	c.Set(ctx, "t", p)
	p.WhitelistedContacts[0] = "mutated"
	got, ok := c.Get(ctx, "t")
	require.True(t, ok)
	assert.Equal(t, "a", got.WhitelistedContacts[0])
}

func TestRedisCacheUnreachableIsMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedisCache(client, time.Minute, nil)
	ctx := context.Background()
	c.Set(ctx, "acme", Policy{PerTxnMax: 1})
	_, ok := c.Get(ctx, "acme")
	assert.False(t, ok)

	s := NewStore(Policy{PerTxnMax: 0.5, DailyMax: 3}, nil, c, nil)
	assert.Equal(t, 0.5, s.Get(ctx, "acme").PerTxnMax)
}

func TestRedisCacheRoundTrip(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	c := NewRedisCache(client, time.Minute, nil)
	tenant := "test-" + time.Now().Format("150405.000000000")
	t.Cleanup(func() { client.Del(ctx, redisKeyPrefix+tenant) })

	_, ok := c.Get(ctx, tenant)
	assert.False(t, ok)
	want := Policy{WhitelistedContacts: []string{"a"}, DefaultContact: "a", PerTxnMax: 1, DailyMax: 2}
	c.Set(ctx, tenant, want)
	got, ok := c.Get(ctx, tenant)
	require.True(t, ok)
	assert.Equal(t, want, got)
}
