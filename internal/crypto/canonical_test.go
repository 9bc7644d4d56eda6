package crypto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeOrdersAndStripsNulls(t *testing.T) {
	input := map[string]any{
		"b": "value",
		"a": 1,
		"c": nil,
		"d": map[string]any{"z": nil, "y": true},
	}

	got, err := Canonicalize(input)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":"value","d":{"y":true}}`, string(got))
}

func TestCanonicalizeRejectsFloats(t *testing.T) {
	_, err := Canonicalize(1.25)
	assert.ErrorIs(t, err, ErrFloatNotAllowed)

	_, err = Canonicalize(json.Number("1.25"))
	assert.ErrorIs(t, err, ErrFloatNotAllowed)

	got, err := Canonicalize(json.Number("42"))
	require.NoError(t, err)
	assert.Equal(t, "42", string(got))
}

func TestCanonicalizeNormalizesNFC(t *testing.T) {
	got, err := Canonicalize(map[string]any{"text": "é"})
	require.NoError(t, err)
	assert.Equal(t, "{\"text\":\"\u00e9\"}", string(got))

	_, err = Canonicalize(map[string]any{"é": 1, "é": 2})
	assert.ErrorIs(t, err, ErrKeyCollision)
}

func TestCanonicalizeRejectsBadShapes(t *testing.T) {
	_, err := Canonicalize(map[int]any{1: "a"})
	assert.ErrorIs(t, err, ErrNonStringMapKey)

	_, err = Canonicalize(make(chan int))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestCanonicalizeProjectsStructs(t *testing.T) {
	type rule struct {
		ID     string `json:"id"`
		Passed bool   `json:"passed"`
		Reason string `json:"reason,omitempty"`
	}
	type record struct {
		Micros int64  `json:"amount_micros"`
		Rules  []rule `json:"rules"`
	}

	got, err := Canonicalize(&record{Micros: 350000, Rules: []rule{{ID: "r1", Passed: true}}})
	require.NoError(t, err)
	assert.Equal(t, `{"amount_micros":350000,"rules":[{"id":"r1","passed":true}]}`, string(got))

	type withFloat struct {
		Amount float64 `json:"amount"`
	}
	_, err = Canonicalize(withFloat{Amount: 0.35})
	assert.ErrorIs(t, err, ErrFloatNotAllowed)
}

func TestCanonicalizeSlices(t *testing.T) {
	got, err := Canonicalize([]any{1, nil, "a"})
	require.NoError(t, err)
	assert.Equal(t, `[1,null,"a"]`, string(got))

	var nilSlice []any
	got, err = Canonicalize(nilSlice)
	require.NoError(t, err)
	assert.Equal(t, "null", string(got))
}

func TestDigestWithPrefix(t *testing.T) {
	assert.Equal(t, "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", DigestWithPrefix(nil))
}

func TestSignAndVerifyPayload(t *testing.T) {
	secret := []byte("demo_secret")
	body := []byte(`{"type":"claim.decided"}`)

	sig := SignPayload(secret, 1700000000000, body)
	require.Len(t, sig, 64)
	require.NoError(t, VerifyPayload(secret, 1700000000000, body, sig))

	assert.ErrorIs(t, VerifyPayload(secret, 1700000000001, body, sig), ErrBadSignature)
	assert.ErrorIs(t, VerifyPayload([]byte("other"), 1700000000000, body, sig), ErrBadSignature)
	assert.ErrorIs(t, VerifyPayload(secret, 1700000000000, body, "zz"), ErrBadSignature)
}
