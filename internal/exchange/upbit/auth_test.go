package upbit

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedAuthorizer() *authorizer {
	a := newAuthorizer("test-access", "test-secret")
	a.nonce = func() string { return "00000000-0000-0000-0000-000000000001" }
	return a
}

func verifySignature(t *testing.T, token, secret string) string {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(parts[0] + "." + parts[1]))
	want := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	assert.Equal(t, want, parts[2], "signature covers header.payload")

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	return string(payload)
}

func TestBearerWithoutParams(t *testing.T) {
	a := fixedAuthorizer()

	bearer, err := a.bearer(nil)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(bearer, "Bearer "))

	payload := verifySignature(t, strings.TrimPrefix(bearer, "Bearer "), "test-secret")
	assert.Contains(t, payload, `"access_key":"test-access"`)
	assert.Contains(t, payload, `"nonce":"00000000-0000-0000-0000-000000000001"`)
	assert.NotContains(t, payload, "query_hash", "parameterless requests carry no query hash")
}

func TestBearerHashesQuery(t *testing.T) {
	a := fixedAuthorizer()

	params := url.Values{}
	params.Set("identifier", "abc123")
	params.Set("state", "wait")

	bearer, err := a.bearer(params)
	require.NoError(t, err)

	sum := sha512.Sum512([]byte(params.Encode()))
	wantHash := hex.EncodeToString(sum[:])

	payload := verifySignature(t, strings.TrimPrefix(bearer, "Bearer "), "test-secret")
	assert.Contains(t, payload, `"query_hash":"`+wantHash+`"`)
	assert.Contains(t, payload, `"query_hash_alg":"SHA512"`)
}

func TestBearerNoncesDiffer(t *testing.T) {
	a := newAuthorizer("k", "s")

	first, err := a.bearer(nil)
	require.NoError(t, err)
	second, err := a.bearer(nil)
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "each token carries a fresh nonce")
}
