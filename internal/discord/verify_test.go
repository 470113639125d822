package discord

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	key, err := ParsePublicKey(hex.EncodeToString(pub))
	require.NoError(t, err)

	body := []byte(`{"type":1}`)
	sig := hex.EncodeToString(ed25519.Sign(priv, append([]byte("1700000000"), body...)))

	assert.NoError(t, Verify(key, sig, "1700000000", body))
	assert.ErrorIs(t, Verify(key, sig, "1700000001", body), ErrBadSignature)
	assert.ErrorIs(t, Verify(key, "zz", "1700000000", body), ErrBadSignature)
}

func TestParsePublicKeyRejectsShortKeys(t *testing.T) {
	_, err := ParsePublicKey("abcd")
	assert.Error(t, err)
}
