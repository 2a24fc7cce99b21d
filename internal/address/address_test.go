package address_test

import (
	"crypto/rand"
	"testing"

	"github.com/acem702/Ekehi-Network/internal/address"
	"github.com/stretchr/testify/require"
)

func TestEncodeValidateRoundTrip(t *testing.T) {
	for i := 0; i < 32; i++ {
		payload := make([]byte, address.PayloadLen)
		_, err := rand.Read(payload)
		require.NoError(t, err)

		encoded, ok := address.Encode(payload)
		require.True(t, ok)
		require.True(t, address.Validate(encoded))
		require.Len(t, encoded, address.EncodedLen)
	}
}

func TestValidateRejectsBadChecksum(t *testing.T) {
	payload := make([]byte, address.PayloadLen)
	encoded, ok := address.Encode(payload)
	require.True(t, ok)

	corrupted := []byte(encoded)
	corrupted[len(corrupted)-1] = 'f'
	if encoded[len(encoded)-1] == 'f' {
		corrupted[len(corrupted)-1] = 'e'
	}
	require.False(t, address.Validate(string(corrupted)))
}

func TestValidateReservedTokens(t *testing.T) {
	require.True(t, address.Validate(address.Coinbase))
	require.False(t, address.Validate("FAUCET"))
	require.True(t, address.Validate("FAUCET", "FAUCET", "ECOSYSTEM"))
}

func TestValidateRejectsWrongPrefixOrLength(t *testing.T) {
	require.False(t, address.Validate("ABC1234"))
	require.False(t, address.Validate("EKH"+"00"))
}

func TestDeriveFromPrivateKeyIsDeterministicAndValid(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	a1, ok := address.DeriveFromPrivateKey(key)
	require.True(t, ok)
	a2, ok := address.DeriveFromPrivateKey(key)
	require.True(t, ok)

	require.Equal(t, a1, a2)
	require.True(t, address.Validate(a1))
}
