package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cheapPINParams = Argon2idParams{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func TestArgon2HashService_HashAndVerify(t *testing.T) {
	svc := NewArgon2HashService()

	hash, err := svc.Hash("4821")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v="), "hash should start with $argon2id$v=")
	assert.Contains(t, hash, "m=19456,t=2,p=1")

	match, err := svc.Verify("4821", hash)
	require.NoError(t, err)
	assert.True(t, match)

	match, err = svc.Verify("4822", hash)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestArgon2HashService_UniqueSalts(t *testing.T) {
	svc := NewArgon2HashServiceWithParams(cheapPINParams)

	hash1, err := svc.Hash("0000")
	require.NoError(t, err)
	hash2, err := svc.Hash("0000")
	require.NoError(t, err)

	assert.NotEqual(t, hash1, hash2, "same PIN should produce different hashes (different salts)")
}

func TestArgon2HashService_VerifiesHashesFromOtherParams(t *testing.T) {
	old := NewArgon2HashServiceWithParams(cheapPINParams)
	hash, err := old.Hash("1234")
	require.NoError(t, err)

	match, err := NewArgon2HashService().Verify("1234", hash)
	require.NoError(t, err)
	assert.True(t, match)
}

func TestArgon2HashService_VerifyInvalidFormat(t *testing.T) {
	svc := NewArgon2HashService()

	tests := []struct {
		name string
		hash string
	}{
		{"garbage", "not-a-valid-hash"},
		{"wrong algorithm", "$argon2i$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA"},
		{"wrong version", "$argon2id$v=16$m=1024,t=1,p=1$c2FsdA$aGFzaA"},
		{"bad salt", "$argon2id$v=19$m=1024,t=1,p=1$!!!$aGFzaA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify("1234", tt.hash)
			assert.Error(t, err)
		})
	}
}
