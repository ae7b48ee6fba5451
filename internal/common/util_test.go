package common

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeRandHexString(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"nonce", 16},
		{"session token", SessionTokenBytes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := MakeRandHexString(tt.size)
			require.NoError(t, err)
			assert.Len(t, s, tt.size*2)

			raw, err := hex.DecodeString(s)
			require.NoError(t, err)
			assert.Len(t, raw, tt.size)
		})
	}
}

func TestMakeRandHexString_Distinct(t *testing.T) {
	seen := make(map[string]bool)
	for range 64 {
		s, err := MakeRandHexString(SessionTokenBytes)
		require.NoError(t, err)
		require.False(t, seen[s], "duplicate token %s", s)
		seen[s] = true
	}
}

func TestGenerateRandByteArray(t *testing.T) {
	for _, size := range []int{0, 12, 32} {
		b := GenerateRandByteArray(size)
		assert.Len(t, b, size)
	}
	assert.NotEqual(t, GenerateRandByteArray(32), GenerateRandByteArray(32))
}

func TestWipeByteArray(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
		{"key material", []byte("correct horse battery staple")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := len(tt.in)
			assert.NotPanics(t, func() { WipeByteArray(tt.in) })
			assert.Equal(t, make([]byte, n), append([]byte{}, tt.in...))
		})
	}
}
