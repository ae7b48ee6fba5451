package cryptox

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func TestDeriveKey_Deterministic(t *testing.T) {
	secret := []byte("vault-secret")
	salt := []byte("fixed-salt-value")

	key1 := DeriveKey(secret, salt)
	key2 := DeriveKey(secret, salt)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}
	if len(key1) != 32 {
		t.Errorf("expected 32-byte key, got %d", len(key1))
	}
}

func TestDeriveKey_DifferentSalts(t *testing.T) {
	secret := []byte("vault-secret")

	key1 := DeriveKey(secret, []byte("salt-1"))
	key2 := DeriveKey(secret, []byte("salt-2"))

	if bytes.Equal(key1, key2) {
		t.Errorf("expected different results for different salts, got same")
	}
}

func TestEncryptDecryptJSON(t *testing.T) {
	key := DeriveKey([]byte("k"), []byte("salt"))
	in := record{Name: "callym", URL: "http://localhost:3002/callym"}

	ct, nonce, err := EncryptJSON(in, key)
	require.NoError(t, err)
	assert.Len(t, nonce, 12)

	var out record
	require.NoError(t, DecryptJSON(ct, nonce, key, &out))
	assert.Equal(t, in, out)
}

func TestDecryptJSON_WrongKey(t *testing.T) {
	key := DeriveKey([]byte("k"), []byte("salt"))
	other := DeriveKey([]byte("other"), []byte("salt"))

	ct, nonce, err := EncryptJSON(record{Name: "x"}, key)
	require.NoError(t, err)

	var out record
	err = DecryptJSON(ct, nonce, other, &out)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestSealOpen(t *testing.T) {
	secret := []byte("vault-secret")
	in := []record{{Name: "a", URL: "https://a.example/"}, {Name: "b", URL: "https://b.example/"}}

	data, err := Seal(in, secret)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "a.example")

	var out []record
	require.NoError(t, Open(data, secret, &out))
	assert.Equal(t, in, out)
}

func TestSeal_FreshSaltEachTime(t *testing.T) {
	a, err := Seal("same", []byte("s"))
	require.NoError(t, err)
	b, err := Seal("same", []byte("s"))
	require.NoError(t, err)

	var ea, eb Envelope
	require.NoError(t, json.Unmarshal(a, &ea))
	require.NoError(t, json.Unmarshal(b, &eb))
	assert.NotEqual(t, ea.Salt, eb.Salt)
	assert.NotEqual(t, ea.Nonce, eb.Nonce)
}

func TestOpen_Errors(t *testing.T) {
	sealed, err := Seal("payload", []byte("right"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		data   []byte
		secret string
		want   error
	}{
		{"wrong secret", sealed, "wrong", ErrDecrypt},
		{"not json", []byte("garbage"), "right", ErrMalformed},
		{"bad version", []byte(`{"version":9,"salt":"AA==","nonce":"AA==","ciphertext":"AA=="}`), "right", ErrMalformed},
		{"empty", []byte(`{"version":1}`), "right", ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out string
			err := Open(tt.data, []byte(tt.secret), &out)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
