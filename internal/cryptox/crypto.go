// Package cryptox seals small JSON documents at rest with AES-256-GCM under
// a key derived from a secret with argon2id.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gitwiki/internal/common"
	"golang.org/x/crypto/argon2"
)

// EnvelopeVersion is written into every sealed envelope.
const EnvelopeVersion = 1

const (
	saltSize = 16
	keySize  = 32
)

var (
	// ErrMalformed reports an envelope or payload that cannot be parsed.
	ErrMalformed = errors.New("malformed sealed data")
	// ErrDecrypt reports an authentication failure: wrong secret or tampered data.
	ErrDecrypt = errors.New("decryption failed")
)

// Envelope is the on-disk form of a sealed document.
type Envelope struct {
	Version    int    `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// DeriveKey stretches secret into a 256-bit key with argon2id.
func DeriveKey(secret []byte, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, keySize)
}

// EncryptJSON serializes v to JSON and encrypts it with AES-GCM.
//
// The key must be a valid AES key length (16, 24, or 32 bytes). A new random
// 12-byte nonce is generated for each call; ciphertext and nonce are
// returned separately.
func EncryptJSON(v any, key []byte) (ciphertext, nonce []byte, err error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	defer common.WipeByteArray(plaintext)

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = common.GenerateRandByteArray(aesgcm.NonceSize())
	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)

	return ciphertext, nonce, nil
}

// DecryptJSON reverses EncryptJSON and unmarshals the JSON into v.
func DecryptJSON(ciphertext, nonce, key []byte, v any) error {
	aesgcm, err := newGCM(key)
	if err != nil {
		return err
	}
	if len(nonce) != aesgcm.NonceSize() {
		return fmt.Errorf("%w: nonce size %d", ErrMalformed, len(nonce))
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return ErrDecrypt
	}
	defer common.WipeByteArray(plaintext)

	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Seal encrypts v under a fresh salt and returns the JSON-encoded Envelope.
func Seal(v any, secret []byte) ([]byte, error) {
	salt := common.GenerateRandByteArray(saltSize)
	key := DeriveKey(secret, salt)
	defer common.WipeByteArray(key)

	ciphertext, nonce, err := EncryptJSON(v, key)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Envelope{
		Version:    EnvelopeVersion,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	})
}

// Open decodes an Envelope produced by Seal and decrypts it into v.
// It returns ErrMalformed for unreadable envelopes or payloads and
// ErrDecrypt when the secret does not match.
func Open(data []byte, secret []byte, v any) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Version != EnvelopeVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrMalformed, env.Version)
	}
	if len(env.Salt) == 0 || len(env.Ciphertext) == 0 {
		return fmt.Errorf("%w: missing salt or ciphertext", ErrMalformed)
	}

	key := DeriveKey(secret, env.Salt)
	defer common.WipeByteArray(key)

	return DecryptJSON(env.Ciphertext, env.Nonce, key, v)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
