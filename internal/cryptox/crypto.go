// Package cryptox holds the symmetric primitives used to protect principal
// secrets at rest and the offline secret cache in transit.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/qrpass/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the AES-256 key length used everywhere in qrpass.
const KeySize = 32

var ErrInvalidKey = errors.New("invalid key size")

// DeriveMasterKey stretches an operator passphrase into the at-rest master
// key with Argon2id.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, KeySize)
}

// DeriveSubkey derives a per-principal key from the master key with
// HKDF-SHA256, using the principal id as context info.
func DeriveSubkey(masterKey []byte, principalID string) ([]byte, error) {
	if len(masterKey) != KeySize {
		return nil, ErrInvalidKey
	}
	r := hkdf.New(sha256.New, masterKey, nil, []byte("qrpass/secret/"+principalID))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext with AES-GCM under key. additional is
// authenticated but not encrypted; it binds the ciphertext to its owner.
func Seal(key, plaintext, additional []byte) (ciphertext, nonce []byte, err error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = common.GenerateRandByteArray(aesgcm.NonceSize())
	return aesgcm.Seal(nil, nonce, plaintext, additional), nonce, nil
}

// Open reverses Seal.
func Open(key, ciphertext, nonce, additional []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aesgcm.NonceSize() {
		return nil, fmt.Errorf("bad nonce size %d", len(nonce))
	}
	return aesgcm.Open(nil, nonce, ciphertext, additional)
}

// Sealed is a blob encrypted under a freshly generated key.
type Sealed struct {
	Ciphertext []byte
	Key        []byte
	Nonce      []byte
}

// SealJSON serializes v to JSON and encrypts it under a new random key.
func SealJSON(v any) (*Sealed, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(plaintext)

	key := common.GenerateRandByteArray(KeySize)
	ciphertext, nonce, err := Seal(key, plaintext, nil)
	if err != nil {
		return nil, err
	}
	return &Sealed{Ciphertext: ciphertext, Key: key, Nonce: nonce}, nil
}

// OpenJSON decrypts a SealJSON blob into v.
func OpenJSON(ciphertext, key, nonce []byte, v any) error {
	plaintext, err := Open(key, ciphertext, nonce, nil)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plaintext)
	return json.Unmarshal(plaintext, v)
}
