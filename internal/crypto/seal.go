// Package crypto seals small secrets (ticket preimages, participants'
// encrypted key material) at rest behind the coordinator's own key, per
// §9 "Secret handling": the database never holds a usable preimage or
// signing key in the clear.
package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the required length of a sealing key.
const KeySize = 32

// Sealer seals and opens secrets with a single symmetric key held only
// by the coordinator process, never persisted alongside the data it
// protects.
type Sealer struct {
	key [KeySize]byte
}

// NewSealer builds a Sealer from key, which must be KeySize bytes.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("sealing key must be %d bytes, got %d", KeySize, len(key))
	}
	var s Sealer
	copy(s.key[:], key)
	return &s, nil
}

// Seal encrypts plaintext, prefixing the ciphertext with a fresh random
// nonce so Open can recover it.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < 24 {
		return nil, fmt.Errorf("sealed value too short")
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])

	plaintext, ok := secretbox.Open(nil, sealed[24:], &nonce, &s.key)
	if !ok {
		return nil, fmt.Errorf("decrypting sealed value: authentication failed")
	}
	return plaintext, nil
}
