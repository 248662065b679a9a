package filestore

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Sealed files are: magic | salt | nonce | ciphertext
var sealMagic = []byte("BREWSEAL1")

const (
	saltSize = 16

	argonTime    = 1
	argonMemory  = 19 * 1024
	argonThreads = 1
)

var ErrNotSealed = errors.New("session file is not sealed")

// sealer caches the derived key for the salt it last saw, so Argon2 runs once per salt.
type sealer struct {
	passphrase []byte
	salt       []byte
	key        []byte
}

func newSealer(passphrase string) *sealer {
	return &sealer{passphrase: []byte(passphrase)}
}

func (s *sealer) keyFor(salt []byte) []byte {
	if s.key != nil && bytes.Equal(s.salt, salt) {
		return s.key
	}
	s.salt = append([]byte(nil), salt...)
	s.key = argon2.IDKey(s.passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
	return s.key
}

func (s *sealer) seal(plaintext []byte) ([]byte, error) {
	if s.salt == nil {
		salt := make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("salt: %w", err)
		}
		s.keyFor(salt)
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	out := make([]byte, 0, len(sealMagic)+saltSize+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, sealMagic...)
	out = append(out, s.salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, sealMagic), nil
}

func (s *sealer) open(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, sealMagic) {
		return nil, ErrNotSealed
	}
	data = data[len(sealMagic):]
	if len(data) < saltSize+chacha20poly1305.NonceSizeX {
		return nil, errors.New("sealed session file truncated")
	}

	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+chacha20poly1305.NonceSizeX]
	ciphertext := data[saltSize+chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(s.keyFor(salt))
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ciphertext, sealMagic)
}
