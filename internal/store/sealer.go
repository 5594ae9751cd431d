package store

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

// Key derivation parameters.
//
// Argon2id parameters follow OWASP recommendations for interactive logins:
// https://cheatsheetseries.owasp.org/cheatsheets/Password_Storage_Cheat_Sheet.html
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // 64 MiB in KiB
	argonThreads = 4
	keyLength    = 32
	saltLength   = 16
	nonceLength  = 24
)

// Sealer encrypts credential passwords with a key derived from the
// configured passphrase and the dataset's salt.
type Sealer struct {
	key [keyLength]byte
}

// NewSealer derives a sealing key from passphrase and salt.
func NewSealer(passphrase string, salt []byte) (*Sealer, error) {
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}
	if len(salt) < saltLength {
		return nil, fmt.Errorf("salt must be at least %d bytes", saltLength)
	}
	s := &Sealer{}
	copy(s.key[:], argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, keyLength))
	return s, nil
}

// OpenSealer returns a Sealer for the dataset, creating and saving the
// dataset salt on first use.
func OpenSealer(ctx context.Context, settings *ConfigTable, passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}

	encoded, ok, err := settings.Value(ctx, SettingCredentialSalt)
	if err != nil {
		return nil, err
	}
	var salt []byte
	if ok {
		salt, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decoding credential salt: %w", err)
		}
	} else {
		salt = make([]byte, saltLength)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("generating credential salt: %w", err)
		}
		if err := settings.Put(ctx, SettingCredentialSalt, base64.RawStdEncoding.EncodeToString(salt)); err != nil {
			return nil, fmt.Errorf("saving credential salt: %w", err)
		}
	}

	return NewSealer(passphrase, salt)
}

// Seal encrypts plain and returns nonce||box as base64.
func (s *Sealer) Seal(plain string) (string, error) {
	var nonce [nonceLength]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key)
	return base64.RawStdEncoding.EncodeToString(box), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceLength+secretbox.Overhead {
		return "", ErrSealedPassword
	}
	var nonce [nonceLength]byte
	copy(nonce[:], raw[:nonceLength])
	plain, ok := secretbox.Open(nil, raw[nonceLength:], &nonce, &s.key)
	if !ok {
		return "", ErrSealedPassword
	}
	return string(plain), nil
}
