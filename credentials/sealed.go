package credentials

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// sealedPrefix marks values written by a sealed repo so plain values left over
// from before sealing was enabled can be told apart.
const sealedPrefix = "xc1:"

// ErrUnsealable is returned when a stored value fails authentication under the configured key.
var ErrUnsealable = errors.New("stored credential cannot be unsealed")

// ParseKey decodes a hex encoded 32 byte sealing key.
func ParseKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("credential key is not hex: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("credential key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return key, nil
}

type sealedRepo struct {
	next Repo
	aead cipher.AEAD
}

// Sealed wraps repo so values are encrypted at rest with XChaCha20-Poly1305.
// Each value is bound to its key name, so values can't be swapped between keys.
func Sealed(repo Repo, key []byte) (Repo, error) {
	if repo == nil {
		return nil, errors.New("[Sealed] repo is required")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("[Sealed] %w", err)
	}
	return &sealedRepo{next: repo, aead: aead}, nil
}

func (s *sealedRepo) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	values, err := s.next.Get(ctx, keys...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		plain, err := s.open(k, v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, k)
		}
		out[k] = plain
	}
	return out, nil
}

func (s *sealedRepo) Put(ctx context.Context, values map[string]string) error {
	sealed := make(map[string]string, len(values))
	for k, v := range values {
		ct, err := s.seal(k, v)
		if err != nil {
			return err
		}
		sealed[k] = ct
	}
	return s.next.Put(ctx, sealed)
}

func (s *sealedRepo) Delete(ctx context.Context, keys ...string) error {
	return s.next.Delete(ctx, keys...)
}

func (s *sealedRepo) seal(key, value string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	ct := s.aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(ct), nil
}

func (s *sealedRepo) open(key, value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return "", ErrUnsealable
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil || len(raw) < s.aead.NonceSize() {
		return "", ErrUnsealable
	}
	nonce, ct := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ct, []byte(key))
	if err != nil {
		return "", ErrUnsealable
	}
	return string(plain), nil
}
