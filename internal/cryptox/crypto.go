// Package cryptox implements the deterministic keyed password digests used to
// store and compare credentials. A digest is the base64 (std) encoding of the
// keyed hash of the UTF-8 password.
package cryptox

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	// AlgorithmHMACSHA512 is the default and matches digests already stored
	// by earlier deployments.
	AlgorithmHMACSHA512 = "hmac-sha512"
	// AlgorithmBLAKE2b is keyed BLAKE2b-512.
	AlgorithmBLAKE2b = "blake2b-512"
)

var ErrEmptyKey = errors.New("hash key must not be empty")

// PasswordHasher is a one-way keyed hash. Equal inputs give equal digests.
type PasswordHasher interface {
	Hash(value string) string
}

// NewPasswordHasher builds the hasher for algorithm with the given secret key.
func NewPasswordHasher(algorithm, key string) (PasswordHasher, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	switch strings.ToLower(algorithm) {
	case "", AlgorithmHMACSHA512:
		return &HMACHasher{key: []byte(key)}, nil
	case AlgorithmBLAKE2b:
		return newBlake2bHasher([]byte(key))
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", algorithm)
	}
}

// HMACHasher computes HMAC-SHA512.
type HMACHasher struct {
	key []byte
}

func (h *HMACHasher) Hash(value string) string {
	mac := hmac.New(sha512.New, h.key)
	mac.Write([]byte(value))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Blake2bHasher computes keyed BLAKE2b-512. Keys longer than 64 bytes are
// rejected by the underlying primitive.
type Blake2bHasher struct {
	key []byte
}

func newBlake2bHasher(key []byte) (*Blake2bHasher, error) {
	if _, err := blake2b.New512(key); err != nil {
		return nil, fmt.Errorf("blake2b key: %w", err)
	}
	return &Blake2bHasher{key: key}, nil
}

func (h *Blake2bHasher) Hash(value string) string {
	// key length was validated in the constructor
	d, _ := blake2b.New512(h.key)
	d.Write([]byte(value))
	return base64.StdEncoding.EncodeToString(d.Sum(nil))
}

// Matches reports whether hasher(value) equals digest, in constant time.
func Matches(hasher PasswordHasher, value, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(hasher.Hash(value)), []byte(digest)) == 1
}
