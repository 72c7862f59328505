// Package crypto holds the session signing keys and password hashing.
package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/bcrypt"

	"uchat/internal/domain"
)

var (
	ErrInvalidKey      = errors.New("invalid signing key")
	ErrInvalidPassword = errors.New("invalid password")
)

// SigningKeys is the Ed25519 key pair used to sign session IDs.
type SigningKeys struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

func GenerateSigningKeys(rand io.Reader) (*SigningKeys, error) {
	pub, priv, err := ed25519.GenerateKey(rand)
	if err != nil {
		return nil, fmt.Errorf("generate signing keys: %w", err)
	}
	return &SigningKeys{private: priv, public: pub}, nil
}

// DecodeSigningKeys restores a key pair from the output of EncodePrivateKey.
func DecodeSigningKeys(encoded string) (*SigningKeys, error) {
	seed, err := DecodeBase64(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &SigningKeys{private: priv, public: priv.Public().(ed25519.PublicKey)}, nil
}

// EncodePrivateKey returns the base64 encoded seed.
func (k *SigningKeys) EncodePrivateKey() string {
	return EncodeBase64(k.private.Seed())
}

func (k *SigningKeys) Public() ed25519.PublicKey { return k.public }

func (k *SigningKeys) Sign(msg []byte) []byte {
	return ed25519.Sign(k.private, msg)
}

func (k *SigningKeys) Verify(msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(k.public, msg, sig)
}

func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func DecodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

func HashPassword(p domain.Password) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(p.Reveal()), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// VerifyPassword returns ErrInvalidPassword when p does not match hash.
func VerifyPassword(p domain.Password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(p.Reveal())); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}
	return nil
}
