// Package crypto provides the signing and verification primitives for the
// audit ledger: Ed25519 by default, HMAC-SHA256 as an explicit fallback.
package crypto

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// AlgEd25519 and AlgHMAC are the key_id prefixes recorded on entries.
	AlgEd25519 = "ed25519"
	AlgHMAC    = "hmac"

	keyIDSeparator = ":"
)

// Signer signs canonical payload bytes and identifies the key used.
type Signer interface {
	Sign(data []byte) (string, error)
	KeyID() string
	// PublicMaterial is what gets published next to the ledger: the Ed25519
	// public key, or the shared secret in HMAC mode.
	PublicMaterial() []byte
}

// Ed25519Signer signs with an Ed25519 private key.
type Ed25519Signer struct {
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
	keyID string
}

// NewEd25519Signer generates a fresh keypair.
func NewEd25519Signer() (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return newEd25519(priv, pub), nil
}

// NewEd25519SignerFromKey wraps an existing private key.
func NewEd25519SignerFromKey(priv ed25519.PrivateKey) *Ed25519Signer {
	return newEd25519(priv, priv.Public().(ed25519.PublicKey))
}

func newEd25519(priv ed25519.PrivateKey, pub ed25519.PublicKey) *Ed25519Signer {
	return &Ed25519Signer{
		priv:  priv,
		pub:   pub,
		keyID: AlgEd25519 + keyIDSeparator + Fingerprint(pub),
	}
}

func (s *Ed25519Signer) Sign(data []byte) (string, error) {
	return hex.EncodeToString(ed25519.Sign(s.priv, data)), nil
}

func (s *Ed25519Signer) KeyID() string { return s.keyID }

func (s *Ed25519Signer) PublicMaterial() []byte { return s.pub }

// PrivateKey exposes the private key for persistence.
func (s *Ed25519Signer) PrivateKey() ed25519.PrivateKey { return s.priv }

// HMACSigner signs with HMAC-SHA256. The signing key is derived from the
// per-install secret with HKDF so the raw secret never signs directly.
type HMACSigner struct {
	key    []byte
	secret []byte
	keyID  string
}

// NewHMACSigner derives a signer from a per-install secret.
func NewHMACSigner(secret []byte) (*HMACSigner, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("hmac secret too short: %d bytes", len(secret))
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, secret, nil, []byte("axp-ledger-signing-v1"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf derivation failed: %w", err)
	}
	return &HMACSigner{
		key:    key,
		secret: secret,
		keyID:  AlgHMAC + keyIDSeparator + Fingerprint(key),
	}, nil
}

func (s *HMACSigner) Sign(data []byte) (string, error) {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (s *HMACSigner) KeyID() string { return s.keyID }

// PublicMaterial returns the shared secret. In HMAC mode the "public" key
// file doubles as the verifier's secret, matching the key_id marking so
// operators can tell the two trust models apart.
func (s *HMACSigner) PublicMaterial() []byte { return s.secret }

// Fingerprint is the short key identifier: first 16 hex chars of SHA-256.
func Fingerprint(material []byte) string {
	sum := sha256.Sum256(material)
	return hex.EncodeToString(sum[:])[:16]
}
