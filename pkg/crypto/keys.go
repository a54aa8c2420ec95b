package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	privateKeyFile = "private.key"
	publicKeyFile  = "public.key"
)

// LoadOrCreate loads the signing key from keyDir, generating a fresh Ed25519
// keypair on first run. The public material is always (re)published to
// public.key so the verifier can pick it up without access to private.key.
//
// When allowHMAC is set and hmacSecret is non-empty, an HMAC signer is
// returned instead and the derived secret is published. HMAC mode is for
// installs where asymmetric keys cannot be provisioned; the ledger records
// the mode in signer_key_id.
func LoadOrCreate(keyDir string, allowHMAC bool, hmacSecret []byte) (Signer, error) {
	if err := os.MkdirAll(keyDir, 0o700); err != nil {
		return nil, fmt.Errorf("key dir: %w", err)
	}

	if allowHMAC && len(hmacSecret) > 0 {
		s, err := NewHMACSigner(hmacSecret)
		if err != nil {
			return nil, err
		}
		if err := publishPublic(keyDir, s); err != nil {
			return nil, err
		}
		return s, nil
	}

	privPath := filepath.Join(keyDir, privateKeyFile)
	raw, err := os.ReadFile(privPath)
	switch {
	case err == nil:
		seed, derr := hex.DecodeString(strings.TrimSpace(string(raw)))
		if derr != nil || len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("corrupt private key at %s", privPath)
		}
		s := NewEd25519SignerFromKey(ed25519.NewKeyFromSeed(seed))
		if err := publishPublic(keyDir, s); err != nil {
			return nil, err
		}
		return s, nil
	case os.IsNotExist(err):
		seed := make([]byte, ed25519.SeedSize)
		if _, rerr := rand.Read(seed); rerr != nil {
			return nil, fmt.Errorf("seed generation: %w", rerr)
		}
		s := NewEd25519SignerFromKey(ed25519.NewKeyFromSeed(seed))
		if werr := os.WriteFile(privPath, []byte(hex.EncodeToString(seed)+"\n"), 0o600); werr != nil {
			return nil, fmt.Errorf("write private key: %w", werr)
		}
		if perr := publishPublic(keyDir, s); perr != nil {
			return nil, perr
		}
		return s, nil
	default:
		return nil, fmt.Errorf("read private key: %w", err)
	}
}

func publishPublic(keyDir string, s Signer) error {
	pubPath := filepath.Join(keyDir, publicKeyFile)
	content := hex.EncodeToString(s.PublicMaterial()) + "\n"
	if err := os.WriteFile(pubPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}
	return nil
}

// LoadPublicMaterial reads the published public key (or HMAC secret) from
// keyDir. The verifier uses this; it never touches private.key.
func LoadPublicMaterial(keyDir string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(keyDir, publicKeyFile))
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	material, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	return material, nil
}
