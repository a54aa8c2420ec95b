package crypto

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// VerifyWithKey checks a hex signature over data using published key
// material. The key_id prefix selects the scheme: "hmac:" recomputes the
// derived MAC from the shared secret, anything else is treated as Ed25519.
func VerifyWithKey(material []byte, keyID string, data []byte, sigHex string) (bool, error) {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}

	if strings.HasPrefix(keyID, AlgHMAC+keyIDSeparator) {
		key := make([]byte, 32)
		r := hkdf.New(sha256.New, material, nil, []byte("axp-ledger-signing-v1"))
		if _, err := io.ReadFull(r, key); err != nil {
			return false, fmt.Errorf("hkdf derivation: %w", err)
		}
		mac := hmac.New(sha256.New, key)
		mac.Write(data)
		return hmac.Equal(mac.Sum(nil), sig), nil
	}

	if len(material) != ed25519.PublicKeySize {
		return false, fmt.Errorf("public key is %d bytes, want %d", len(material), ed25519.PublicKeySize)
	}
	return ed25519.Verify(ed25519.PublicKey(material), data, sig), nil
}
