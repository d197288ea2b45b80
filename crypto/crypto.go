// Package crypto wraps the ed25519 keys and SHA-256 digests used to sign
// transactions and blocks. Keys and signatures travel as lowercase hex.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrBadSignature is returned when a signature does not match its message.
var ErrBadSignature = errors.New("signature verification failed")

// Hash returns the hex SHA-256 digest of data.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashJSON hashes the canonical JSON encoding of v.
func HashJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return Hash(data), nil
}

type PrivateKey []byte

type PublicKey []byte

// GenerateKeyPair creates a fresh ed25519 key pair.
func GenerateKeyPair() (PrivateKey, PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return PrivateKey(priv), PublicKey(pub), nil
}

func (priv PrivateKey) Hex() string { return hex.EncodeToString(priv) }

func (priv PrivateKey) Public() PublicKey {
	return PublicKey(ed25519.PrivateKey(priv).Public().(ed25519.PublicKey))
}

// Sign returns the hex signature of msg.
func (priv PrivateKey) Sign(msg []byte) string {
	return hex.EncodeToString(ed25519.Sign(ed25519.PrivateKey(priv), msg))
}

// Hex is the account address form of the key.
func (pub PublicKey) Hex() string { return hex.EncodeToString(pub) }

// Verify checks a hex signature over msg.
func (pub PublicKey) Verify(msg []byte, sigHex string) error {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("signature hex: %w", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
		return ErrBadSignature
	}
	return nil
}

// PubKeyFromHex parses an address back into a public key.
func PubKeyFromHex(s string) (PublicKey, error) {
	b, err := decodeFixed(s, ed25519.PublicKeySize)
	if err != nil {
		return nil, fmt.Errorf("pubkey: %w", err)
	}
	return PublicKey(b), nil
}

func PrivKeyFromHex(s string) (PrivateKey, error) {
	b, err := decodeFixed(s, ed25519.PrivateKeySize)
	if err != nil {
		return nil, fmt.Errorf("privkey: %w", err)
	}
	return PrivateKey(b), nil
}

func decodeFixed(s string, size int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, fmt.Errorf("want %d bytes, got %d", size, len(b))
	}
	return b, nil
}
