// Package crypto provides wallet key handling, EIP-712 order signing, and
// the L2 HMAC authentication the Polymarket CLOB API requires.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	kdfName       = "pbkdf2-sha256"
	kdfIterations = 480_000
	// kdfMinIterations rejects stored files with a weakened cost factor.
	kdfMinIterations = 100_000
	kdfSaltLen       = 16
	kdfKeyLen        = 32
)

// sealedKey is the on-disk format for an encrypted wallet key. The KDF
// parameters travel with the ciphertext so the cost factor can be raised
// later without breaking files sealed under the old one.
type sealedKey struct {
	KDF        string `json:"kdf"`
	Iterations int    `json:"iterations"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// KeyConfig mirrors the [wallet] section of the quoter's config: either a
// raw hex key, or the path to a sealed key file plus its password.
type KeyConfig struct {
	RawPrivateKey    string
	EncryptedKeyPath string
	KeyPassword      string
}

// LoadKey resolves the signing key for the wallet. A raw key wins over a
// sealed file; configuring neither is an error surfaced at startup, not at
// first signature.
func LoadKey(cfg KeyConfig) (string, error) {
	if cfg.RawPrivateKey != "" {
		key, err := parseKeyHex(cfg.RawPrivateKey)
		if err != nil {
			return "", err
		}
		return hex.EncodeToString(key), nil
	}
	if cfg.EncryptedKeyPath == "" {
		return "", errors.New("crypto: no wallet key configured, set private_key or encrypted_key_path")
	}
	data, err := os.ReadFile(cfg.EncryptedKeyPath)
	if err != nil {
		return "", fmt.Errorf("crypto: read sealed key: %w", err)
	}
	return DecryptKey(data, cfg.KeyPassword)
}

// EncryptKey seals a hex private key under a password and returns the JSON
// file body. PBKDF2-HMAC-SHA256 derives the AES-256 key, AES-GCM seals it.
func EncryptKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: empty key password")
	}
	key, err := parseKeyHex(privateKeyHex)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, kdfSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	aead, err := deriveAEAD(password, salt, kdfIterations)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}

	return json.MarshalIndent(sealedKey{
		KDF:        kdfName,
		Iterations: kdfIterations,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, key, nil),
	}, "", "  ")
}

// DecryptKey opens a sealed key file and returns the hex private key
// without a 0x prefix.
func DecryptKey(data []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: empty key password")
	}

	var sealed sealedKey
	if err := json.Unmarshal(data, &sealed); err != nil {
		return "", fmt.Errorf("crypto: parse sealed key: %w", err)
	}
	if sealed.KDF != kdfName {
		return "", fmt.Errorf("crypto: unsupported kdf %q", sealed.KDF)
	}
	if sealed.Iterations < kdfMinIterations {
		return "", fmt.Errorf("crypto: kdf iterations %d below minimum %d", sealed.Iterations, kdfMinIterations)
	}

	aead, err := deriveAEAD(password, sealed.Salt, sealed.Iterations)
	if err != nil {
		return "", err
	}
	key, err := aead.Open(nil, sealed.Nonce, sealed.Ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: open sealed key, check the password: %w", err)
	}
	return hex.EncodeToString(key), nil
}

func deriveAEAD(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, iterations, kdfKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return aead, nil
}

// parseKeyHex validates a 32-byte hex private key, tolerating a 0x prefix.
func parseKeyHex(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: private key is not hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("crypto: private key is %d bytes, want 32", len(key))
	}
	return key, nil
}
