package crypto

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testKey, "correct horse")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}

	got, err := DecryptKey(blob, "correct horse")
	if err != nil {
		t.Fatalf("DecryptKey: %v", err)
	}
	if got != testKey {
		t.Fatalf("round trip = %s, want %s", got, testKey)
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptKey(testKey, "right")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Fatal("expected decryption failure with wrong password")
	}
}

func TestEncryptKeyValidation(t *testing.T) {
	if _, err := EncryptKey(testKey, ""); err == nil {
		t.Fatal("expected error for empty password")
	}
	if _, err := EncryptKey("zzzz", "pw"); err == nil {
		t.Fatal("expected error for non-hex key")
	}
	if _, err := EncryptKey("abcd", "pw"); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestSealedKeyFormat(t *testing.T) {
	blob, err := EncryptKey(testKey, "pw")
	if err != nil {
		t.Fatal(err)
	}

	var sealed sealedKey
	if err := json.Unmarshal(blob, &sealed); err != nil {
		t.Fatalf("sealed key is not JSON: %v", err)
	}
	if sealed.KDF != kdfName {
		t.Fatalf("kdf = %q, want %q", sealed.KDF, kdfName)
	}
	if sealed.Iterations != kdfIterations {
		t.Fatalf("iterations = %d, want %d", sealed.Iterations, kdfIterations)
	}

	// A file advertising a weakened cost factor is refused.
	sealed.Iterations = 1000
	weak, err := json.Marshal(sealed)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecryptKey(weak, "pw"); err == nil {
		t.Fatal("expected rejection of low-iteration file")
	}

	// So is an unknown KDF.
	sealed.Iterations = kdfIterations
	sealed.KDF = "scrypt"
	other, err := json.Marshal(sealed)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecryptKey(other, "pw"); err == nil {
		t.Fatal("expected rejection of unknown kdf")
	}
}

func TestLoadKeySources(t *testing.T) {
	// Raw key wins.
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKey})
	if err != nil || got != testKey {
		t.Fatalf("raw key: got=%s err=%v", got, err)
	}

	// Encrypted file path.
	blob, err := EncryptKey(testKey, "pw")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatal(err)
	}
	got, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	if err != nil || got != testKey {
		t.Fatalf("encrypted key: got=%s err=%v", got, err)
	}

	// Nothing configured.
	if _, err := LoadKey(KeyConfig{}); err == nil {
		t.Fatal("expected error with no source")
	}
}
