package crypto

import (
	"strings"
	"testing"
)

// Well-known throwaway key used in go-ethereum examples.
const testKey = "4c0883a69102937d6231471b5dbb6204fe51296170827936ea5cce4b76994b0f"

func TestNewSignerDerivesAddress(t *testing.T) {
	s, err := NewSigner(testKey, 137)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	if got := s.Address().Hex(); got != "0x96216849c49358B10257cb55b28eA603c874b05E" {
		t.Fatalf("address = %s", got)
	}

	// 0x prefix is accepted.
	s2, err := NewSigner("0x"+testKey, 137)
	if err != nil {
		t.Fatalf("NewSigner with prefix: %v", err)
	}
	if s2.Address() != s.Address() {
		t.Fatal("prefix changed derived address")
	}
}

func TestNewSignerRejectsBadKey(t *testing.T) {
	if _, err := NewSigner("not-hex", 137); err == nil {
		t.Fatal("expected error for invalid key")
	}
}

func TestSignAuthMessageDeterministic(t *testing.T) {
	s, err := NewSigner(testKey, 137)
	if err != nil {
		t.Fatal(err)
	}

	sig1, err := s.SignAuthMessage(s.Address().Hex(), 1700000000, 0)
	if err != nil {
		t.Fatalf("SignAuthMessage: %v", err)
	}
	sig2, err := s.SignAuthMessage(s.Address().Hex(), 1700000000, 0)
	if err != nil {
		t.Fatal(err)
	}

	if sig1 != sig2 {
		t.Fatal("signature not deterministic for identical input")
	}
	if !strings.HasPrefix(sig1, "0x") || len(sig1) != 2+65*2 {
		t.Fatalf("signature format: %s", sig1)
	}
	// Recovery byte is normalised to 27/28.
	v := sig1[len(sig1)-2:]
	if v != "1b" && v != "1c" {
		t.Fatalf("recovery byte = %s", v)
	}
}

func TestSignOrderDomains(t *testing.T) {
	s, err := NewSigner(testKey, 137)
	if err != nil {
		t.Fatal(err)
	}

	payload := OrderPayload{
		Salt:          "12345",
		Maker:         s.Address().Hex(),
		Signer:        s.Address().Hex(),
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       "71321045679252212594626385532706912750332728571942532289631379312455583992563",
		MakerAmount:   "10000000",
		TakerAmount:   "25000000",
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          0,
		SignatureType: 0,
	}

	normal, err := s.SignOrder(payload, false)
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}
	negRisk, err := s.SignOrder(payload, true)
	if err != nil {
		t.Fatalf("SignOrder neg-risk: %v", err)
	}
	if normal == negRisk {
		t.Fatal("neg-risk order signed against the same exchange domain")
	}
}

func TestSignOrderRejectsMalformedFields(t *testing.T) {
	s, err := NewSigner(testKey, 137)
	if err != nil {
		t.Fatal(err)
	}

	payload := OrderPayload{
		Salt: "not-a-number", Maker: "0x0", Signer: "0x0", Taker: "0x0",
		TokenID: "1", MakerAmount: "1", TakerAmount: "1",
		Expiration: "0", Nonce: "0", FeeRateBps: "0",
	}
	if _, err := s.SignOrder(payload, false); err == nil {
		t.Fatal("expected error for invalid salt")
	}
}
