package crypto

import "testing"

func TestL2HeadersAt(t *testing.T) {
	auth := &HMACAuth{
		Key:        "api-key",
		Secret:     "dG9wc2VjcmV0", // base64("topsecret")
		Passphrase: "pass",
	}

	tests := []struct {
		name    string
		method  string
		path    string
		body    string
		wantSig string
	}{
		{"get no body", "GET", "/orders", "", "MIgLzfpLIyEOh/llOjglP1i2qZbJ7XXv2EKUZJaWaXk="},
		{"post with body", "POST", "/order", `{"x":1}`, "1jQN1zObcGPQh8pmtvIS55ZiCTUyhgwd9OstaLrPiLU="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := auth.L2HeadersAt("0xabc", tt.method, tt.path, tt.body, 1700000000)
			if h["POLY_SIGNATURE"] != tt.wantSig {
				t.Fatalf("signature = %s, want %s", h["POLY_SIGNATURE"], tt.wantSig)
			}
			if h["POLY_ADDRESS"] != "0xabc" || h["POLY_API_KEY"] != "api-key" || h["POLY_PASSPHRASE"] != "pass" {
				t.Fatalf("headers = %v", h)
			}
			if h["POLY_TIMESTAMP"] != "1700000000" {
				t.Fatalf("timestamp = %s", h["POLY_TIMESTAMP"])
			}
		})
	}
}

func TestHMACAuthStringRedacts(t *testing.T) {
	auth := &HMACAuth{Key: "api-key-long", Secret: "supersecret"}
	s := auth.String()
	if s != "HMACAuth{key=api-****, secret=supe****}" {
		t.Fatalf("String() = %s", s)
	}
}
