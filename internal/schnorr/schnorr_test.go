package schnorr

import (
	"encoding/hex"
	"strings"
	"testing"
)

func TestSignVerify_RoundTrip(t *testing.T) {
	kp, err := Keygen()
	if err != nil {
		t.Fatalf("Keygen: %v", err)
	}

	msg := strings.Repeat("ab", 32)
	sig, err := Sign(msg, kp.PrivateKeyHex)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if !Verify(sig, msg, kp.PublicKeyHex) {
		t.Error("Verify() = false, want true for a freshly signed message")
	}
}

func TestVerify_MutatedMessageFails(t *testing.T) {
	kp, err := Keygen()
	if err != nil {
		t.Fatalf("Keygen: %v", err)
	}

	msg := strings.Repeat("ab", 32)
	sig, err := Sign(msg, kp.PrivateKeyHex)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	mutated := strings.Repeat("ac", 32)
	if Verify(sig, mutated, kp.PublicKeyHex) {
		t.Error("Verify() = true, want false after mutating the message")
	}
}

func TestVerify_MutatedSignatureFails(t *testing.T) {
	kp, err := Keygen()
	if err != nil {
		t.Fatalf("Keygen: %v", err)
	}

	msg := strings.Repeat("ab", 32)
	sig, err := Sign(msg, kp.PrivateKeyHex)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	sigBytes, err := hex.DecodeString(sig)
	if err != nil {
		t.Fatalf("decode sig: %v", err)
	}
	sigBytes[0] ^= 0xff
	mutated := hex.EncodeToString(sigBytes)

	if Verify(mutated, msg, kp.PublicKeyHex) {
		t.Error("Verify() = true, want false after mutating the signature")
	}
}

func TestVerify_WrongPubKeyFails(t *testing.T) {
	kp1, err := Keygen()
	if err != nil {
		t.Fatalf("Keygen: %v", err)
	}
	kp2, err := Keygen()
	if err != nil {
		t.Fatalf("Keygen: %v", err)
	}

	msg := strings.Repeat("ab", 32)
	sig, err := Sign(msg, kp1.PrivateKeyHex)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if Verify(sig, msg, kp2.PublicKeyHex) {
		t.Error("Verify() = true, want false under the wrong public key")
	}
}

func TestVerify_MalformedInputsReturnFalseNotPanic(t *testing.T) {
	cases := []struct {
		name  string
		sig   string
		msg   string
		pub   string
	}{
		{"short sig", "abcd", strings.Repeat("ab", 32), strings.Repeat("cd", 32)},
		{"non-hex msg", strings.Repeat("00", 64), "not-hex", strings.Repeat("cd", 32)},
		{"short pub", strings.Repeat("00", 64), strings.Repeat("ab", 32), "cd"},
		{"empty everything", "", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if Verify(tc.sig, tc.msg, tc.pub) {
				t.Errorf("Verify(%q, %q, %q) = true, want false", tc.sig, tc.msg, tc.pub)
			}
		})
	}
}

func TestDerivePublicKey_MatchesKeygen(t *testing.T) {
	kp, err := Keygen()
	if err != nil {
		t.Fatalf("Keygen: %v", err)
	}
	pub, err := DerivePublicKey(kp.PrivateKeyHex)
	if err != nil {
		t.Fatalf("DerivePublicKey: %v", err)
	}
	if pub != kp.PublicKeyHex {
		t.Errorf("DerivePublicKey() = %q, want %q", pub, kp.PublicKeyHex)
	}
}

func TestKeygen_ProducesDistinctKeys(t *testing.T) {
	kp1, err := Keygen()
	if err != nil {
		t.Fatalf("Keygen: %v", err)
	}
	kp2, err := Keygen()
	if err != nil {
		t.Fatalf("Keygen: %v", err)
	}
	if kp1.PrivateKeyHex == kp2.PrivateKeyHex {
		t.Error("two Keygen() calls produced the same private key")
	}
	if len(kp1.PublicKeyHex) != 64 {
		t.Errorf("PublicKeyHex length = %d, want 64 hex chars", len(kp1.PublicKeyHex))
	}
}
