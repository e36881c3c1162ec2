// Package schnorr is the external secp256k1 crypto boundary: sign,
// verify and keygen over 32-byte messages, exactly the three
// operations the relay core and client pool treat as an opaque
// dependency (see the distilled spec's scope note on Secp256k1
// primitives). It never interprets events or filters itself.
package schnorr

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// KeyPair is a freshly generated or imported secp256k1 key pair, with
// PublicKeyHex in x-only (32-byte) form as Nostr pubkeys are encoded.
type KeyPair struct {
	PrivateKeyHex string
	PublicKeyHex  string
}

// Keygen generates a new random key pair.
func Keygen() (KeyPair, error) {
	sk, err := btcec.NewPrivateKey()
	if err != nil {
		return KeyPair{}, fmt.Errorf("schnorr: keygen: %w", err)
	}
	return keyPairFromPrivate(sk), nil
}

func keyPairFromPrivate(sk *btcec.PrivateKey) KeyPair {
	pub := schnorr.SerializePubKey(sk.PubKey())
	return KeyPair{
		PrivateKeyHex: hex.EncodeToString(sk.Serialize()),
		PublicKeyHex:  hex.EncodeToString(pub),
	}
}

// DerivePublicKey returns the x-only hex public key for a hex-encoded
// private key.
func DerivePublicKey(privateKeyHex string) (string, error) {
	skBytes, err := decodeHex(privateKeyHex, 32)
	if err != nil {
		return "", fmt.Errorf("schnorr: private key: %w", err)
	}
	sk, _ := btcec.PrivKeyFromBytes(skBytes)
	return hex.EncodeToString(schnorr.SerializePubKey(sk.PubKey())), nil
}

// Sign produces a BIP-340 Schnorr signature over a 32-byte message
// hash (an event id) under a hex-encoded private key.
func Sign(msg32Hex string, privateKeyHex string) (string, error) {
	msg, err := decodeHex(msg32Hex, 32)
	if err != nil {
		return "", fmt.Errorf("schnorr: message: %w", err)
	}
	skBytes, err := decodeHex(privateKeyHex, 32)
	if err != nil {
		return "", fmt.Errorf("schnorr: private key: %w", err)
	}
	sk, _ := btcec.PrivKeyFromBytes(skBytes)

	sig, err := schnorr.Sign(sk, msg)
	if err != nil {
		return "", fmt.Errorf("schnorr: sign: %w", err)
	}
	return hex.EncodeToString(sig.Serialize()), nil
}

// Verify checks a 64-byte hex Schnorr signature over a 32-byte hex
// message under a 32-byte hex x-only public key. Any malformed input
// (wrong length, bad hex, point not on curve) is reported as a
// non-error false rather than propagated, since the relay's ingress
// policy is to drop invalid events silently rather than distinguish
// malformed-signature from wrong-signature.
func Verify(sig64Hex, msg32Hex, pubKey32Hex string) bool {
	sigBytes, err := decodeHex(sig64Hex, 64)
	if err != nil {
		return false
	}
	msg, err := decodeHex(msg32Hex, 32)
	if err != nil {
		return false
	}
	pubBytes, err := decodeHex(pubKey32Hex, 32)
	if err != nil {
		return false
	}

	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}
	pub, err := schnorr.ParsePubKey(pubBytes)
	if err != nil {
		return false
	}
	return sig.Verify(msg, pub)
}

func decodeHex(s string, wantLen int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != wantLen {
		return nil, fmt.Errorf("want %d bytes, got %d", wantLen, len(b))
	}
	return b, nil
}
