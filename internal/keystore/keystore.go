// Package keystore is the client's durable identity: a single
// secp256k1 key pair, generated once on first use and thereafter
// always returned unchanged.
package keystore

import (
	"context"
	"fmt"

	"github.com/relaycore/nostrd/internal/kvstore"
	"github.com/relaycore/nostrd/internal/schnorr"
)

const (
	namespace       = "keys"
	privateKeyEntry = "private_key"
	publicKeyEntry  = "public_key"
)

// KeyStore persists the client's identity key pair.
type KeyStore struct {
	store kvstore.Store
}

// New wraps store as a KeyStore.
func New(store kvstore.Store) *KeyStore {
	return &KeyStore{store: store}
}

// GetOrCreate returns the persisted key pair, generating and
// persisting one via the schnorr service if none exists yet.
// Subsequent calls, with or without a process restart in between,
// return the same pair unchanged.
func (k *KeyStore) GetOrCreate(ctx context.Context) (schnorr.KeyPair, error) {
	if kp, ok, err := k.load(ctx); err != nil {
		return schnorr.KeyPair{}, err
	} else if ok {
		return kp, nil
	}

	kp, err := schnorr.Keygen()
	if err != nil {
		return schnorr.KeyPair{}, fmt.Errorf("keystore: generate: %w", err)
	}
	if err := k.store.Put(ctx, namespace, privateKeyEntry, []byte(kp.PrivateKeyHex)); err != nil {
		return schnorr.KeyPair{}, fmt.Errorf("keystore: persist private key: %w", err)
	}
	if err := k.store.Put(ctx, namespace, publicKeyEntry, []byte(kp.PublicKeyHex)); err != nil {
		return schnorr.KeyPair{}, fmt.Errorf("keystore: persist public key: %w", err)
	}
	return kp, nil
}

func (k *KeyStore) load(ctx context.Context) (schnorr.KeyPair, bool, error) {
	priv, ok, err := k.store.Get(ctx, namespace, privateKeyEntry)
	if err != nil {
		return schnorr.KeyPair{}, false, fmt.Errorf("keystore: load private key: %w", err)
	}
	if !ok {
		return schnorr.KeyPair{}, false, nil
	}
	pub, ok, err := k.store.Get(ctx, namespace, publicKeyEntry)
	if err != nil {
		return schnorr.KeyPair{}, false, fmt.Errorf("keystore: load public key: %w", err)
	}
	if !ok {
		return schnorr.KeyPair{}, false, nil
	}
	return schnorr.KeyPair{PrivateKeyHex: string(priv), PublicKeyHex: string(pub)}, true, nil
}
