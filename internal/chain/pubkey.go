// Package chain wraps the Solana RPC surface the distributor core needs:
// resolving associated token accounts, sending checked transfers, and
// reading balances/decimals. Everything else about the chain is out of
// scope — see SPEC_FULL.md §4.2.
package chain

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/klingon-exchange/splgiver/pkg/helpers"
)

// Pubkey is a 32-byte Solana public key.
type Pubkey [32]byte

// String returns the base58 encoding of the public key.
func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

// ParsePubkey decodes a base58-encoded Solana public key.
func ParsePubkey(s string) (Pubkey, error) {
	var pk Pubkey
	b, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("parse pubkey %q: %w", s, err)
	}
	if len(b) != 32 {
		return pk, fmt.Errorf("parse pubkey %q: expected 32 bytes, got %d", s, len(b))
	}
	if helpers.IsZeroBytes(b) {
		return pk, fmt.Errorf("parse pubkey %q: all-zero pubkey is not a valid wallet or mint", s)
	}
	copy(pk[:], b)
	return pk, nil
}

// Keypair is a Solana Ed25519 signing keypair.
type Keypair struct {
	Public  Pubkey
	Private ed25519.PrivateKey
}

// ParseKeypair decodes a base58-encoded 64-byte Ed25519 keypair, the format
// produced by the Solana CLI and used for MAIN_WALLET.
func ParseKeypair(s string) (*Keypair, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("parse keypair: %w", err)
	}
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("parse keypair: expected %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}

	priv := ed25519.PrivateKey(b)
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("parse keypair: failed to derive public key")
	}

	kp := &Keypair{Private: priv}
	copy(kp.Public[:], pub)
	return kp, nil
}

// Sign produces an Ed25519 signature over msg.
func (k *Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.Private, msg)
}
