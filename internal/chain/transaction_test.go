package chain

import (
	"crypto/ed25519"
	"testing"
)

func newTestKeypair(t *testing.T) *Keypair {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	kp := &Keypair{Private: priv}
	copy(kp.Public[:], pub)
	return kp
}

func TestTransactionSignAndSerialize(t *testing.T) {
	payer := newTestKeypair(t)
	owner := newTestKeypair(t)
	mint := newTestKeypair(t)

	sourceATA, err := DeriveATA(payer.Public, mint.Public)
	if err != nil {
		t.Fatalf("DeriveATA() error = %v", err)
	}
	destATA, err := DeriveATA(owner.Public, mint.Public)
	if err != nil {
		t.Fatalf("DeriveATA() error = %v", err)
	}

	tx := &Transaction{
		Instructions: []Instruction{
			NewTransferCheckedInstruction(sourceATA, mint.Public, destATA, payer.Public, 1_000_000, 9),
		},
		FeePayer:   payer.Public,
		RecentHash: Blockhash{1, 2, 3},
	}

	if err := tx.Sign(payer); err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	raw, err := tx.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	if len(raw) == 0 {
		t.Error("Serialize() returned empty bytes")
	}

	// Signature count (compact-u16 = 1) + 64-byte signature must prefix the message.
	if raw[0] != 1 {
		t.Errorf("signature count prefix = %d, want 1", raw[0])
	}
}

func TestTransactionSignWrongKeypairFails(t *testing.T) {
	payer := newTestKeypair(t)
	other := newTestKeypair(t)
	mint := newTestKeypair(t)

	destATA, _ := DeriveATA(other.Public, mint.Public)
	sourceATA, _ := DeriveATA(payer.Public, mint.Public)

	tx := &Transaction{
		Instructions: []Instruction{
			NewTransferCheckedInstruction(sourceATA, mint.Public, destATA, payer.Public, 1, 9),
		},
		FeePayer:   payer.Public,
		RecentHash: Blockhash{9, 9, 9},
	}

	if err := tx.Sign(other); err == nil {
		t.Error("Sign() with mismatched keypair should fail")
	}
}

func TestTransactionSerializeWithoutSignatureFails(t *testing.T) {
	payer := newTestKeypair(t)
	tx := &Transaction{
		Instructions: []Instruction{{ProgramID: tokenProgramID}},
		FeePayer:     payer.Public,
	}
	if _, err := tx.Serialize(); err == nil {
		t.Error("Serialize() without Sign() should fail")
	}
}

func TestAccountIndexOrdering(t *testing.T) {
	feePayer := newTestKeypair(t).Public
	writableOther := newTestKeypair(t).Public
	readonlyOther := newTestKeypair(t).Public

	ai := newAccountIndex(feePayer, []Instruction{
		{
			ProgramID: tokenProgramID,
			Accounts: []AccountMeta{
				{Pubkey: writableOther, IsWritable: true},
				{Pubkey: readonlyOther},
			},
		},
	})

	if ai.order[0] != feePayer {
		t.Errorf("fee payer must be first account, got index 0 = %s", ai.order[0].String())
	}
	if ai.indexOf(feePayer) != 0 {
		t.Error("fee payer must be index 0")
	}
}
