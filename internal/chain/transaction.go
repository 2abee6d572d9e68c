package chain

import (
	"bytes"
	"fmt"
)

// Blockhash is a 32-byte recent blockhash used to scope a transaction's
// lifetime and make its signature unique.
type Blockhash [32]byte

// Transaction is a minimal Solana legacy (non-versioned) transaction: enough
// wire format to build, sign, and submit a TransferChecked (and, when
// needed, a preceding CreateATA) instruction. It intentionally does not
// support address lookup tables or multi-instruction fee payer quirks beyond
// what the distributor needs.
type Transaction struct {
	Instructions []Instruction
	FeePayer     Pubkey
	RecentHash   Blockhash

	signature []byte
}

// accountIndex assigns each distinct account a compact message index,
// ordering them the way Solana requires: writable signers, readonly signers,
// writable non-signers, readonly non-signers, with the fee payer always
// first.
type accountIndex struct {
	order []Pubkey
	pos   map[Pubkey]int
	meta  map[Pubkey]AccountMeta
}

func newAccountIndex(feePayer Pubkey, instrs []Instruction) *accountIndex {
	ai := &accountIndex{pos: map[Pubkey]int{}, meta: map[Pubkey]AccountMeta{}}
	ai.add(AccountMeta{Pubkey: feePayer, IsSigner: true, IsWritable: true})
	for _, instr := range instrs {
		ai.add(AccountMeta{Pubkey: instr.ProgramID})
		for _, am := range instr.Accounts {
			ai.add(am)
		}
	}
	ai.reorder()
	return ai
}

func (ai *accountIndex) add(am AccountMeta) {
	existing, ok := ai.meta[am.Pubkey]
	if !ok {
		ai.order = append(ai.order, am.Pubkey)
		ai.meta[am.Pubkey] = am
		return
	}
	// Escalate privileges: an account referenced as writable/signer anywhere
	// keeps that status even if first seen as readonly.
	existing.IsSigner = existing.IsSigner || am.IsSigner
	existing.IsWritable = existing.IsWritable || am.IsWritable
	ai.meta[am.Pubkey] = existing
}

func (ai *accountIndex) reorder() {
	feePayer := ai.order[0]
	rest := ai.order[1:]

	var wSigner, rSigner, wOther, rOther []Pubkey
	for _, pk := range rest {
		m := ai.meta[pk]
		switch {
		case m.IsSigner && m.IsWritable:
			wSigner = append(wSigner, pk)
		case m.IsSigner:
			rSigner = append(rSigner, pk)
		case m.IsWritable:
			wOther = append(wOther, pk)
		default:
			rOther = append(rOther, pk)
		}
	}

	ordered := []Pubkey{feePayer}
	ordered = append(ordered, wSigner...)
	ordered = append(ordered, rSigner...)
	ordered = append(ordered, wOther...)
	ordered = append(ordered, rOther...)

	ai.order = ordered
	ai.pos = make(map[Pubkey]int, len(ordered))
	for i, pk := range ordered {
		ai.pos[pk] = i
	}
}

func (ai *accountIndex) indexOf(pk Pubkey) byte {
	return byte(ai.pos[pk])
}

func (ai *accountIndex) counts() (numRequiredSignatures, numReadonlySigned, numReadonlyUnsigned byte) {
	for _, pk := range ai.order {
		m := ai.meta[pk]
		if m.IsSigner {
			numRequiredSignatures++
			if !m.IsWritable {
				numReadonlySigned++
			}
		} else if !m.IsWritable {
			numReadonlyUnsigned++
		}
	}
	return
}

// putCompactU16 appends Solana's variable-length "compact-u16" encoding used
// for array lengths in the wire format.
func putCompactU16(buf *bytes.Buffer, n int) {
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf.WriteByte(b | 0x80)
		} else {
			buf.WriteByte(b)
			return
		}
	}
}

// message builds the serialized Solana message (everything the transaction
// signs over): header, account keys, recent blockhash, and instructions.
func (tx *Transaction) message() ([]byte, *accountIndex, error) {
	if len(tx.Instructions) == 0 {
		return nil, nil, fmt.Errorf("transaction has no instructions")
	}

	ai := newAccountIndex(tx.FeePayer, tx.Instructions)
	numRequiredSignatures, numReadonlySigned, numReadonlyUnsigned := ai.counts()

	var buf bytes.Buffer
	buf.WriteByte(numRequiredSignatures)
	buf.WriteByte(numReadonlySigned)
	buf.WriteByte(numReadonlyUnsigned)

	putCompactU16(&buf, len(ai.order))
	for _, pk := range ai.order {
		buf.Write(pk[:])
	}

	buf.Write(tx.RecentHash[:])

	putCompactU16(&buf, len(tx.Instructions))
	for _, instr := range tx.Instructions {
		buf.WriteByte(ai.indexOf(instr.ProgramID))
		putCompactU16(&buf, len(instr.Accounts))
		for _, am := range instr.Accounts {
			buf.WriteByte(ai.indexOf(am.Pubkey))
		}
		putCompactU16(&buf, len(instr.Data))
		buf.Write(instr.Data)
	}

	return buf.Bytes(), ai, nil
}

// Sign serializes the message and signs it with feePayer, the transaction's
// sole required signer in every flow this gateway drives.
func (tx *Transaction) Sign(feePayer *Keypair) error {
	if feePayer.Public != tx.FeePayer {
		return fmt.Errorf("sign: keypair does not match fee payer")
	}

	msg, _, err := tx.message()
	if err != nil {
		return err
	}
	tx.signature = feePayer.Sign(msg)
	return nil
}

// Serialize returns the wire-format bytes ready for base64 submission over
// JSON-RPC: a compact-u16 signature count, the signatures, then the message.
func (tx *Transaction) Serialize() ([]byte, error) {
	if tx.signature == nil {
		return nil, fmt.Errorf("serialize: transaction is not signed")
	}

	msg, _, err := tx.message()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	putCompactU16(&buf, 1)
	buf.Write(tx.signature)
	buf.Write(msg)
	return buf.Bytes(), nil
}
