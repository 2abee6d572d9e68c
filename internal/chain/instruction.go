package chain

import "encoding/binary"

// AccountMeta describes one account reference inside an instruction, mirroring
// Solana's AccountMeta{pubkey, is_signer, is_writable}.
type AccountMeta struct {
	Pubkey     Pubkey
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single Solana program instruction: a program id, the
// accounts it touches, and its opaque data payload.
type Instruction struct {
	ProgramID Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// transferCheckedOpcode is the SPL Token program instruction index for
// TransferChecked (see spl_token::instruction::TokenInstruction::TransferChecked).
const transferCheckedOpcode = 12

// createAssociatedTokenAccountData is the (implicit, zero-length) instruction
// data the Associated Token Account program accepts for its legacy "Create"
// variant, used here. The program dispatches on instruction data length
// rather than an explicit opcode for that variant; it fails if the account
// already exists.
var createAssociatedTokenAccountData = []byte{}

// NewTransferCheckedInstruction builds the SPL Token TransferChecked
// instruction moving amount base units of mint (with the given decimals) from
// sourceATA to destATA, authorized by owner.
func NewTransferCheckedInstruction(sourceATA, mint, destATA, owner Pubkey, amount uint64, decimals uint8) Instruction {
	data := make([]byte, 0, 10)
	data = append(data, transferCheckedOpcode)
	var amountBuf [8]byte
	binary.LittleEndian.PutUint64(amountBuf[:], amount)
	data = append(data, amountBuf[:]...)
	data = append(data, decimals)

	return Instruction{
		ProgramID: tokenProgramID,
		Accounts: []AccountMeta{
			{Pubkey: sourceATA, IsWritable: true},
			{Pubkey: mint},
			{Pubkey: destATA, IsWritable: true},
			{Pubkey: owner, IsSigner: true},
		},
		Data: data,
	}
}

// NewCreateATAInstruction builds the instruction that creates the associated
// token account for (owner, mint), paid for by payer. This mirrors
// spl_associated_token_account::instruction::create_associated_token_account
// (the legacy, non-idempotent variant): it fails if the account already
// exists, so callers check for the account first.
func NewCreateATAInstruction(payer, ata, owner, mint Pubkey) Instruction {
	return Instruction{
		ProgramID: associatedTokenProgramID,
		Accounts: []AccountMeta{
			{Pubkey: payer, IsSigner: true, IsWritable: true},
			{Pubkey: ata, IsWritable: true},
			{Pubkey: owner},
			{Pubkey: mint},
			{Pubkey: systemProgramID},
			{Pubkey: tokenProgramID},
		},
		Data: createAssociatedTokenAccountData,
	}
}
