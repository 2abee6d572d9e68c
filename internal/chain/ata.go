package chain

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
)

// Well-known Solana program ids the gateway needs. Token-2022 is not
// targeted — the distributor moves a single classic SPL mint, so only the
// original Token Program and its Associated Token Account program matter.
var (
	tokenProgramID           = mustParsePubkey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	associatedTokenProgramID = mustParsePubkey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	systemProgramID          = Pubkey{}
	pdaMarker                = []byte("ProgramDerivedAddress")
)

func mustParsePubkey(s string) Pubkey {
	pk, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// DeriveATA computes the deterministic associated-token-account address for
// (owner, mint) under the classic Token Program, replicating
// spl_associated_token_account::get_associated_token_address: a program
// address derived from the seeds [owner, token_program, mint] under the
// Associated Token program.
func DeriveATA(owner, mint Pubkey) (Pubkey, error) {
	return findProgramAddress([][]byte{owner[:], tokenProgramID[:], mint[:]}, associatedTokenProgramID)
}

// findProgramAddress replicates Solana's create_program_address / bump-seed
// search: the first bump (scanning 255 down to 0) whose seed hash decodes to
// a point that is NOT a valid point on the Ed25519 curve is the program
// address.
func findProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, error) {
	for bump := 255; bump >= 0; bump-- {
		addr, ok := createProgramAddress(seeds, byte(bump), programID)
		if ok {
			return addr, nil
		}
	}
	return Pubkey{}, fmt.Errorf("unable to find a viable program address")
}

func createProgramAddress(seeds [][]byte, bump byte, programID Pubkey) (Pubkey, bool) {
	h := sha256.New()
	for _, seed := range seeds {
		h.Write(seed)
	}
	h.Write([]byte{bump})
	h.Write(programID[:])
	h.Write(pdaMarker)
	sum := h.Sum(nil)

	var addr Pubkey
	copy(addr[:], sum)

	if isOnCurve(sum) {
		return Pubkey{}, false
	}
	return addr, true
}

// isOnCurve reports whether b (32 bytes) decodes to a valid point on the
// Ed25519 curve. PDAs must land off the curve so that no private key can
// exist for them.
func isOnCurve(b []byte) bool {
	if len(b) != 32 {
		return true // treat malformed input as "on curve" (reject)
	}
	_, err := edwards25519.NewIdentityPoint().SetBytes(b)
	return err == nil
}
