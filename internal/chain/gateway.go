package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klingon-exchange/splgiver/internal/corerr"
	"github.com/klingon-exchange/splgiver/pkg/helpers"
	"github.com/klingon-exchange/splgiver/pkg/logging"
)

// Gateway is the narrow surface the Schedule Runner drives against a chain:
// ensure a buyer's token account exists, move tokens into it, and read back
// balances/decimals for the funding check and bootstrap. It deliberately
// knows nothing about schedules, buyers, or retries — those live above it.
type Gateway interface {
	// EnsureATA makes sure owner's associated token account for mint exists,
	// creating it (paid for by payer) if needed, and returns its address.
	EnsureATA(ctx context.Context, payer *Keypair, owner, mint Pubkey) (Pubkey, error)

	// TransferChecked moves amount base units of mint from payer's own ATA to
	// the destination ATA, signed by payer.
	TransferChecked(ctx context.Context, payer *Keypair, mint, destATA Pubkey, amount uint64, decimals uint8) (signature string, err error)

	// TokenAccountBalance reads the base-unit balance of a token account.
	TokenAccountBalance(ctx context.Context, account Pubkey) (uint64, error)

	// MintDecimals reads the decimals configured on a mint.
	MintDecimals(ctx context.Context, mint Pubkey) (uint8, error)
}

// solanaGateway is the production Gateway, talking to a real cluster over
// JSON-RPC and waiting for confirmation before returning.
type solanaGateway struct {
	rpc           *RPCClient
	confirmPoll   time.Duration
	confirmWindow time.Duration
	log           *logging.Logger
}

// NewSolanaGateway builds a Gateway against the given cluster endpoint.
func NewSolanaGateway(endpoint string) Gateway {
	return &solanaGateway{
		rpc:           NewRPCClient(endpoint),
		confirmPoll:   500 * time.Millisecond,
		confirmWindow: 30 * time.Second,
		log:           logging.Default().Component("chain"),
	}
}

func (g *solanaGateway) EnsureATA(ctx context.Context, payer *Keypair, owner, mint Pubkey) (Pubkey, error) {
	ata, err := DeriveATA(owner, mint)
	if err != nil {
		return Pubkey{}, fmt.Errorf("%w: derive ata: %v", corerr.ErrChainPermanent, err)
	}

	exists, err := g.rpc.AccountExists(ctx, ata)
	if err != nil {
		return Pubkey{}, g.classify(err)
	}
	if exists {
		return ata, nil
	}

	blockhash, err := g.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return Pubkey{}, g.classify(err)
	}

	tx := &Transaction{
		Instructions: []Instruction{NewCreateATAInstruction(payer.Public, ata, owner, mint)},
		FeePayer:     payer.Public,
		RecentHash:   blockhash,
	}
	if err := tx.Sign(payer); err != nil {
		return Pubkey{}, fmt.Errorf("%w: sign create-ata: %v", corerr.ErrChainPermanent, err)
	}
	raw, err := tx.Serialize()
	if err != nil {
		return Pubkey{}, fmt.Errorf("%w: serialize create-ata: %v", corerr.ErrChainPermanent, err)
	}

	sig, err := g.rpc.SendTransaction(ctx, raw)
	if err != nil {
		return Pubkey{}, g.classify(err)
	}
	if err := g.awaitConfirmation(ctx, sig); err != nil {
		return Pubkey{}, err
	}

	g.log.Debug("created associated token account", "owner", owner.String(), "mint", mint.String(), "ata", ata.String())
	return ata, nil
}

func (g *solanaGateway) TransferChecked(ctx context.Context, payer *Keypair, mint, destATA Pubkey, amount uint64, decimals uint8) (string, error) {
	sourceATA, err := DeriveATA(payer.Public, mint)
	if err != nil {
		return "", fmt.Errorf("%w: derive source ata: %v", corerr.ErrChainPermanent, err)
	}

	blockhash, err := g.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return "", g.classify(err)
	}

	tx := &Transaction{
		Instructions: []Instruction{NewTransferCheckedInstruction(sourceATA, mint, destATA, payer.Public, amount, decimals)},
		FeePayer:     payer.Public,
		RecentHash:   blockhash,
	}
	if err := tx.Sign(payer); err != nil {
		return "", fmt.Errorf("%w: sign transfer: %v", corerr.ErrChainPermanent, err)
	}
	raw, err := tx.Serialize()
	if err != nil {
		return "", fmt.Errorf("%w: serialize transfer: %v", corerr.ErrChainPermanent, err)
	}

	sig, err := g.rpc.SendTransaction(ctx, raw)
	if err != nil {
		return "", g.classify(err)
	}
	if err := g.awaitConfirmation(ctx, sig); err != nil {
		return "", err
	}

	g.log.Info("transfer confirmed", "destination", destATA.String(), "amount", helpers.LamportsToDisplay(amount, decimals), "signature", sig)
	return sig, nil
}

func (g *solanaGateway) TokenAccountBalance(ctx context.Context, account Pubkey) (uint64, error) {
	bal, err := g.rpc.TokenAccountBalance(ctx, account)
	if err != nil {
		return 0, g.classify(err)
	}
	return bal, nil
}

func (g *solanaGateway) MintDecimals(ctx context.Context, mint Pubkey) (uint8, error) {
	decimals, err := g.rpc.MintDecimals(ctx, mint)
	if err != nil {
		return 0, g.classify(err)
	}
	return decimals, nil
}

// awaitConfirmation polls getSignatureStatuses until the transaction is
// confirmed, fails on-chain, or the confirmation window elapses.
func (g *solanaGateway) awaitConfirmation(ctx context.Context, signature string) error {
	deadline := time.Now().Add(g.confirmWindow)
	ticker := time.NewTicker(g.confirmPoll)
	defer ticker.Stop()

	for {
		status, ok, err := g.rpc.GetSignatureStatus(ctx, signature)
		if err != nil {
			return g.classify(err)
		}
		if ok {
			if status.Err != nil {
				return fmt.Errorf("%w: transaction %s failed on chain: %s", corerr.ErrChainPermanent, signature, status.Err)
			}
			if status.Confirmed {
				return nil
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: transaction %s not confirmed after %s", corerr.ErrChainTransient, signature, g.confirmWindow)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// classify maps the package-local RPC error sentinels onto the distributor's
// retry-vs-give-up vocabulary.
func (g *solanaGateway) classify(err error) error {
	switch {
	case errors.Is(err, ErrRPCUnavailable):
		return fmt.Errorf("%w: %v", corerr.ErrChainTransient, err)
	case errors.Is(err, ErrRPCRejected):
		return fmt.Errorf("%w: %v", corerr.ErrChainPermanent, err)
	default:
		return fmt.Errorf("%w: %v", corerr.ErrChainTransient, err)
	}
}
