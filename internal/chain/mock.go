package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/klingon-exchange/splgiver/internal/corerr"
)

// MockGateway is an in-memory, scriptable Gateway for exercising the
// Schedule Runner without a live cluster. It tracks balances per ATA and lets
// tests force a fixed number of transient failures before a call succeeds,
// mirroring the retry behavior a flaky RPC endpoint would produce.
type MockGateway struct {
	mu sync.Mutex

	decimals uint8
	balances map[Pubkey]uint64
	atas     map[Pubkey]Pubkey // owner -> ata

	// FailNext, when > 0, makes the next N TransferChecked calls return a
	// transient error before letting the call through.
	FailNext int
	failErr  error

	nextSig int
	Sent    []MockTransfer
}

// MockTransfer records one successful TransferChecked call for assertions.
type MockTransfer struct {
	DestATA Pubkey
	Amount  uint64
	Decimals uint8
}

// NewMockGateway builds a MockGateway whose mint reports the given decimals.
func NewMockGateway(decimals uint8) *MockGateway {
	return &MockGateway{
		decimals: decimals,
		balances: map[Pubkey]uint64{},
		atas:     map[Pubkey]Pubkey{},
	}
}

// SetBalance seeds the balance of a token account, e.g. the distributor's own
// funding ATA for the Funding Check, or a buyer's ATA for assertions.
func (m *MockGateway) SetBalance(account Pubkey, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] = amount
}

// FailNextWith arms the mock to fail the next n TransferChecked calls with err.
func (m *MockGateway) FailNextWith(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailNext = n
	m.failErr = err
}

func (m *MockGateway) EnsureATA(ctx context.Context, payer *Keypair, owner, mint Pubkey) (Pubkey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ata, ok := m.atas[owner]; ok {
		return ata, nil
	}
	ata, err := DeriveATA(owner, mint)
	if err != nil {
		return Pubkey{}, err
	}
	m.atas[owner] = ata
	return ata, nil
}

func (m *MockGateway) TransferChecked(ctx context.Context, payer *Keypair, mint, destATA Pubkey, amount uint64, decimals uint8) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNext > 0 {
		m.FailNext--
		if m.failErr != nil {
			return "", m.failErr
		}
		return "", fmt.Errorf("%w: mock gateway: forced transient failure", corerr.ErrChainTransient)
	}

	m.balances[destATA] += amount
	m.Sent = append(m.Sent, MockTransfer{DestATA: destATA, Amount: amount, Decimals: decimals})

	m.nextSig++
	return fmt.Sprintf("mock-signature-%d", m.nextSig), nil
}

func (m *MockGateway) TokenAccountBalance(ctx context.Context, account Pubkey) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account], nil
}

func (m *MockGateway) MintDecimals(ctx context.Context, mint Pubkey) (uint8, error) {
	return m.decimals, nil
}

var _ Gateway = (*MockGateway)(nil)
