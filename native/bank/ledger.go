package bank

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"rentchain/core/types"
	"rentchain/native/common"
)

// State abstracts account persistence for the custody ledger.
type State interface {
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
}

// Ledger is the custody account registry. All monetary movement in the
// marketplace goes through Transfer; a failed transfer aborts the calling
// operation before any state was touched.
type Ledger struct {
	mu    sync.Mutex
	state State
}

// NewLedger constructs a ledger over the supplied state backend.
func NewLedger(state State) *Ledger {
	return &Ledger{state: state}
}

// SetState swaps the state backend, primarily for tests.
func (l *Ledger) SetState(state State) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = state
}

func (l *Ledger) ensureState() error {
	if l == nil || l.state == nil {
		return fmt.Errorf("bank: state not configured")
	}
	return nil
}

// BalanceOf returns the custody balance held for addr.
func (l *Ledger) BalanceOf(addr [20]byte) (*big.Int, error) {
	if err := l.ensureState(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, err := l.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	acc = types.EnsureAccount(acc)
	return new(big.Int).Set(acc.Balance), nil
}

// Transfer moves amount from one custody account to another. Zero amounts are
// a no-op; negative amounts are rejected.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if err := l.ensureState(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("bank: negative transfer amount: %w", common.ErrInvalidInput)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fromAcc, err := l.state.GetAccount(from)
	if err != nil {
		return err
	}
	toAcc, err := l.state.GetAccount(to)
	if err != nil {
		return err
	}
	fromAcc = types.EnsureAccount(fromAcc)
	toAcc = types.EnsureAccount(toAcc)
	if fromAcc.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("bank: balance %s below transfer amount %s: %w", fromAcc.Balance, amount, common.ErrInsufficientFunds)
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := l.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return l.state.PutAccount(to, toAcc)
}

// Mint credits newly created funds to addr. Used to seed test fixtures and to
// model simulated yield arriving from an external strategy.
func (l *Ledger) Mint(addr [20]byte, amount *big.Int) error {
	if err := l.ensureState(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("bank: negative mint amount: %w", common.ErrInvalidInput)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, err := l.state.GetAccount(addr)
	if err != nil {
		return err
	}
	acc = types.EnsureAccount(acc)
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return l.state.PutAccount(addr, acc)
}

// ParseAddress normalises a hex-encoded 20-byte address, with or without a
// 0x prefix.
func ParseAddress(ref string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(ref)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != 40 {
		return addr, fmt.Errorf("bank: address must be 20 bytes (got %d hex chars): %w", len(trimmed), common.ErrInvalidInput)
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("bank: decode address: %w", common.ErrInvalidInput)
	}
	copy(addr[:], decoded)
	return addr, nil
}
