package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"rentchain/native/common"
)

type mockState struct {
	escrows        map[uint64]*Escrow
	disputes       map[uint64]*Dispute
	escrowByRental map[uint64]uint64
	disputeByEsc   map[uint64]uint64
	nextEscrowID   uint64
	nextDisputeID  uint64
	vault          [20]byte
}

func newMockState() *mockState {
	return &mockState{
		escrows:        make(map[uint64]*Escrow),
		disputes:       make(map[uint64]*Dispute),
		escrowByRental: make(map[uint64]uint64),
		disputeByEsc:   make(map[uint64]uint64),
		vault:          testAddr(0xEE),
	}
}

func (m *mockState) EscrowCreate(e *Escrow) (uint64, error) {
	m.nextEscrowID++
	clone := e.Clone()
	clone.ID = m.nextEscrowID
	m.escrows[clone.ID] = clone
	return clone.ID, nil
}

func (m *mockState) EscrowGet(id uint64) (*Escrow, bool, error) {
	esc, ok := m.escrows[id]
	if !ok {
		return nil, false, nil
	}
	return esc.Clone(), true, nil
}

func (m *mockState) EscrowPut(e *Escrow) error {
	sanitized, err := SanitizeEscrow(e)
	if err != nil {
		return err
	}
	m.escrows[sanitized.ID] = sanitized
	return nil
}

func (m *mockState) EscrowForRental(rentalID uint64) (uint64, bool, error) {
	id, ok := m.escrowByRental[rentalID]
	return id, ok, nil
}

func (m *mockState) SetEscrowForRental(rentalID, escrowID uint64) error {
	m.escrowByRental[rentalID] = escrowID
	return nil
}

func (m *mockState) DisputeCreate(d *Dispute) (uint64, error) {
	m.nextDisputeID++
	clone := d.Clone()
	clone.ID = m.nextDisputeID
	m.disputes[clone.ID] = clone
	return clone.ID, nil
}

func (m *mockState) DisputeGet(id uint64) (*Dispute, bool, error) {
	d, ok := m.disputes[id]
	if !ok {
		return nil, false, nil
	}
	return d.Clone(), true, nil
}

func (m *mockState) DisputePut(d *Dispute) error {
	sanitized, err := SanitizeDispute(d)
	if err != nil {
		return err
	}
	m.disputes[sanitized.ID] = sanitized
	return nil
}

func (m *mockState) DisputeForEscrow(escrowID uint64) (uint64, bool, error) {
	id, ok := m.disputeByEsc[escrowID]
	return id, ok, nil
}

func (m *mockState) SetDisputeForEscrow(escrowID, disputeID uint64) error {
	m.disputeByEsc[escrowID] = disputeID
	return nil
}

func (m *mockState) EscrowVaultAddress() ([20]byte, error) {
	return m.vault, nil
}

type mockLedger struct {
	balances map[[20]byte]*big.Int
}

func newMockLedger() *mockLedger {
	return &mockLedger{balances: make(map[[20]byte]*big.Int)}
}

func (m *mockLedger) balance(addr [20]byte) *big.Int {
	bal, ok := m.balances[addr]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(bal)
}

func (m *mockLedger) mint(addr [20]byte, amount int64) {
	m.balances[addr] = new(big.Int).Add(m.balance(addr), big.NewInt(amount))
}

func (m *mockLedger) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative amount: %w", common.ErrInvalidInput)
	}
	fromBal := m.balance(from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("balance too low: %w", common.ErrInsufficientFunds)
	}
	m.balances[from] = fromBal.Sub(fromBal, amount)
	m.balances[to] = new(big.Int).Add(m.balance(to), amount)
	return nil
}

func testAddr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

type testEnv struct {
	engine     *Engine
	state      *mockState
	ledger     *mockLedger
	tenant     [20]byte
	landlord   [20]byte
	admin      [20]byte
	arbitrator [20]byte
	treasury   [20]byte
	insurance  [20]byte
	now        int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		state:      newMockState(),
		ledger:     newMockLedger(),
		tenant:     testAddr(0x0B),
		landlord:   testAddr(0x0A),
		admin:      testAddr(0xAD),
		arbitrator: testAddr(0xAB),
		treasury:   testAddr(0xFC),
		insurance:  testAddr(0xFD),
		now:        1_000_000,
	}
	env.engine = NewEngine()
	env.engine.SetState(env.state)
	env.engine.SetLedger(env.ledger)
	env.engine.SetTreasury(env.treasury)
	env.engine.SetInsuranceFund(env.insurance)
	roles := common.NewRoleSet()
	roles.Grant(common.RoleAdmin, env.admin)
	roles.Grant(common.RoleArbitrator, env.arbitrator)
	env.engine.SetRoles(roles)
	return env
}

func (env *testEnv) createEscrow(t *testing.T, rentalAmount, deposit int64) *Escrow {
	t.Helper()
	esc, err := env.engine.CreateEscrow(1, env.tenant, env.landlord, big.NewInt(rentalAmount), big.NewInt(deposit), env.now)
	require.NoError(t, err)
	return esc
}

func (env *testEnv) fundBoth(t *testing.T, esc *Escrow) {
	t.Helper()
	env.ledger.mint(env.tenant, esc.RentalAmount.Int64())
	env.ledger.mint(env.landlord, esc.LandlordDeposit.Int64())
	require.NoError(t, env.engine.Fund(esc.ID, env.tenant))
	require.NoError(t, env.engine.Fund(esc.ID, env.landlord))
}

func TestCreateEscrowOncePerRental(t *testing.T) {
	env := newTestEnv(t)
	esc := env.createEscrow(t, 10_000, 3_000)
	require.Equal(t, uint64(1), esc.ID)
	require.Equal(t, StatusCreated, esc.Status)

	_, err := env.engine.CreateEscrow(1, env.tenant, env.landlord, big.NewInt(10_000), big.NewInt(3_000), env.now)
	require.True(t, errors.Is(err, common.ErrAlreadyProcessed))
}

func TestCreateEscrowValidatesInput(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.CreateEscrow(2, env.tenant, env.tenant, big.NewInt(1), big.NewInt(0), env.now)
	require.True(t, errors.Is(err, common.ErrInvalidInput), "same party both sides")

	_, err = env.engine.CreateEscrow(2, env.tenant, env.landlord, big.NewInt(0), big.NewInt(0), env.now)
	require.True(t, errors.Is(err, common.ErrInvalidInput), "zero rental amount")
}

func TestFundSinglePartyFlipsToFunded(t *testing.T) {
	// The first deposit marks the escrow funded, before the counterparty
	// pays. Cancellation still refunds only what was actually moved.
	env := newTestEnv(t)
	esc := env.createEscrow(t, 10_000, 3_000)
	env.ledger.mint(env.tenant, 10_000)

	require.NoError(t, env.engine.Fund(esc.ID, env.tenant))
	stored, err := env.engine.Get(esc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFunded, stored.Status)
	require.Equal(t, big.NewInt(10_000), stored.TenantFunded)
	require.Equal(t, big.NewInt(0), stored.LandlordFunded)
	require.Equal(t, big.NewInt(10_000), env.ledger.balance(env.state.vault))

	// Same party cannot fund twice.
	err = env.engine.Fund(esc.ID, env.tenant)
	require.True(t, errors.Is(err, common.ErrAlreadyProcessed))

	// The landlord can still top up the deposit afterwards.
	env.ledger.mint(env.landlord, 3_000)
	require.NoError(t, env.engine.Fund(esc.ID, env.landlord))
	stored, err = env.engine.Get(esc.ID)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(3_000), stored.LandlordFunded)
}

func TestFundRejectsStrangers(t *testing.T) {
	env := newTestEnv(t)
	esc := env.createEscrow(t, 10_000, 3_000)
	err := env.engine.Fund(esc.ID, testAddr(0x99))
	require.True(t, errors.Is(err, common.ErrUnauthorized))
}

func TestCompleteThenLandlordClaims(t *testing.T) {
	env := newTestEnv(t)
	esc := env.createEscrow(t, 10_000, 3_000)
	env.fundBoth(t, esc)

	require.NoError(t, env.engine.Complete(esc.ID, env.tenant))

	payout, err := env.engine.Claim(esc.ID, env.landlord)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(13_000), payout)
	require.Equal(t, big.NewInt(13_000), env.ledger.balance(env.landlord))

	// Tenant claim is informational on the completion path.
	payout, err = env.engine.Claim(esc.ID, env.tenant)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), payout)
}

func TestCompleteBlockedByDispute(t *testing.T) {
	env := newTestEnv(t)
	esc := env.createEscrow(t, 10_000, 3_000)
	env.fundBoth(t, esc)
	_, err := env.engine.OpenDispute(esc.ID, DisputePropertyIssue, env.tenant, "ipfs://QmEvidence", env.now)
	require.NoError(t, err)

	err = env.engine.Complete(esc.ID, env.tenant)
	require.True(t, errors.Is(err, common.ErrInvalidState))
}

func TestCancelRefundsOnlyWhatWasFunded(t *testing.T) {
	env := newTestEnv(t)
	esc := env.createEscrow(t, 10_000, 3_000)
	env.ledger.mint(env.tenant, 10_000)
	require.NoError(t, env.engine.Fund(esc.ID, env.tenant))

	require.NoError(t, env.engine.Cancel(esc.ID, env.tenant))

	require.Equal(t, big.NewInt(10_000), env.ledger.balance(env.tenant))
	require.Equal(t, big.NewInt(0), env.ledger.balance(env.landlord))
	require.Equal(t, big.NewInt(0), env.ledger.balance(env.state.vault))

	stored, err := env.engine.Get(esc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, stored.Status)
}

func TestClaimIdempotence(t *testing.T) {
	env := newTestEnv(t)
	esc := env.createEscrow(t, 10_000, 3_000)
	env.fundBoth(t, esc)
	require.NoError(t, env.engine.Complete(esc.ID, env.landlord))

	_, err := env.engine.Claim(esc.ID, env.landlord)
	require.NoError(t, err)
	before := env.ledger.balance(env.landlord)

	_, err = env.engine.Claim(esc.ID, env.landlord)
	require.True(t, errors.Is(err, common.ErrAlreadyProcessed))
	require.Equal(t, before, env.ledger.balance(env.landlord), "balance unchanged by second claim")
}

func TestLandlordDefaultSettlement(t *testing.T) {
	env := newTestEnv(t)
	esc := env.createEscrow(t, 10_000, 3_000)
	env.fundBoth(t, esc)

	err := env.engine.LandlordDefault(esc.ID, env.tenant)
	require.True(t, errors.Is(err, common.ErrUnauthorized), "admin only")

	require.NoError(t, env.engine.LandlordDefault(esc.ID, env.admin))

	// penalty = 30% of 10000 = 3000; compensation = 3000*3333/10000 = 999.
	require.Equal(t, big.NewInt(10_999), env.ledger.balance(env.tenant))
	// remainder 2001 split 5% insurance / rest treasury: 100 / 1901.
	require.Equal(t, big.NewInt(100), env.ledger.balance(env.insurance))
	require.Equal(t, big.NewInt(1_901), env.ledger.balance(env.treasury))
	// deposit exactly covers the penalty, nothing returns to the landlord.
	require.Equal(t, big.NewInt(0), env.ledger.balance(env.landlord))
	require.Equal(t, big.NewInt(0), env.ledger.balance(env.state.vault))

	stored, err := env.engine.Get(esc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, stored.Status)

	// Claims are spent by the default settlement.
	_, err = env.engine.Claim(esc.ID, env.landlord)
	require.True(t, errors.Is(err, common.ErrAlreadyProcessed))
}

func TestLandlordDefaultRequiresCoveringDeposit(t *testing.T) {
	env := newTestEnv(t)
	esc := env.createEscrow(t, 10_000, 2_999)
	env.fundBoth(t, esc)

	err := env.engine.LandlordDefault(esc.ID, env.admin)
	require.True(t, errors.Is(err, common.ErrInsufficientFunds))

	// Nothing moved.
	require.Equal(t, big.NewInt(12_999), env.ledger.balance(env.state.vault))
}

func TestLandlordDefaultReturnsDepositLeftover(t *testing.T) {
	env := newTestEnv(t)
	esc := env.createEscrow(t, 10_000, 5_000)
	env.fundBoth(t, esc)

	require.NoError(t, env.engine.LandlordDefault(esc.ID, env.admin))
	require.Equal(t, big.NewInt(2_000), env.ledger.balance(env.landlord))
}
