package yieldfarm

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"rentchain/native/common"
)

type mockState struct {
	strategies map[uint64]*Strategy
	stakes     map[uint64]*Stake
	nextID     uint64
	vault      [20]byte
}

func newMockState() *mockState {
	return &mockState{
		strategies: make(map[uint64]*Strategy),
		stakes:     make(map[uint64]*Stake),
		vault:      testAddr(0xEF),
	}
}

func (m *mockState) StrategyCreate(s *Strategy) (uint64, error) {
	m.nextID++
	clone := s.Clone()
	clone.ID = m.nextID
	m.strategies[clone.ID] = clone
	return clone.ID, nil
}

func (m *mockState) StrategyGet(id uint64) (*Strategy, bool, error) {
	s, ok := m.strategies[id]
	if !ok {
		return nil, false, nil
	}
	return s.Clone(), true, nil
}

func (m *mockState) StrategyPut(s *Strategy) error {
	m.strategies[s.ID] = s.Clone()
	return nil
}

func (m *mockState) StakeGet(rentalID uint64) (*Stake, bool, error) {
	s, ok := m.stakes[rentalID]
	if !ok {
		return nil, false, nil
	}
	return s.Clone(), true, nil
}

func (m *mockState) StakePut(s *Stake) error {
	m.stakes[s.RentalID] = s.Clone()
	return nil
}

func (m *mockState) YieldVaultAddress() ([20]byte, error) {
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

func (m *mockLedger) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	fromBal := m.balance(from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("balance too low: %w", common.ErrInsufficientFunds)
	}
	m.balances[from] = fromBal.Sub(fromBal, amount)
	m.balances[to] = new(big.Int).Add(m.balance(to), amount)
	return nil
}

func (m *mockLedger) Mint(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	m.balances[addr] = new(big.Int).Add(m.balance(addr), amount)
	return nil
}

type mockVault struct {
	held        *big.Int
	failDeposit bool
	// haircut settles withdrawals short by this amount.
	haircut *big.Int
}

func (v *mockVault) Deposit(amount *big.Int) error {
	if v.failDeposit {
		return fmt.Errorf("venue rejected deposit: %w", common.ErrInvalidState)
	}
	v.held.Add(v.held, amount)
	return nil
}

func (v *mockVault) Withdraw(amount *big.Int) (*big.Int, error) {
	if v.held.Cmp(amount) < 0 {
		return nil, fmt.Errorf("vault balance too low: %w", common.ErrInsufficientFunds)
	}
	v.held.Sub(v.held, amount)
	out := new(big.Int).Set(amount)
	if v.haircut != nil {
		out.Sub(out, v.haircut)
	}
	return out, nil
}

type mockProvider struct {
	vaults map[uint64]*mockVault
}

func newMockProvider() *mockProvider {
	return &mockProvider{vaults: make(map[uint64]*mockVault)}
}

func (p *mockProvider) StrategyVault(strategyID uint64) (StrategyVault, error) {
	v, ok := p.vaults[strategyID]
	if !ok {
		v = &mockVault{held: big.NewInt(0)}
		p.vaults[strategyID] = v
	}
	return v, nil
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
	provider   *mockProvider
	tenant     [20]byte
	landlord   [20]byte
	admin      [20]byte
	treasury   [20]byte
	insurance  [20]byte
	settlement [20]byte
	now        int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		state:      newMockState(),
		ledger:     newMockLedger(),
		provider:   newMockProvider(),
		tenant:     testAddr(0x0B),
		landlord:   testAddr(0x0A),
		admin:      testAddr(0xAD),
		treasury:   testAddr(0xFC),
		insurance:  testAddr(0xFD),
		settlement: testAddr(0xEE),
		now:        1_000_000,
	}
	env.engine = NewEngine()
	env.engine.SetState(env.state)
	env.engine.SetLedger(env.ledger)
	env.engine.SetVaultProvider(env.provider)
	env.engine.SetTreasury(env.treasury)
	env.engine.SetInsuranceFund(env.insurance)
	env.engine.SetSettlement(env.settlement)
	roles := common.NewRoleSet()
	roles.Grant(common.RoleAdmin, env.admin)
	env.engine.SetRoles(roles)
	return env
}

func (env *testEnv) registerStrategy(t *testing.T, protocol string, apyBps uint32, tier RiskTier) *Strategy {
	t.Helper()
	s, err := env.engine.RegisterStrategy(protocol, "USDX", "yUSDX", apyBps, tier, env.admin)
	require.NoError(t, err)
	return s
}

// openStake stakes baseAmount (and optionally deposit) at env.now for one year.
func (env *testEnv) openStake(t *testing.T, baseAmount, deposit int64, baseID, plusID uint64) *Stake {
	t.Helper()
	env.ledger.Mint(env.settlement, big.NewInt(baseAmount+deposit))
	stake, err := env.engine.OpenStake(1, env.tenant, env.landlord,
		big.NewInt(baseAmount), big.NewInt(deposit),
		env.now, env.now+secondsPerYear, baseID, plusID, env.admin)
	require.NoError(t, err)
	return stake
}

func TestRegisterStrategyAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.RegisterStrategy("aave", "USDX", "yUSDX", 1_000, TierConservative, env.tenant)
	require.True(t, errors.Is(err, common.ErrUnauthorized))

	s := env.registerStrategy(t, "aave", 1_000, TierConservative)
	require.Equal(t, uint64(1), s.ID)
	require.True(t, s.Active)

	s2 := env.registerStrategy(t, "compound", 2_000, TierGrowth)
	require.Equal(t, uint64(2), s2.ID)
}

func TestOpenStakeMovesPrincipalAndIsExclusive(t *testing.T) {
	env := newTestEnv(t)
	base := env.registerStrategy(t, "aave", 1_000, TierConservative)
	plus := env.registerStrategy(t, "compound", 2_000, TierGrowth)

	stake := env.openStake(t, 1_000_000, 300_000, base.ID, plus.ID)
	require.True(t, stake.Active)
	require.Equal(t, big.NewInt(0), env.ledger.balance(env.settlement))
	require.Equal(t, big.NewInt(1_300_000), env.ledger.balance(env.state.vault))
	require.Equal(t, big.NewInt(1_000_000), env.provider.vaults[base.ID].held)
	require.Equal(t, big.NewInt(300_000), env.provider.vaults[plus.ID].held)

	_, err := env.engine.OpenStake(1, env.tenant, env.landlord,
		big.NewInt(1), big.NewInt(0), env.now, env.now+secondsPerYear, base.ID, 0, env.admin)
	require.True(t, errors.Is(err, common.ErrAlreadyProcessed))
}

func TestOpenStakeRejectsInactiveStrategy(t *testing.T) {
	env := newTestEnv(t)
	base := env.registerStrategy(t, "aave", 1_000, TierConservative)
	require.NoError(t, env.engine.SetStrategyActive(base.ID, false, env.admin))

	env.ledger.Mint(env.settlement, big.NewInt(100))
	_, err := env.engine.OpenStake(1, env.tenant, env.landlord,
		big.NewInt(100), big.NewInt(0), env.now, env.now+secondsPerYear, base.ID, 0, env.admin)
	require.True(t, errors.Is(err, common.ErrInvalidState))
}

func TestOpenStakeBaseDepositFailureLeavesNoPartialState(t *testing.T) {
	env := newTestEnv(t)
	base := env.registerStrategy(t, "aave", 1_000, TierConservative)
	env.provider.vaults[base.ID] = &mockVault{held: big.NewInt(0), failDeposit: true}
	env.ledger.Mint(env.settlement, big.NewInt(500_000))

	_, err := env.engine.OpenStake(1, env.tenant, env.landlord,
		big.NewInt(500_000), big.NewInt(0), env.now, env.now+secondsPerYear, base.ID, 0, env.admin)
	require.Error(t, err)

	require.Equal(t, big.NewInt(500_000), env.ledger.balance(env.settlement), "principal back in settlement custody")
	require.Equal(t, big.NewInt(0), env.ledger.balance(env.state.vault))
	_, err = env.engine.GetStake(1)
	require.True(t, errors.Is(err, common.ErrNotFound))
}

func TestOpenStakePlusDepositFailureUnwindsBaseLeg(t *testing.T) {
	env := newTestEnv(t)
	base := env.registerStrategy(t, "aave", 1_000, TierConservative)
	plus := env.registerStrategy(t, "compound", 2_000, TierGrowth)
	env.provider.vaults[plus.ID] = &mockVault{held: big.NewInt(0), failDeposit: true}
	env.ledger.Mint(env.settlement, big.NewInt(1_300_000))

	_, err := env.engine.OpenStake(1, env.tenant, env.landlord,
		big.NewInt(1_000_000), big.NewInt(300_000),
		env.now, env.now+secondsPerYear, base.ID, plus.ID, env.admin)
	require.Error(t, err)

	require.Equal(t, big.NewInt(1_300_000), env.ledger.balance(env.settlement), "principal back in settlement custody")
	require.Equal(t, big.NewInt(0), env.ledger.balance(env.state.vault))
	require.Equal(t, "0", env.provider.vaults[base.ID].held.String(), "base leg unwound")
	_, err = env.engine.GetStake(1)
	require.True(t, errors.Is(err, common.ErrNotFound))
}

func TestEstimateYieldLinearAndClamped(t *testing.T) {
	env := newTestEnv(t)
	base := env.registerStrategy(t, "aave", 1_000, TierConservative)
	env.openStake(t, 1_000_000, 0, base.ID, 0)

	// Before the stake starts accruing nothing.
	baseYield, plusYield, err := env.engine.EstimateYield(1, env.now)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(0), baseYield)
	require.Equal(t, big.NewInt(0), plusYield)

	// Half a year at 10% APY on 1_000_000 = 50_000.
	baseYield, _, err = env.engine.EstimateYield(1, env.now+secondsPerYear/2)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(50_000), baseYield)

	// A full year = 100_000; past the end time the estimate stays clamped.
	atEnd, _, err := env.engine.EstimateYield(1, env.now+secondsPerYear)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100_000), atEnd)

	pastEnd, _, err := env.engine.EstimateYield(1, env.now+10*secondsPerYear)
	require.NoError(t, err)
	require.Equal(t, atEnd, pastEnd)
}

func TestCollectSplitsBaseYield(t *testing.T) {
	env := newTestEnv(t)
	base := env.registerStrategy(t, "aave", 1_000, TierConservative)
	env.openStake(t, 1_000_000, 0, base.ID, 0)

	require.NoError(t, env.engine.Collect(1, env.admin, env.now+secondsPerYear/2))

	// Yield 50_000: tenant 70% = 35_000, landlord 10% = 5_000,
	// platform 10_000 split 5% insurance / rest treasury = 500 / 9_500.
	require.Equal(t, big.NewInt(35_000), env.ledger.balance(env.tenant))
	require.Equal(t, big.NewInt(5_000), env.ledger.balance(env.landlord))
	require.Equal(t, big.NewInt(500), env.ledger.balance(env.insurance))
	require.Equal(t, big.NewInt(9_500), env.ledger.balance(env.treasury))

	stake, err := env.engine.GetStake(1)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(50_000), stake.AccruedBase)
}

func TestCollectIsMonotonic(t *testing.T) {
	env := newTestEnv(t)
	base := env.registerStrategy(t, "aave", 1_000, TierConservative)
	env.openStake(t, 1_000_000, 0, base.ID, 0)

	half := env.now + secondsPerYear/2
	require.NoError(t, env.engine.Collect(1, env.admin, half))
	tenantAfterFirst := env.ledger.balance(env.tenant)

	// Re-collecting at the same instant distributes nothing.
	require.NoError(t, env.engine.Collect(1, env.admin, half))
	require.Equal(t, tenantAfterFirst, env.ledger.balance(env.tenant))

	// An earlier timestamp never claws anything back.
	require.NoError(t, env.engine.Collect(1, env.admin, env.now))
	require.Equal(t, tenantAfterFirst, env.ledger.balance(env.tenant))

	// The second half-year pays out the remaining delta only.
	require.NoError(t, env.engine.Collect(1, env.admin, env.now+secondsPerYear))
	require.Equal(t, big.NewInt(70_000), env.ledger.balance(env.tenant))
}

func TestCollectSplitsPlusYield(t *testing.T) {
	env := newTestEnv(t)
	base := env.registerStrategy(t, "aave", 1_000, TierConservative)
	plus := env.registerStrategy(t, "compound", 2_000, TierGrowth)
	env.openStake(t, 1_000_000, 300_000, base.ID, plus.ID)

	require.NoError(t, env.engine.Collect(1, env.admin, env.now+secondsPerYear))

	// Base 100_000 at 70/10 and plus 60_000 at 60/10.
	// Tenant: 70_000 + 36_000, landlord: 10_000 + 6_000.
	require.Equal(t, big.NewInt(106_000), env.ledger.balance(env.tenant))
	require.Equal(t, big.NewInt(16_000), env.ledger.balance(env.landlord))
	// Platform: 20_000 + 18_000 = 38_000 → insurance 1_000 + 900, treasury rest.
	require.Equal(t, big.NewInt(1_900), env.ledger.balance(env.insurance))
	require.Equal(t, big.NewInt(36_100), env.ledger.balance(env.treasury))
}

func TestEndStakeReturnsPrincipal(t *testing.T) {
	env := newTestEnv(t)
	base := env.registerStrategy(t, "aave", 1_000, TierConservative)
	plus := env.registerStrategy(t, "compound", 2_000, TierGrowth)
	env.openStake(t, 1_000_000, 300_000, base.ID, plus.ID)

	require.NoError(t, env.engine.EndStake(1, env.admin, env.now+secondsPerYear))

	// Principal is back in settlement custody and the stake is closed.
	require.Equal(t, big.NewInt(1_300_000), env.ledger.balance(env.settlement))
	require.Equal(t, big.NewInt(0), env.ledger.balance(env.state.vault))
	stake, err := env.engine.GetStake(1)
	require.NoError(t, err)
	require.False(t, stake.Active)
	// The final collection ran.
	require.Equal(t, big.NewInt(100_000), stake.AccruedBase)
	require.Equal(t, big.NewInt(60_000), stake.AccruedPlus)

	err = env.engine.EndStake(1, env.admin, env.now+secondsPerYear)
	require.True(t, errors.Is(err, common.ErrAlreadyProcessed))
}

func TestEndStakeForwardsActualWithdrawnAmount(t *testing.T) {
	env := newTestEnv(t)
	base := env.registerStrategy(t, "aave", 1_000, TierConservative)
	env.openStake(t, 1_000_000, 0, base.ID, 0)
	env.provider.vaults[base.ID].haircut = big.NewInt(1_000)

	require.NoError(t, env.engine.EndStake(1, env.admin, env.now+secondsPerYear))

	// The venue settled 1_000 short: only the returned amount moves on, the
	// shortfall stays in yield custody instead of overdrawing it.
	require.Equal(t, big.NewInt(999_000), env.ledger.balance(env.settlement))
	require.Equal(t, big.NewInt(1_000), env.ledger.balance(env.state.vault))
}

func TestCollectOnEndedStakeFails(t *testing.T) {
	env := newTestEnv(t)
	base := env.registerStrategy(t, "aave", 1_000, TierConservative)
	env.openStake(t, 1_000_000, 0, base.ID, 0)
	require.NoError(t, env.engine.EndStake(1, env.admin, env.now+secondsPerYear))

	err := env.engine.Collect(1, env.admin, env.now+2*secondsPerYear)
	require.True(t, errors.Is(err, common.ErrInvalidState))
}

func TestParseCatalog(t *testing.T) {
	raw := []byte(`
strategies:
  - protocol: aave
    depositToken: USDX
    yieldToken: yUSDX
    apyBps: 800
    tier: conservative
  - protocol: compound
    depositToken: USDX
    yieldToken: cUSDX
    apyBps: 2200
    tier: growth
`)
	strategies, err := ParseCatalog(raw)
	require.NoError(t, err)
	require.Len(t, strategies, 2)
	require.Equal(t, "aave", strategies[0].Protocol)
	require.Equal(t, TierGrowth, strategies[1].Tier)
	require.True(t, strategies[1].Active)

	_, err = ParseCatalog([]byte("strategies: []"))
	require.Error(t, err)

	_, err = ParseCatalog([]byte("strategies:\n  - protocol: x\n    apyBps: 1\n    tier: reckless\n"))
	require.Error(t, err)
}
