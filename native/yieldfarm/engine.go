package yieldfarm

import (
	"fmt"
	"math/big"
	"sync"

	"rentchain/core/events"
	"rentchain/core/types"
	"rentchain/native/common"
	"rentchain/observability/metrics"
)

const moduleName = "yield"

const (
	bpsDenominator int64 = 10_000
	secondsPerYear int64 = 31_536_000

	// Base yield split: tenant 70%, landlord 10%, platform the rest.
	baseTenantBps   uint32 = 7_000
	baseLandlordBps uint32 = 1_000
	// Plus yield split: tenant 60%, landlord 10%, platform the rest.
	plusTenantBps   uint32 = 6_000
	plusLandlordBps uint32 = 1_000

	// DefaultInsuranceFundBps is the slice of the platform's yield share
	// routed to the insurance fund.
	DefaultInsuranceFundBps uint32 = 500
)

// Ledger is the currency capability consumed by the engine. Simulated yield
// enters the ledger through Mint; principal moves through Transfer.
type Ledger interface {
	Transfer(from, to [20]byte, amount *big.Int) error
	Mint(addr [20]byte, amount *big.Int) error
}

// StrategyVault is the external yield-bearing capability. Calls are
// synchronous and either fully succeed or abort the whole operation.
type StrategyVault interface {
	Deposit(amount *big.Int) error
	Withdraw(amount *big.Int) (*big.Int, error)
}

// VaultProvider resolves the external vault backing a registered strategy.
type VaultProvider interface {
	StrategyVault(strategyID uint64) (StrategyVault, error)
}

// EngineState abstracts record persistence for strategies and stakes. Stakes
// are keyed by rental id; at most one exists per rental.
type EngineState interface {
	StrategyCreate(*Strategy) (uint64, error)
	StrategyGet(id uint64) (*Strategy, bool, error)
	StrategyPut(*Strategy) error
	StakeGet(rentalID uint64) (*Stake, bool, error)
	StakePut(*Stake) error
	YieldVaultAddress() ([20]byte, error)
}

// Engine accrues time-proportional simulated yield over staked rental funds
// and distributes it between tenant, landlord and platform. All time-gated
// logic takes the current time from the caller; there is no internal timer.
type Engine struct {
	mu               sync.Mutex
	state            EngineState
	ledger           Ledger
	provider         VaultProvider
	emitter          events.Emitter
	pauses           common.PauseView
	roles            common.RoleView
	treasury         [20]byte
	insuranceFund    [20]byte
	settlement       [20]byte
	insuranceFundBps uint32
}

// NewEngine creates a yield engine with a no-op emitter and the default
// insurance-fund split.
func NewEngine() *Engine {
	return &Engine{
		emitter:          events.NoopEmitter{},
		insuranceFundBps: DefaultInsuranceFundBps,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state EngineState) { e.state = state }

// SetLedger configures the currency capability.
func (e *Engine) SetLedger(ledger Ledger) { e.ledger = ledger }

// SetVaultProvider configures the resolver for external strategy vaults.
func (e *Engine) SetVaultProvider(p VaultProvider) { e.provider = p }

// SetTreasury configures the treasury address for platform yield shares.
func (e *Engine) SetTreasury(addr [20]byte) { e.treasury = addr }

// SetInsuranceFund configures the insurance fund address.
func (e *Engine) SetInsuranceFund(addr [20]byte) { e.insuranceFund = addr }

// SetSettlement configures where withdrawn principal is forwarded, normally
// the escrow vault.
func (e *Engine) SetSettlement(addr [20]byte) { e.settlement = addr }

// SetInsuranceFundBps overrides the insurance slice of platform yield shares.
func (e *Engine) SetInsuranceFundBps(bps uint32) {
	if bps <= 10_000 {
		e.insuranceFundBps = bps
	}
}

// SetPauses configures the pause view guarding engine operations.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetRoles configures the role capability for privileged operations.
func (e *Engine) SetRoles(r common.RoleView) { e.roles = r }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(yieldEvent{evt: event})
}

func (e *Engine) ensureConfigured() error {
	if e == nil || e.state == nil {
		return fmt.Errorf("yield engine: state not configured")
	}
	if e.ledger == nil {
		return fmt.Errorf("yield engine: ledger not configured")
	}
	if e.provider == nil {
		return fmt.Errorf("yield engine: vault provider not configured")
	}
	return nil
}

func (e *Engine) requireAdmin(caller [20]byte) error {
	if e.roles == nil || !e.roles.HasRole(caller, common.RoleAdmin) {
		return fmt.Errorf("yield: operation requires admin: %w", common.ErrUnauthorized)
	}
	return nil
}

func applyBps(amount *big.Int, bps uint32) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return out.Div(out, big.NewInt(bpsDenominator))
}

// RegisterStrategy records a new external strategy and returns it with its
// assigned index.
func (e *Engine) RegisterStrategy(protocol, depositToken, yieldToken string, apyBps uint32, tier RiskTier, caller [20]byte) (*Strategy, error) {
	if e == nil || e.state == nil {
		return nil, fmt.Errorf("yield engine: state not configured")
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	strategy := &Strategy{
		Protocol:     protocol,
		DepositToken: depositToken,
		YieldToken:   yieldToken,
		APYBps:       apyBps,
		Tier:         tier,
		Active:       true,
	}
	sanitized, err := SanitizeStrategy(strategy)
	if err != nil {
		return nil, fmt.Errorf("yield: %v: %w", err, common.ErrInvalidInput)
	}
	id, err := e.state.StrategyCreate(sanitized)
	if err != nil {
		return nil, err
	}
	sanitized.ID = id
	e.emit(NewStrategyRegisteredEvent(sanitized))
	return sanitized.Clone(), nil
}

// SetStrategyActive toggles a strategy's availability for new stakes.
func (e *Engine) SetStrategyActive(id uint64, active bool, caller [20]byte) error {
	if e == nil || e.state == nil {
		return fmt.Errorf("yield engine: state not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	strategy, ok, err := e.state.StrategyGet(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("yield: strategy %d: %w", id, common.ErrNotFound)
	}
	strategy.Active = active
	return e.state.StrategyPut(strategy)
}

// GetStrategy returns the strategy record for id.
func (e *Engine) GetStrategy(id uint64) (*Strategy, error) {
	if e == nil || e.state == nil {
		return nil, fmt.Errorf("yield engine: state not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	strategy, ok, err := e.state.StrategyGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("yield: strategy %d: %w", id, common.ErrNotFound)
	}
	return strategy.Clone(), nil
}

func (e *Engine) loadActiveStrategy(id uint64) (*Strategy, error) {
	strategy, ok, err := e.state.StrategyGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("yield: strategy %d: %w", id, common.ErrNotFound)
	}
	if !strategy.Active {
		return nil, fmt.Errorf("yield: strategy %d inactive: %w", id, common.ErrInvalidState)
	}
	return strategy, nil
}

// OpenStake stakes a rental's escrowed funds into the chosen strategies: the
// rent into the base strategy and, when a plus strategy is given, the
// landlord deposit into it. plusStrategyID zero means no plus leg. Principal
// moves from the settlement address into the yield custody vault before the
// external deposit; a failed deposit aborts the operation. Admin-only.
func (e *Engine) OpenStake(rentalID uint64, tenant, landlord [20]byte, amount, landlordDeposit *big.Int, startTime, endTime int64, baseStrategyID, plusStrategyID uint64, caller [20]byte) (*Stake, error) {
	if err := e.ensureConfigured(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	if _, exists, err := e.state.StakeGet(rentalID); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("yield: rental %d already staked: %w", rentalID, common.ErrAlreadyProcessed)
	}
	baseStrategy, err := e.loadActiveStrategy(baseStrategyID)
	if err != nil {
		return nil, err
	}
	var plusStrategy *Strategy
	if plusStrategyID != 0 {
		plusStrategy, err = e.loadActiveStrategy(plusStrategyID)
		if err != nil {
			return nil, err
		}
	}
	stake := &Stake{
		RentalID:        rentalID,
		Tenant:          tenant,
		Landlord:        landlord,
		BaseAmount:      cloneBigInt(amount),
		LandlordDeposit: cloneBigInt(landlordDeposit),
		StartTime:       startTime,
		EndTime:         endTime,
		BaseStrategyID:  baseStrategyID,
		PlusStrategyID:  plusStrategyID,
		AccruedBase:     big.NewInt(0),
		AccruedPlus:     big.NewInt(0),
		Active:          true,
	}
	sanitized, err := SanitizeStake(stake)
	if err != nil {
		return nil, fmt.Errorf("yield: %v: %w", err, common.ErrInvalidInput)
	}
	custody, err := e.state.YieldVaultAddress()
	if err != nil {
		return nil, err
	}
	principal := cloneBigInt(sanitized.BaseAmount)
	if plusStrategy != nil {
		principal.Add(principal, sanitized.LandlordDeposit)
	}
	baseVault, err := e.provider.StrategyVault(baseStrategyID)
	if err != nil {
		return nil, err
	}
	var plusVault StrategyVault
	if plusStrategy != nil && sanitized.LandlordDeposit.Sign() > 0 {
		plusVault, err = e.provider.StrategyVault(plusStrategyID)
		if err != nil {
			return nil, err
		}
	}
	if err := e.ledger.Transfer(e.settlement, custody, principal); err != nil {
		return nil, err
	}
	if err := baseVault.Deposit(sanitized.BaseAmount); err != nil {
		// Custody just received the principal, so the reversal cannot fail
		// on funds.
		_ = e.ledger.Transfer(custody, e.settlement, principal)
		return nil, err
	}
	if plusVault != nil {
		if err := plusVault.Deposit(sanitized.LandlordDeposit); err != nil {
			if _, werr := baseVault.Withdraw(sanitized.BaseAmount); werr == nil {
				_ = e.ledger.Transfer(custody, e.settlement, principal)
			}
			return nil, err
		}
	}
	if err := e.state.StakePut(sanitized); err != nil {
		return nil, err
	}
	e.emit(NewStakedEvent(sanitized, baseStrategy, plusStrategy))
	return sanitized.Clone(), nil
}

// GetStake returns the stake opened for a rental.
func (e *Engine) GetStake(rentalID uint64) (*Stake, error) {
	if e == nil || e.state == nil {
		return nil, fmt.Errorf("yield engine: state not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	stake, ok, err := e.state.StakeGet(rentalID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("yield: rental %d has no stake: %w", rentalID, common.ErrNotFound)
	}
	return stake.Clone(), nil
}

// accrualWindow clamps the accrual interval to the stake term.
func accrualWindow(stake *Stake, now int64) int64 {
	end := now
	if end > stake.EndTime {
		end = stake.EndTime
	}
	elapsed := end - stake.StartTime
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// linearYield computes amount*apyBps*elapsed/(10000*secondsPerYear) with
// truncating division, in that exact order.
func linearYield(amount *big.Int, apyBps uint32, elapsed int64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || elapsed <= 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(apyBps)))
	out.Mul(out, big.NewInt(elapsed))
	return out.Div(out, new(big.Int).Mul(big.NewInt(bpsDenominator), big.NewInt(secondsPerYear)))
}

// EstimateYield computes the base and plus yield accrued by now. Read-only:
// it never mutates the stake. Accrual is clamped to the stake term, so any
// time past EndTime estimates the same as EndTime.
func (e *Engine) EstimateYield(rentalID uint64, now int64) (*big.Int, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, fmt.Errorf("yield engine: state not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.estimateLocked(rentalID, now)
}

func (e *Engine) estimateLocked(rentalID uint64, now int64) (*big.Int, *big.Int, error) {
	stake, ok, err := e.state.StakeGet(rentalID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("yield: rental %d has no stake: %w", rentalID, common.ErrNotFound)
	}
	baseStrategy, ok, err := e.state.StrategyGet(stake.BaseStrategyID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("yield: strategy %d: %w", stake.BaseStrategyID, common.ErrNotFound)
	}
	elapsed := accrualWindow(stake, now)
	baseYield := linearYield(stake.BaseAmount, baseStrategy.APYBps, elapsed)
	plusYield := big.NewInt(0)
	if stake.HasPlus() {
		plusStrategy, ok, err := e.state.StrategyGet(stake.PlusStrategyID)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, fmt.Errorf("yield: strategy %d: %w", stake.PlusStrategyID, common.ErrNotFound)
		}
		plusYield = linearYield(stake.LandlordDeposit, plusStrategy.APYBps, elapsed)
	}
	return baseYield, plusYield, nil
}

// Collect accrues any yield earned since the previous collection and
// distributes it: base yield 70/10/20 between tenant, landlord and platform,
// plus yield 60/10/30. The platform share is whatever remains after the party
// shares, so rounding dust stays with the platform; it is then split between
// the insurance fund and the treasury. Accrued counters never decrease.
// Admin-only.
func (e *Engine) Collect(rentalID uint64, caller [20]byte, now int64) error {
	if err := e.ensureConfigured(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	return e.collectLocked(rentalID, now)
}

func (e *Engine) collectLocked(rentalID uint64, now int64) error {
	stake, ok, err := e.state.StakeGet(rentalID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("yield: rental %d has no stake: %w", rentalID, common.ErrNotFound)
	}
	if !stake.Active {
		return fmt.Errorf("yield: stake for rental %d inactive: %w", rentalID, common.ErrInvalidState)
	}
	baseTotal, plusTotal, err := e.estimateLocked(rentalID, now)
	if err != nil {
		return err
	}
	baseDelta := new(big.Int).Sub(baseTotal, stake.AccruedBase)
	if baseDelta.Sign() < 0 {
		baseDelta.SetInt64(0)
	}
	plusDelta := new(big.Int).Sub(plusTotal, stake.AccruedPlus)
	if plusDelta.Sign() < 0 {
		plusDelta.SetInt64(0)
	}
	if err := e.distribute(stake, baseDelta, baseTenantBps, baseLandlordBps); err != nil {
		return err
	}
	if err := e.distribute(stake, plusDelta, plusTenantBps, plusLandlordBps); err != nil {
		return err
	}
	stake.AccruedBase = new(big.Int).Add(stake.AccruedBase, baseDelta)
	stake.AccruedPlus = new(big.Int).Add(stake.AccruedPlus, plusDelta)
	if err := e.state.StakePut(stake); err != nil {
		return err
	}
	baseStrategy, ok, err := e.state.StrategyGet(stake.BaseStrategyID)
	if err == nil && ok {
		metrics.Marketplace().ObserveYieldCollected(baseStrategy.Tier.String())
	}
	e.emit(NewCollectedEvent(stake, baseDelta, plusDelta))
	return nil
}

// distribute mints a yield delta to the three beneficiaries using the given
// party shares; the platform remainder is split insurance/treasury.
func (e *Engine) distribute(stake *Stake, delta *big.Int, tenantBps, landlordBps uint32) error {
	if delta == nil || delta.Sign() <= 0 {
		return nil
	}
	tenantShare := applyBps(delta, tenantBps)
	landlordShare := applyBps(delta, landlordBps)
	platformShare := new(big.Int).Sub(delta, tenantShare)
	platformShare.Sub(platformShare, landlordShare)
	insurance := applyBps(platformShare, e.insuranceFundBps)
	treasury := new(big.Int).Sub(platformShare, insurance)
	if err := e.ledger.Mint(stake.Tenant, tenantShare); err != nil {
		return err
	}
	if err := e.ledger.Mint(stake.Landlord, landlordShare); err != nil {
		return err
	}
	if err := e.ledger.Mint(e.insuranceFund, insurance); err != nil {
		return err
	}
	return e.ledger.Mint(e.treasury, treasury)
}

// EndStake performs a final collection, withdraws the principal from the
// external strategies and forwards it to the settlement address, then marks
// the stake inactive. Ending an inactive stake fails. Admin-only.
func (e *Engine) EndStake(rentalID uint64, caller [20]byte, now int64) error {
	if err := e.ensureConfigured(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	stake, ok, err := e.state.StakeGet(rentalID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("yield: rental %d has no stake: %w", rentalID, common.ErrNotFound)
	}
	if !stake.Active {
		return fmt.Errorf("yield: stake for rental %d already ended: %w", rentalID, common.ErrAlreadyProcessed)
	}
	if err := e.collectLocked(rentalID, now); err != nil {
		return err
	}
	// Re-load: collection updated the accrued counters.
	stake, _, err = e.state.StakeGet(rentalID)
	if err != nil {
		return err
	}
	baseVault, err := e.provider.StrategyVault(stake.BaseStrategyID)
	if err != nil {
		return err
	}
	baseOut, err := baseVault.Withdraw(stake.BaseAmount)
	if err != nil {
		return err
	}
	// Forward what the venues actually returned, not the recorded principal:
	// a venue may settle short and custody must never overdraw.
	principal := cloneBigInt(baseOut)
	if stake.HasPlus() {
		plusVault, err := e.provider.StrategyVault(stake.PlusStrategyID)
		if err != nil {
			return err
		}
		plusOut, err := plusVault.Withdraw(stake.LandlordDeposit)
		if err != nil {
			return err
		}
		principal.Add(principal, plusOut)
	}
	custody, err := e.state.YieldVaultAddress()
	if err != nil {
		return err
	}
	if err := e.ledger.Transfer(custody, e.settlement, principal); err != nil {
		return err
	}
	stake.Active = false
	if err := e.state.StakePut(stake); err != nil {
		return err
	}
	e.emit(NewStakeEndedEvent(stake, principal))
	return nil
}
