package escrow

import (
	"fmt"
	"math/big"
	"sync"

	"rentchain/core/events"
	"rentchain/core/types"
	"rentchain/native/common"
	"rentchain/observability/metrics"
)

const moduleName = "escrow"

const (
	bpsDenominator int64 = 10_000

	// Landlord-default penalty: 30% of the rental amount, taken from the
	// landlord deposit.
	defaultPenaltyBps uint32 = 3_000
	// Tenant compensation is an approximated third of the penalty. Recorded
	// settlements depend on the 3333/10000 ratio exactly; do not replace it
	// with an exact third.
	tenantCompensationBps uint32 = 3_333

	// DefaultInsuranceFundBps is the slice of every platform share routed to
	// the insurance fund; the rest goes to the treasury.
	DefaultInsuranceFundBps uint32 = 500
)

// Ledger is the currency transfer capability consumed by the engine.
type Ledger interface {
	Transfer(from, to [20]byte, amount *big.Int) error
}

// EngineState abstracts record persistence for escrows and disputes.
type EngineState interface {
	EscrowCreate(*Escrow) (uint64, error)
	EscrowGet(id uint64) (*Escrow, bool, error)
	EscrowPut(*Escrow) error
	EscrowForRental(rentalID uint64) (uint64, bool, error)
	SetEscrowForRental(rentalID, escrowID uint64) error
	DisputeCreate(*Dispute) (uint64, error)
	DisputeGet(id uint64) (*Dispute, bool, error)
	DisputePut(*Dispute) error
	DisputeForEscrow(escrowID uint64) (uint64, bool, error)
	SetDisputeForEscrow(escrowID, disputeID uint64) error
	EscrowVaultAddress() ([20]byte, error)
}

// Engine manages escrow custody for rental agreements: funding, completion,
// cancellation, dispute resolution payouts and the landlord-default penalty
// path. Every public operation runs under the engine mutex; time-gated logic
// takes the current time from the caller.
type Engine struct {
	mu               sync.Mutex
	state            EngineState
	ledger           Ledger
	emitter          events.Emitter
	pauses           common.PauseView
	roles            common.RoleView
	treasury         [20]byte
	insuranceFund    [20]byte
	insuranceFundBps uint32
}

// NewEngine creates an escrow engine with a no-op emitter and the default
// insurance-fund split.
func NewEngine() *Engine {
	return &Engine{
		emitter:          events.NoopEmitter{},
		insuranceFundBps: DefaultInsuranceFundBps,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state EngineState) { e.state = state }

// SetLedger configures the currency transfer capability.
func (e *Engine) SetLedger(ledger Ledger) { e.ledger = ledger }

// SetTreasury configures the address receiving the treasury slice of
// platform shares.
func (e *Engine) SetTreasury(addr [20]byte) { e.treasury = addr }

// SetInsuranceFund configures the address receiving the insurance slice of
// platform shares.
func (e *Engine) SetInsuranceFund(addr [20]byte) { e.insuranceFund = addr }

// SetInsuranceFundBps overrides the insurance-fund slice of platform shares.
func (e *Engine) SetInsuranceFundBps(bps uint32) {
	if bps <= 10_000 {
		e.insuranceFundBps = bps
	}
}

// SetPauses configures the pause view guarding engine operations.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetRoles configures the role capability used for arbitrator and admin
// checks.
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
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) ensureConfigured() error {
	if e == nil || e.state == nil {
		return fmt.Errorf("escrow engine: state not configured")
	}
	if e.ledger == nil {
		return fmt.Errorf("escrow engine: ledger not configured")
	}
	return nil
}

func (e *Engine) loadEscrow(id uint64) (*Escrow, error) {
	esc, ok, err := e.state.EscrowGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("escrow: record %d: %w", id, common.ErrNotFound)
	}
	return esc, nil
}

func applyBps(amount *big.Int, bps uint32) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return out.Div(out, big.NewInt(bpsDenominator))
}

// CreateEscrow opens custody for a rental agreement. At most one escrow may
// exist per rental.
func (e *Engine) CreateEscrow(rentalID uint64, tenant, landlord [20]byte, rentalAmount, landlordDeposit *big.Int, now int64) (*Escrow, error) {
	if err := e.ensureConfigured(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists, err := e.state.EscrowForRental(rentalID); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("escrow: rental %d already has an escrow: %w", rentalID, common.ErrAlreadyProcessed)
	}
	esc := &Escrow{
		RentalID:        rentalID,
		Tenant:          tenant,
		Landlord:        landlord,
		RentalAmount:    cloneBigInt(rentalAmount),
		LandlordDeposit: cloneBigInt(landlordDeposit),
		TenantFunded:    big.NewInt(0),
		LandlordFunded:  big.NewInt(0),
		Status:          StatusCreated,
		CreatedAt:       now,
	}
	sanitized, err := SanitizeEscrow(esc)
	if err != nil {
		return nil, fmt.Errorf("escrow: %v: %w", err, common.ErrInvalidInput)
	}
	id, err := e.state.EscrowCreate(sanitized)
	if err != nil {
		return nil, err
	}
	sanitized.ID = id
	if err := e.state.SetEscrowForRental(rentalID, id); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(sanitized))
	return sanitized.Clone(), nil
}

// Get returns the escrow record for id.
func (e *Engine) Get(id uint64) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, fmt.Errorf("escrow engine: state not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	return esc.Clone(), nil
}

// GetForRental returns the escrow attached to a rental, if any.
func (e *Engine) GetForRental(rentalID uint64) (*Escrow, error) {
	if e == nil || e.state == nil {
		return nil, fmt.Errorf("escrow engine: state not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok, err := e.state.EscrowForRental(rentalID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("escrow: rental %d has no escrow: %w", rentalID, common.ErrNotFound)
	}
	esc, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	return esc.Clone(), nil
}

// Fund records a party's deposit into the escrow vault. The tenant pays the
// rental amount, the landlord the deposit. The first successful deposit moves
// the escrow to Funded even though the counterparty may not have paid yet;
// TenantFunded/LandlordFunded track what each party actually moved, and a
// cancellation refunds exactly those amounts.
func (e *Engine) Fund(escrowID uint64, caller [20]byte) error {
	if err := e.ensureConfigured(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	esc, err := e.loadEscrow(escrowID)
	if err != nil {
		return err
	}
	if esc.Status != StatusCreated && esc.Status != StatusFunded {
		return fmt.Errorf("escrow: cannot fund in status %s: %w", esc.Status, common.ErrInvalidState)
	}
	var amount *big.Int
	switch caller {
	case esc.Tenant:
		if esc.TenantFunded.Sign() > 0 {
			return fmt.Errorf("escrow: tenant already funded: %w", common.ErrAlreadyProcessed)
		}
		amount = cloneBigInt(esc.RentalAmount)
	case esc.Landlord:
		if esc.LandlordFunded.Sign() > 0 {
			return fmt.Errorf("escrow: landlord already funded: %w", common.ErrAlreadyProcessed)
		}
		amount = cloneBigInt(esc.LandlordDeposit)
	default:
		return fmt.Errorf("escrow: only a party may fund: %w", common.ErrUnauthorized)
	}
	if amount.Sign() == 0 {
		return fmt.Errorf("escrow: nothing to fund for caller: %w", common.ErrInvalidInput)
	}
	vault, err := e.state.EscrowVaultAddress()
	if err != nil {
		return err
	}
	if err := e.ledger.Transfer(caller, vault, amount); err != nil {
		return err
	}
	if caller == esc.Tenant {
		esc.TenantFunded = amount
	} else {
		esc.LandlordFunded = amount
	}
	if esc.Status == StatusCreated {
		esc.Status = StatusFunded
		metrics.Marketplace().ObserveEscrowFunded()
	}
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	e.emit(NewFundedEvent(esc))
	return nil
}

// Complete marks a funded, undisputed escrow as completed. Payout happens via
// Claim.
func (e *Engine) Complete(escrowID uint64, caller [20]byte) error {
	if err := e.ensureConfigured(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	esc, err := e.loadEscrow(escrowID)
	if err != nil {
		return err
	}
	if esc.Status != StatusFunded {
		return fmt.Errorf("escrow: cannot complete in status %s: %w", esc.Status, common.ErrInvalidState)
	}
	if caller != esc.Tenant && caller != esc.Landlord && !e.isAdmin(caller) {
		return fmt.Errorf("escrow: completion requires a party or admin: %w", common.ErrUnauthorized)
	}
	if _, disputed, err := e.state.DisputeForEscrow(escrowID); err != nil {
		return err
	} else if disputed {
		return fmt.Errorf("escrow: dispute attached, cannot complete: %w", common.ErrInvalidState)
	}
	esc.Status = StatusCompleted
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	e.emit(NewCompletedEvent(esc))
	return nil
}

// Cancel unwinds an escrow before settlement, refunding each party exactly
// what it funded. Penalty logic is deliberately bypassed on this path.
func (e *Engine) Cancel(escrowID uint64, caller [20]byte) error {
	if err := e.ensureConfigured(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	esc, err := e.loadEscrow(escrowID)
	if err != nil {
		return err
	}
	if esc.Status != StatusCreated && esc.Status != StatusFunded {
		return fmt.Errorf("escrow: cannot cancel in status %s: %w", esc.Status, common.ErrInvalidState)
	}
	if caller != esc.Tenant && caller != esc.Landlord && !e.isAdmin(caller) {
		return fmt.Errorf("escrow: cancellation requires a party or admin: %w", common.ErrUnauthorized)
	}
	vault, err := e.state.EscrowVaultAddress()
	if err != nil {
		return err
	}
	if err := e.ledger.Transfer(vault, esc.Tenant, esc.TenantFunded); err != nil {
		return err
	}
	if err := e.ledger.Transfer(vault, esc.Landlord, esc.LandlordFunded); err != nil {
		return err
	}
	esc.TenantFunded = big.NewInt(0)
	esc.LandlordFunded = big.NewInt(0)
	esc.Status = StatusCancelled
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(esc))
	return nil
}

// Claim pays out a party's entitlement after completion or dispute
// resolution. Each party may claim exactly once; after both have claimed the
// platform share is swept into the insurance fund and treasury.
func (e *Engine) Claim(escrowID uint64, caller [20]byte) (*big.Int, error) {
	if err := e.ensureConfigured(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	esc, err := e.loadEscrow(escrowID)
	if err != nil {
		return nil, err
	}
	if esc.Status != StatusCompleted && esc.Status != StatusResolved {
		return nil, fmt.Errorf("escrow: cannot claim in status %s: %w", esc.Status, common.ErrInvalidState)
	}
	var isTenant bool
	switch caller {
	case esc.Tenant:
		if esc.TenantClaimed {
			return nil, fmt.Errorf("escrow: tenant already claimed: %w", common.ErrAlreadyProcessed)
		}
		isTenant = true
	case esc.Landlord:
		if esc.LandlordClaimed {
			return nil, fmt.Errorf("escrow: landlord already claimed: %w", common.ErrAlreadyProcessed)
		}
	default:
		return nil, fmt.Errorf("escrow: only a party may claim: %w", common.ErrUnauthorized)
	}
	vault, err := e.state.EscrowVaultAddress()
	if err != nil {
		return nil, err
	}

	payout := big.NewInt(0)
	if esc.Status == StatusCompleted {
		// Normal completion: the landlord collects rent plus deposit; the
		// tenant claim is informational only.
		if !isTenant {
			payout = esc.TotalFunds()
		}
	} else {
		dispute, err := e.resolvedDispute(escrowID)
		if err != nil {
			return nil, err
		}
		total := esc.TotalFunds()
		if isTenant {
			payout = applyBps(total, dispute.TenantShareBps)
		} else {
			payout = applyBps(total, dispute.LandlordShareBps)
		}
	}
	if payout.Sign() > 0 {
		if err := e.ledger.Transfer(vault, caller, payout); err != nil {
			return nil, err
		}
	}
	if isTenant {
		esc.TenantClaimed = true
		metrics.Marketplace().ObserveClaimPaid("tenant")
	} else {
		esc.LandlordClaimed = true
		metrics.Marketplace().ObserveClaimPaid("landlord")
	}
	if esc.TenantClaimed && esc.LandlordClaimed && !esc.PlatformPaid && esc.Status == StatusResolved {
		if err := e.sweepPlatformShare(esc, vault); err != nil {
			return nil, err
		}
	}
	if err := e.state.EscrowPut(esc); err != nil {
		return nil, err
	}
	e.emit(NewClaimedEvent(esc, caller, payout))
	return payout, nil
}

// sweepPlatformShare pays whatever remains of the escrow total after both
// party payouts, so rounding dust lands with the platform, split between the
// insurance fund and the treasury.
func (e *Engine) sweepPlatformShare(esc *Escrow, vault [20]byte) error {
	dispute, err := e.resolvedDispute(esc.ID)
	if err != nil {
		return err
	}
	total := esc.TotalFunds()
	landlordPaid := applyBps(total, dispute.LandlordShareBps)
	tenantPaid := applyBps(total, dispute.TenantShareBps)
	platform := new(big.Int).Sub(total, landlordPaid)
	platform.Sub(platform, tenantPaid)
	if platform.Sign() <= 0 {
		esc.PlatformPaid = true
		return nil
	}
	insurance := applyBps(platform, e.insuranceFundBps)
	treasury := new(big.Int).Sub(platform, insurance)
	if err := e.ledger.Transfer(vault, e.insuranceFund, insurance); err != nil {
		return err
	}
	if err := e.ledger.Transfer(vault, e.treasury, treasury); err != nil {
		return err
	}
	esc.PlatformPaid = true
	metrics.Marketplace().ObserveClaimPaid("platform")
	return nil
}

// LandlordDefault settles a funded escrow against a defaulting landlord. A
// fixed 30% of the rental amount is taken from the landlord deposit as a
// penalty; roughly a third of it compensates the tenant on top of a full rent
// refund, the rest feeds the insurance fund and treasury. Any deposit left
// over returns to the landlord. Admin-only.
func (e *Engine) LandlordDefault(escrowID uint64, caller [20]byte) error {
	if err := e.ensureConfigured(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.isAdmin(caller) {
		return fmt.Errorf("escrow: landlord default requires admin: %w", common.ErrUnauthorized)
	}
	esc, err := e.loadEscrow(escrowID)
	if err != nil {
		return err
	}
	if esc.Status != StatusFunded {
		return fmt.Errorf("escrow: cannot apply default in status %s: %w", esc.Status, common.ErrInvalidState)
	}
	penalty := applyBps(esc.RentalAmount, defaultPenaltyBps)
	if esc.LandlordDeposit.Cmp(penalty) < 0 {
		return fmt.Errorf("escrow: landlord deposit %s below penalty %s: %w", esc.LandlordDeposit, penalty, common.ErrInsufficientFunds)
	}
	vault, err := e.state.EscrowVaultAddress()
	if err != nil {
		return err
	}
	// Fixed computation order: compensation first, then the insurance split
	// of the remainder, so reference numbers reproduce bit-for-bit.
	compensation := applyBps(penalty, tenantCompensationBps)
	tenantTotal := new(big.Int).Add(cloneBigInt(esc.RentalAmount), compensation)
	penaltyRemainder := new(big.Int).Sub(penalty, compensation)
	insurance := applyBps(penaltyRemainder, e.insuranceFundBps)
	treasury := new(big.Int).Sub(penaltyRemainder, insurance)
	depositLeftover := new(big.Int).Sub(cloneBigInt(esc.LandlordDeposit), penalty)

	if err := e.ledger.Transfer(vault, esc.Tenant, tenantTotal); err != nil {
		return err
	}
	if err := e.ledger.Transfer(vault, e.insuranceFund, insurance); err != nil {
		return err
	}
	if err := e.ledger.Transfer(vault, e.treasury, treasury); err != nil {
		return err
	}
	if err := e.ledger.Transfer(vault, esc.Landlord, depositLeftover); err != nil {
		return err
	}
	// The default path settles everything; claims are spent.
	esc.TenantClaimed = true
	esc.LandlordClaimed = true
	esc.PlatformPaid = true
	esc.Status = StatusCompleted
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	metrics.Marketplace().ObserveRentalSettled("landlord_default")
	e.emit(NewLandlordDefaultEvent(esc, penalty, compensation))
	return nil
}

func (e *Engine) isAdmin(addr [20]byte) bool {
	return e.roles != nil && e.roles.HasRole(addr, common.RoleAdmin)
}

func (e *Engine) resolvedDispute(escrowID uint64) (*Dispute, error) {
	disputeID, ok, err := e.state.DisputeForEscrow(escrowID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("escrow: no dispute for escrow %d: %w", escrowID, common.ErrNotFound)
	}
	dispute, ok, err := e.state.DisputeGet(disputeID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("escrow: dispute %d: %w", disputeID, common.ErrNotFound)
	}
	if !dispute.Resolved {
		return nil, fmt.Errorf("escrow: dispute %d not resolved: %w", disputeID, common.ErrInvalidState)
	}
	return dispute, nil
}
