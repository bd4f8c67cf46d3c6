package rental

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"rentchain/core/events"
	"rentchain/core/types"
	"rentchain/native/common"
	"rentchain/observability/metrics"
)

const moduleName = "rental"

// Default fee schedule, overridable via the setters below.
const (
	DefaultPlatformFeeBps uint32 = 300
	DefaultTransferFeeBps uint32 = 200
)

// Ledger is the currency transfer capability consumed by the engine. A failed
// transfer aborts the whole operation.
type Ledger interface {
	Transfer(from, to [20]byte, amount *big.Int) error
}

// EngineState abstracts record persistence for properties and agreements.
// Records are created under monotonically increasing identifiers assigned by
// the backend.
type EngineState interface {
	PropertyCreate(*Property) (uint64, error)
	PropertyGet(id uint64) (*Property, bool, error)
	PropertyPut(*Property) error
	RentalCreate(*Agreement) (uint64, error)
	RentalGet(id uint64) (*Agreement, bool, error)
	RentalPut(*Agreement) error
	ActiveRentalForProperty(propertyID uint64) (uint64, bool, error)
	SetActiveRentalForProperty(propertyID, rentalID uint64) error
	ClearActiveRentalForProperty(propertyID uint64) error
	LandlordPropertyIndexAdd(addr [20]byte, propertyID uint64) error
	LandlordProperties(addr [20]byte) ([]uint64, error)
	TenantRentalIndexAdd(addr [20]byte, rentalID uint64) error
	TenantRentals(addr [20]byte) ([]uint64, error)
	RentalVaultAddress() ([20]byte, error)
}

// Engine drives the property registry and the rental agreement state machine.
// Every public operation runs under the engine mutex and takes the current
// time from the caller; the engine never reads a clock.
type Engine struct {
	mu             sync.Mutex
	state          EngineState
	ledger         Ledger
	emitter        events.Emitter
	pauses         common.PauseView
	roles          common.RoleView
	treasury       [20]byte
	platformFeeBps uint32
	transferFeeBps uint32
}

// NewEngine creates a rental engine with a no-op emitter and the default fee
// schedule.
func NewEngine() *Engine {
	return &Engine{
		emitter:        events.NoopEmitter{},
		platformFeeBps: DefaultPlatformFeeBps,
		transferFeeBps: DefaultTransferFeeBps,
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state EngineState) { e.state = state }

// SetLedger configures the currency transfer capability.
func (e *Engine) SetLedger(ledger Ledger) { e.ledger = ledger }

// SetTreasury configures the address receiving platform fees.
func (e *Engine) SetTreasury(addr [20]byte) { e.treasury = addr }

// SetPauses configures the pause view guarding engine operations.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetRoles configures the role capability used for privileged transitions.
func (e *Engine) SetRoles(r common.RoleView) { e.roles = r }

// SetPlatformFeeBps overrides the booking platform fee.
func (e *Engine) SetPlatformFeeBps(bps uint32) {
	if bps <= 10_000 {
		e.platformFeeBps = bps
	}
}

// SetTransferFeeBps overrides the secondary-market transfer fee.
func (e *Engine) SetTransferFeeBps(bps uint32) {
	if bps <= 10_000 {
		e.transferFeeBps = bps
	}
}

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
	e.emitter.Emit(rentalEvent{evt: event})
}

func (e *Engine) ensureConfigured() error {
	if e == nil || e.state == nil {
		return fmt.Errorf("rental engine: state not configured")
	}
	if e.ledger == nil {
		return fmt.Errorf("rental engine: ledger not configured")
	}
	return nil
}

func (e *Engine) isAdmin(addr [20]byte) bool {
	return e.roles != nil && e.roles.HasRole(addr, common.RoleAdmin)
}

func (e *Engine) loadProperty(id uint64) (*Property, error) {
	prop, ok, err := e.state.PropertyGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("rental: property %d: %w", id, common.ErrNotFound)
	}
	return prop, nil
}

func (e *Engine) loadAgreement(id uint64) (*Agreement, error) {
	agreement, ok, err := e.state.RentalGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("rental: agreement %d: %w", id, common.ErrNotFound)
	}
	return agreement, nil
}

// ListProperty registers a new property owned by owner. The metadata URI is
// stored opaquely alongside its keccak256 hash; the engine never resolves it.
func (e *Engine) ListProperty(owner [20]byte, location string, pricePerMonth *big.Int, minMonths, maxMonths uint64, depositBps uint32, metadataURI string, now int64) (*Property, error) {
	if err := e.ensureConfigured(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if owner == ([20]byte{}) {
		return nil, fmt.Errorf("rental: owner required: %w", common.ErrInvalidInput)
	}
	prop := &Property{
		Owner:             owner,
		Location:          strings.TrimSpace(location),
		PricePerMonth:     cloneBigInt(pricePerMonth),
		MinDurationMonths: minMonths,
		MaxDurationMonths: maxMonths,
		DepositBps:        depositBps,
		Available:         true,
		MetadataURI:       strings.TrimSpace(metadataURI),
		CreatedAt:         now,
	}
	if prop.MetadataURI != "" {
		prop.MetaHash = ethcrypto.Keccak256Hash([]byte(prop.MetadataURI))
	}
	sanitized, err := SanitizeProperty(prop)
	if err != nil {
		return nil, fmt.Errorf("rental: %v: %w", err, common.ErrInvalidInput)
	}
	id, err := e.state.PropertyCreate(sanitized)
	if err != nil {
		return nil, err
	}
	sanitized.ID = id
	if err := e.state.LandlordPropertyIndexAdd(owner, id); err != nil {
		return nil, err
	}
	e.emit(NewPropertyListedEvent(sanitized))
	return sanitized.Clone(), nil
}

// SetPropertyAvailability toggles the listing flag. Only the owner or an
// admin may do so, and never while an active rental holds the property.
func (e *Engine) SetPropertyAvailability(propertyID uint64, caller [20]byte, available bool) error {
	if err := e.ensureConfigured(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	prop, err := e.loadProperty(propertyID)
	if err != nil {
		return err
	}
	if caller != prop.Owner && !e.isAdmin(caller) {
		return fmt.Errorf("rental: caller is not the property owner: %w", common.ErrUnauthorized)
	}
	if _, held, err := e.state.ActiveRentalForProperty(propertyID); err != nil {
		return err
	} else if held && available {
		return fmt.Errorf("rental: property %d is held by an active rental: %w", propertyID, common.ErrInvalidState)
	}
	prop.Available = available
	return e.state.PropertyPut(prop)
}

// GetProperty returns the property record for id.
func (e *Engine) GetProperty(id uint64) (*Property, error) {
	if e == nil || e.state == nil {
		return nil, fmt.Errorf("rental engine: state not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	prop, err := e.loadProperty(id)
	if err != nil {
		return nil, err
	}
	return prop.Clone(), nil
}

// GetAgreement returns the rental agreement record for id.
func (e *Engine) GetAgreement(id uint64) (*Agreement, error) {
	if e == nil || e.state == nil {
		return nil, fmt.Errorf("rental engine: state not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	agreement, err := e.loadAgreement(id)
	if err != nil {
		return nil, err
	}
	return agreement.Clone(), nil
}

// LandlordProperties lists the property ids owned by addr.
func (e *Engine) LandlordProperties(addr [20]byte) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, fmt.Errorf("rental engine: state not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.LandlordProperties(addr)
}

// TenantRentals lists the rental ids booked by addr, including past tenancies.
func (e *Engine) TenantRentals(addr [20]byte) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, fmt.Errorf("rental engine: state not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.TenantRentals(addr)
}

// CalculateRentalPrice quotes the price breakdown for booking the property
// over [start, end) as seen at time now. Read-only.
func (e *Engine) CalculateRentalPrice(propertyID uint64, start, end, now int64) (*Quote, error) {
	if e == nil || e.state == nil {
		return nil, fmt.Errorf("rental engine: state not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	prop, err := e.loadProperty(propertyID)
	if err != nil {
		return nil, err
	}
	return buildQuote(prop, start, end, now, e.platformFeeBps)
}

// Book reserves the property for tenant over [start, end). The tenant pays
// the discounted price into the rental vault plus the platform fee to the
// treasury. At most one active rental may hold a property.
func (e *Engine) Book(propertyID uint64, tenant [20]byte, start, end int64, allowTransfer bool, now int64) (*Agreement, error) {
	if err := e.ensureConfigured(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	prop, err := e.loadProperty(propertyID)
	if err != nil {
		return nil, err
	}
	if !prop.Available {
		return nil, fmt.Errorf("rental: property %d is unavailable: %w", propertyID, common.ErrInvalidState)
	}
	if _, held, err := e.state.ActiveRentalForProperty(propertyID); err != nil {
		return nil, err
	} else if held {
		return nil, fmt.Errorf("rental: property %d already has an active rental: %w", propertyID, common.ErrInvalidState)
	}
	if tenant == prop.Owner {
		return nil, fmt.Errorf("rental: tenant cannot book their own property: %w", common.ErrInvalidInput)
	}
	quote, err := buildQuote(prop, start, end, now, e.platformFeeBps)
	if err != nil {
		return nil, err
	}
	vault, err := e.state.RentalVaultAddress()
	if err != nil {
		return nil, err
	}
	// The tenant pays rent and fee in one transfer so a shortfall on either
	// aborts before any funds move; the fee split from the vault cannot fail
	// once the total has landed.
	if err := e.ledger.Transfer(tenant, vault, quote.TotalPayment); err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(vault, e.treasury, quote.PlatformFee); err != nil {
		return nil, err
	}
	agreement := &Agreement{
		PropertyID:     propertyID,
		Landlord:       prop.Owner,
		Tenant:         tenant,
		StartDate:      start,
		EndDate:        end,
		BasePrice:      quote.BasePrice,
		FinalPrice:     quote.FinalPrice,
		Deposit:        quote.Deposit,
		DiscountBps:    quote.DiscountBps,
		State:          StateReserved,
		AllowTransfer:  allowTransfer,
		CancelDeadline: start - cancelWindowSecs,
		CreatedAt:      now,
	}
	sanitized, err := SanitizeAgreement(agreement)
	if err != nil {
		return nil, fmt.Errorf("rental: %v: %w", err, common.ErrInvalidInput)
	}
	id, err := e.state.RentalCreate(sanitized)
	if err != nil {
		return nil, err
	}
	sanitized.ID = id
	if err := e.state.SetActiveRentalForProperty(propertyID, id); err != nil {
		return nil, err
	}
	if err := e.state.TenantRentalIndexAdd(tenant, id); err != nil {
		return nil, err
	}
	prop.Available = false
	if err := e.state.PropertyPut(prop); err != nil {
		return nil, err
	}
	metrics.Marketplace().ObserveRentalBooked()
	e.emit(NewBookedEvent(sanitized))
	return sanitized.Clone(), nil
}

// Cancel tears down a reserved rental. The refund tier depends on how far
// ahead of the start date the cancellation lands; the remainder of the held
// funds compensates the landlord. Terminal for this rental.
func (e *Engine) Cancel(rentalID uint64, caller [20]byte, now int64) (*big.Int, error) {
	if err := e.ensureConfigured(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	agreement, err := e.loadAgreement(rentalID)
	if err != nil {
		return nil, err
	}
	if agreement.State != StateReserved {
		return nil, fmt.Errorf("rental: cannot cancel agreement in state %s: %w", agreement.State, common.ErrInvalidState)
	}
	if caller != agreement.Tenant && caller != agreement.Landlord {
		return nil, fmt.Errorf("rental: only a party to the agreement may cancel: %w", common.ErrUnauthorized)
	}
	vault, err := e.state.RentalVaultAddress()
	if err != nil {
		return nil, err
	}
	tier := refundBps(now, agreement.StartDate, agreement.CancelDeadline)
	refund := applyBps(agreement.FinalPrice, tier)
	remainder := new(big.Int).Sub(agreement.FinalPrice, refund)
	if err := e.ledger.Transfer(vault, agreement.Tenant, refund); err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(vault, agreement.Landlord, remainder); err != nil {
		return nil, err
	}
	agreement.State = StateCancelled
	if err := e.state.RentalPut(agreement); err != nil {
		return nil, err
	}
	if err := e.releaseProperty(agreement.PropertyID); err != nil {
		return nil, err
	}
	metrics.Marketplace().ObserveRentalCancelled()
	e.emit(NewCancelledEvent(agreement, refund))
	return refund, nil
}

// Activate moves a reserved rental into its active term once the start date
// has been reached. A party to the agreement or an admin may trigger it.
func (e *Engine) Activate(rentalID uint64, caller [20]byte, now int64) error {
	if err := e.ensureConfigured(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	agreement, err := e.loadAgreement(rentalID)
	if err != nil {
		return err
	}
	if agreement.State != StateReserved {
		return fmt.Errorf("rental: cannot activate agreement in state %s: %w", agreement.State, common.ErrInvalidState)
	}
	if caller != agreement.Tenant && caller != agreement.Landlord && !e.isAdmin(caller) {
		return fmt.Errorf("rental: activation requires a party or admin: %w", common.ErrUnauthorized)
	}
	if now < agreement.StartDate {
		return fmt.Errorf("rental: start date not reached: %w", common.ErrInvalidState)
	}
	agreement.State = StateActive
	if err := e.state.RentalPut(agreement); err != nil {
		return err
	}
	e.emit(NewActivatedEvent(agreement))
	return nil
}

// Complete settles an active rental once the end date has elapsed, paying the
// held rent to the landlord and releasing the property.
func (e *Engine) Complete(rentalID uint64, caller [20]byte, now int64) error {
	if err := e.ensureConfigured(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	agreement, err := e.loadAgreement(rentalID)
	if err != nil {
		return err
	}
	if agreement.State != StateActive {
		return fmt.Errorf("rental: cannot complete agreement in state %s: %w", agreement.State, common.ErrInvalidState)
	}
	if caller != agreement.Tenant && caller != agreement.Landlord && !e.isAdmin(caller) {
		return fmt.Errorf("rental: completion requires a party or admin: %w", common.ErrUnauthorized)
	}
	if now < agreement.EndDate {
		return fmt.Errorf("rental: end date not reached: %w", common.ErrInvalidState)
	}
	vault, err := e.state.RentalVaultAddress()
	if err != nil {
		return err
	}
	if err := e.ledger.Transfer(vault, agreement.Landlord, agreement.FinalPrice); err != nil {
		return err
	}
	agreement.State = StateCompleted
	if err := e.state.RentalPut(agreement); err != nil {
		return err
	}
	if err := e.releaseProperty(agreement.PropertyID); err != nil {
		return err
	}
	metrics.Marketplace().ObserveRentalSettled("completed")
	e.emit(NewCompletedEvent(agreement))
	return nil
}

// ReportDispute flags the agreement as disputed. Resolution happens in the
// escrow module; the property stays held until the dispute settles.
func (e *Engine) ReportDispute(rentalID uint64, caller [20]byte) error {
	if err := e.ensureConfigured(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	agreement, err := e.loadAgreement(rentalID)
	if err != nil {
		return err
	}
	if agreement.State != StateReserved && agreement.State != StateActive {
		return fmt.Errorf("rental: cannot dispute agreement in state %s: %w", agreement.State, common.ErrInvalidState)
	}
	if caller != agreement.Tenant && caller != agreement.Landlord {
		return fmt.Errorf("rental: only a party to the agreement may dispute: %w", common.ErrUnauthorized)
	}
	agreement.State = StateDisputed
	if err := e.state.RentalPut(agreement); err != nil {
		return err
	}
	metrics.Marketplace().ObserveRentalSettled("disputed")
	e.emit(NewRentalDisputedEvent(agreement))
	return nil
}

// Transfer reassigns the tenancy to a buyer on the secondary market. The
// buyer pays the asking price; a fixed fee goes to the platform treasury and
// the remainder to the selling tenant.
func (e *Engine) Transfer(rentalID uint64, newTenant [20]byte, price *big.Int, caller [20]byte) error {
	if err := e.ensureConfigured(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	agreement, err := e.loadAgreement(rentalID)
	if err != nil {
		return err
	}
	if agreement.State != StateReserved && agreement.State != StateActive {
		return fmt.Errorf("rental: cannot transfer agreement in state %s: %w", agreement.State, common.ErrInvalidState)
	}
	if !agreement.AllowTransfer {
		return fmt.Errorf("rental: agreement does not allow transfer: %w", common.ErrInvalidState)
	}
	if caller != agreement.Tenant {
		return fmt.Errorf("rental: only the current tenant may transfer: %w", common.ErrUnauthorized)
	}
	if newTenant == ([20]byte{}) || newTenant == agreement.Tenant {
		return fmt.Errorf("rental: invalid transfer recipient: %w", common.ErrInvalidInput)
	}
	if price == nil || price.Sign() <= 0 {
		return fmt.Errorf("rental: transfer price must be positive: %w", common.ErrInvalidInput)
	}
	fee := applyBps(price, e.transferFeeBps)
	// The buyer pays the full price in one transfer; the seller then remits
	// the fee out of the proceeds, which cannot fail once the price has
	// landed. A buyer shortfall therefore aborts before any funds move.
	if err := e.ledger.Transfer(newTenant, agreement.Tenant, price); err != nil {
		return err
	}
	if err := e.ledger.Transfer(agreement.Tenant, e.treasury, fee); err != nil {
		return err
	}
	agreement.Tenant = newTenant
	if err := e.state.RentalPut(agreement); err != nil {
		return err
	}
	if err := e.state.TenantRentalIndexAdd(newTenant, rentalID); err != nil {
		return err
	}
	e.emit(NewTransferredEvent(agreement, price, fee))
	return nil
}

func (e *Engine) releaseProperty(propertyID uint64) error {
	prop, err := e.loadProperty(propertyID)
	if err != nil {
		return err
	}
	prop.Available = true
	if err := e.state.PropertyPut(prop); err != nil {
		return err
	}
	return e.state.ClearActiveRentalForProperty(propertyID)
}
