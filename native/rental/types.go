package rental

import (
	"fmt"
	"math/big"
	"strings"
)

// AgreementState enumerates the lifecycle of a rental agreement.
type AgreementState uint8

const (
	StateAvailable AgreementState = iota
	StateReserved
	StateActive
	StateCompleted
	StateCancelled
	StateDisputed
)

// Valid reports whether the state value is within the supported range.
func (s AgreementState) Valid() bool {
	switch s {
	case StateAvailable, StateReserved, StateActive, StateCompleted, StateCancelled, StateDisputed:
		return true
	default:
		return false
	}
}

func (s AgreementState) String() string {
	switch s {
	case StateAvailable:
		return "available"
	case StateReserved:
		return "reserved"
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateDisputed:
		return "disputed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Property is a listed unit available for long-term rental. Prices are
// integers in the smallest currency unit; the deposit requirement is the
// basis-point fraction of the base price the landlord must stake.
type Property struct {
	ID                uint64   `json:"id"`
	Owner             [20]byte `json:"owner"`
	Location          string   `json:"location"`
	PricePerMonth     *big.Int `json:"pricePerMonth"`
	MinDurationMonths uint64   `json:"minDurationMonths"`
	MaxDurationMonths uint64   `json:"maxDurationMonths"`
	DepositBps        uint32   `json:"depositBps"`
	Available         bool     `json:"available"`
	MetadataURI       string   `json:"metadataURI"`
	MetaHash          [32]byte `json:"metaHash"`
	CreatedAt         int64    `json:"createdAt"`
}

// Clone returns a deep copy of the property.
func (p *Property) Clone() *Property {
	if p == nil {
		return nil
	}
	clone := *p
	if p.PricePerMonth != nil {
		clone.PricePerMonth = new(big.Int).Set(p.PricePerMonth)
	} else {
		clone.PricePerMonth = big.NewInt(0)
	}
	return &clone
}

// Agreement is a single rental agreement binding a tenant to a property for a
// fixed term. FinalPrice is the base price net of the early-booking discount
// and never exceeds BasePrice.
type Agreement struct {
	ID             uint64         `json:"id"`
	PropertyID     uint64         `json:"propertyId"`
	Landlord       [20]byte       `json:"landlord"`
	Tenant         [20]byte       `json:"tenant"`
	StartDate      int64          `json:"startDate"`
	EndDate        int64          `json:"endDate"`
	BasePrice      *big.Int       `json:"basePrice"`
	FinalPrice     *big.Int       `json:"finalPrice"`
	Deposit        *big.Int       `json:"deposit"`
	DiscountBps    uint32         `json:"discountBps"`
	State          AgreementState `json:"state"`
	AllowTransfer  bool           `json:"allowTransfer"`
	CancelDeadline int64          `json:"cancelDeadline"`
	CreatedAt      int64          `json:"createdAt"`
}

// Clone returns a deep copy of the agreement.
func (a *Agreement) Clone() *Agreement {
	if a == nil {
		return nil
	}
	clone := *a
	clone.BasePrice = cloneBigInt(a.BasePrice)
	clone.FinalPrice = cloneBigInt(a.FinalPrice)
	clone.Deposit = cloneBigInt(a.Deposit)
	return &clone
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// SanitizeProperty validates and normalises a property record, returning a
// cloned instance with non-nil amounts. The original value is not mutated.
func SanitizeProperty(p *Property) (*Property, error) {
	if p == nil {
		return nil, fmt.Errorf("nil property")
	}
	clone := p.Clone()
	if strings.TrimSpace(clone.Location) == "" {
		return nil, fmt.Errorf("property location required")
	}
	if clone.PricePerMonth == nil || clone.PricePerMonth.Sign() <= 0 {
		return nil, fmt.Errorf("property price per month must be positive")
	}
	if clone.MinDurationMonths == 0 || clone.MaxDurationMonths < clone.MinDurationMonths {
		return nil, fmt.Errorf("property duration bounds invalid: min %d max %d", clone.MinDurationMonths, clone.MaxDurationMonths)
	}
	if clone.DepositBps > 10_000 {
		return nil, fmt.Errorf("property deposit bps out of range: %d", clone.DepositBps)
	}
	return clone, nil
}

// SanitizeAgreement validates and normalises a rental agreement record.
func SanitizeAgreement(a *Agreement) (*Agreement, error) {
	if a == nil {
		return nil, fmt.Errorf("nil agreement")
	}
	clone := a.Clone()
	if clone.EndDate <= clone.StartDate {
		return nil, fmt.Errorf("agreement end date must follow start date")
	}
	if clone.BasePrice.Sign() < 0 || clone.FinalPrice.Sign() < 0 || clone.Deposit.Sign() < 0 {
		return nil, fmt.Errorf("agreement amounts must be non-negative")
	}
	if clone.FinalPrice.Cmp(clone.BasePrice) > 0 {
		return nil, fmt.Errorf("agreement final price exceeds base price")
	}
	if !clone.State.Valid() {
		return nil, fmt.Errorf("invalid agreement state: %d", clone.State)
	}
	return clone, nil
}
