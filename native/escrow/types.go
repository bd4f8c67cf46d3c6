package escrow

import (
	"fmt"
	"math/big"
	"strings"
)

// Status enumerates the escrow record lifecycle.
type Status uint8

const (
	StatusCreated Status = iota
	StatusFunded
	StatusCompleted
	StatusDisputed
	StatusResolved
	StatusCancelled
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusFunded, StatusCompleted, StatusDisputed, StatusResolved, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusFunded:
		return "funded"
	case StatusCompleted:
		return "completed"
	case StatusDisputed:
		return "disputed"
	case StatusResolved:
		return "resolved"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// DisputeType classifies why a dispute was raised.
type DisputeType uint8

const (
	DisputeLandlordDefault DisputeType = iota
	DisputeTenantDefault
	DisputePropertyIssue
	DisputeOther
)

// Valid reports whether the dispute type is within the supported range.
func (t DisputeType) Valid() bool {
	switch t {
	case DisputeLandlordDefault, DisputeTenantDefault, DisputePropertyIssue, DisputeOther:
		return true
	default:
		return false
	}
}

func (t DisputeType) String() string {
	switch t {
	case DisputeLandlordDefault:
		return "landlord_default"
	case DisputeTenantDefault:
		return "tenant_default"
	case DisputePropertyIssue:
		return "property_issue"
	case DisputeOther:
		return "other"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Outcome records the arbitrated result of a dispute.
type Outcome uint8

const (
	OutcomePending Outcome = iota
	OutcomeInFavorOfLandlord
	OutcomeInFavorOfTenant
	OutcomeSplit
)

// Valid reports whether the outcome value is within the supported range.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomePending, OutcomeInFavorOfLandlord, OutcomeInFavorOfTenant, OutcomeSplit:
		return true
	default:
		return false
	}
}

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeInFavorOfLandlord:
		return "in_favor_of_landlord"
	case OutcomeInFavorOfTenant:
		return "in_favor_of_tenant"
	case OutcomeSplit:
		return "split"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// Escrow pairs a rental agreement with the funds held in custody for it: the
// tenant's rent and the landlord's deposit. TenantFunded and LandlordFunded
// track the amounts each party actually moved into the vault, which is what a
// cancellation refunds.
type Escrow struct {
	ID              uint64   `json:"id"`
	RentalID        uint64   `json:"rentalId"`
	Tenant          [20]byte `json:"tenant"`
	Landlord        [20]byte `json:"landlord"`
	RentalAmount    *big.Int `json:"rentalAmount"`
	LandlordDeposit *big.Int `json:"landlordDeposit"`
	TenantFunded    *big.Int `json:"tenantFunded"`
	LandlordFunded  *big.Int `json:"landlordFunded"`
	Status          Status   `json:"status"`
	TenantClaimed   bool     `json:"tenantClaimed"`
	LandlordClaimed bool     `json:"landlordClaimed"`
	PlatformPaid    bool     `json:"platformPaid"`
	CreatedAt       int64    `json:"createdAt"`
}

// Clone returns a deep copy of the escrow record.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	clone.RentalAmount = cloneBigInt(e.RentalAmount)
	clone.LandlordDeposit = cloneBigInt(e.LandlordDeposit)
	clone.TenantFunded = cloneBigInt(e.TenantFunded)
	clone.LandlordFunded = cloneBigInt(e.LandlordFunded)
	return &clone
}

// TotalFunds is the settlement basis for claims: rent plus landlord deposit.
func (e *Escrow) TotalFunds() *big.Int {
	total := cloneBigInt(e.RentalAmount)
	return total.Add(total, cloneBigInt(e.LandlordDeposit))
}

// Dispute records a challenge raised against a funded escrow together with
// its arbitrated resolution. The three shares are basis points of the escrow
// total and must sum to 10000; resolution is write-once.
type Dispute struct {
	ID               uint64      `json:"id"`
	EscrowID         uint64      `json:"escrowId"`
	Type             DisputeType `json:"type"`
	Reporter         [20]byte    `json:"reporter"`
	EvidenceRef      string      `json:"evidenceRef"`
	Outcome          Outcome     `json:"outcome"`
	LandlordShareBps uint32      `json:"landlordShareBps"`
	TenantShareBps   uint32      `json:"tenantShareBps"`
	PlatformShareBps uint32      `json:"platformShareBps"`
	Details          string      `json:"details"`
	Resolved         bool        `json:"resolved"`
	Arbitrator       [20]byte    `json:"arbitrator"`
	CreatedAt        int64       `json:"createdAt"`
	ResolvedAt       int64       `json:"resolvedAt"`
}

// Clone returns a copy of the dispute record.
func (d *Dispute) Clone() *Dispute {
	if d == nil {
		return nil
	}
	clone := *d
	return &clone
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// SanitizeEscrow validates and normalises an escrow record, returning a clone
// with non-nil amounts. The original value is not mutated.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("nil escrow")
	}
	clone := e.Clone()
	if clone.Tenant == ([20]byte{}) || clone.Landlord == ([20]byte{}) {
		return nil, fmt.Errorf("escrow parties required")
	}
	if clone.Tenant == clone.Landlord {
		return nil, fmt.Errorf("escrow parties must differ")
	}
	if clone.RentalAmount.Sign() <= 0 {
		return nil, fmt.Errorf("escrow rental amount must be positive")
	}
	if clone.LandlordDeposit.Sign() < 0 {
		return nil, fmt.Errorf("escrow landlord deposit must be non-negative")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid escrow status: %d", clone.Status)
	}
	return clone, nil
}

// SanitizeDispute validates a dispute record.
func SanitizeDispute(d *Dispute) (*Dispute, error) {
	if d == nil {
		return nil, fmt.Errorf("nil dispute")
	}
	clone := d.Clone()
	if !clone.Type.Valid() {
		return nil, fmt.Errorf("invalid dispute type: %d", clone.Type)
	}
	if !clone.Outcome.Valid() {
		return nil, fmt.Errorf("invalid dispute outcome: %d", clone.Outcome)
	}
	if clone.Resolved {
		sum := uint64(clone.LandlordShareBps) + uint64(clone.TenantShareBps) + uint64(clone.PlatformShareBps)
		if sum != 10_000 {
			return nil, fmt.Errorf("dispute shares must sum to 10000 (got %d)", sum)
		}
	}
	return clone, nil
}

// ParseDisputeType maps a label to a dispute type.
func ParseDisputeType(label string) (DisputeType, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "landlord_default":
		return DisputeLandlordDefault, nil
	case "tenant_default":
		return DisputeTenantDefault, nil
	case "property_issue":
		return DisputePropertyIssue, nil
	case "other":
		return DisputeOther, nil
	default:
		return 0, fmt.Errorf("unknown dispute type: %q", label)
	}
}

// ParseOutcome maps a label to a resolution outcome.
func ParseOutcome(label string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "landlord", "in_favor_of_landlord":
		return OutcomeInFavorOfLandlord, nil
	case "tenant", "in_favor_of_tenant":
		return OutcomeInFavorOfTenant, nil
	case "split":
		return OutcomeSplit, nil
	default:
		return 0, fmt.Errorf("unknown outcome: %q", label)
	}
}
