package yieldfarm

import (
	"fmt"
	"math/big"
	"strings"
)

// RiskTier buckets strategies by volatility appetite.
type RiskTier uint8

const (
	TierConservative RiskTier = iota
	TierBalanced
	TierGrowth
)

// Valid reports whether the tier value is within the supported range.
func (t RiskTier) Valid() bool {
	switch t {
	case TierConservative, TierBalanced, TierGrowth:
		return true
	default:
		return false
	}
}

func (t RiskTier) String() string {
	switch t {
	case TierConservative:
		return "conservative"
	case TierBalanced:
		return "balanced"
	case TierGrowth:
		return "growth"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}

// ParseRiskTier maps a catalog label to a tier.
func ParseRiskTier(label string) (RiskTier, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "conservative":
		return TierConservative, nil
	case "balanced":
		return TierBalanced, nil
	case "growth":
		return TierGrowth, nil
	default:
		return 0, fmt.Errorf("unknown risk tier: %q", label)
	}
}

// Strategy describes an external yield-bearing venue. The engine never
// interprets strategy internals, only the declared APY and the active flag.
// A strategy referenced by an active stake is treated as immutable; a stale
// APY is an accepted trade-off.
type Strategy struct {
	ID           uint64   `json:"id"`
	Protocol     string   `json:"protocol"`
	DepositToken string   `json:"depositToken"`
	YieldToken   string   `json:"yieldToken"`
	APYBps       uint32   `json:"apyBps"`
	Tier         RiskTier `json:"tier"`
	Active       bool     `json:"active"`
}

// Clone returns a copy of the strategy.
func (s *Strategy) Clone() *Strategy {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

// Stake is the yield position opened for a single rental: the rent staked
// into the base strategy and, optionally, the landlord deposit staked into a
// plus strategy. Accrued counters only ever grow.
type Stake struct {
	RentalID        uint64   `json:"rentalId"`
	Tenant          [20]byte `json:"tenant"`
	Landlord        [20]byte `json:"landlord"`
	BaseAmount      *big.Int `json:"baseAmount"`
	LandlordDeposit *big.Int `json:"landlordDeposit"`
	StartTime       int64    `json:"startTime"`
	EndTime         int64    `json:"endTime"`
	BaseStrategyID  uint64   `json:"baseStrategyId"`
	PlusStrategyID  uint64   `json:"plusStrategyId,omitempty"`
	AccruedBase     *big.Int `json:"accruedBase"`
	AccruedPlus     *big.Int `json:"accruedPlus"`
	Active          bool     `json:"active"`
}

// HasPlus reports whether a plus strategy backs the landlord deposit.
func (s *Stake) HasPlus() bool { return s != nil && s.PlusStrategyID != 0 }

// Clone returns a deep copy of the stake.
func (s *Stake) Clone() *Stake {
	if s == nil {
		return nil
	}
	clone := *s
	clone.BaseAmount = cloneBigInt(s.BaseAmount)
	clone.LandlordDeposit = cloneBigInt(s.LandlordDeposit)
	clone.AccruedBase = cloneBigInt(s.AccruedBase)
	clone.AccruedPlus = cloneBigInt(s.AccruedPlus)
	return &clone
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// SanitizeStrategy validates a strategy record.
func SanitizeStrategy(s *Strategy) (*Strategy, error) {
	if s == nil {
		return nil, fmt.Errorf("nil strategy")
	}
	clone := s.Clone()
	if strings.TrimSpace(clone.Protocol) == "" {
		return nil, fmt.Errorf("strategy protocol required")
	}
	if clone.APYBps > 10_000 {
		return nil, fmt.Errorf("strategy apy bps out of range: %d", clone.APYBps)
	}
	if !clone.Tier.Valid() {
		return nil, fmt.Errorf("invalid risk tier: %d", clone.Tier)
	}
	return clone, nil
}

// SanitizeStake validates a stake record.
func SanitizeStake(s *Stake) (*Stake, error) {
	if s == nil {
		return nil, fmt.Errorf("nil stake")
	}
	clone := s.Clone()
	if clone.EndTime <= clone.StartTime {
		return nil, fmt.Errorf("stake end time must follow start time")
	}
	if clone.BaseAmount.Sign() <= 0 {
		return nil, fmt.Errorf("stake base amount must be positive")
	}
	if clone.LandlordDeposit.Sign() < 0 {
		return nil, fmt.Errorf("stake landlord deposit must be non-negative")
	}
	if clone.BaseStrategyID == 0 {
		return nil, fmt.Errorf("stake base strategy required")
	}
	return clone, nil
}
