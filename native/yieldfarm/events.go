package yieldfarm

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"rentchain/core/types"
)

const (
	EventTypeStrategyRegistered = "yield.strategy_registered"
	EventTypeStaked             = "yield.staked"
	EventTypeCollected          = "yield.collected"
	EventTypeStakeEnded         = "yield.stake_ended"
)

type yieldEvent struct {
	evt *types.Event
}

func (e yieldEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e yieldEvent) Event() *types.Event { return e.evt }

// NewStrategyRegisteredEvent returns the payload emitted when a strategy is
// added to the registry.
func NewStrategyRegisteredEvent(s *Strategy) *types.Event {
	attrs := map[string]string{}
	if s != nil {
		attrs["strategyId"] = strconv.FormatUint(s.ID, 10)
		attrs["protocol"] = s.Protocol
		attrs["apyBps"] = strconv.FormatUint(uint64(s.APYBps), 10)
		attrs["tier"] = s.Tier.String()
	}
	return &types.Event{Type: EventTypeStrategyRegistered, Attributes: attrs}
}

// NewStakedEvent returns the payload emitted when a rental's funds enter the
// yield strategies.
func NewStakedEvent(stake *Stake, base, plus *Strategy) *types.Event {
	attrs := stakeAttrs(stake)
	if base != nil {
		attrs["baseProtocol"] = base.Protocol
	}
	if plus != nil {
		attrs["plusProtocol"] = plus.Protocol
	}
	return &types.Event{Type: EventTypeStaked, Attributes: attrs}
}

// NewCollectedEvent returns the payload emitted when accrued yield is
// distributed.
func NewCollectedEvent(stake *Stake, baseDelta, plusDelta *big.Int) *types.Event {
	attrs := stakeAttrs(stake)
	if baseDelta != nil {
		attrs["baseYield"] = baseDelta.String()
	}
	if plusDelta != nil {
		attrs["plusYield"] = plusDelta.String()
	}
	return &types.Event{Type: EventTypeCollected, Attributes: attrs}
}

// NewStakeEndedEvent returns the payload emitted when a stake is unwound and
// its principal returned to settlement custody.
func NewStakeEndedEvent(stake *Stake, principal *big.Int) *types.Event {
	attrs := stakeAttrs(stake)
	if principal != nil {
		attrs["principal"] = principal.String()
	}
	return &types.Event{Type: EventTypeStakeEnded, Attributes: attrs}
}

func stakeAttrs(stake *Stake) map[string]string {
	attrs := make(map[string]string)
	if stake != nil {
		attrs["rentalId"] = strconv.FormatUint(stake.RentalID, 10)
		attrs["tenant"] = hex.EncodeToString(stake.Tenant[:])
		attrs["landlord"] = hex.EncodeToString(stake.Landlord[:])
		attrs["baseAmount"] = stake.BaseAmount.String()
		attrs["baseStrategyId"] = strconv.FormatUint(stake.BaseStrategyID, 10)
		if stake.HasPlus() {
			attrs["plusStrategyId"] = strconv.FormatUint(stake.PlusStrategyID, 10)
			attrs["landlordDeposit"] = stake.LandlordDeposit.String()
		}
	}
	return attrs
}
