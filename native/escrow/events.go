package escrow

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"rentchain/core/types"
)

const (
	EventTypeEscrowCreated   = "escrow.created"
	EventTypeEscrowFunded    = "escrow.funded"
	EventTypeEscrowCompleted = "escrow.completed"
	EventTypeEscrowCancelled = "escrow.cancelled"
	EventTypeEscrowClaimed   = "escrow.claimed"
	EventTypeDisputeOpened   = "escrow.dispute_opened"
	EventTypeDisputeResolved = "escrow.dispute_resolved"
	EventTypeLandlordDefault = "escrow.landlord_default"
)

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// NewCreatedEvent returns the canonical payload for a newly opened escrow.
func NewCreatedEvent(esc *Escrow) *types.Event {
	return newEscrowEvent(EventTypeEscrowCreated, esc, nil)
}

// NewFundedEvent returns the payload emitted when a party deposits into the
// escrow vault.
func NewFundedEvent(esc *Escrow) *types.Event {
	return newEscrowEvent(EventTypeEscrowFunded, esc, nil)
}

// NewCompletedEvent returns the payload emitted when the escrow completes
// without a dispute.
func NewCompletedEvent(esc *Escrow) *types.Event {
	return newEscrowEvent(EventTypeEscrowCompleted, esc, nil)
}

// NewCancelledEvent returns the payload emitted when the escrow unwinds with
// full refunds.
func NewCancelledEvent(esc *Escrow) *types.Event {
	return newEscrowEvent(EventTypeEscrowCancelled, esc, nil)
}

// NewClaimedEvent returns the payload emitted when a party collects its
// entitlement.
func NewClaimedEvent(esc *Escrow, claimant [20]byte, payout *big.Int) *types.Event {
	extra := map[string]string{
		"claimant": hex.EncodeToString(claimant[:]),
	}
	if payout != nil {
		extra["payout"] = payout.String()
	}
	return newEscrowEvent(EventTypeEscrowClaimed, esc, extra)
}

// NewDisputeOpenedEvent returns the payload emitted when a dispute is raised.
func NewDisputeOpenedEvent(esc *Escrow, d *Dispute) *types.Event {
	extra := map[string]string{}
	if d != nil {
		extra["disputeId"] = strconv.FormatUint(d.ID, 10)
		extra["disputeType"] = d.Type.String()
		extra["reporter"] = hex.EncodeToString(d.Reporter[:])
		if d.EvidenceRef != "" {
			extra["evidenceRef"] = d.EvidenceRef
		}
	}
	return newEscrowEvent(EventTypeDisputeOpened, esc, extra)
}

// NewDisputeResolvedEvent returns the payload emitted when an arbitrator
// records the final split.
func NewDisputeResolvedEvent(esc *Escrow, d *Dispute) *types.Event {
	extra := map[string]string{}
	if d != nil {
		extra["disputeId"] = strconv.FormatUint(d.ID, 10)
		extra["outcome"] = d.Outcome.String()
		extra["landlordShareBps"] = strconv.FormatUint(uint64(d.LandlordShareBps), 10)
		extra["tenantShareBps"] = strconv.FormatUint(uint64(d.TenantShareBps), 10)
		extra["platformShareBps"] = strconv.FormatUint(uint64(d.PlatformShareBps), 10)
		extra["arbitrator"] = hex.EncodeToString(d.Arbitrator[:])
	}
	return newEscrowEvent(EventTypeDisputeResolved, esc, extra)
}

// NewLandlordDefaultEvent returns the payload emitted when the default
// penalty path settles the escrow.
func NewLandlordDefaultEvent(esc *Escrow, penalty, compensation *big.Int) *types.Event {
	extra := map[string]string{}
	if penalty != nil {
		extra["penalty"] = penalty.String()
	}
	if compensation != nil {
		extra["tenantCompensation"] = compensation.String()
	}
	return newEscrowEvent(EventTypeLandlordDefault, esc, extra)
}

func newEscrowEvent(eventType string, esc *Escrow, extra map[string]string) *types.Event {
	attrs := make(map[string]string)
	if esc != nil {
		attrs["escrowId"] = strconv.FormatUint(esc.ID, 10)
		attrs["rentalId"] = strconv.FormatUint(esc.RentalID, 10)
		attrs["tenant"] = hex.EncodeToString(esc.Tenant[:])
		attrs["landlord"] = hex.EncodeToString(esc.Landlord[:])
		attrs["rentalAmount"] = esc.RentalAmount.String()
		attrs["landlordDeposit"] = esc.LandlordDeposit.String()
		attrs["status"] = esc.Status.String()
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
