package rental

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"rentchain/core/types"
)

const (
	EventTypePropertyListed    = "rental.property_listed"
	EventTypeRentalBooked      = "rental.booked"
	EventTypeRentalCancelled   = "rental.cancelled"
	EventTypeRentalActivated   = "rental.activated"
	EventTypeRentalCompleted   = "rental.completed"
	EventTypeRentalDisputed    = "rental.disputed"
	EventTypeRentalTransferred = "rental.transferred"
)

type rentalEvent struct {
	evt *types.Event
}

func (e rentalEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e rentalEvent) Event() *types.Event { return e.evt }

// NewPropertyListedEvent returns the canonical payload for a new listing.
func NewPropertyListedEvent(p *Property) *types.Event {
	attrs := make(map[string]string)
	if p != nil {
		attrs["propertyId"] = strconv.FormatUint(p.ID, 10)
		attrs["owner"] = hex.EncodeToString(p.Owner[:])
		attrs["location"] = p.Location
		attrs["pricePerMonth"] = p.PricePerMonth.String()
		attrs["depositBps"] = strconv.FormatUint(uint64(p.DepositBps), 10)
	}
	return &types.Event{Type: EventTypePropertyListed, Attributes: attrs}
}

// NewBookedEvent returns the canonical payload emitted when an agreement is
// reserved.
func NewBookedEvent(a *Agreement) *types.Event {
	return newAgreementEvent(EventTypeRentalBooked, a, nil)
}

// NewCancelledEvent returns the payload emitted when a reservation is torn
// down, including the tiered refund paid to the tenant.
func NewCancelledEvent(a *Agreement, refund *big.Int) *types.Event {
	extra := map[string]string{}
	if refund != nil {
		extra["refund"] = refund.String()
	}
	return newAgreementEvent(EventTypeRentalCancelled, a, extra)
}

// NewActivatedEvent returns the payload emitted when the rental term begins.
func NewActivatedEvent(a *Agreement) *types.Event {
	return newAgreementEvent(EventTypeRentalActivated, a, nil)
}

// NewCompletedEvent returns the payload emitted when the rental term settles.
func NewCompletedEvent(a *Agreement) *types.Event {
	return newAgreementEvent(EventTypeRentalCompleted, a, nil)
}

// NewRentalDisputedEvent returns the payload emitted when a party reports a
// dispute.
func NewRentalDisputedEvent(a *Agreement) *types.Event {
	return newAgreementEvent(EventTypeRentalDisputed, a, nil)
}

// NewTransferredEvent returns the payload emitted when the tenancy changes
// hands on the secondary market.
func NewTransferredEvent(a *Agreement, price, fee *big.Int) *types.Event {
	extra := map[string]string{}
	if price != nil {
		extra["price"] = price.String()
	}
	if fee != nil {
		extra["fee"] = fee.String()
	}
	return newAgreementEvent(EventTypeRentalTransferred, a, extra)
}

func newAgreementEvent(eventType string, a *Agreement, extra map[string]string) *types.Event {
	attrs := make(map[string]string)
	if a != nil {
		attrs["rentalId"] = strconv.FormatUint(a.ID, 10)
		attrs["propertyId"] = strconv.FormatUint(a.PropertyID, 10)
		attrs["landlord"] = hex.EncodeToString(a.Landlord[:])
		attrs["tenant"] = hex.EncodeToString(a.Tenant[:])
		attrs["startDate"] = strconv.FormatInt(a.StartDate, 10)
		attrs["endDate"] = strconv.FormatInt(a.EndDate, 10)
		attrs["basePrice"] = a.BasePrice.String()
		attrs["finalPrice"] = a.FinalPrice.String()
		attrs["state"] = a.State.String()
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
