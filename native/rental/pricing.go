package rental

import (
	"fmt"
	"math/big"

	"rentchain/native/common"
)

const (
	secondsPerDay   int64 = 86_400
	secondsPerMonth int64 = 30 * secondsPerDay
	bpsDenominator  int64 = 10_000

	cancelWindowSecs int64 = 30 * secondsPerDay
)

// Quote is the price breakdown for a prospective booking. All values are
// integers in the smallest currency unit; division truncates toward zero.
type Quote struct {
	Months       uint64
	BasePrice    *big.Int
	DiscountBps  uint32
	Discount     *big.Int
	FinalPrice   *big.Int
	Deposit      *big.Int
	PlatformFee  *big.Int
	TotalPayment *big.Int
}

// discountBps maps advance-booking lead time to the early-booking discount
// tier. The thresholds are inclusive day counts.
func discountBps(advanceBookingDays int64) uint32 {
	switch {
	case advanceBookingDays >= 180:
		return 2_000
	case advanceBookingDays >= 90:
		return 1_500
	case advanceBookingDays >= 30:
		return 1_000
	default:
		return 500
	}
}

// refundBps maps the cancellation moment to the refund tier applied to the
// final price.
func refundBps(now, start, cancelDeadline int64) uint32 {
	switch {
	case now <= cancelDeadline:
		return 10_000
	case now <= start-7*secondsPerDay:
		return 9_500
	case now <= start-secondsPerDay:
		return 9_000
	default:
		return 8_000
	}
}

// applyBps computes amount*bps/10000 with truncating division.
func applyBps(amount *big.Int, bps uint32) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return out.Div(out, big.NewInt(bpsDenominator))
}

// buildQuote computes the full price breakdown for booking the property over
// [start, end) as seen at time now.
func buildQuote(prop *Property, start, end, now int64, platformFeeBps uint32) (*Quote, error) {
	if prop == nil {
		return nil, fmt.Errorf("rental: property required: %w", common.ErrNotFound)
	}
	if start <= now {
		return nil, fmt.Errorf("rental: start date must be in the future: %w", common.ErrInvalidInput)
	}
	if end <= start {
		return nil, fmt.Errorf("rental: end date must follow start date: %w", common.ErrInvalidInput)
	}
	months := (end - start) / secondsPerMonth
	if months <= 0 {
		return nil, fmt.Errorf("rental: duration below one month: %w", common.ErrInvalidInput)
	}
	if uint64(months) < prop.MinDurationMonths || uint64(months) > prop.MaxDurationMonths {
		return nil, fmt.Errorf("rental: duration %d months outside [%d, %d]: %w", months, prop.MinDurationMonths, prop.MaxDurationMonths, common.ErrInvalidInput)
	}
	advanceBookingDays := (start - now) / secondsPerDay
	tier := discountBps(advanceBookingDays)

	basePrice := new(big.Int).Mul(prop.PricePerMonth, big.NewInt(months))
	discount := applyBps(basePrice, tier)
	finalPrice := new(big.Int).Sub(basePrice, discount)
	deposit := applyBps(basePrice, prop.DepositBps)
	platformFee := applyBps(finalPrice, platformFeeBps)

	return &Quote{
		Months:       uint64(months),
		BasePrice:    basePrice,
		DiscountBps:  tier,
		Discount:     discount,
		FinalPrice:   finalPrice,
		Deposit:      deposit,
		PlatformFee:  platformFee,
		TotalPayment: new(big.Int).Add(finalPrice, platformFee),
	}, nil
}
