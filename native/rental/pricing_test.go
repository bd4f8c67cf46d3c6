package rental

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func testProperty() *Property {
	return &Property{
		ID:                1,
		Owner:             testAddr(0x0A),
		Location:          "Taipei / Daan",
		PricePerMonth:     big.NewInt(1_000),
		MinDurationMonths: 1,
		MaxDurationMonths: 12,
		DepositBps:        1_000,
		Available:         true,
	}
}

func TestDiscountTiers(t *testing.T) {
	cases := []struct {
		days int64
		bps  uint32
	}{
		{200, 2_000},
		{180, 2_000},
		{100, 1_500},
		{90, 1_500},
		{45, 1_000},
		{30, 1_000},
		{10, 500},
		{0, 500},
	}
	for _, tc := range cases {
		require.Equal(t, tc.bps, discountBps(tc.days), "advance days %d", tc.days)
	}
}

func TestQuoteExampleFromAdvanceBooking(t *testing.T) {
	// pricePerMonth=1000, months=3, 200 days of lead time.
	now := int64(1_000_000)
	start := now + 200*secondsPerDay
	end := start + 3*secondsPerMonth

	quote, err := buildQuote(testProperty(), start, end, now, DefaultPlatformFeeBps)
	require.NoError(t, err)
	require.Equal(t, uint64(3), quote.Months)
	require.Equal(t, big.NewInt(3_000), quote.BasePrice)
	require.Equal(t, uint32(2_000), quote.DiscountBps)
	require.Equal(t, big.NewInt(600), quote.Discount)
	require.Equal(t, big.NewInt(2_400), quote.FinalPrice)
	require.Equal(t, big.NewInt(300), quote.Deposit)
	require.Equal(t, big.NewInt(72), quote.PlatformFee)
	require.Equal(t, big.NewInt(2_472), quote.TotalPayment)
}

func TestQuoteFinalPriceNeverExceedsBase(t *testing.T) {
	now := int64(1_000_000)
	for _, lead := range []int64{1, 10, 30, 45, 90, 100, 180, 365} {
		start := now + lead*secondsPerDay
		end := start + 2*secondsPerMonth
		quote, err := buildQuote(testProperty(), start, end, now, DefaultPlatformFeeBps)
		require.NoError(t, err)
		require.LessOrEqual(t, quote.FinalPrice.Cmp(quote.BasePrice), 0)
		expectedBase := new(big.Int).Mul(big.NewInt(1_000), big.NewInt(2))
		require.Equal(t, expectedBase, quote.BasePrice)
	}
}

func TestQuoteRejectsBadWindows(t *testing.T) {
	prop := testProperty()
	now := int64(1_000_000)

	_, err := buildQuote(prop, now-1, now+secondsPerMonth, now, 0)
	require.Error(t, err, "start in the past")

	_, err = buildQuote(prop, now+secondsPerDay, now+secondsPerDay, now, 0)
	require.Error(t, err, "empty window")

	_, err = buildQuote(prop, now+secondsPerDay, now+secondsPerDay+secondsPerMonth-1, now, 0)
	require.Error(t, err, "below one month")

	prop.MinDurationMonths = 3
	_, err = buildQuote(prop, now+secondsPerDay, now+secondsPerDay+2*secondsPerMonth, now, 0)
	require.Error(t, err, "below property minimum")

	prop.MinDurationMonths = 1
	prop.MaxDurationMonths = 2
	_, err = buildQuote(prop, now+secondsPerDay, now+secondsPerDay+3*secondsPerMonth, now, 0)
	require.Error(t, err, "above property maximum")
}

func TestRefundTiers(t *testing.T) {
	start := int64(100 * secondsPerDay)
	deadline := start - cancelWindowSecs

	cases := []struct {
		name string
		now  int64
		bps  uint32
	}{
		{"31 days before start", start - 31*secondsPerDay, 10_000},
		{"exactly at deadline", deadline, 10_000},
		{"10 days before start", start - 10*secondsPerDay, 9_500},
		{"7 days before start", start - 7*secondsPerDay, 9_500},
		{"3 days before start", start - 3*secondsPerDay, 9_000},
		{"1 day before start", start - secondsPerDay, 9_000},
		{"same day", start, 8_000},
	}
	for _, tc := range cases {
		require.Equal(t, tc.bps, refundBps(tc.now, start, deadline), tc.name)
	}
}

func TestApplyBpsTruncates(t *testing.T) {
	// Compare via String: a zero produced by Div is not deep-equal to a
	// fresh big.NewInt(0).
	require.Equal(t, "33", applyBps(big.NewInt(100), 3_333).String())
	require.Equal(t, "0", applyBps(big.NewInt(1), 3_333).String())
	require.Equal(t, "0", applyBps(nil, 5_000).String())
}
