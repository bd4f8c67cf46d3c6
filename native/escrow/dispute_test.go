package escrow

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"rentchain/native/common"
)

func TestOpenDisputeRequiresFundedEscrow(t *testing.T) {
	env := newTestEnv(t)
	esc := env.createEscrow(t, 10_000, 0)

	_, err := env.engine.OpenDispute(esc.ID, DisputeOther, env.tenant, "", env.now)
	require.True(t, errors.Is(err, common.ErrInvalidState))
}

func TestOpenDisputeOncePerEscrow(t *testing.T) {
	env := newTestEnv(t)
	esc := env.createEscrow(t, 10_000, 3_000)
	env.fundBoth(t, esc)

	_, err := env.engine.OpenDispute(esc.ID, DisputeLandlordDefault, testAddr(0x99), "", env.now)
	require.True(t, errors.Is(err, common.ErrUnauthorized))

	dispute, err := env.engine.OpenDispute(esc.ID, DisputeLandlordDefault, env.tenant, "ipfs://QmEvidence", env.now)
	require.NoError(t, err)
	require.Equal(t, OutcomePending, dispute.Outcome)

	stored, err := env.engine.Get(esc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDisputed, stored.Status)

	_, err = env.engine.OpenDispute(esc.ID, DisputeOther, env.landlord, "", env.now)
	require.True(t, errors.Is(err, common.ErrAlreadyProcessed))
}

func TestResolveDisputeValidatesShares(t *testing.T) {
	env := newTestEnv(t)
	esc := env.createEscrow(t, 8_000, 2_000)
	env.fundBoth(t, esc)
	dispute, err := env.engine.OpenDispute(esc.ID, DisputePropertyIssue, env.tenant, "", env.now)
	require.NoError(t, err)

	err = env.engine.ResolveDispute(dispute.ID, OutcomeSplit, 5_000, 4_000, 999, "", env.arbitrator, env.now)
	require.True(t, errors.Is(err, common.ErrInvalidInput))
	require.Contains(t, err.Error(), "shares must sum to 10000")

	err = env.engine.ResolveDispute(dispute.ID, OutcomeSplit, 5_000, 4_000, 1_000, "", env.tenant, env.now)
	require.True(t, errors.Is(err, common.ErrUnauthorized), "arbitrator role required")

	err = env.engine.ResolveDispute(dispute.ID, OutcomePending, 5_000, 4_000, 1_000, "", env.arbitrator, env.now)
	require.True(t, errors.Is(err, common.ErrInvalidInput), "pending is not a resolution")
}

func TestResolveDisputeWriteOnce(t *testing.T) {
	env := newTestEnv(t)
	esc := env.createEscrow(t, 8_000, 2_000)
	env.fundBoth(t, esc)
	dispute, err := env.engine.OpenDispute(esc.ID, DisputeTenantDefault, env.landlord, "", env.now)
	require.NoError(t, err)

	require.NoError(t, env.engine.ResolveDispute(dispute.ID, OutcomeInFavorOfLandlord, 9_000, 0, 1_000, "tenant abandoned unit", env.arbitrator, env.now))

	err = env.engine.ResolveDispute(dispute.ID, OutcomeSplit, 5_000, 4_000, 1_000, "", env.arbitrator, env.now)
	require.True(t, errors.Is(err, common.ErrAlreadyProcessed))
}

func TestResolvedSharesDistributeAtClaimTime(t *testing.T) {
	// total = 10000, resolved (5000, 4000, 1000).
	env := newTestEnv(t)
	esc := env.createEscrow(t, 8_000, 2_000)
	env.fundBoth(t, esc)
	dispute, err := env.engine.OpenDispute(esc.ID, DisputePropertyIssue, env.tenant, "", env.now)
	require.NoError(t, err)
	require.NoError(t, env.engine.ResolveDispute(dispute.ID, OutcomeSplit, 5_000, 4_000, 1_000, "", env.arbitrator, env.now))

	landlordPayout, err := env.engine.Claim(esc.ID, env.landlord)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(5_000), landlordPayout)

	tenantPayout, err := env.engine.Claim(esc.ID, env.tenant)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(4_000), tenantPayout)

	// Platform share 1000 split 5% insurance / 95% treasury once both claimed.
	require.Equal(t, big.NewInt(50), env.ledger.balance(env.insurance))
	require.Equal(t, big.NewInt(950), env.ledger.balance(env.treasury))
	require.Equal(t, big.NewInt(0), env.ledger.balance(env.state.vault))
}

func TestEndToEndDisputeScenario(t *testing.T) {
	// Fund, dispute, resolve Split(6000, 3000, 1000), both parties claim:
	// every balance must match total*share/10000 exactly, remainder to the
	// platform.
	env := newTestEnv(t)
	esc := env.createEscrow(t, 10_001, 3_000) // total 13001 forces rounding
	env.fundBoth(t, esc)
	dispute, err := env.engine.OpenDispute(esc.ID, DisputeOther, env.landlord, "ipfs://QmCase", env.now)
	require.NoError(t, err)
	require.NoError(t, env.engine.ResolveDispute(dispute.ID, OutcomeSplit, 6_000, 3_000, 1_000, "negotiated", env.arbitrator, env.now))

	landlordPayout, err := env.engine.Claim(esc.ID, env.landlord)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(7_800), landlordPayout) // 13001*6000/10000

	tenantPayout, err := env.engine.Claim(esc.ID, env.tenant)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(3_900), tenantPayout) // 13001*3000/10000

	// Platform takes 13001-7800-3900 = 1301 including the rounding dust.
	require.Equal(t, big.NewInt(65), env.ledger.balance(env.insurance))   // 1301*500/10000
	require.Equal(t, big.NewInt(1_236), env.ledger.balance(env.treasury)) // 1301-65
	require.Equal(t, big.NewInt(0), env.ledger.balance(env.state.vault))
}
