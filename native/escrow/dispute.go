package escrow

import (
	"fmt"
	"strings"

	"rentchain/native/common"
	"rentchain/observability/metrics"
)

// OpenDispute records a challenge against a funded escrow and moves it to
// Disputed. Only a party may report, and at most one dispute exists per
// escrow.
func (e *Engine) OpenDispute(escrowID uint64, kind DisputeType, reporter [20]byte, evidenceRef string, now int64) (*Dispute, error) {
	if err := e.ensureConfigured(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	esc, err := e.loadEscrow(escrowID)
	if err != nil {
		return nil, err
	}
	if esc.Status != StatusFunded {
		return nil, fmt.Errorf("escrow: cannot dispute in status %s: %w", esc.Status, common.ErrInvalidState)
	}
	if reporter != esc.Tenant && reporter != esc.Landlord {
		return nil, fmt.Errorf("escrow: only a party may dispute: %w", common.ErrUnauthorized)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("escrow: invalid dispute type %d: %w", kind, common.ErrInvalidInput)
	}
	if _, exists, err := e.state.DisputeForEscrow(escrowID); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("escrow: escrow %d already disputed: %w", escrowID, common.ErrAlreadyProcessed)
	}
	dispute := &Dispute{
		EscrowID:    escrowID,
		Type:        kind,
		Reporter:    reporter,
		EvidenceRef: strings.TrimSpace(evidenceRef),
		Outcome:     OutcomePending,
		CreatedAt:   now,
	}
	sanitized, err := SanitizeDispute(dispute)
	if err != nil {
		return nil, fmt.Errorf("escrow: %v: %w", err, common.ErrInvalidInput)
	}
	id, err := e.state.DisputeCreate(sanitized)
	if err != nil {
		return nil, err
	}
	sanitized.ID = id
	if err := e.state.SetDisputeForEscrow(escrowID, id); err != nil {
		return nil, err
	}
	esc.Status = StatusDisputed
	if err := e.state.EscrowPut(esc); err != nil {
		return nil, err
	}
	metrics.Marketplace().ObserveDisputeOpened(kind.String())
	e.emit(NewDisputeOpenedEvent(esc, sanitized))
	return sanitized.Clone(), nil
}

// ResolveDispute records the arbitrated split for a dispute and moves the
// escrow to Resolved. The three shares are basis points of the escrow total
// and must sum to exactly 10000. Resolution is write-once and restricted to
// holders of the arbitrator role; the shares are applied at claim time.
func (e *Engine) ResolveDispute(disputeID uint64, outcome Outcome, landlordShareBps, tenantShareBps, platformShareBps uint32, details string, arbitrator [20]byte, now int64) error {
	if err := e.ensureConfigured(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.roles == nil || !e.roles.HasRole(arbitrator, common.RoleArbitrator) {
		return fmt.Errorf("escrow: resolution requires the arbitrator role: %w", common.ErrUnauthorized)
	}
	dispute, ok, err := e.state.DisputeGet(disputeID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("escrow: dispute %d: %w", disputeID, common.ErrNotFound)
	}
	if dispute.Resolved {
		return fmt.Errorf("escrow: dispute %d already resolved: %w", disputeID, common.ErrAlreadyProcessed)
	}
	if outcome == OutcomePending || !outcome.Valid() {
		return fmt.Errorf("escrow: invalid resolution outcome %d: %w", outcome, common.ErrInvalidInput)
	}
	sum := uint64(landlordShareBps) + uint64(tenantShareBps) + uint64(platformShareBps)
	if sum != 10_000 {
		return fmt.Errorf("escrow: shares must sum to 10000 (got %d): %w", sum, common.ErrInvalidInput)
	}
	esc, err := e.loadEscrow(dispute.EscrowID)
	if err != nil {
		return err
	}
	if esc.Status != StatusDisputed {
		return fmt.Errorf("escrow: cannot resolve in status %s: %w", esc.Status, common.ErrInvalidState)
	}
	dispute.Outcome = outcome
	dispute.LandlordShareBps = landlordShareBps
	dispute.TenantShareBps = tenantShareBps
	dispute.PlatformShareBps = platformShareBps
	dispute.Details = strings.TrimSpace(details)
	dispute.Resolved = true
	dispute.Arbitrator = arbitrator
	dispute.ResolvedAt = now
	sanitized, err := SanitizeDispute(dispute)
	if err != nil {
		return fmt.Errorf("escrow: %v: %w", err, common.ErrInvalidInput)
	}
	if err := e.state.DisputePut(sanitized); err != nil {
		return err
	}
	esc.Status = StatusResolved
	if err := e.state.EscrowPut(esc); err != nil {
		return err
	}
	metrics.Marketplace().ObserveDisputeResolved(outcome.String())
	e.emit(NewDisputeResolvedEvent(esc, sanitized))
	return nil
}

// GetDispute returns the dispute record for id.
func (e *Engine) GetDispute(id uint64) (*Dispute, error) {
	if e == nil || e.state == nil {
		return nil, fmt.Errorf("escrow engine: state not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	dispute, ok, err := e.state.DisputeGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("escrow: dispute %d: %w", id, common.ErrNotFound)
	}
	return dispute.Clone(), nil
}
