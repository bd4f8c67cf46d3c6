package main

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"rentchain/native/escrow"
)

func runEscrowCommand(n *node, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: escrow <create|show|fund|complete|cancel|claim|landlord-default> [flags]")
		return 1
	}
	switch args[0] {
	case "create":
		return runEscrowCreate(n, args[1:], stdout, stderr)
	case "show":
		return runEscrowShow(n, args[1:], stdout, stderr)
	case "fund":
		return runEscrowSimpleOp(n, args[1:], stdout, stderr, "fund")
	case "complete":
		return runEscrowSimpleOp(n, args[1:], stdout, stderr, "complete")
	case "cancel":
		return runEscrowSimpleOp(n, args[1:], stdout, stderr, "cancel")
	case "landlord-default":
		return runEscrowSimpleOp(n, args[1:], stdout, stderr, "landlord-default")
	case "claim":
		return runEscrowClaim(n, args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown escrow subcommand: %s\n", args[0])
		return 1
	}
}

func runEscrowCreate(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow create", stderr)
	rentalID := fs.Uint64("rental", 0, "rental id")
	tenant := fs.String("tenant", "", "tenant address")
	landlord := fs.String("landlord", "", "landlord address")
	amount := fs.String("amount", "", "rental amount in smallest units")
	deposit := fs.String("deposit", "0", "landlord deposit in smallest units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	tenantAddr, err := parseAddr(*tenant, "tenant")
	if err != nil {
		return fail(stderr, err)
	}
	landlordAddr, err := parseAddr(*landlord, "landlord")
	if err != nil {
		return fail(stderr, err)
	}
	rentalAmount, err := parseAmount(*amount, "amount")
	if err != nil {
		return fail(stderr, err)
	}
	depositAmount, err := parseAmount(*deposit, "deposit")
	if err != nil {
		return fail(stderr, err)
	}
	esc, err := n.escrow.CreateEscrow(*rentalID, tenantAddr, landlordAddr, rentalAmount, depositAmount, time.Now().Unix())
	if err != nil {
		return fail(stderr, err)
	}
	return printJSON(stdout, esc)
}

func runEscrowShow(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow show", stderr)
	id := fs.Uint64("id", 0, "escrow id")
	rentalID := fs.Uint64("rental", 0, "rental id (alternative lookup)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	var (
		esc *escrow.Escrow
		err error
	)
	if *id != 0 {
		esc, err = n.escrow.Get(*id)
	} else {
		esc, err = n.escrow.GetForRental(*rentalID)
	}
	if err != nil {
		return fail(stderr, err)
	}
	return printJSON(stdout, esc)
}

func runEscrowSimpleOp(n *node, args []string, stdout, stderr io.Writer, op string) int {
	fs := newFlagSet("escrow "+op, stderr)
	id := fs.Uint64("id", 0, "escrow id")
	caller := fs.String("caller", "", "caller address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	callerAddr, err := parseAddr(*caller, "caller")
	if err != nil {
		return fail(stderr, err)
	}
	switch op {
	case "fund":
		err = n.escrow.Fund(*id, callerAddr)
	case "complete":
		err = n.escrow.Complete(*id, callerAddr)
	case "cancel":
		err = n.escrow.Cancel(*id, callerAddr)
	case "landlord-default":
		err = n.escrow.LandlordDefault(*id, callerAddr)
	}
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}

func runEscrowClaim(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow claim", stderr)
	id := fs.Uint64("id", 0, "escrow id")
	caller := fs.String("caller", "", "claimant address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	callerAddr, err := parseAddr(*caller, "caller")
	if err != nil {
		return fail(stderr, err)
	}
	payout, err := n.escrow.Claim(*id, callerAddr)
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "paid %s\n", payout.String())
	return 0
}

func runDisputeCommand(n *node, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: dispute <open|resolve|show> [flags]")
		return 1
	}
	switch args[0] {
	case "open":
		return runDisputeOpen(n, args[1:], stdout, stderr)
	case "resolve":
		return runDisputeResolve(n, args[1:], stdout, stderr)
	case "show":
		return runDisputeShow(n, args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown dispute subcommand: %s\n", args[0])
		return 1
	}
}

func runDisputeOpen(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("dispute open", stderr)
	escrowID := fs.Uint64("escrow", 0, "escrow id")
	kind := fs.String("type", "other", "dispute type (landlord_default|tenant_default|property_issue|other)")
	reporter := fs.String("reporter", "", "reporter address")
	evidence := fs.String("evidence", "", "evidence reference (defaults to a generated id)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	disputeType, err := escrow.ParseDisputeType(*kind)
	if err != nil {
		return fail(stderr, err)
	}
	reporterAddr, err := parseAddr(*reporter, "reporter")
	if err != nil {
		return fail(stderr, err)
	}
	evidenceRef := *evidence
	if evidenceRef == "" {
		evidenceRef = uuid.NewString()
	}
	dispute, err := n.escrow.OpenDispute(*escrowID, disputeType, reporterAddr, evidenceRef, time.Now().Unix())
	if err != nil {
		return fail(stderr, err)
	}
	return printJSON(stdout, dispute)
}

func runDisputeResolve(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("dispute resolve", stderr)
	id := fs.Uint64("id", 0, "dispute id")
	outcome := fs.String("outcome", "", "resolution outcome (landlord|tenant|split)")
	landlordBps := fs.Uint64("landlord-bps", 0, "landlord share in basis points")
	tenantBps := fs.Uint64("tenant-bps", 0, "tenant share in basis points")
	platformBps := fs.Uint64("platform-bps", 0, "platform share in basis points")
	details := fs.String("details", "", "resolution details")
	arbitrator := fs.String("arbitrator", "", "arbitrator address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	resolved, err := escrow.ParseOutcome(*outcome)
	if err != nil {
		return fail(stderr, err)
	}
	arbitratorAddr, err := parseAddr(*arbitrator, "arbitrator")
	if err != nil {
		return fail(stderr, err)
	}
	if err := n.escrow.ResolveDispute(*id, resolved, uint32(*landlordBps), uint32(*tenantBps), uint32(*platformBps), *details, arbitratorAddr, time.Now().Unix()); err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}

func runDisputeShow(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("dispute show", stderr)
	id := fs.Uint64("id", 0, "dispute id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	dispute, err := n.escrow.GetDispute(*id)
	if err != nil {
		return fail(stderr, err)
	}
	return printJSON(stdout, dispute)
}
