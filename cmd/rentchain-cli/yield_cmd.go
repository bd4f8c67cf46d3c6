package main

import (
	"fmt"
	"io"
	"time"

	"rentchain/native/yieldfarm"
)

func runYieldCommand(n *node, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: yield <register|strategy|stake|estimate|collect|end> [flags]")
		return 1
	}
	switch args[0] {
	case "register":
		return runYieldRegister(n, args[1:], stdout, stderr)
	case "strategy":
		return runYieldStrategy(n, args[1:], stdout, stderr)
	case "stake":
		return runYieldStake(n, args[1:], stdout, stderr)
	case "estimate":
		return runYieldEstimate(n, args[1:], stdout, stderr)
	case "collect":
		return runYieldSimpleOp(n, args[1:], stdout, stderr, "collect")
	case "end":
		return runYieldSimpleOp(n, args[1:], stdout, stderr, "end")
	default:
		fmt.Fprintf(stderr, "Unknown yield subcommand: %s\n", args[0])
		return 1
	}
}

func runYieldRegister(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("yield register", stderr)
	protocol := fs.String("protocol", "", "strategy protocol name")
	depositToken := fs.String("deposit-token", "", "deposit token symbol")
	yieldToken := fs.String("yield-token", "", "yield token symbol")
	apyBps := fs.Uint64("apy-bps", 0, "declared APY in basis points")
	tier := fs.String("tier", "conservative", "risk tier (conservative|balanced|growth)")
	caller := fs.String("caller", "", "admin address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	riskTier, err := yieldfarm.ParseRiskTier(*tier)
	if err != nil {
		return fail(stderr, err)
	}
	callerAddr, err := parseAddr(*caller, "caller")
	if err != nil {
		return fail(stderr, err)
	}
	strategy, err := n.yield.RegisterStrategy(*protocol, *depositToken, *yieldToken, uint32(*apyBps), riskTier, callerAddr)
	if err != nil {
		return fail(stderr, err)
	}
	return printJSON(stdout, strategy)
}

func runYieldStrategy(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("yield strategy", stderr)
	id := fs.Uint64("id", 0, "strategy id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	strategy, err := n.yield.GetStrategy(*id)
	if err != nil {
		return fail(stderr, err)
	}
	return printJSON(stdout, strategy)
}

func runYieldStake(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("yield stake", stderr)
	rentalID := fs.Uint64("rental", 0, "rental id")
	tenant := fs.String("tenant", "", "tenant address")
	landlord := fs.String("landlord", "", "landlord address")
	amount := fs.String("amount", "", "base amount in smallest units")
	deposit := fs.String("deposit", "0", "landlord deposit in smallest units")
	start := fs.Int64("start", 0, "stake start (unix seconds)")
	end := fs.Int64("end", 0, "stake end (unix seconds)")
	baseStrategy := fs.Uint64("base-strategy", 0, "base strategy id")
	plusStrategy := fs.Uint64("plus-strategy", 0, "plus strategy id (0 for none)")
	caller := fs.String("caller", "", "admin address")
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
	baseAmount, err := parseAmount(*amount, "amount")
	if err != nil {
		return fail(stderr, err)
	}
	depositAmount, err := parseAmount(*deposit, "deposit")
	if err != nil {
		return fail(stderr, err)
	}
	callerAddr, err := parseAddr(*caller, "caller")
	if err != nil {
		return fail(stderr, err)
	}
	stake, err := n.yield.OpenStake(*rentalID, tenantAddr, landlordAddr, baseAmount, depositAmount, *start, *end, *baseStrategy, *plusStrategy, callerAddr)
	if err != nil {
		return fail(stderr, err)
	}
	return printJSON(stdout, stake)
}

func runYieldEstimate(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("yield estimate", stderr)
	rentalID := fs.Uint64("rental", 0, "rental id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	baseYield, plusYield, err := n.yield.EstimateYield(*rentalID, time.Now().Unix())
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "base %s plus %s\n", baseYield.String(), plusYield.String())
	return 0
}

func runYieldSimpleOp(n *node, args []string, stdout, stderr io.Writer, op string) int {
	fs := newFlagSet("yield "+op, stderr)
	rentalID := fs.Uint64("rental", 0, "rental id")
	caller := fs.String("caller", "", "admin address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	callerAddr, err := parseAddr(*caller, "caller")
	if err != nil {
		return fail(stderr, err)
	}
	now := time.Now().Unix()
	if op == "collect" {
		err = n.yield.Collect(*rentalID, callerAddr, now)
	} else {
		err = n.yield.EndStake(*rentalID, callerAddr, now)
	}
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}
