package main

import (
	"fmt"
	"io"
	"time"
)

func runRentalCommand(n *node, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: rental <quote|book|cancel|activate|complete|dispute|transfer|show|by-tenant> [flags]")
		return 1
	}
	switch args[0] {
	case "quote":
		return runRentalQuote(n, args[1:], stdout, stderr)
	case "book":
		return runRentalBook(n, args[1:], stdout, stderr)
	case "cancel":
		return runRentalCancel(n, args[1:], stdout, stderr)
	case "activate":
		return runRentalLifecycle(n, args[1:], stdout, stderr, "activate")
	case "complete":
		return runRentalLifecycle(n, args[1:], stdout, stderr, "complete")
	case "dispute":
		return runRentalDispute(n, args[1:], stdout, stderr)
	case "transfer":
		return runRentalTransfer(n, args[1:], stdout, stderr)
	case "show":
		return runRentalShow(n, args[1:], stdout, stderr)
	case "by-tenant":
		return runRentalByTenant(n, args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown rental subcommand: %s\n", args[0])
		return 1
	}
}

func runRentalQuote(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("rental quote", stderr)
	property := fs.Uint64("property", 0, "property id")
	start := fs.Int64("start", 0, "rental start (unix seconds)")
	end := fs.Int64("end", 0, "rental end (unix seconds)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	quote, err := n.rental.CalculateRentalPrice(*property, *start, *end, time.Now().Unix())
	if err != nil {
		return fail(stderr, err)
	}
	return printJSON(stdout, quote)
}

func runRentalBook(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("rental book", stderr)
	property := fs.Uint64("property", 0, "property id")
	tenant := fs.String("tenant", "", "tenant address")
	start := fs.Int64("start", 0, "rental start (unix seconds)")
	end := fs.Int64("end", 0, "rental end (unix seconds)")
	allowTransfer := fs.Bool("allow-transfer", false, "allow the tenant to transfer the agreement")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	tenantAddr, err := parseAddr(*tenant, "tenant")
	if err != nil {
		return fail(stderr, err)
	}
	agreement, err := n.rental.Book(*property, tenantAddr, *start, *end, *allowTransfer, time.Now().Unix())
	if err != nil {
		return fail(stderr, err)
	}
	return printJSON(stdout, agreement)
}

func runRentalCancel(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("rental cancel", stderr)
	id := fs.Uint64("id", 0, "rental id")
	caller := fs.String("caller", "", "caller address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	callerAddr, err := parseAddr(*caller, "caller")
	if err != nil {
		return fail(stderr, err)
	}
	refund, err := n.rental.Cancel(*id, callerAddr, time.Now().Unix())
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "refunded %s\n", refund.String())
	return 0
}

func runRentalLifecycle(n *node, args []string, stdout, stderr io.Writer, op string) int {
	fs := newFlagSet("rental "+op, stderr)
	id := fs.Uint64("id", 0, "rental id")
	caller := fs.String("caller", "", "caller address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	callerAddr, err := parseAddr(*caller, "caller")
	if err != nil {
		return fail(stderr, err)
	}
	now := time.Now().Unix()
	if op == "activate" {
		err = n.rental.Activate(*id, callerAddr, now)
	} else {
		err = n.rental.Complete(*id, callerAddr, now)
	}
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}

func runRentalDispute(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("rental dispute", stderr)
	id := fs.Uint64("id", 0, "rental id")
	caller := fs.String("caller", "", "caller address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	callerAddr, err := parseAddr(*caller, "caller")
	if err != nil {
		return fail(stderr, err)
	}
	if err := n.rental.ReportDispute(*id, callerAddr); err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}

func runRentalTransfer(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("rental transfer", stderr)
	id := fs.Uint64("id", 0, "rental id")
	caller := fs.String("caller", "", "current tenant address")
	buyer := fs.String("buyer", "", "new tenant address")
	price := fs.String("price", "", "transfer price in smallest units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	callerAddr, err := parseAddr(*caller, "caller")
	if err != nil {
		return fail(stderr, err)
	}
	buyerAddr, err := parseAddr(*buyer, "buyer")
	if err != nil {
		return fail(stderr, err)
	}
	amount, err := parseAmount(*price, "price")
	if err != nil {
		return fail(stderr, err)
	}
	if err := n.rental.Transfer(*id, buyerAddr, amount, callerAddr); err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}

func runRentalShow(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("rental show", stderr)
	id := fs.Uint64("id", 0, "rental id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	agreement, err := n.rental.GetAgreement(*id)
	if err != nil {
		return fail(stderr, err)
	}
	return printJSON(stdout, agreement)
}

func runRentalByTenant(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("rental by-tenant", stderr)
	tenant := fs.String("tenant", "", "tenant address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, err := parseAddr(*tenant, "tenant")
	if err != nil {
		return fail(stderr, err)
	}
	ids, err := n.rental.TenantRentals(addr)
	if err != nil {
		return fail(stderr, err)
	}
	return printJSON(stdout, ids)
}
