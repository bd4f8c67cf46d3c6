package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func printJSON(stdout io.Writer, v any) int {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(stdout, "Error:", err)
		return 1
	}
	fmt.Fprintln(stdout, string(encoded))
	return 0
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintln(stderr, "Error:", err)
	return 1
}

func runPropertyCommand(n *node, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: property <list|show|set-available|by-landlord> [flags]")
		return 1
	}
	switch args[0] {
	case "list":
		return runPropertyList(n, args[1:], stdout, stderr)
	case "show":
		return runPropertyShow(n, args[1:], stdout, stderr)
	case "set-available":
		return runPropertySetAvailable(n, args[1:], stdout, stderr)
	case "by-landlord":
		return runPropertyByLandlord(n, args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown property subcommand: %s\n", args[0])
		return 1
	}
}

func runPropertyList(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("property list", stderr)
	var (
		owner       string
		location    string
		price       string
		minMonths   uint64
		maxMonths   uint64
		depositBps  uint64
		metadataURI string
	)
	fs.StringVar(&owner, "owner", "", "landlord address")
	fs.StringVar(&location, "location", "", "property location")
	fs.StringVar(&price, "price", "", "monthly price in smallest units")
	fs.Uint64Var(&minMonths, "min-months", 1, "minimum rental duration in months")
	fs.Uint64Var(&maxMonths, "max-months", 12, "maximum rental duration in months")
	fs.Uint64Var(&depositBps, "deposit-bps", 0, "landlord deposit requirement in basis points")
	fs.StringVar(&metadataURI, "metadata", "", "metadata URI")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	ownerAddr, err := parseAddr(owner, "owner")
	if err != nil {
		return fail(stderr, err)
	}
	priceAmount, err := parseAmount(price, "price")
	if err != nil {
		return fail(stderr, err)
	}
	property, err := n.rental.ListProperty(ownerAddr, location, priceAmount, minMonths, maxMonths, uint32(depositBps), metadataURI, time.Now().Unix())
	if err != nil {
		return fail(stderr, err)
	}
	return printJSON(stdout, property)
}

func runPropertyShow(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("property show", stderr)
	id := fs.Uint64("id", 0, "property id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	property, err := n.rental.GetProperty(*id)
	if err != nil {
		return fail(stderr, err)
	}
	return printJSON(stdout, property)
}

func runPropertySetAvailable(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("property set-available", stderr)
	id := fs.Uint64("id", 0, "property id")
	caller := fs.String("caller", "", "caller address")
	available := fs.Bool("available", true, "availability flag")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	callerAddr, err := parseAddr(*caller, "caller")
	if err != nil {
		return fail(stderr, err)
	}
	if err := n.rental.SetPropertyAvailability(*id, callerAddr, *available); err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}

func runPropertyByLandlord(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("property by-landlord", stderr)
	landlord := fs.String("landlord", "", "landlord address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, err := parseAddr(*landlord, "landlord")
	if err != nil {
		return fail(stderr, err)
	}
	ids, err := n.rental.LandlordProperties(addr)
	if err != nil {
		return fail(stderr, err)
	}
	return printJSON(stdout, ids)
}
