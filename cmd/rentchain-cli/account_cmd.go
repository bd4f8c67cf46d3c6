package main

import (
	"fmt"
	"io"
)

func runAccountCommand(n *node, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: account <balance|mint> [flags]")
		return 1
	}
	switch args[0] {
	case "balance":
		return runAccountBalance(n, args[1:], stdout, stderr)
	case "mint":
		return runAccountMint(n, args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown account subcommand: %s\n", args[0])
		return 1
	}
}

func runAccountBalance(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("account balance", stderr)
	addr := fs.String("address", "", "account address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	account, err := parseAddr(*addr, "address")
	if err != nil {
		return fail(stderr, err)
	}
	balance, err := n.ledger.BalanceOf(account)
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, balance.String())
	return 0
}

func runAccountMint(n *node, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("account mint", stderr)
	addr := fs.String("address", "", "account address")
	amount := fs.String("amount", "", "amount in smallest units")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	account, err := parseAddr(*addr, "address")
	if err != nil {
		return fail(stderr, err)
	}
	value, err := parseAmount(*amount, "amount")
	if err != nil {
		return fail(stderr, err)
	}
	if err := n.ledger.Mint(account, value); err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}
