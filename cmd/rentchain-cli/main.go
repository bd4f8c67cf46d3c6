package main

import (
	"fmt"
	"os"
	"strings"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	configPath, rest := splitGlobalFlags(args)
	if len(rest) < 1 {
		printUsage(stderr)
		return 1
	}

	node, err := openNode(configPath)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	defer node.Close()

	switch rest[0] {
	case "property":
		return runPropertyCommand(node, rest[1:], stdout, stderr)
	case "rental":
		return runRentalCommand(node, rest[1:], stdout, stderr)
	case "escrow":
		return runEscrowCommand(node, rest[1:], stdout, stderr)
	case "dispute":
		return runDisputeCommand(node, rest[1:], stdout, stderr)
	case "yield":
		return runYieldCommand(node, rest[1:], stdout, stderr)
	case "account":
		return runAccountCommand(node, rest[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", rest[0])
		printUsage(stderr)
		return 1
	}
}

func splitGlobalFlags(args []string) (string, []string) {
	configPath := "./config.toml"
	for len(args) > 0 {
		switch {
		case args[0] == "--config" && len(args) > 1:
			configPath = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--config="):
			configPath = strings.TrimPrefix(args[0], "--config=")
			args = args[1:]
		default:
			return configPath, args
		}
	}
	return configPath, args
}

func printUsage(w *os.File) {
	fmt.Fprintln(w, `Usage: rentchain-cli [--config path] <command> <subcommand> [flags]

Commands:
  property  list | show | set-available | by-landlord
  rental    quote | book | cancel | activate | complete | dispute | transfer | show | by-tenant
  escrow    create | show | fund | complete | cancel | claim | landlord-default
  dispute   open | resolve | show
  yield     register | strategy | stake | estimate | collect | end
  account   balance | mint`)
}
