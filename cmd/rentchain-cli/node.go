package main

import (
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"

	"rentchain/config"
	"rentchain/native/bank"
	"rentchain/native/common"
	"rentchain/native/escrow"
	"rentchain/native/rental"
	"rentchain/native/yieldfarm"
	"rentchain/observability/logging"
	"rentchain/storage"
)

// node bundles the wired engines over a local Bolt-backed ledger.
type node struct {
	cfg    *config.Config
	store  *storage.Store
	ledger *bank.Ledger
	rental *rental.Engine
	escrow *escrow.Engine
	yield  *yieldfarm.Engine
}

func openNode(configPath string) (*node, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.Setup("rentchain-cli", cfg.Environment)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	store, err := storage.Open(filepath.Join(cfg.DataDir, "state.db"))
	if err != nil {
		return nil, err
	}
	rentalVault, escrowVault, yieldVault, err := cfg.Vaults()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	store.SetVaults(rentalVault, escrowVault, yieldVault)

	treasury, err := cfg.Treasury()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	insurance, err := cfg.Insurance()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	admins, arbitrators, err := cfg.RoleGrants()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	roles := common.NewRoleSet()
	for _, addr := range admins {
		roles.Grant(common.RoleAdmin, addr)
	}
	for _, addr := range arbitrators {
		roles.Grant(common.RoleArbitrator, addr)
	}

	ledger := bank.NewLedger(store)

	rentalEngine := rental.NewEngine()
	rentalEngine.SetState(store)
	rentalEngine.SetLedger(ledger)
	rentalEngine.SetRoles(roles)
	rentalEngine.SetTreasury(treasury)
	rentalEngine.SetPlatformFeeBps(cfg.PlatformFeeBps)
	rentalEngine.SetTransferFeeBps(cfg.TransferFeeBps)

	escrowEngine := escrow.NewEngine()
	escrowEngine.SetState(store)
	escrowEngine.SetLedger(ledger)
	escrowEngine.SetRoles(roles)
	escrowEngine.SetTreasury(treasury)
	escrowEngine.SetInsuranceFund(insurance)
	escrowEngine.SetInsuranceFundBps(cfg.InsuranceFundBps)

	yieldEngine := yieldfarm.NewEngine()
	yieldEngine.SetState(store)
	yieldEngine.SetLedger(ledger)
	yieldEngine.SetRoles(roles)
	yieldEngine.SetTreasury(treasury)
	yieldEngine.SetInsuranceFund(insurance)
	yieldEngine.SetInsuranceFundBps(cfg.InsuranceFundBps)
	// External venues are simulated for local operation; principal stays in
	// ledger custody and only the accrual math runs.
	yieldEngine.SetVaultProvider(simProvider{})
	settlement, err := store.EscrowVaultAddress()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	yieldEngine.SetSettlement(settlement)

	if cfg.StrategyCatalogPath != "" {
		strategies, err := yieldfarm.LoadCatalog(cfg.StrategyCatalogPath)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		if len(admins) > 0 {
			needed, err := missingStrategies(yieldEngine, strategies)
			if err != nil {
				_ = store.Close()
				return nil, err
			}
			if err := yieldfarm.Bootstrap(yieldEngine, needed, admins[0]); err != nil {
				_ = store.Close()
				return nil, err
			}
			logging.WithModule(logger, "yield").Info("strategy catalog bootstrapped",
				slog.Int("registered", len(needed)))
		}
	}

	logger.Info("ledger opened",
		slog.String("dataDir", cfg.DataDir),
		logging.Address("treasury", treasury),
		logging.Address("insuranceFund", insurance))

	return &node{
		cfg:    cfg,
		store:  store,
		ledger: ledger,
		rental: rentalEngine,
		escrow: escrowEngine,
		yield:  yieldEngine,
	}, nil
}

// missingStrategies filters out catalog entries already registered, matching
// on protocol name so restarts do not duplicate the registry.
func missingStrategies(engine *yieldfarm.Engine, catalog []*yieldfarm.Strategy) ([]*yieldfarm.Strategy, error) {
	registered := map[string]bool{}
	for id := uint64(1); ; id++ {
		strategy, err := engine.GetStrategy(id)
		if err != nil {
			break
		}
		registered[strategy.Protocol] = true
	}
	var needed []*yieldfarm.Strategy
	for _, s := range catalog {
		if !registered[s.Protocol] {
			needed = append(needed, s)
		}
	}
	return needed, nil
}

func (n *node) Close() {
	if n != nil && n.store != nil {
		_ = n.store.Close()
	}
}

// simProvider satisfies the strategy vault capability without an external
// venue.
type simProvider struct{}

type simVault struct{}

func (simProvider) StrategyVault(uint64) (yieldfarm.StrategyVault, error) {
	return simVault{}, nil
}

func (simVault) Deposit(*big.Int) error { return nil }

func (simVault) Withdraw(amount *big.Int) (*big.Int, error) {
	return new(big.Int).Set(amount), nil
}

func parseAddr(raw, flagName string) ([20]byte, error) {
	addr, err := bank.ParseAddress(raw)
	if err != nil {
		return [20]byte{}, fmt.Errorf("--%s: %w", flagName, err)
	}
	return addr, nil
}

func parseAmount(raw, flagName string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("--%s: invalid amount %q", flagName, raw)
	}
	return amount, nil
}
