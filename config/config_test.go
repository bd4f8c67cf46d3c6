package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint32(300), cfg.PlatformFeeBps)
	require.Equal(t, uint32(200), cfg.TransferFeeBps)
	require.Equal(t, uint32(500), cfg.InsuranceFundBps)
	require.FileExists(t, path)

	// Reloading the written file round-trips.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.TreasuryAddress, reloaded.TreasuryAddress)
}

func TestLoadAppliesDefaultsAndParsesRoles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	admin := "0x" + strings.Repeat("ad", 20)
	body := `
TreasuryAddress = "0x` + strings.Repeat("fc", 20) + `"
InsuranceFund = "0x` + strings.Repeat("fd", 20) + `"
Admins = ["` + admin + `"]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "./rentchain-data", cfg.DataDir)
	require.Equal(t, uint32(300), cfg.PlatformFeeBps)

	admins, arbitrators, err := cfg.RoleGrants()
	require.NoError(t, err)
	require.Len(t, admins, 1)
	require.Empty(t, arbitrators)
	require.Equal(t, byte(0xad), admins[0][0])
}

func TestLoadRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"missing treasury": `InsuranceFund = "0x` + strings.Repeat("fd", 20) + `"`,
		"bad address": `
TreasuryAddress = "not-an-address"
InsuranceFund = "0x` + strings.Repeat("fd", 20) + `"
`,
		"fee out of range": `
TreasuryAddress = "0x` + strings.Repeat("fc", 20) + `"
InsuranceFund = "0x` + strings.Repeat("fd", 20) + `"
PlatformFeeBps = 10001
`,
	}
	for name, body := range cases {
		path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".toml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		_, err := Load(path)
		require.Error(t, err, name)
	}
}

func TestVaultOverrides(t *testing.T) {
	cfg := &Config{
		EscrowVault: "0x" + strings.Repeat("ee", 20),
	}
	rentalVault, escrowVault, yieldVault, err := cfg.Vaults()
	require.NoError(t, err)
	require.Equal(t, [20]byte{}, rentalVault)
	require.Equal(t, [20]byte{}, yieldVault)
	require.Equal(t, byte(0xee), escrowVault[0])
}
