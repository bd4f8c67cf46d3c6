package yieldfarm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CatalogEntry is one strategy definition in the bootstrap catalog file.
type CatalogEntry struct {
	Protocol     string `yaml:"protocol"`
	DepositToken string `yaml:"depositToken"`
	YieldToken   string `yaml:"yieldToken"`
	APYBps       uint32 `yaml:"apyBps"`
	Tier         string `yaml:"tier"`
}

type catalogFile struct {
	Strategies []CatalogEntry `yaml:"strategies"`
}

// LoadCatalog parses a YAML strategy catalog into validated strategy records.
// IDs are left unset; the registry assigns them on registration.
func LoadCatalog(path string) ([]*Strategy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read strategy catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes and validates catalog bytes.
func ParseCatalog(raw []byte) ([]*Strategy, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse strategy catalog: %w", err)
	}
	if len(file.Strategies) == 0 {
		return nil, fmt.Errorf("strategy catalog is empty")
	}
	strategies := make([]*Strategy, 0, len(file.Strategies))
	for i, entry := range file.Strategies {
		tier, err := ParseRiskTier(entry.Tier)
		if err != nil {
			return nil, fmt.Errorf("strategy catalog entry %d: %w", i, err)
		}
		strategy, err := SanitizeStrategy(&Strategy{
			Protocol:     entry.Protocol,
			DepositToken: entry.DepositToken,
			YieldToken:   entry.YieldToken,
			APYBps:       entry.APYBps,
			Tier:         tier,
			Active:       true,
		})
		if err != nil {
			return nil, fmt.Errorf("strategy catalog entry %d: %w", i, err)
		}
		strategies = append(strategies, strategy)
	}
	return strategies, nil
}

// Bootstrap registers every catalog strategy that is not already present,
// matching on protocol name. Intended for node startup.
func Bootstrap(engine *Engine, strategies []*Strategy, admin [20]byte) error {
	for _, s := range strategies {
		if _, err := engine.RegisterStrategy(s.Protocol, s.DepositToken, s.YieldToken, s.APYBps, s.Tier, admin); err != nil {
			return fmt.Errorf("bootstrap strategy %q: %w", s.Protocol, err)
		}
	}
	return nil
}
