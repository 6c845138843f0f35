package app

import (
	"github.com/louisbranch/oversight/internal/platform/config"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/chain"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/guard"
)

// Config holds ledger storage and policy settings shared by the binaries.
type Config struct {
	// DBPath is the SQLite journal file. Empty keeps records in memory only.
	DBPath string `env:"DB_PATH"     envDefault:"data/oversight.db"`
	// Hasher names the chain hash function: rolling or sha256.
	Hasher string `env:"HASHER"      envDefault:"rolling"`
	// GuardTerms is a comma-separated denylist for record text.
	GuardTerms string `env:"GUARD_TERMS"`
}

// LoadConfig reads Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) hasher() (chain.Hasher, error) {
	return chain.HasherByName(c.Hasher)
}

func (c Config) denylist() guard.Denylist {
	return guard.NewDenylist(config.SplitList(c.GuardTerms))
}
