package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// envConfig is read from FINAUTH_* variables. Flags override it.
type envConfig struct {
	APIURL    string        `env:"API_URL,default=http://localhost:8000"`
	Timeout   time.Duration `env:"TIMEOUT,default=30s"`
	TokenFile string        `env:"TOKEN_FILE"`
	RedisAddr string        `env:"REDIS_ADDR"`
	Proactive bool          `env:"PROACTIVE_REFRESH,default=false"`
	Username  string        `env:"USERNAME"`
	Password  string        `env:"PASSWORD"`
	LogLevel  string        `env:"LOG_LEVEL,default=warn"`
	LogFormat string        `env:"LOG_FORMAT,default=text"`
}

func loadEnv(ctx context.Context, lookuper envconfig.Lookuper) (envConfig, error) {
	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}
	var cfg envConfig
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper("FINAUTH_", lookuper),
	}); err != nil {
		return envConfig{}, err
	}
	if cfg.TokenFile == "" {
		cfg.TokenFile = defaultTokenFile()
	}
	return cfg, nil
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".finauth", "tokens.json")
	}
	return filepath.Join(home, ".finauth", "tokens.json")
}
