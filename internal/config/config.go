package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type (
	Config struct {
		BotTokens       []string `env:"TOKENS,required"`
		EnabledHandlers []string `env:"HANDLERS,default=enforcer,admin,points"`
		DBPath          string   `env:"DB_PATH,default=guardbot.db"`
		PolicyPath      string   `env:"POLICY_PATH,default=etc/policy.yml"`
		LogLevel        int      `env:"LOG_LEVEL,default=4"`
		DotPath         string   `env:"DOT_PATH,default=~/.guardbot"`
		MetricsAddr     string   `env:"METRICS_ADDR,default=:2112"`
		Ledger          Ledger
	}

	Ledger struct {
		BaseURL    string        `env:"LEDGER_BASE_URL,required"`
		ModifyPath string        `env:"LEDGER_MODIFY_PATH,default=points/modify"`
		QueryPath  string        `env:"LEDGER_QUERY_PATH,default=points/query"`
		RankPath   string        `env:"LEDGER_RANK_PATH,default=points/ranking"`
		Timeout    time.Duration `env:"LEDGER_TIMEOUT,default=10s"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg := &Config{}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper("GB_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		if err := cfg.validate(); err != nil {
			globalErr = fmt.Errorf("validate config: %w", err)
			return
		}
		home, err := os.UserHomeDir()
		if err != nil {
			globalErr = fmt.Errorf("get user home directory: %w", err)
			return
		}
		cfg.DotPath = strings.Replace(cfg.DotPath, "~", home, 1)
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}

func (c *Config) validate() error {
	if !strings.HasPrefix(c.Ledger.BaseURL, "http://") && !strings.HasPrefix(c.Ledger.BaseURL, "https://") {
		return fmt.Errorf("ledger base url %q must start with http:// or https://", c.Ledger.BaseURL)
	}
	if c.Ledger.Timeout <= 0 {
		return fmt.Errorf("ledger timeout must be positive")
	}
	for _, token := range c.BotTokens {
		if strings.TrimSpace(token) == "" {
			return fmt.Errorf("empty bot token")
		}
	}
	return nil
}
