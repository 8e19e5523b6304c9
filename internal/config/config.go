package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Clock sources.
const (
	ClockSystem = "system"
	ClockChain  = "chain"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	LogLevel     string
	StatePath    string
	PGDSN        string
	JournalPath  string
	Clock        string
	RPCURL       string
	At           uint64
	MaxRetries   int
	RetryBackoff time.Duration
	Listen       string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STAKING")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("state", "./data/state.json")
	v.SetDefault("journal", "./data/operations.jsonl")
	v.SetDefault("clock", ClockSystem)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("listen", ":8080")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	at, err := ParseTimestamp(v.GetString("at"))
	if err != nil {
		return Config{}, fmt.Errorf("parse at: %w", err)
	}

	cfg := Config{
		LogLevel:     v.GetString("log-level"),
		StatePath:    v.GetString("state"),
		PGDSN:        v.GetString("pg-dsn"),
		JournalPath:  v.GetString("journal"),
		Clock:        strings.ToLower(strings.TrimSpace(v.GetString("clock"))),
		RPCURL:       v.GetString("rpc"),
		At:           at,
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		Listen:       v.GetString("listen"),
	}

	if cfg.MaxRetries < 0 {
		return Config{}, fmt.Errorf("max-retries must not be negative, got %d", cfg.MaxRetries)
	}

	switch cfg.Clock {
	case ClockSystem:
	case ClockChain:
		if cfg.RPCURL == "" && cfg.At == 0 {
			return Config{}, fmt.Errorf("rpc url is required for the chain clock")
		}
	default:
		return Config{}, fmt.Errorf("unknown clock %q", cfg.Clock)
	}

	return cfg, nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339). Empty input
// yields 0.
func ParseTimestamp(input string) (uint64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, nil
	}

	if isNumeric(input) {
		return strconv.ParseUint(input, 10, 64)
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	if tm.Unix() < 0 {
		return 0, fmt.Errorf("timestamp %s before unix epoch", input)
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
