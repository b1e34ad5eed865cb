package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"floorVault/internal/model"
	"floorVault/internal/supply"
)

// EnvPrefix prefixes every environment variable, e.g. KEEPER_PRIVATE_KEY.
const EnvPrefix = "KEEPER"

// Config holds keeper settings loaded from flags, env, or config file.
type Config struct {
	RPCURL      string
	Pool        string
	Vault       string
	Token0      string
	Token1      string
	PrivateKey  string
	Authorities []string

	PGDSN           string
	StateFile       string
	KeeperStateFile string
	EventsOut       string
	HTTPAddr        string

	Interval     time.Duration
	PollInterval time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	Samples      int
	AdjustEvery  time.Duration
	LogLevel     string

	Params model.ProtocolParameters
	Supply supply.Config
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.PrivateKey != "" {
		c.PrivateKey = "***"
	}
	if c.PGDSN != "" {
		c.PGDSN = "***"
	}
	return c
}

// newViper wires env, defaults, flags and the optional config file.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]any) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	defaults := map[string]any{
		"state-file":    "./data/positions.json",
		"keeper-state":  "./data/keeper.json",
		"events-out":    "./data/events.jsonl",
		"http-addr":     ":8080",
		"interval":      time.Minute,
		"poll-interval": 2 * time.Second,
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
		"samples":       48,
		"adjust-every":  24 * time.Hour,
	}
	for key, value := range parameterDefaults() {
		defaults[key] = value
	}

	v, err := newViper(cfgFile, flags, defaults)
	if err != nil {
		return Config{}, err
	}

	params, err := protocolParameters(v)
	if err != nil {
		return Config{}, err
	}
	supplyCfg, err := supplyConfig(v)
	if err != nil {
		return Config{}, err
	}
	supplyCfg.IncludeStaked = params.IncludeStaked

	cfg := Config{
		RPCURL:          v.GetString("rpc"),
		Pool:            v.GetString("pool"),
		Vault:           v.GetString("vault"),
		Token0:          v.GetString("token0"),
		Token1:          v.GetString("token1"),
		PrivateKey:      v.GetString("private-key"),
		Authorities:     getStringSlice(v, "authority"),
		PGDSN:           v.GetString("pg-dsn"),
		StateFile:       v.GetString("state-file"),
		KeeperStateFile: v.GetString("keeper-state"),
		EventsOut:       v.GetString("events-out"),
		HTTPAddr:        v.GetString("http-addr"),
		Interval:        v.GetDuration("interval"),
		PollInterval:    v.GetDuration("poll-interval"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		Samples:         v.GetInt("samples"),
		AdjustEvery:     v.GetDuration("adjust-every"),
		LogLevel:        v.GetString("log-level"),
		Params:          params,
		Supply:          supplyCfg,
	}
	return cfg, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
