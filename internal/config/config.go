package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"liquidityOracle/internal/model"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Endpoints       map[model.ChainID][]string
	Tokens          []model.TokenConfig
	Reference       *model.ReferenceConfig
	CosmosReference *model.CosmosReferenceConfig

	CacheTTL        time.Duration
	FetchTimeout    time.Duration
	CosmosLiveness  bool
	CosmosRateLimit float64
	CosmosRateBurst int

	SnapshotFile  string
	PGDSN         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string

	MetricsAddr   string
	WatchInterval time.Duration
	LogLevel      string
}

type tokenEntry struct {
	Chain        string `mapstructure:"chain"`
	Address      string `mapstructure:"address"`
	Decimals     int    `mapstructure:"decimals"`
	Pool         string `mapstructure:"pool"`
	Family       string `mapstructure:"family"`
	Side         string `mapstructure:"side"`
	PairDecimals int    `mapstructure:"pair-decimals"`
	PairDenom    string `mapstructure:"pair-denom"`
	TVLMethod    string `mapstructure:"tvl-method"`
}

type referenceEntry struct {
	Chain             string `mapstructure:"chain"`
	Pool              string `mapstructure:"pool"`
	Family            string `mapstructure:"family"`
	ReferenceIsToken0 bool   `mapstructure:"reference-is-token0"`
	ReferenceDecimals int    `mapstructure:"reference-decimals"`
	StableDecimals    int    `mapstructure:"stable-decimals"`
}

type cosmosReferenceEntry struct {
	PoolID         string `mapstructure:"pool-id"`
	BaseDenom      string `mapstructure:"base-denom"`
	BaseDecimals   int    `mapstructure:"base-decimals"`
	StableDenom    string `mapstructure:"stable-denom"`
	StableDecimals int    `mapstructure:"stable-decimals"`
}

// Load merges config file, environment variables, and flags into Config.
// Endpoint lists can be overridden per chain with ORACLE_ENDPOINTS_<CHAIN>.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ORACLE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("cache-ttl", 5*time.Minute)
	v.SetDefault("fetch-timeout", 20*time.Second)
	v.SetDefault("cosmos-liveness", true)
	v.SetDefault("cosmos-rate-limit", 5.0)
	v.SetDefault("cosmos-rate-burst", 5)
	v.SetDefault("redis-key", "liquidity-oracle:snapshot:latest")
	v.SetDefault("interval", time.Minute)
	v.SetDefault("log-level", "info")

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

	cfg := Config{
		Endpoints:       make(map[model.ChainID][]string),
		CacheTTL:        v.GetDuration("cache-ttl"),
		FetchTimeout:    v.GetDuration("fetch-timeout"),
		CosmosLiveness:  v.GetBool("cosmos-liveness"),
		CosmosRateLimit: v.GetFloat64("cosmos-rate-limit"),
		CosmosRateBurst: v.GetInt("cosmos-rate-burst"),
		SnapshotFile:    v.GetString("snapshot-file"),
		PGDSN:           v.GetString("pg-dsn"),
		RedisAddr:       v.GetString("redis-addr"),
		RedisPassword:   v.GetString("redis-password"),
		RedisDB:         v.GetInt("redis-db"),
		RedisKey:        v.GetString("redis-key"),
		MetricsAddr:     v.GetString("metrics-addr"),
		WatchInterval:   v.GetDuration("interval"),
		LogLevel:        v.GetString("log-level"),
	}

	for _, chainID := range model.AllChains() {
		if urls := getStringSlice(v, "endpoints."+string(chainID)); len(urls) > 0 {
			cfg.Endpoints[chainID] = urls
		}
	}

	var tokens []tokenEntry
	if err := v.UnmarshalKey("tokens", &tokens); err != nil {
		return Config{}, fmt.Errorf("parse tokens: %w", err)
	}
	for i, entry := range tokens {
		token, err := entry.toModel()
		if err != nil {
			return Config{}, fmt.Errorf("tokens[%d]: %w", i, err)
		}
		cfg.Tokens = append(cfg.Tokens, token)
	}

	if v.IsSet("reference") {
		var entry referenceEntry
		if err := v.UnmarshalKey("reference", &entry); err != nil {
			return Config{}, fmt.Errorf("parse reference: %w", err)
		}
		ref, err := entry.toModel()
		if err != nil {
			return Config{}, fmt.Errorf("reference: %w", err)
		}
		cfg.Reference = &ref
	}

	if v.IsSet("cosmos-reference") {
		var entry cosmosReferenceEntry
		if err := v.UnmarshalKey("cosmos-reference", &entry); err != nil {
			return Config{}, fmt.Errorf("parse cosmos reference: %w", err)
		}
		ref, err := entry.toModel()
		if err != nil {
			return Config{}, fmt.Errorf("cosmos-reference: %w", err)
		}
		cfg.CosmosReference = &ref
	}

	return cfg, nil
}

func (e tokenEntry) toModel() (model.TokenConfig, error) {
	chainID, err := model.ParseChainID(e.Chain)
	if err != nil {
		return model.TokenConfig{}, err
	}
	family, err := model.ParseFamily(e.Family)
	if err != nil {
		return model.TokenConfig{}, err
	}
	side, err := model.ParseSide(e.Side)
	if err != nil {
		return model.TokenConfig{}, err
	}
	decimals, err := toDecimals("decimals", e.Decimals)
	if err != nil {
		return model.TokenConfig{}, err
	}
	pairDecimals, err := toDecimals("pair-decimals", e.PairDecimals)
	if err != nil {
		return model.TokenConfig{}, err
	}
	return model.TokenConfig{
		Chain:        chainID,
		Address:      strings.TrimSpace(e.Address),
		Decimals:     decimals,
		Pool:         strings.TrimSpace(e.Pool),
		Family:       family,
		Side:         side,
		PairDecimals: pairDecimals,
		PairDenom:    strings.TrimSpace(e.PairDenom),
		TVLMethod:    model.TVLMethod(strings.ToLower(strings.TrimSpace(e.TVLMethod))),
	}, nil
}

func (e referenceEntry) toModel() (model.ReferenceConfig, error) {
	chainID, err := model.ParseChainID(e.Chain)
	if err != nil {
		return model.ReferenceConfig{}, err
	}
	family, err := model.ParseFamily(e.Family)
	if err != nil {
		return model.ReferenceConfig{}, err
	}
	refDecimals, err := toDecimals("reference-decimals", e.ReferenceDecimals)
	if err != nil {
		return model.ReferenceConfig{}, err
	}
	stableDecimals, err := toDecimals("stable-decimals", e.StableDecimals)
	if err != nil {
		return model.ReferenceConfig{}, err
	}
	return model.ReferenceConfig{
		Chain:             chainID,
		Pool:              strings.TrimSpace(e.Pool),
		Family:            family,
		ReferenceIsToken0: e.ReferenceIsToken0,
		ReferenceDecimals: refDecimals,
		StableDecimals:    stableDecimals,
	}, nil
}

func (e cosmosReferenceEntry) toModel() (model.CosmosReferenceConfig, error) {
	baseDecimals, err := toDecimals("base-decimals", e.BaseDecimals)
	if err != nil {
		return model.CosmosReferenceConfig{}, err
	}
	stableDecimals, err := toDecimals("stable-decimals", e.StableDecimals)
	if err != nil {
		return model.CosmosReferenceConfig{}, err
	}
	return model.CosmosReferenceConfig{
		PoolID:         strings.TrimSpace(e.PoolID),
		BaseDenom:      strings.TrimSpace(e.BaseDenom),
		BaseDecimals:   baseDecimals,
		StableDenom:    strings.TrimSpace(e.StableDenom),
		StableDecimals: stableDecimals,
	}, nil
}

func toDecimals(name string, value int) (uint8, error) {
	if value < 0 || value > 255 {
		return 0, fmt.Errorf("%s out of range: %d", name, value)
	}
	return uint8(value), nil
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
