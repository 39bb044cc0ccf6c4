// Package config loads daemon configuration: defaults, then an optional
// YAML file, then a .env file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/holiman/uint256"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/SAFERMOON/SAFERWINNING/internal/asset"
	"github.com/SAFERMOON/SAFERWINNING/internal/contest"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Contest ContestConfig `yaml:"contest"`
	Asset   AssetConfig   `yaml:"asset"`
	Oracle  OracleConfig  `yaml:"oracle"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
}

type ServerConfig struct {
	Host              string   `yaml:"host" env:"SERVER_HOST"`
	Port              int      `yaml:"port" env:"SERVER_PORT"`
	RateLimit         int      `yaml:"rate_limit" env:"SERVER_RATE_LIMIT"`
	RateBurst         int      `yaml:"rate_burst" env:"SERVER_RATE_BURST"`
	RequireNeoAddress bool     `yaml:"require_neo_address" env:"SERVER_REQUIRE_NEO_ADDRESS"`
	CORSOrigins       []string `yaml:"cors_origins"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// ContestConfig carries amounts as base-10 strings.
type ContestConfig struct {
	Owner                    string `yaml:"owner" env:"CONTEST_OWNER"`
	Account                  string `yaml:"account" env:"CONTEST_ACCOUNT"`
	MaxEntriesPerParticipant string `yaml:"max_entries_per_participant" env:"CONTEST_MAX_ENTRIES"`
	MinDepositEntries        string `yaml:"min_deposit_entries" env:"CONTEST_MIN_DEPOSIT"`
	RewardAmount             string `yaml:"reward_amount" env:"CONTEST_REWARD_AMOUNT"`
	DrawFee                  int64  `yaml:"draw_fee" env:"CONTEST_DRAW_FEE"`
	RoundMode                string `yaml:"round_mode" env:"CONTEST_ROUND_MODE"`
	DrawSchedule             string `yaml:"draw_schedule" env:"CONTEST_DRAW_SCHEDULE"`
}

type AssetConfig struct {
	TotalSupply      string   `yaml:"total_supply" env:"ASSET_TOTAL_SUPPLY"`
	Genesis          string   `yaml:"genesis" env:"ASSET_GENESIS"`
	TaxFeeBP         uint64   `yaml:"tax_fee_bp" env:"ASSET_TAX_FEE_BP"`
	LiquidityFeeBP   uint64   `yaml:"liquidity_fee_bp" env:"ASSET_LIQUIDITY_FEE_BP"`
	LiquidityAccount string   `yaml:"liquidity_account" env:"ASSET_LIQUIDITY_ACCOUNT"`
	FeeExempt        []string `yaml:"fee_exempt"`
	RewardExcluded   []string `yaml:"reward_excluded"`
}

type OracleConfig struct {
	SigningSecret  string `yaml:"signing_secret" env:"ORACLE_SIGNING_SECRET"`
	QueueSize      int    `yaml:"queue_size" env:"ORACLE_QUEUE_SIZE"`
	InitialFunding int64  `yaml:"initial_funding" env:"ORACLE_INITIAL_FUNDING"`
}

type StorageConfig struct {
	Driver        string `yaml:"driver" env:"STORAGE_DRIVER"`
	PostgresDSN   string `yaml:"postgres_dsn" env:"STORAGE_POSTGRES_DSN"`
	RedisAddr     string `yaml:"redis_addr" env:"STORAGE_REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"STORAGE_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"STORAGE_REDIS_DB"`
	RedisPrefix   string `yaml:"redis_prefix" env:"STORAGE_REDIS_PREFIX"`
}

// AuthConfig selects JWT verification. With no public key the daemon trusts
// the X-User-ID header, which is only suitable for local development.
type AuthConfig struct {
	PublicKeyPath string `yaml:"public_key_path" env:"AUTH_PUBLIC_KEY_PATH"`
	PublicKeyPEM  string `yaml:"-" env:"AUTH_PUBLIC_KEY"`
}

// Default returns a configuration runnable on a laptop.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      8080,
			RateLimit: 20,
			RateBurst: 40,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Contest: ContestConfig{
			Owner:                    "owner",
			Account:                  "contest",
			MaxEntriesPerParticipant: "1000000000000000000000", // 1e21
			MinDepositEntries:        "0",
			RewardAmount:             "0",
			DrawFee:                  1,
			RoundMode:                string(contest.RoundModeSingle),
		},
		Asset: AssetConfig{
			TotalSupply:      "1000000000000000000000000", // 1e15 tokens at 9 decimals
			Genesis:          "owner",
			TaxFeeBP:         500,
			LiquidityFeeBP:   500,
			LiquidityAccount: "liquidity",
		},
		Oracle:  OracleConfig{QueueSize: 100},
		Storage: StorageConfig{Driver: DriverMemory, RedisPrefix: "saferwinning"},
	}
}

// Load reads path (optional), then .env, then the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if _, err := c.Contest.Build(); err != nil {
		return err
	}
	if c.Contest.DrawSchedule != "" {
		if _, err := cron.ParseStandard(c.Contest.DrawSchedule); err != nil {
			return fmt.Errorf("contest.draw_schedule: %w", err)
		}
	}
	if _, err := c.Asset.Build(); err != nil {
		return err
	}
	// Credited units are reflection units; the pool must keep earning
	// reflections for withdrawals to stay covered.
	for _, id := range c.Asset.RewardExcluded {
		if strings.TrimSpace(id) == c.Contest.Account {
			return fmt.Errorf("asset.reward_excluded must not contain the contest account %q", id)
		}
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
		}
	case DriverRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("storage.redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Oracle.InitialFunding < 0 {
		return fmt.Errorf("oracle.initial_funding must be >= 0")
	}
	return nil
}

// Build converts to the engine's configuration.
func (c ContestConfig) Build() (contest.Config, error) {
	maxEntries, err := contest.ParseAmount(c.MaxEntriesPerParticipant)
	if err != nil {
		return contest.Config{}, fmt.Errorf("contest.max_entries_per_participant: %w", err)
	}
	minDeposit, err := parseOptional(c.MinDepositEntries)
	if err != nil {
		return contest.Config{}, fmt.Errorf("contest.min_deposit_entries: %w", err)
	}
	reward, err := parseOptional(c.RewardAmount)
	if err != nil {
		return contest.Config{}, fmt.Errorf("contest.reward_amount: %w", err)
	}
	cfg := contest.Config{
		Owner:                    contest.ParticipantID(c.Owner),
		Account:                  contest.ParticipantID(c.Account),
		MaxEntriesPerParticipant: maxEntries,
		MinDepositEntries:        minDeposit,
		RewardAmount:             reward,
		DrawFee:                  c.DrawFee,
		RoundMode:                contest.RoundMode(strings.ToLower(c.RoundMode)),
	}
	if err := cfg.Validate(); err != nil {
		return contest.Config{}, fmt.Errorf("contest: %w", err)
	}
	return cfg, nil
}

// Build converts to the token's configuration.
func (a AssetConfig) Build() (asset.Config, error) {
	supply, err := contest.ParseAmount(a.TotalSupply)
	if err != nil {
		return asset.Config{}, fmt.Errorf("asset.total_supply: %w", err)
	}
	if a.Genesis == "" {
		return asset.Config{}, fmt.Errorf("asset.genesis is required")
	}
	if a.TaxFeeBP+a.LiquidityFeeBP > 10_000 {
		return asset.Config{}, fmt.Errorf("asset fees exceed 100%%")
	}
	return asset.Config{
		TotalSupply:      supply,
		Genesis:          contest.ParticipantID(a.Genesis),
		TaxFeeBP:         a.TaxFeeBP,
		LiquidityFeeBP:   a.LiquidityFeeBP,
		LiquidityAccount: contest.ParticipantID(a.LiquidityAccount),
		FeeExempt:        ids(a.FeeExempt),
		RewardExcluded:   ids(a.RewardExcluded),
	}, nil
}

// Addr is the HTTP listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PublicKey returns the configured PEM, reading the file when a path is set.
func (a AuthConfig) PublicKey() ([]byte, error) {
	if a.PublicKeyPEM != "" {
		return []byte(a.PublicKeyPEM), nil
	}
	if a.PublicKeyPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(a.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read auth public key: %w", err)
	}
	return data, nil
}

func parseOptional(s string) (*uint256.Int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return contest.ParseAmount(s)
}

func ids(in []string) []contest.ParticipantID {
	out := make([]contest.ParticipantID, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, contest.ParticipantID(s))
		}
	}
	return out
}
