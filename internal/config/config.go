package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when AUTORSA_CONFIG is unset.
const DefaultPath = "config/autorsa.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the autorsa services.
type Config struct {
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
	Storage   Storage   `yaml:"storage"`
	Alpaca    Alpaca    `yaml:"alpaca"`
	Paper     Paper     `yaml:"paper"`
	Brokers   Brokers   `yaml:"brokers"`
	Mode      Mode      `yaml:"mode"`
	Trading   Trading   `yaml:"trading"`
	Reporting Reporting `yaml:"reporting"`
}

// Server holds network listener configuration.
type Server struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	GRPCPort  int    `yaml:"grpc_port"`
	QueueSize int    `yaml:"queue_size"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Storage holds paths for the order journal and the holdings archive. An
// empty path disables the corresponding store.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
}

// Enabled reports whether credentials are present.
func (a Alpaca) Enabled() bool {
	return a.APIKey != "" && a.APISecret != ""
}

// Paper seeds the in-memory paper brokerage.
type Paper struct {
	Enabled      bool               `yaml:"enabled"`
	Accounts     []string           `yaml:"accounts"`
	StartingCash float64            `yaml:"starting_cash"`
	Prices       map[string]float64 `yaml:"prices"`
	DefaultPrice float64            `yaml:"default_price"`
	// Isolated runs the paper broker on the isolated execution context.
	Isolated bool `yaml:"isolated"`
}

// Brokers lists the broker set used by requests that do not name one.
type Brokers struct {
	Default  []string `yaml:"default"`
	Excluded []string `yaml:"excluded"`
}

// Mode carries the explicit runtime flags.
type Mode struct {
	// Container is passed to brokers whose login needs to know it runs in a
	// container.
	Container bool `yaml:"container"`
	// Danger lifts the amount cap in Trading.
	Danger bool `yaml:"danger"`
}

// Trading defines pre-trade limits.
type Trading struct {
	MaxAmount float64 `yaml:"max_amount"`
}

// Reporting configures where progress messages are delivered.
type Reporting struct {
	WebhookURL        string `yaml:"webhook_url"`
	WebhookTimeoutSec int    `yaml:"webhook_timeout_sec"`
	WebhookRatePerMin int    `yaml:"webhook_rate_per_min"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the configuration file path, honouring AUTORSA_CONFIG.
func Path() string {
	if v := os.Getenv("AUTORSA_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, fills defaults, and then applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults with
// environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		cfg = Default()
		applyEnvOverrides(cfg)
		return cfg, nil
	}
	return cfg, err
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:  Server{Host: "0.0.0.0", Port: 8080, GRPCPort: 9090, QueueSize: 16},
		Logging: Logging{Level: "info", Format: "json"},
		Storage: Storage{DataDir: "data", SQLitePath: "data/autorsa.db"},
		Paper:   Paper{Enabled: true, StartingCash: 100000, DefaultPrice: 10},
		Brokers: Brokers{Default: []string{
			"bbae", "chase", "dspac", "fennel", "firstrade", "public",
			"schwab", "sofi", "tastytrade", "tradier", "webull", "robinhood",
		}},
		Trading: Trading{MaxAmount: 100},
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v, ok := envBool("AUTORSA_DOCKER"); ok {
		cfg.Mode.Container = v
	}
	if v, ok := envBool("DANGER_MODE"); ok {
		cfg.Mode.Danger = v
	}
	if v, ok := envBool("PAPER_ISOLATED"); ok {
		cfg.Paper.Isolated = v
	}

	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Reporting.WebhookURL = v
	}
	if v := os.Getenv("AUTORSA_BROKERS"); v != "" {
		cfg.Brokers.Default = splitList(v)
	}

	// Standard Alpaca env vars (highest priority, canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("APCA_API_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, false
	}
	return b, true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
