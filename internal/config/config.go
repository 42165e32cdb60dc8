// Package config loads the scanner configuration from TOML and the account
// lists from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const DSNEnv = "HIVESCAN_DB_DSN"

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Workers        int    `toml:"workers"`
	WorkersPerHive int    `toml:"workers_per_hive"`
	Beehive        bool   `toml:"beehive"`
	StepLimit      int    `toml:"step_limit"`
	Scheduler      string `toml:"scheduler"`
	// Location is the initial grid center as "lat,lng".
	Location string `toml:"location"`

	ScanDelaySeconds             int `toml:"scan_delay_seconds"`
	MinSecondsLeft               int `toml:"min_seconds_left"`
	LoginRetries                 int `toml:"login_retries"`
	LoginDelaySeconds            int `toml:"login_delay_seconds"`
	MaxFailures                  int `toml:"max_failures"`
	MaxEmpty                     int `toml:"max_empty"`
	AccountSearchIntervalSeconds int `toml:"account_search_interval_seconds"`
	AccountRestIntervalSeconds   int `toml:"account_rest_interval_seconds"`
	PokestopRefreshSeconds       int `toml:"pokestop_refresh_seconds"`
	VersionCheckIntervalSeconds  int `toml:"version_check_interval_seconds"`
	OnDemandTimeoutSeconds       int `toml:"on_demand_timeout_seconds"`

	AccountMaxSpins    int     `toml:"account_max_spins"`
	AccountMaxThrows   int     `toml:"account_max_throws"`
	AccountMaxCatches  int     `toml:"account_max_catches"`
	AccountMaxLevel    int     `toml:"account_max_level"`
	HighLevelKph       float64 `toml:"hlvl_kph"`
	EncounterWhitelist []int   `toml:"encounter_whitelist"`

	GymInfo        bool   `toml:"gym_info"`
	NoJitter       bool   `toml:"no_jitter"`
	NoPokemon      bool   `toml:"no_pokemon"`
	APIVersion     string `toml:"api_version"`
	VersionURL     string `toml:"version_url"`
	NoVersionCheck bool   `toml:"no_version_check"`

	HashKeys      []string `toml:"hash_keys"`
	StatusName    string   `toml:"status_name"`
	StatsLogTimer int      `toml:"stats_log_timer"`
	ProxyFile     string   `toml:"proxy_file"`
	AccountsFile  string   `toml:"accounts_file"`

	Captcha  CaptchaConfig `toml:"captcha"`
	Webhooks WebhookConfig `toml:"webhooks"`
	Gateway  GatewayConfig `toml:"gateway"`
	HTTP     HTTPConfig    `toml:"http"`
	Feed     FeedConfig    `toml:"feed"`
	Storage  StorageConfig `toml:"storage"`
}

type CaptchaConfig struct {
	Solving        bool   `toml:"solving"`
	Key            string `toml:"key"`
	URL            string `toml:"url"`
	RefreshSeconds int    `toml:"refresh_seconds"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type WebhookConfig struct {
	URLs             []string `toml:"urls"`
	Whitelist        []int    `toml:"whitelist"`
	Blacklist        []int    `toml:"blacklist"`
	SchedulerUpdates bool     `toml:"scheduler_updates"`
	ArchiveDir       string   `toml:"archive_dir"`
	TimeoutSeconds   int      `toml:"timeout_seconds"`
}

type GatewayConfig struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type HTTPConfig struct {
	Addr  string `toml:"addr"`
	Token string `toml:"token"`
}

type FeedConfig struct {
	Addr string `toml:"addr"`
}

type StorageConfig struct {
	// Driver is postgres, sqlite or memory.
	Driver        string `toml:"driver"`
	DSN           string `toml:"dsn"`
	MigrationsDir string `toml:"migrations_dir"`
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.toml")
}

// Dir is the hivescan directory under the XDG config home.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hivescan")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "hivescan")
}

func Default() *Config {
	return &Config{
		Workers:        1,
		WorkersPerHive: 1,
		StepLimit:      10,
		Scheduler:      "hexsearch",

		ScanDelaySeconds:            10,
		MinSecondsLeft:              60,
		LoginRetries:                3,
		LoginDelaySeconds:           6,
		MaxFailures:                 5,
		AccountRestIntervalSeconds:  7200,
		PokestopRefreshSeconds:      300,
		VersionCheckIntervalSeconds: 60,

		AccountMaxSpins:   20,
		AccountMaxThrows:  100,
		AccountMaxCatches: 50,
		AccountMaxLevel:   30,
		HighLevelKph:      25,

		APIVersion:    "0.57.2",
		VersionURL:    "https://pgorelease.nianticlabs.com/plfe/version",
		StatsLogTimer: 0,
		AccountsFile:  filepath.Join(Dir(), "accounts.yaml"),

		Captcha: CaptchaConfig{
			URL:            "http://2captcha.com",
			RefreshSeconds: 5,
			TimeoutSeconds: 180,
		},
		Webhooks: WebhookConfig{TimeoutSeconds: 2},
		Gateway:  GatewayConfig{TimeoutSeconds: 30},
		HTTP:     HTTPConfig{Addr: "127.0.0.1:5000"},
		Storage:  StorageConfig{Driver: "sqlite", DSN: filepath.Join(Dir(), "hivescan.db")},
	}
}

// Load reads path on top of Default, so keys missing from the file keep
// their default values. HIVESCAN_DB_DSN overrides storage.dsn.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(names, ", "))
	}
	cfg.backfill()
	if dsn := os.Getenv(DSNEnv); dsn != "" {
		cfg.Storage.DSN = dsn
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// backfill restores defaults for options that were explicitly blanked.
func (c *Config) backfill() {
	def := Default()
	if c.Scheduler == "" {
		c.Scheduler = def.Scheduler
	}
	if c.APIVersion == "" {
		c.APIVersion = def.APIVersion
	}
	if c.VersionURL == "" {
		c.VersionURL = def.VersionURL
	}
	if c.Captcha.URL == "" {
		c.Captcha.URL = def.Captcha.URL
	}
	if c.Captcha.RefreshSeconds == 0 {
		c.Captcha.RefreshSeconds = def.Captcha.RefreshSeconds
	}
	if c.Captcha.TimeoutSeconds == 0 {
		c.Captcha.TimeoutSeconds = def.Captcha.TimeoutSeconds
	}
	if c.Webhooks.TimeoutSeconds == 0 {
		c.Webhooks.TimeoutSeconds = def.Webhooks.TimeoutSeconds
	}
	if c.Gateway.TimeoutSeconds == 0 {
		c.Gateway.TimeoutSeconds = def.Gateway.TimeoutSeconds
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = def.Storage.Driver
	}
	if c.VersionCheckIntervalSeconds == 0 {
		c.VersionCheckIntervalSeconds = def.VersionCheckIntervalSeconds
	}
}

func (c *Config) Validate() error {
	var problems []string
	check := func(bad bool, msg string) {
		if bad {
			problems = append(problems, msg)
		}
	}
	check(c.Workers < 1, "workers must be at least 1")
	check(c.WorkersPerHive < 1, "workers_per_hive must be at least 1")
	check(c.StepLimit < 1, "step_limit must be at least 1")
	check(c.Scheduler != "hexsearch" && c.Scheduler != "spawnscan", "scheduler must be hexsearch or spawnscan")
	for name, v := range map[string]int{
		"scan_delay_seconds":              c.ScanDelaySeconds,
		"min_seconds_left":                c.MinSecondsLeft,
		"login_retries":                   c.LoginRetries,
		"login_delay_seconds":             c.LoginDelaySeconds,
		"max_failures":                    c.MaxFailures,
		"max_empty":                       c.MaxEmpty,
		"account_search_interval_seconds": c.AccountSearchIntervalSeconds,
		"account_rest_interval_seconds":   c.AccountRestIntervalSeconds,
		"pokestop_refresh_seconds":        c.PokestopRefreshSeconds,
		"on_demand_timeout_seconds":       c.OnDemandTimeoutSeconds,
		"account_max_spins":               c.AccountMaxSpins,
		"account_max_throws":              c.AccountMaxThrows,
		"account_max_catches":             c.AccountMaxCatches,
		"account_max_level":               c.AccountMaxLevel,
		"stats_log_timer":                 c.StatsLogTimer,
	} {
		check(v < 0, name+" must not be negative")
	}
	check(c.VersionCheckIntervalSeconds < 1, "version_check_interval_seconds must be at least 1")
	check(c.HighLevelKph < 0, "hlvl_kph must not be negative")
	check(c.Captcha.Solving && strings.TrimSpace(c.Captcha.Key) == "", "captcha.solving needs captcha.key")
	switch c.Storage.Driver {
	case "memory", "sqlite":
	case "postgres":
		check(strings.TrimSpace(c.Storage.DSN) == "", "storage.dsn is required for postgres")
	default:
		problems = append(problems, "storage.driver must be postgres, sqlite or memory")
	}
	if c.Location != "" {
		if _, _, err := ParseLocation(c.Location); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ParseLocation reads "lat,lng".
func ParseLocation(s string) (float64, float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("location %q must be lat,lng", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil || lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("location %q has an invalid latitude", s)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || lng < -180 || lng > 180 {
		return 0, 0, fmt.Errorf("location %q has an invalid longitude", s)
	}
	return lat, lng, nil
}

// Seconds converts an integer seconds option.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Runtime is the subset of options applied to a running scanner when the
// file changes.
type Runtime struct {
	MaxThrows        int
	MaxCatches       int
	MaxSpins         int
	StatsLogTimer    int
	SchedulerUpdates bool
}

func (c *Config) Runtime() Runtime {
	return Runtime{
		MaxThrows:        c.AccountMaxThrows,
		MaxCatches:       c.AccountMaxCatches,
		MaxSpins:         c.AccountMaxSpins,
		StatsLogTimer:    c.StatsLogTimer,
		SchedulerUpdates: c.Webhooks.SchedulerUpdates,
	}
}
