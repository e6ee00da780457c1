package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	GCSurplus GCSurplusConfig `mapstructure:"gcsurplus"`
	GSA       GSAConfig       `mapstructure:"gsa"`
	Treasury  TreasuryConfig  `mapstructure:"treasury"`
	StateDept StateDeptConfig `mapstructure:"state_dept"`
	Renderer  RendererConfig  `mapstructure:"renderer"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// SchedulerConfig drives the recurring per-source scrape jobs. IntervalHours
// and ScheduleTimes are keyed by source name; explicit "HH:MM" schedule times
// (comma separated for several daily triggers) override the interval for that
// source.
type SchedulerConfig struct {
	Enabled          bool              `mapstructure:"enabled"`
	IntervalHours    map[string]int    `mapstructure:"interval_hours"`
	ScheduleTimes    map[string]string `mapstructure:"schedule_times"`
	MisfireGrace     time.Duration     `mapstructure:"misfire_grace"`
	RunInitialScrape bool              `mapstructure:"run_initial_scrape"`
	InitialStagger   time.Duration     `mapstructure:"initial_stagger"`
}

type ScrapeConfig struct {
	RequestTimeout          time.Duration `mapstructure:"request_timeout"`
	RequestSpacing          time.Duration `mapstructure:"request_spacing"`
	RetentionDays           int           `mapstructure:"retention_days"`
	DeleteClosedImmediately bool          `mapstructure:"delete_closed_immediately"`
}

type GCSurplusConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	MaxPages     int    `mapstructure:"max_pages"`
	FetchDetails bool   `mapstructure:"fetch_details"`
}

type GSAConfig struct {
	APIBaseURL string `mapstructure:"api_base_url"`
	APIKey     string `mapstructure:"api_key"`
}

type TreasuryConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	ListingURL string `mapstructure:"listing_url"`
}

type StateDeptConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	MaxPages int    `mapstructure:"max_pages"`
}

// RendererConfig controls the optional page-render capability the GSA adapter
// uses to read explicit timezone markers off auction detail pages. Disabled
// by default; the adapter falls back to location-based inference.
type RendererConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8001")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval_hours", map[string]int{
		"gcsurplus":  24,
		"gsa":        12,
		"treasury":   48,
		"state_dept": 24,
	})
	v.SetDefault("scheduler.schedule_times", map[string]string{})
	v.SetDefault("scheduler.misfire_grace", "1h")
	v.SetDefault("scheduler.run_initial_scrape", false)
	v.SetDefault("scheduler.initial_stagger", "5s")

	v.SetDefault("scrape.request_timeout", "30s")
	v.SetDefault("scrape.request_spacing", "1s")
	v.SetDefault("scrape.retention_days", 0)
	v.SetDefault("scrape.delete_closed_immediately", true)

	v.SetDefault("gcsurplus.base_url", "https://www.gcsurplus.ca")
	v.SetDefault("gcsurplus.max_pages", 10)
	v.SetDefault("gcsurplus.fetch_details", false)
	v.SetDefault("gsa.api_base_url", "https://api.gsa.gov/assets/gsaauctions/v2")
	v.SetDefault("gsa.api_key", "")
	v.SetDefault("treasury.base_url", "https://www.treasury.gov/auctions/treasury/rp")
	v.SetDefault("treasury.listing_url", "https://www.treasury.gov/auctions/treasury/rp/realprop.shtml")
	v.SetDefault("state_dept.base_url", "https://online-auction.state.gov")
	v.SetDefault("state_dept.max_pages", 20)

	v.SetDefault("renderer.enabled", false)
	v.SetDefault("renderer.timeout", "20s")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
