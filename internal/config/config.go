// Package config loads the monitor configuration through viper and turns it
// into validated, typed settings for the process runner.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"building_monitor/internal/models"
	"building_monitor/internal/policy"

	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Inspector/Actuator backends.
const (
	BackendBrowser = "browser"
	BackendNone    = "none"
)

// Group defaults.
const (
	defaultLookahead     = 60 * time.Second
	defaultWaitBuffer    = 5 * time.Second
	defaultRetry         = 60 * time.Second
	defaultErrorBackoff  = 10 * time.Minute
	defaultLongDefer     = time.Hour
	defaultAuthPause     = time.Hour
	defaultEntityTimeout = 5 * time.Minute
	defaultBrowserWait   = 30 * time.Second
	defaultSettle        = 2 * time.Second
	defaultHealthyMetric = 100.0
)

type Config struct {
	LogLevel  string        `mapstructure:"log_level"`
	LogFormat string        `mapstructure:"log_format"`
	EventsDB  string        `mapstructure:"events_db"`
	HTTP      HTTPConfig    `mapstructure:"http"`
	Auth      AuthConfig    `mapstructure:"auth"`
	Notify    NotifyConfig  `mapstructure:"notify"`
	Redis     RedisConfig   `mapstructure:"redis"`
	Groups    []GroupConfig `mapstructure:"groups"`
}

type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    string `mapstructure:"port"`
}

// AuthConfig holds the single operator credential for the HTTP API.
type AuthConfig struct {
	Username     string        `mapstructure:"username"`
	PasswordHash string        `mapstructure:"password_hash"`
	SigningKey   string        `mapstructure:"signing_key"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
}

type NotifyConfig struct {
	QueueSize int         `mapstructure:"queue_size"`
	PerMinute float64     `mapstructure:"per_minute"`
	Burst     int         `mapstructure:"burst"`
	Gmail     GmailConfig `mapstructure:"gmail"`
}

type GmailConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	CredentialsFile string `mapstructure:"credentials_file"`
	TokenFile       string `mapstructure:"token_file"`
	To              string `mapstructure:"to"`
	From            string `mapstructure:"from"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GroupConfig describes one independently scheduled set of entities.
type GroupConfig struct {
	Name     string         `mapstructure:"name"`
	Store    StoreConfig    `mapstructure:"store"`
	Timing   TimingConfig   `mapstructure:"timing"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Entities []EntityConfig `mapstructure:"entities"`
	Backend  string         `mapstructure:"backend"`
	Browser  BrowserConfig  `mapstructure:"browser"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	Key     string `mapstructure:"key"`
}

type TimingConfig struct {
	Lookahead     time.Duration `mapstructure:"lookahead"`
	WaitBuffer    time.Duration `mapstructure:"wait_buffer"`
	DefaultRetry  time.Duration `mapstructure:"default_retry"`
	ErrorBackoff  time.Duration `mapstructure:"error_backoff"`
	LongDefer     time.Duration `mapstructure:"long_defer"`
	AuthPause     time.Duration `mapstructure:"auth_pause"`
	EntityTimeout time.Duration `mapstructure:"entity_timeout"`
}

type namedDuration struct {
	name  string
	value time.Duration
}

// named lists the timing settings in file order.
func (t TimingConfig) named() []namedDuration {
	return []namedDuration{
		{"lookahead", t.Lookahead},
		{"wait_buffer", t.WaitBuffer},
		{"default_retry", t.DefaultRetry},
		{"error_backoff", t.ErrorBackoff},
		{"long_defer", t.LongDefer},
		{"auth_pause", t.AuthPause},
		{"entity_timeout", t.EntityTimeout},
	}
}

type PolicyConfig struct {
	Bands    []BandConfig   `mapstructure:"bands"`
	Fallback FallbackConfig `mapstructure:"fallback"`
}

type BandConfig struct {
	Above   float64 `mapstructure:"above"`
	Outcome string  `mapstructure:"outcome"`
}

type FallbackConfig struct {
	Outcome          string   `mapstructure:"outcome"`
	SecondaryAtLeast *float64 `mapstructure:"secondary_at_least"`
	SecondaryOutcome string   `mapstructure:"secondary_outcome"`
}

type EntityConfig struct {
	ID   string `mapstructure:"id"`
	Kind string `mapstructure:"kind"`
}

// BrowserConfig is consumed only by the browser backend; the scheduler never
// reads it.
type BrowserConfig struct {
	UserDataDir   string          `mapstructure:"user_data_dir"`
	Bin           string          `mapstructure:"bin"`
	Headless      bool            `mapstructure:"headless"`
	EntityURL     string          `mapstructure:"entity_url"`
	HomeURL       string          `mapstructure:"home_url"`
	Timeout       time.Duration   `mapstructure:"timeout"`
	Settle        time.Duration   `mapstructure:"settle"`
	TimeLayouts   []string        `mapstructure:"time_layouts"`
	HealthyMetric float64         `mapstructure:"healthy_metric"`
	Selectors     SelectorsConfig `mapstructure:"selectors"`
}

type SelectorsConfig struct {
	LoginMarker       string `mapstructure:"login_marker"`
	ConstructionTimer string `mapstructure:"construction_timer"`
	ProductionTimer   string `mapstructure:"production_timer"`
	Metric            string `mapstructure:"metric"`
	SecondaryMetric   string `mapstructure:"secondary_metric"`
	StartPreset       string `mapstructure:"start_preset"`
	StartButton       string `mapstructure:"start_button"`
	RemediateButton   string `mapstructure:"remediate_button"`
	ConfirmButton     string `mapstructure:"confirm_button"`
}

// Load reads the YAML file at path (BUILDMON_* environment variables override
// scalar keys), fills defaults and validates the result. Validation failures
// are returned as *models.ConfigurationError.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("BUILDMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &models.ConfigurationError{Problems: []string{fmt.Sprintf("decode config: %v", err)}}
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("events_db", "data/events.db")
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.port", "8080")
	v.SetDefault("auth.username", "operator")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("notify.queue_size", 64)
	v.SetDefault("notify.per_minute", 6)
	v.SetDefault("notify.burst", 3)
}

// applyDefaults fills group-level settings that viper cannot default inside
// a list.
func (c *Config) applyDefaults() {
	for i := range c.Groups {
		g := &c.Groups[i]
		if g.Store.Backend == "" {
			g.Store.Backend = StoreFile
		}
		if g.Store.Path == "" && g.Store.Backend != StoreRedis {
			ext := ".json"
			if g.Store.Backend == StoreSQLite {
				ext = ".db"
			}
			g.Store.Path = filepath.Join("data", g.Name+"_state"+ext)
		}
		if g.Store.Key == "" {
			g.Store.Key = "buildmon:state:" + g.Name
		}
		if g.Backend == "" {
			g.Backend = BackendBrowser
		}

		t := &g.Timing
		setDuration(&t.Lookahead, defaultLookahead)
		setDuration(&t.WaitBuffer, defaultWaitBuffer)
		setDuration(&t.DefaultRetry, defaultRetry)
		setDuration(&t.ErrorBackoff, defaultErrorBackoff)
		setDuration(&t.LongDefer, defaultLongDefer)
		setDuration(&t.AuthPause, defaultAuthPause)
		setDuration(&t.EntityTimeout, defaultEntityTimeout)

		b := &g.Browser
		setDuration(&b.Timeout, defaultBrowserWait)
		setDuration(&b.Settle, defaultSettle)
		if b.HealthyMetric == 0 {
			b.HealthyMetric = defaultHealthyMetric
		}
	}
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d == 0 {
		*d = def
	}
}

// Validate reports every problem in one *models.ConfigurationError.
func (c *Config) Validate() error {
	cerr := &models.ConfigurationError{}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		cerr.Add(fmt.Sprintf("unknown log_level %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		cerr.Add(fmt.Sprintf("unknown log_format %q", c.LogFormat))
	}
	if len(c.Groups) == 0 {
		cerr.Add("at least one group is required")
	}

	groupNames := map[string]bool{}
	storeTargets := map[string]string{}
	for i, g := range c.Groups {
		label := fmt.Sprintf("groups[%d]", i)
		if g.Name == "" {
			cerr.Add(label + ": name is required")
		} else {
			label = fmt.Sprintf("group %q", g.Name)
			if groupNames[g.Name] {
				cerr.Add(label + ": duplicate group name")
			}
			groupNames[g.Name] = true
		}

		target := g.Store.Path
		switch g.Store.Backend {
		case StoreFile, StoreSQLite:
		case StoreRedis:
			target = "redis:" + g.Store.Key
			if c.Redis.Addr == "" {
				cerr.Add(label + ": redis store requires redis.addr")
			}
		default:
			cerr.Add(fmt.Sprintf("%s: unknown store backend %q", label, g.Store.Backend))
		}
		if other, ok := storeTargets[target]; ok {
			cerr.Add(fmt.Sprintf("%s: store %q already used by group %q", label, target, other))
		}
		storeTargets[target] = g.Name

		switch g.Backend {
		case BackendBrowser:
			if g.Browser.EntityURL == "" {
				cerr.Add(label + ": browser.entity_url is required")
			}
		case BackendNone:
		default:
			cerr.Add(fmt.Sprintf("%s: unknown backend %q", label, g.Backend))
		}

		for _, d := range g.Timing.named() {
			if d.value < 0 {
				cerr.Add(fmt.Sprintf("%s: timing.%s must not be negative", label, d.name))
			}
		}

		if _, err := g.PolicyTable(); err != nil {
			var pe *models.ConfigurationError
			if errors.As(err, &pe) {
				for _, p := range pe.Problems {
					cerr.Add(label + ": policy " + p)
				}
			}
		}

		if len(g.Entities) == 0 {
			cerr.Add(label + ": no entities configured")
		}
		if _, err := g.EntityList(); err != nil {
			var ee *models.ConfigurationError
			if errors.As(err, &ee) {
				for _, p := range ee.Problems {
					cerr.Add(label + ": " + p)
				}
			}
		}
	}
	return cerr.OrNil()
}

// EntityList converts the configured entities. An unknown kind or a
// duplicate id is a configuration error, never silently skipped.
func (g GroupConfig) EntityList() ([]models.Entity, error) {
	cerr := &models.ConfigurationError{}
	seen := map[models.EntityID]bool{}
	out := make([]models.Entity, 0, len(g.Entities))
	for i, ec := range g.Entities {
		id := models.EntityID(strings.TrimSpace(ec.ID))
		if id == "" {
			cerr.Add(fmt.Sprintf("entities[%d]: id is required", i))
			continue
		}
		kind, err := models.ParseKind(ec.Kind)
		if err != nil {
			cerr.Add(fmt.Sprintf("entity %q: %v", id, err))
			continue
		}
		if seen[id] {
			cerr.Add(fmt.Sprintf("entity %q: duplicate id", id))
			continue
		}
		seen[id] = true
		out = append(out, models.Entity{ID: id, Kind: kind})
	}
	if err := cerr.OrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// PolicyTable converts the configured thresholds. An empty policy section
// selects policy.Default().
func (g GroupConfig) PolicyTable() (policy.Table, error) {
	if len(g.Policy.Bands) == 0 && g.Policy.Fallback.Outcome == "" {
		return policy.Default(), nil
	}
	cerr := &models.ConfigurationError{}
	table := policy.Table{
		Fallback: policy.Fallback{
			Outcome:          policy.Decision(strings.ToLower(strings.TrimSpace(g.Policy.Fallback.Outcome))),
			SecondaryAtLeast: g.Policy.Fallback.SecondaryAtLeast,
			SecondaryOutcome: policy.Decision(strings.ToLower(strings.TrimSpace(g.Policy.Fallback.SecondaryOutcome))),
		},
	}
	for _, b := range g.Policy.Bands {
		table.Bands = append(table.Bands, policy.Band{
			Above:   b.Above,
			Outcome: policy.Decision(strings.ToLower(strings.TrimSpace(b.Outcome))),
		})
	}
	for _, p := range table.Validate() {
		cerr.Add(p)
	}
	if err := cerr.OrNil(); err != nil {
		return policy.Table{}, err
	}
	return table, nil
}
