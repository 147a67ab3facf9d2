// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/aqsharvest/internal/harvest"
	"github.com/JakeFAU/aqsharvest/internal/publisher"
	"github.com/JakeFAU/aqsharvest/internal/storage"
	"github.com/JakeFAU/aqsharvest/internal/telemetry"
)

// EnvPrefix namespaces environment overrides, e.g. AQSHARVEST_AQS_EMAIL.
const EnvPrefix = "AQSHARVEST"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	AQS      AQSConfig        `mapstructure:"aqs"`
	Run      RunConfig        `mapstructure:"run"`
	Region   RegionConfig     `mapstructure:"region"`
	Profiles ProfilesConfig   `mapstructure:"profiles"`
	Storage  StorageConfig    `mapstructure:"storage"`
	DB       DBConfig         `mapstructure:"db"`
	Notify   NotifyConfig     `mapstructure:"notify"`
	Progress ProgressConfig   `mapstructure:"progress"`
	Metrics  MetricsConfig    `mapstructure:"metrics"`
	Logging  LoggingConfig    `mapstructure:"logging"`
	Tracing  telemetry.Config `mapstructure:"tracing"`
}

// AQSConfig holds API credentials and client behavior.
type AQSConfig struct {
	Email             string        `mapstructure:"email"`
	Key               string        `mapstructure:"key"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	RequestsPerMinute float64       `mapstructure:"requests_per_minute"`
	Burst             int           `mapstructure:"burst"`
}

// RunConfig overrides the selected profile for one invocation.
type RunConfig struct {
	StartYear      int           `mapstructure:"start_year"`
	EndYear        int           `mapstructure:"end_year"`
	Classes        []string      `mapstructure:"classes"`
	Yes            bool          `mapstructure:"yes"`
	Delay          time.Duration `mapstructure:"delay"`
	ResolveWorkers int           `mapstructure:"resolve_workers"`
	ResolveDelay   time.Duration `mapstructure:"resolve_delay"`
}

// RegionConfig selects the state and counties to sweep.
// Counties entries are either a code from the built-in list ("001") or a
// custom "code=Name" pair.
type RegionConfig struct {
	State    string   `mapstructure:"state"`
	Counties []string `mapstructure:"counties"`
}

// ProfilesConfig carries per-profile overrides.
type ProfilesConfig struct {
	Harvest      ProfileConfig `mapstructure:"harvest"`
	Particulates ProfileConfig `mapstructure:"particulates"`
	Toxics       ProfileConfig `mapstructure:"toxics"`
}

// ProfileConfig overrides fields of a built-in profile.
type ProfileConfig struct {
	BaseDir   string   `mapstructure:"base_dir"`
	Aggregate bool     `mapstructure:"aggregate"`
	StartYear int      `mapstructure:"start_year"`
	EndYear   int      `mapstructure:"end_year"`
	Classes   []string `mapstructure:"classes"`
}

// StorageConfig selects where CSV files are written.
type StorageConfig struct {
	Backend string             `mapstructure:"backend"`
	Local   LocalStorageConfig `mapstructure:"local"`
	GCS     GCSStorageConfig   `mapstructure:"gcs"`
}

// LocalStorageConfig roots output on the filesystem.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GCSStorageConfig targets a Cloud Storage bucket.
type GCSStorageConfig struct {
	Bucket       string `mapstructure:"bucket"`
	Prefix       string `mapstructure:"prefix"`
	Placeholders bool   `mapstructure:"placeholders"`
}

// DBConfig controls the optional Postgres manifest.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	EnsureSchema    bool          `mapstructure:"ensure_schema"`
}

// NotifyConfig selects the per-file notification backend.
type NotifyConfig struct {
	Backend string       `mapstructure:"backend"`
	Topic   string       `mapstructure:"topic"`
	PubSub  PubSubConfig `mapstructure:"pubsub"`
	Kafka   KafkaConfig  `mapstructure:"kafka"`
}

// PubSubConfig holds Google Cloud Pub/Sub settings.
type PubSubConfig struct {
	ProjectID      string `mapstructure:"project_id"`
	EnableOrdering bool   `mapstructure:"enable_ordering"`
}

// KafkaConfig lists the brokers of the Kafka cluster.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// ProgressConfig tunes the progress hub and its sinks.
type ProgressConfig struct {
	Console        bool          `mapstructure:"console"`
	Log            bool          `mapstructure:"log"`
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
}

// MetricsConfig exposes Prometheus metrics over HTTP and/or a textfile.
type MetricsConfig struct {
	Addr     string `mapstructure:"addr"`
	Textfile string `mapstructure:"textfile"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// New returns a Viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	bindEnv(v)
	return v
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	return LoadWith(New(), path)
}

// LoadWith reads path (if any) into v and decodes it. Callers bind flags on v
// before calling.
func LoadWith(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "aqsharvest")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("tracing.set_global", true)
	v.SetDefault("aqs.base_url", "https://aqs.epa.gov/data/api")
	v.SetDefault("aqs.timeout", "60s")
	v.SetDefault("aqs.user_agent", "aqsharvest/0.1")
	v.SetDefault("aqs.requests_per_minute", 0)
	v.SetDefault("aqs.burst", 1)
	v.SetDefault("run.delay", harvest.DefaultDelay.String())
	v.SetDefault("run.resolve_workers", harvest.DefaultResolveWorkers)
	v.SetDefault("run.resolve_delay", harvest.DefaultDelay.String())
	v.SetDefault("region.state", harvest.StateNewMexico)
	v.SetDefault("profiles.harvest.base_dir", harvest.HarvestProfile().Layout.Base)
	v.SetDefault("profiles.harvest.aggregate", true)
	v.SetDefault("profiles.particulates.base_dir", harvest.ParticulatesProfile().Layout.Base)
	v.SetDefault("profiles.particulates.start_year", 2010)
	v.SetDefault("profiles.particulates.end_year", 2022)
	v.SetDefault("profiles.toxics.base_dir", harvest.ToxicsProfile().Layout.Base)
	v.SetDefault("profiles.toxics.start_year", 2010)
	v.SetDefault("profiles.toxics.end_year", 2022)
	v.SetDefault("storage.backend", storage.BackendLocal)
	v.SetDefault("storage.local.base_dir", ".")
	v.SetDefault("db.table", "aqs_files")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("notify.backend", publisher.BackendNone)
	v.SetDefault("notify.topic", "aqs-files")
	v.SetDefault("progress.console", true)
	v.SetDefault("progress.log", true)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 64)
	v.SetDefault("progress.max_batch_wait", "250ms")
	v.SetDefault("progress.sink_timeout", "10s")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// envOnlyKeys have no default, so Unmarshal only sees their environment
// variables when bound explicitly.
var envOnlyKeys = []string{
	"aqs.email",
	"aqs.key",
	"run.start_year",
	"run.end_year",
	"run.classes",
	"run.yes",
	"region.counties",
	"storage.gcs.bucket",
	"storage.gcs.prefix",
	"storage.gcs.placeholders",
	"db.dsn",
	"db.min_conns",
	"db.ensure_schema",
	"notify.pubsub.project_id",
	"notify.pubsub.enable_ordering",
	"notify.kafka.brokers",
	"metrics.addr",
	"metrics.textfile",
	"tracing.project_id",
}

func bindEnv(v *viper.Viper) {
	for _, key := range envOnlyKeys {
		// BindEnv only fails without a key argument.
		_ = v.BindEnv(key)
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.AQS.Timeout <= 0 {
		return fmt.Errorf("aqs.timeout must be > 0")
	}
	if c.AQS.RequestsPerMinute < 0 {
		return fmt.Errorf("aqs.requests_per_minute must be >= 0")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0,1]")
	}
	if c.Run.Delay < 0 {
		return fmt.Errorf("run.delay must be >= 0")
	}
	if c.Run.ResolveWorkers <= 0 {
		return fmt.Errorf("run.resolve_workers must be > 0")
	}
	if c.Run.ResolveDelay < 0 {
		return fmt.Errorf("run.resolve_delay must be >= 0")
	}
	if c.Region.State == "" {
		return fmt.Errorf("region.state is required")
	}
	if _, err := c.Counties(); err != nil {
		return err
	}
	switch c.Storage.Backend {
	case storage.BackendLocal:
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local backend")
		}
	case storage.BackendGCS:
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket is required for the gcs backend")
		}
	case storage.BackendMemory:
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	switch c.Notify.Backend {
	case "", publisher.BackendNone, publisher.BackendMemory:
	case publisher.BackendPubSub:
		if c.Notify.PubSub.ProjectID == "" || c.Notify.Topic == "" {
			return fmt.Errorf("notify.pubsub.project_id and notify.topic are required for pubsub")
		}
	case publisher.BackendKafka:
		if len(c.Notify.Kafka.Brokers) == 0 || c.Notify.Topic == "" {
			return fmt.Errorf("notify.kafka.brokers and notify.topic are required for kafka")
		}
	default:
		return fmt.Errorf("unknown notify.backend %q", c.Notify.Backend)
	}
	if c.DB.MinConns > c.DB.MaxConns && c.DB.MaxConns > 0 {
		return fmt.Errorf("db.min_conns must be <= db.max_conns")
	}
	return nil
}

// Counties returns the configured counties, defaulting to every New Mexico county.
func (c Config) Counties() ([]harvest.County, error) {
	builtin := harvest.NewMexicoCounties()
	if len(c.Region.Counties) == 0 {
		return builtin, nil
	}
	byCode := make(map[string]harvest.County, len(builtin))
	for _, county := range builtin {
		byCode[county.Code] = county
	}
	out := make([]harvest.County, 0, len(c.Region.Counties))
	for _, entry := range c.Region.Counties {
		code, name, custom := strings.Cut(strings.TrimSpace(entry), "=")
		code = strings.TrimSpace(code)
		if code == "" {
			return nil, fmt.Errorf("region.counties: empty county code in %q", entry)
		}
		if custom {
			out = append(out, harvest.County{Code: code, Name: strings.TrimSpace(name)})
			continue
		}
		county, ok := byCode[code]
		if !ok || c.Region.State != harvest.StateNewMexico {
			return nil, fmt.Errorf("region.counties: %q needs a name (use code=Name)", code)
		}
		out = append(out, county)
	}
	return out, nil
}

func (c Config) profileOverrides(name string) (ProfileConfig, bool) {
	switch name {
	case harvest.ProfileHarvest:
		return c.Profiles.Harvest, true
	case harvest.ProfileParticulates:
		return c.Profiles.Particulates, true
	case harvest.ProfileToxics:
		return c.Profiles.Toxics, true
	}
	return ProfileConfig{}, false
}

// Profile returns the named built-in profile with configured overrides applied.
// Run-level settings win over profile-level ones.
func (c Config) Profile(name string) (harvest.Profile, error) {
	p, err := harvest.LookupProfile(name)
	if err != nil {
		return harvest.Profile{}, err
	}
	o, _ := c.profileOverrides(p.Name)
	if o.BaseDir != "" {
		p.Layout.Base = o.BaseDir
	}
	p.Aggregate = o.Aggregate
	if o.StartYear != 0 {
		p.Years.Start = o.StartYear
	}
	if o.EndYear != 0 {
		p.Years.End = o.EndYear
	}
	if len(o.Classes) > 0 {
		p.Classes = o.Classes
	}
	if c.Run.StartYear != 0 {
		p.Years.Start = c.Run.StartYear
	}
	if c.Run.EndYear != 0 {
		p.Years.End = c.Run.EndYear
	}
	if len(c.Run.Classes) > 0 && p.Resolution != harvest.ResolveFixed {
		p.Classes = c.Run.Classes
	}
	p.Delay = c.Run.Delay
	return p, nil
}
