package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/aqsharvest/internal/harvest"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Run.Delay != 5*time.Second {
		t.Fatalf("expected 5s delay, got %v", cfg.Run.Delay)
	}
	if cfg.Run.ResolveWorkers != 10 {
		t.Fatalf("expected 10 resolve workers, got %d", cfg.Run.ResolveWorkers)
	}
	if cfg.Region.State != "35" {
		t.Fatalf("expected New Mexico state code, got %q", cfg.Region.State)
	}
	if cfg.Storage.Backend != "local" || cfg.Storage.Local.BaseDir != "." {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.AQS.Email != "" || cfg.AQS.Key != "" {
		t.Fatalf("credentials must not have defaults")
	}
	if !cfg.Profiles.Harvest.Aggregate || cfg.Profiles.Toxics.Aggregate {
		t.Fatalf("expected aggregate only for harvest: %+v", cfg.Profiles)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
aqs:
  email: analyst@example.org
  key: file-key
  timeout: 30s
  requests_per_minute: 10
run:
  start_year: 2018
  end_year: 2019
  classes: [VOC, HAPS]
  delay: 1s
region:
  counties: ["001", "049=Santa Fe"]
profiles:
  toxics:
    base_dir: out/toxics
    aggregate: true
storage:
  backend: gcs
  gcs:
    bucket: aqs-bucket
    prefix: raw
notify:
  backend: kafka
  topic: files
  kafka:
    brokers: ["localhost:9092"]
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AQS.Email != "analyst@example.org" || cfg.AQS.Key != "file-key" {
		t.Fatalf("expected credentials from file: %+v", cfg.AQS)
	}
	if cfg.AQS.Timeout != 30*time.Second || cfg.AQS.RequestsPerMinute != 10 {
		t.Fatalf("expected client overrides: %+v", cfg.AQS)
	}
	if cfg.Storage.GCS.Bucket != "aqs-bucket" || cfg.Storage.GCS.Prefix != "raw" {
		t.Fatalf("expected gcs overrides: %+v", cfg.Storage.GCS)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected production logging")
	}

	counties, err := cfg.Counties()
	if err != nil {
		t.Fatalf("Counties() error = %v", err)
	}
	want := []harvest.County{{Code: "001", Name: "Bernalillo"}, {Code: "049", Name: "Santa Fe"}}
	if len(counties) != 2 || counties[0] != want[0] || counties[1] != want[1] {
		t.Fatalf("unexpected counties: %+v", counties)
	}

	p, err := cfg.Profile("toxics")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if p.Layout.Base != "out/toxics" || !p.Aggregate {
		t.Fatalf("expected toxics overrides: %+v", p)
	}
	if p.Years != (harvest.YearRange{Start: 2018, End: 2019}) {
		t.Fatalf("expected run years to win: %+v", p.Years)
	}
	if strings.Join(p.Classes, ",") != "VOC,HAPS" || p.Delay != time.Second {
		t.Fatalf("expected run classes and delay: %+v", p)
	}

	fixed, err := cfg.Profile("particulates")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if len(fixed.Classes) != 0 {
		t.Fatalf("fixed profiles ignore class overrides: %+v", fixed.Classes)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("AQSHARVEST_AQS_EMAIL", "env@example.org")
	t.Setenv("AQSHARVEST_AQS_KEY", "env-key")
	t.Setenv("AQSHARVEST_RUN_DELAY", "0s")
	t.Setenv("AQSHARVEST_STORAGE_LOCAL_BASE_DIR", "/tmp/aqs")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AQS.Email != "env@example.org" || cfg.AQS.Key != "env-key" {
		t.Fatalf("expected env credentials: %+v", cfg.AQS)
	}
	if cfg.Run.Delay != 0 {
		t.Fatalf("expected zero delay, got %v", cfg.Run.Delay)
	}
	if cfg.Storage.Local.BaseDir != "/tmp/aqs" {
		t.Fatalf("expected env base dir, got %q", cfg.Storage.Local.BaseDir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestProfileDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	p, err := cfg.Profile("harvest")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if p.Years != (harvest.YearRange{}) || len(p.Classes) != 0 {
		t.Fatalf("harvest years and classes come from the prompt: %+v", p)
	}
	if !p.AbortOnEmpty || !p.Aggregate || p.Layout.Base != "AQI Data" {
		t.Fatalf("unexpected harvest profile: %+v", p)
	}

	toxics, err := cfg.Profile("toxics")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if toxics.Years != (harvest.YearRange{Start: 2010, End: 2022}) {
		t.Fatalf("unexpected toxics years: %+v", toxics.Years)
	}
	if _, err := cfg.Profile("ozone"); err == nil {
		t.Fatal("expected unknown profile error")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.AQS.Timeout = 0
				return c
			}(),
			want: "aqs.timeout",
		},
		{
			name: "negative delay",
			cfg: func() Config {
				c := base
				c.Run.Delay = -time.Second
				return c
			}(),
			want: "run.delay",
		},
		{
			name: "no resolve workers",
			cfg: func() Config {
				c := base
				c.Run.ResolveWorkers = 0
				return c
			}(),
			want: "run.resolve_workers",
		},
		{
			name: "gcs without bucket",
			cfg: func() Config {
				c := base
				c.Storage.Backend = "gcs"
				return c
			}(),
			want: "storage.gcs.bucket",
		},
		{
			name: "unknown storage",
			cfg: func() Config {
				c := base
				c.Storage.Backend = "s3"
				return c
			}(),
			want: "storage.backend",
		},
		{
			name: "pubsub without project",
			cfg: func() Config {
				c := base
				c.Notify.Backend = "pubsub"
				return c
			}(),
			want: "notify.pubsub.project_id",
		},
		{
			name: "kafka without brokers",
			cfg: func() Config {
				c := base
				c.Notify.Backend = "kafka"
				return c
			}(),
			want: "notify.kafka.brokers",
		},
		{
			name: "county code without name outside New Mexico",
			cfg: func() Config {
				c := base
				c.Region.State = "04"
				c.Region.Counties = []string{"013"}
				return c
			}(),
			want: "region.counties",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestTracingConfig(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Tracing.Enabled || cfg.Tracing.SampleRatio != 1 || cfg.Tracing.ServiceName != "aqsharvest" {
		t.Fatalf("unexpected tracing defaults: %+v", cfg.Tracing)
	}

	cfg.Tracing.SampleRatio = 1.5
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "tracing.sample_ratio") {
		t.Fatalf("expected sample ratio error, got %v", err)
	}
}

func TestLoadEnvOnlyKeys(t *testing.T) {
	t.Setenv("AQSHARVEST_STORAGE_BACKEND", "gcs")
	t.Setenv("AQSHARVEST_STORAGE_GCS_BUCKET", "env-bucket")
	t.Setenv("AQSHARVEST_DB_DSN", "postgres://localhost/aqs")
	t.Setenv("AQSHARVEST_TRACING_PROJECT_ID", "aqs-project")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.GCS.Bucket != "env-bucket" || cfg.DB.DSN != "postgres://localhost/aqs" {
		t.Fatalf("expected env-only keys to load: %+v %+v", cfg.Storage, cfg.DB)
	}
	if cfg.Tracing.ProjectID != "aqs-project" {
		t.Fatalf("expected tracing project from env, got %q", cfg.Tracing.ProjectID)
	}
}
