// Package config loads runtime settings from a YAML file, an optional .env
// file and SYMTAB_* environment variables, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/DeusData/symtab-snapshot/internal/coordinator"
	"github.com/DeusData/symtab-snapshot/internal/pipeline"
	"github.com/DeusData/symtab-snapshot/internal/selector"
	"github.com/DeusData/symtab-snapshot/internal/store"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SYMTAB_"

type Config struct {
	Store struct {
		Path       string `yaml:"path"`
		SourcePath string `yaml:"source_path"`
	} `yaml:"store"`
	Org struct {
		ID        string `yaml:"id"`
		Namespace string `yaml:"namespace"`
	} `yaml:"org"`
	Pipeline struct {
		PageSize        int                   `yaml:"page_size"`
		ChunkSize       int                   `yaml:"chunk_size"`
		EntryPoints     []pipeline.EntryPoint `yaml:"entry_points"`
		TestPropagation float64               `yaml:"test_propagation"`
	} `yaml:"pipeline"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Schedule struct {
		Cron string `yaml:"cron"`
	} `yaml:"schedule"`
	Export struct {
		Dir       string `yaml:"dir"`
		GCSBucket string `yaml:"gcs_bucket"`
	} `yaml:"export"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	var c Config
	c.Pipeline.PageSize = selector.DefaultPageSize
	c.Pipeline.ChunkSize = coordinator.DefaultChunkSize
	c.Pipeline.EntryPoints = pipeline.DefaultEntryPoints()
	c.Pipeline.TestPropagation = pipeline.DefaultTestPropagation
	c.HTTP.Addr = "127.0.0.1:8480"
	c.Export.Dir = "exports"
	return &c
}

// Load reads path over the defaults. A missing file is not an error; an
// empty path skips the file entirely.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Store.Path == "" {
		p, err := store.DefaultPath()
		if err != nil {
			return nil, err
		}
		cfg.Store.Path = p
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"STORE_PATH":        &c.Store.Path,
		"STORE_SOURCE_PATH": &c.Store.SourcePath,
		"ORG_ID":            &c.Org.ID,
		"ORG_NAMESPACE":     &c.Org.Namespace,
		"HTTP_ADDR":         &c.HTTP.Addr,
		"METRICS_ADDR":      &c.Metrics.Addr,
		"SCHEDULE_CRON":     &c.Schedule.Cron,
		"EXPORT_DIR":        &c.Export.Dir,
		"EXPORT_GCS_BUCKET": &c.Export.GCSBucket,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PIPELINE_PAGE_SIZE":  &c.Pipeline.PageSize,
		"PIPELINE_CHUNK_SIZE": &c.Pipeline.ChunkSize,
	}
	for name, dst := range ints {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}
	if v, ok := os.LookupEnv(EnvPrefix + "PIPELINE_TEST_PROPAGATION"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%sPIPELINE_TEST_PROPAGATION: %w", EnvPrefix, err)
		}
		c.Pipeline.TestPropagation = f
	}
	return nil
}

// Validate reports the first invalid setting by its YAML key.
func (c *Config) Validate() error {
	switch {
	case c.Pipeline.PageSize <= 0:
		return fmt.Errorf("pipeline.page_size: must be positive, got %d", c.Pipeline.PageSize)
	case c.Pipeline.ChunkSize <= 0:
		return fmt.Errorf("pipeline.chunk_size: must be positive, got %d", c.Pipeline.ChunkSize)
	case c.Pipeline.TestPropagation < 0 || c.Pipeline.TestPropagation > 100:
		return fmt.Errorf("pipeline.test_propagation: must be within [0,100], got %g", c.Pipeline.TestPropagation)
	}
	for i, ep := range c.Pipeline.EntryPoints {
		if strings.TrimSpace(ep.Signature) == "" {
			return fmt.Errorf("pipeline.entry_points[%d].signature: empty", i)
		}
	}
	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return fmt.Errorf("schedule.cron: %w", err)
		}
	}
	return nil
}

// PipelineOptions maps the settings onto a pipeline run.
func (c *Config) PipelineOptions() pipeline.Options {
	propagation := c.Pipeline.TestPropagation
	return pipeline.Options{
		OrgID:           c.Org.ID,
		OrgNamespace:    c.Org.Namespace,
		PageSize:        c.Pipeline.PageSize,
		ChunkSize:       c.Pipeline.ChunkSize,
		EntryPoints:     c.Pipeline.EntryPoints,
		TestPropagation: &propagation,
	}
}
