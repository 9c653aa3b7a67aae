// Package config loads run settings from a YAML file with QBOUND_* environment overrides.
package config

import (
	"bytes"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/pkg/errors"
	"github.com/plan-systems/klog"
	"github.com/qbound/qbound/libqb/invariant"
	"github.com/qbound/qbound/libqb/seed"
	"github.com/qbound/qbound/qbound"
	"gopkg.in/yaml.v3"
)

var ErrBadConfig = errors.New("bad config")

// SeedInvariant selects the upstream dataset as the oracle instead of a built-in invariant.
const SeedInvariant = "seed"

type SeedConfig struct {
	URL               string  `yaml:"url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MaxConcurrent     int     `yaml:"max_concurrent"`
	MaxRetries        uint64  `yaml:"max_retries"`
}

type Config struct {
	DataDir         string     `yaml:"data_dir"`
	MaxVertices     int        `yaml:"max_vertices"`
	Invariant       string     `yaml:"invariant"`
	Catalog         string     `yaml:"catalog"` // badger dir; empty disables the catalog
	MetricsAddr     string     `yaml:"metrics_addr"`
	CheckpointEvery int        `yaml:"checkpoint_every"` // 0 uses the size-based cadence
	ConfirmAbove    int        `yaml:"confirm_above"`    // listings longer than this need --yes
	Seed            SeedConfig `yaml:"seed"`
}

func Default() Config {
	return Config{
		DataDir:      "qbound-data",
		MaxVertices:  qbound.MaxVertices,
		Invariant:    "cycle-rank",
		ConfirmAbove: 100,
		Seed: SeedConfig{
			URL:               seed.DefaultBaseURL,
			RequestsPerSecond: 8,
			MaxConcurrent:     4,
			MaxRetries:        4,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (if given and present) and then the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			klog.V(2).Infof("config %s not found, using defaults", path)
		case err != nil:
			return cfg, errors.Wrapf(err, "reading config %s", path)
		default:
			dec := yaml.NewDecoder(bytes.NewReader(data))
			dec.KnownFields(true)
			if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
				return cfg, errors.Wrapf(ErrBadConfig, "%s: %v", path, err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"QBOUND_DATA_DIR":     &cfg.DataDir,
		"QBOUND_INVARIANT":    &cfg.Invariant,
		"QBOUND_SEED_URL":     &cfg.Seed.URL,
		"QBOUND_CATALOG":      &cfg.Catalog,
		"QBOUND_METRICS_ADDR": &cfg.MetricsAddr,
	}
	for name, field := range strs {
		if val, found := lookup(name); found {
			*field = val
		}
	}

	ints := map[string]*int{
		"QBOUND_MAX_VERTICES":     &cfg.MaxVertices,
		"QBOUND_CHECKPOINT_EVERY": &cfg.CheckpointEvery,
	}
	for name, field := range ints {
		val, found := lookup(name)
		if !found {
			continue
		}
		x, err := strconv.Atoi(val)
		if err != nil {
			return errors.Wrapf(ErrBadConfig, "%s=%q is not an integer", name, val)
		}
		*field = x
	}
	return nil
}

func (cfg *Config) Validate() error {
	switch {
	case cfg.DataDir == "":
		return errors.Wrap(ErrBadConfig, "data_dir is required")
	case cfg.MaxVertices < 1 || cfg.MaxVertices > qbound.MaxVertices:
		return errors.Wrapf(ErrBadConfig, "max_vertices must be in 1..%d", qbound.MaxVertices)
	case cfg.Invariant != SeedInvariant && !invariant.IsScript(cfg.Invariant) && !slices.Contains(invariant.Names(), cfg.Invariant):
		return errors.Wrapf(ErrBadConfig, "invariant %q is not one of %v, %q or %s<script>",
			cfg.Invariant, invariant.Names(), SeedInvariant, invariant.PythonPrefix)
	case cfg.CheckpointEvery < 0:
		return errors.Wrap(ErrBadConfig, "checkpoint_every must be >= 0")
	case cfg.ConfirmAbove < 0:
		return errors.Wrap(ErrBadConfig, "confirm_above must be >= 0")
	case cfg.Seed.URL == "":
		return errors.Wrap(ErrBadConfig, "seed.url is required")
	}
	return nil
}

// Oracle returns the invariant oracle the config selects.
func (cfg *Config) Oracle(cache *seed.Cache) (invariant.Oracle, error) {
	if cfg.Invariant == SeedInvariant {
		return cache.Oracle(), nil
	}
	return invariant.Lookup(cfg.Invariant)
}

// FetcherOpts returns the seed fetcher settings.
func (cfg *Config) FetcherOpts() seed.FetcherOpts {
	return seed.FetcherOpts{
		BaseURL:           cfg.Seed.URL,
		RequestsPerSecond: cfg.Seed.RequestsPerSecond,
		MaxConcurrent:     cfg.Seed.MaxConcurrent,
		MaxRetries:        cfg.Seed.MaxRetries,
	}
}

// Marshal renders the effective config as YAML.
func (cfg *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(cfg)
}
