// Package config holds the settings of a reconciliation run. Settings come
// from an optional TOML file and are overridden by command line flags.
package config

import (
	"io/ioutil"

	"github.com/devops-toolbox/nodepool-upgrader/pkg/safety"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

const (
	DefaultGcloudPath = "gcloud"
	DefaultLogDir     = "."
)

// Surge is the rolling upgrade setting applied to pools that lack one.
type Surge struct {
	MaxSurge       int `toml:"max-surge"`
	MaxUnavailable int `toml:"max-unavailable"`
}

// Config contains the settings of a run.
type Config struct {
	Project string `toml:"project"`
	Region  string `toml:"region"`
	Cluster string `toml:"cluster"`

	DryRun    bool   `toml:"dry-run"`
	AssumeYes bool   `toml:"assume-yes"`
	Debug     bool   `toml:"debug"`
	LogDir    string `toml:"log-dir"`

	GcloudPath string `toml:"gcloud-path"`
	// Kubeconfig overrides the default kubeconfig loading rules when set.
	Kubeconfig string `toml:"kubeconfig"`

	FragileReplicas int32 `toml:"fragile-replicas"`
	Surge           Surge `toml:"surge"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		LogDir:          DefaultLogDir,
		GcloudPath:      DefaultGcloudPath,
		FragileReplicas: safety.DefaultFragileReplicas,
		Surge: Surge{
			MaxSurge:       1,
			MaxUnavailable: 0,
		},
	}
}

// Load reads path over the defaults.
func Load(path string) (*Config, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}
	return Parse(raw)
}

// Parse decodes a TOML document over the defaults. Keys absent from raw
// keep their default value.
func Parse(raw []byte) (*Config, error) {
	config := Default()
	if err := toml.Unmarshal(raw, config); err != nil {
		return nil, errors.Wrap(err, "parse config file")
	}
	return config, nil
}

// Validate checks that a run can proceed with these settings.
func (c *Config) Validate() error {
	var missing []string
	if c.Project == "" {
		missing = append(missing, "project")
	}
	if c.Region == "" {
		missing = append(missing, "region")
	}
	if c.Cluster == "" {
		missing = append(missing, "cluster")
	}
	if len(missing) > 0 {
		return errors.Errorf("required settings not provided: %v", missing)
	}
	if c.GcloudPath == "" {
		return errors.New("gcloud-path must not be empty")
	}
	if c.FragileReplicas < 0 {
		return errors.Errorf("fragile-replicas must be >= 0, got %d", c.FragileReplicas)
	}
	// The replacement settings must themselves pass the surge check.
	if !safety.SafeSurge(safety.NodePool{MaxSurge: c.Surge.MaxSurge, MaxUnavailable: c.Surge.MaxUnavailable}) {
		return errors.Errorf("surge settings max-surge=%d max-unavailable=%d would not be a surge upgrade",
			c.Surge.MaxSurge, c.Surge.MaxUnavailable)
	}
	return nil
}
