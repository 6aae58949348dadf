package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/conwatch/conwatch/internal/aggregator"
)

// defaultBridgeAddr is where the aggregator endpoint listens unless
// configured otherwise.
const defaultBridgeAddr = "localhost:7477"

// serveConfig is the host-process configuration: defaults, overlaid by an
// optional conwatch.yaml file, overlaid by command line flags.
type serveConfig struct {
	Addr   string `yaml:"addr"`
	LogDir string `yaml:"logDir"`
	Debug  bool   `yaml:"debug"`
}

func loadServeConfig(fs afero.Fs, path string) (serveConfig, error) {
	cfg := serveConfig{
		Addr:   defaultBridgeAddr,
		LogDir: aggregator.DefaultLogDir,
	}
	if path == "" {
		return cfg, nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %q: %w", path, err)
	}
	return cfg, nil
}
