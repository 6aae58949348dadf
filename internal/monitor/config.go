package monitor

import (
	"fmt"

	"github.com/mstoykov/envconfig"
	"gopkg.in/guregu/null.v3"
)

// Config is one layer of the console-watch configuration. Four layers exist
// while a test runs: the library defaults, the global config the Monitor was
// created with, the innermost enclosing suite's override and the test's own
// override. Unset fields fall through to the next outer layer.
type Config struct {
	FailOnSpy      null.Bool   `json:"failOnSpy" envconfig:"CONWATCH_FAIL_ON_SPY"`
	LogToFile      null.Bool   `json:"logToFile" envconfig:"CONWATCH_LOG_TO_FILE"`
	MethodsToTrack []string    `json:"methodsToTrack" envconfig:"CONWATCH_METHODS_TO_TRACK"`
	ThrowOnWarning null.Bool   `json:"throwOnWarning" envconfig:"CONWATCH_THROW_ON_WARNING"`
	Whitelist      []Matcher   `json:"whitelist" envconfig:"CONWATCH_WHITELIST"`
	Debug          null.Bool   `json:"debug" envconfig:"CONWATCH_DEBUG"`
	LogDir         null.String `json:"logDir" envconfig:"CONWATCH_LOG_DIR"`
}

// NewConfig returns the library defaults. Fields are marked invalid so any
// layer can still override them.
func NewConfig() Config {
	return Config{
		FailOnSpy:      null.NewBool(true, false),
		LogToFile:      null.NewBool(true, false),
		MethodsToTrack: []string{"error"},
		ThrowOnWarning: null.NewBool(false, false),
		Debug:          null.NewBool(false, false),
	}
}

// NewConfigFromEnv reads the global configuration from CONWATCH_* environment
// variables. Unset variables leave the corresponding fields invalid.
func NewConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("reading conwatch environment config: %w", err)
	}
	return cfg, nil
}

// Apply overlays the set fields of cfg onto o and returns the result. The
// whitelist is the one exception to overriding: entries accumulate across
// layers (see Consolidate).
func (o Config) Apply(cfg Config) Config {
	if cfg.FailOnSpy.Valid {
		o.FailOnSpy = cfg.FailOnSpy
	}
	if cfg.LogToFile.Valid {
		o.LogToFile = cfg.LogToFile
	}
	if cfg.MethodsToTrack != nil {
		o.MethodsToTrack = append([]string(nil), cfg.MethodsToTrack...)
	}
	if cfg.ThrowOnWarning.Valid {
		o.ThrowOnWarning = cfg.ThrowOnWarning
	}
	if len(cfg.Whitelist) > 0 {
		merged := make([]Matcher, 0, len(o.Whitelist)+len(cfg.Whitelist))
		merged = append(merged, o.Whitelist...)
		merged = append(merged, cfg.Whitelist...)
		o.Whitelist = merged
	}
	if cfg.Debug.Valid {
		o.Debug = cfg.Debug
	}
	if cfg.LogDir.Valid {
		o.LogDir = cfg.LogDir
	}
	return o
}

// Consolidate resolves the effective configuration for one test:
// defaults < global < suite < test, with the innermost explicitly set value
// winning for every scalar field.
//
// The whitelist instead accumulates: the effective list is the union of every
// layer's entries, outermost first. A message whitelisted globally therefore
// stays whitelisted under any suite or test override. This is the documented
// resolution of the historically ambiguous whitelist-merge semantics and is
// locked in by TestConsolidateWhitelistAccumulates.
func Consolidate(global, suite, test Config) Config {
	return NewConfig().Apply(global).Apply(suite).Apply(test)
}
