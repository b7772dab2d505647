// Package nqqconfig loads the optional .nqqrc.yaml file that toggles the
// interpreter's debug facilities. Grounded on DYMS's flag-based debug
// toggles (main.go), rebuilt around a YAML file the way a long-running CLI
// tool in the example pack configures itself rather than via flags alone.
package nqqconfig

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every debug/tuning knob the runtime exposes. Zero value is
// a production-shaped default: no tracing, no GC logging, no stress mode.
type Config struct {
	TraceExecution   bool    `yaml:"traceExecution"`
	PrintCode        bool    `yaml:"printCode"`
	StressGC         bool    `yaml:"stressGC"`
	LogGC            bool    `yaml:"logGC"`
	GCHeapGrowFactor float64 `yaml:"gcHeapGrowFactor"`
}

// Default returns the production-shaped zero config with its one
// non-zero-looking field set explicitly, so callers never have to
// special-case "unset" vs "zero".
func Default() Config {
	return Config{GCHeapGrowFactor: 2.0}
}

// Load reads path if it exists, overlaying any set fields onto Default().
// A missing file is not an error: most invocations run with no config at
// all.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
