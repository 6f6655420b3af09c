package bridge

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PortRangeStart and PortRangeEnd bound the inclusive range of loopback
// TCP ports the session probes looking for the worker's listening
// socket.
const (
	PortRangeStart = 47100
	PortRangeEnd   = 47199
)

// WarmUp is the bounded sleep given to the worker to open its listening
// socket before the first connect attempt, per the reference design.
const WarmUp = 2 * time.Second

// IOTimeout is the read/write deadline applied to every request/reply
// exchange. A timeout is fatal to the session: the wire state is
// indeterminate afterward.
const IOTimeout = 30 * time.Second

// RuntimeConfig names the worker binary, the plug-in's compatibility
// runtime prefix, and the timing knobs construction and arming use. It
// mirrors the shape of the teacher's config file, expressed as a typed
// struct loaded from YAML instead of a hand-rolled line parser.
type RuntimeConfig struct {
	// WorkerPath is the Windows-ABI host executable invoked as
	// `wine <WorkerPath>` (or the configured Runtime equivalent).
	WorkerPath string `yaml:"worker_path"`

	// Runtime is the compatibility-runtime binary, "wine" by default.
	Runtime string `yaml:"runtime"`

	// Prefix is the compatibility-runtime user prefix (WINEPREFIX or
	// equivalent). Empty means the runtime's own default.
	Prefix string `yaml:"prefix"`

	// PortRangeStart/PortRangeEnd override the default probed port
	// range; both zero means use the package defaults.
	PortRangeStart int `yaml:"port_range_start"`
	PortRangeEnd   int `yaml:"port_range_end"`

	// WarmUp overrides the default post-spawn sleep before the first
	// connect attempt.
	WarmUp time.Duration `yaml:"warm_up"`

	// IOTimeout overrides the default read/write deadline.
	IOTimeout time.Duration `yaml:"io_timeout"`
}

// withDefaults returns a copy of c with zero-valued fields replaced by
// package defaults.
func (c RuntimeConfig) withDefaults() RuntimeConfig {
	if c.Runtime == "" {
		c.Runtime = "wine"
	}
	if c.PortRangeStart == 0 {
		c.PortRangeStart = PortRangeStart
	}
	if c.PortRangeEnd == 0 {
		c.PortRangeEnd = PortRangeEnd
	}
	if c.WarmUp == 0 {
		c.WarmUp = WarmUp
	}
	if c.IOTimeout == 0 {
		c.IOTimeout = IOTimeout
	}

	return c
}

// LoadRuntimeConfig reads a YAML runtime configuration file.
func LoadRuntimeConfig(path string) (RuntimeConfig, error) {
	var raw, err = os.ReadFile(path)
	if err != nil {
		return RuntimeConfig{}, fmt.Errorf("bridge: read config %s: %w", path, err)
	}

	var cfg RuntimeConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return RuntimeConfig{}, fmt.Errorf("bridge: parse config %s: %w", path, err)
	}

	return cfg.withDefaults(), nil
}
