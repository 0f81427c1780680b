// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package storaged

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/siderolabs/storagecfg/pkg/logging"
	"github.com/siderolabs/storagecfg/pkg/machinery/constants"
	"github.com/siderolabs/storagecfg/pkg/storage/system"
)

// Config is the storage service configuration.
type Config struct {
	DBus DBusConfig `yaml:"dbus"`

	// Listen is the address of the HTTP API.
	Listen string `yaml:"listen"`
	// System is the path of a system inventory file, the running system is probed if empty.
	System string `yaml:"system"`
	// VolumeTemplates is the path of a YAML list of volume templates.
	VolumeTemplates string `yaml:"volumeTemplates"`
	// Storage is the path of the storage config loaded on start.
	Storage   string `yaml:"storage"`
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// DBusConfig configures the D-Bus export.
type DBusConfig struct {
	// Address of the bus, the system bus is used if empty.
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// DefaultConfig returns the configuration used without a config file.
func DefaultConfig() Config {
	return Config{
		Listen:    constants.DefaultListenAddress,
		LogLevel:  "info",
		LogFormat: string(logging.FormatConsole),
	}
}

// BindFlags registers the command line flags of the configuration.
func (c *Config) BindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.Listen, "listen", c.Listen, "address of the HTTP API")
	flags.BoolVar(&c.DBus.Enabled, "dbus", c.DBus.Enabled, "export the service on D-Bus")
	flags.StringVar(&c.DBus.Address, "dbus-address", c.DBus.Address, "D-Bus address, the system bus if empty")
	flags.StringVar(&c.System, "system", c.System, "system inventory file, the running system is probed if empty")
	flags.StringVar(&c.VolumeTemplates, "volume-templates", c.VolumeTemplates, "volume templates file")
	flags.StringVar(&c.Storage, "storage", c.Storage, "storage config loaded on start")
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format (console, json)")
}

// flagFields maps the flags to the configuration fields they set.
func flagFields(c *Config) map[string]any {
	return map[string]any{
		"listen":           &c.Listen,
		"dbus":             &c.DBus.Enabled,
		"dbus-address":     &c.DBus.Address,
		"system":           &c.System,
		"volume-templates": &c.VolumeTemplates,
		"storage":          &c.Storage,
		"log-level":        &c.LogLevel,
		"log-format":       &c.LogFormat,
	}
}

// LoadFile reads the configuration file on top of the defaults.
//
// Flags changed on the command line take precedence over the file.
func (c *Config) LoadFile(path string, flags *pflag.FlagSet) error {
	in, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	fromFile := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(in))
	dec.KnownFields(true)

	if err = dec.Decode(&fromFile); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config %q: %w", path, err)
	}

	if flags != nil {
		current, loaded := flagFields(c), flagFields(&fromFile)

		flags.Visit(func(f *pflag.Flag) {
			switch dst := loaded[f.Name].(type) {
			case *string:
				*dst = *current[f.Name].(*string)
			case *bool:
				*dst = *current[f.Name].(*bool)
			}
		})
	}

	*c = fromFile

	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}

	switch logging.Format(c.LogFormat) {
	case logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}

	return nil
}

// loadVolumeTemplates reads a list of volume templates in JSON or YAML.
func loadVolumeTemplates(path string) ([]system.VolumeTemplate, error) {
	in, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read volume templates: %w", err)
	}

	var templates []system.VolumeTemplate

	if err = sigsyaml.UnmarshalStrict(in, &templates); err != nil {
		return nil, fmt.Errorf("failed to parse volume templates %q: %w", path, err)
	}

	return templates, nil
}

// NewProber returns the prober of the system inventory for the configuration.
func NewProber(cfg Config, logger *zap.Logger) (Prober, error) {
	var templates []system.VolumeTemplate

	if cfg.VolumeTemplates != "" {
		var err error

		if templates, err = loadVolumeTemplates(cfg.VolumeTemplates); err != nil {
			return nil, err
		}
	}

	if cfg.System != "" {
		return func(context.Context) (*system.System, error) {
			sys, err := system.LoadFile(cfg.System)
			if err != nil {
				return nil, err
			}

			if templates != nil {
				sys.VolumeTemplates = templates
			}

			return sys, nil
		}, nil
	}

	return func(ctx context.Context) (*system.System, error) {
		return system.Probe(ctx, logger, system.WithVolumeTemplates(templates))
	}, nil
}
