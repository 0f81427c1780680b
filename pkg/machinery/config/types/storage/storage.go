// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package storage provides the storage configuration document.
//
// The document describes the desired storage layout: drives and MD RAIDs (formatted or
// partitioned), LVM volume groups, boot device and encryption. Variants of the document
// (searches, sizes, partition and drive kinds) are represented as sealed interfaces.
package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"sigs.k8s.io/yaml"
)

// Config is the storage configuration document.
type Config struct {
	Boot         *Boot         `json:"boot,omitempty"`
	Drives       DriveList     `json:"drives,omitempty"`
	MdRaids      DriveList     `json:"mdRaids,omitempty"`
	VolumeGroups []VolumeGroup `json:"volumeGroups,omitempty"`
}

// Boot configures the boot partitions.
type Boot struct {
	Configure bool `json:"configure"`
	// Device is the alias of the boot device, empty means the default device.
	Device string `json:"device,omitempty"`
}

// Load reads the config document in JSON or YAML form.
func Load(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage config: %w", err)
	}

	return Parse(data)
}

// LoadFile reads the config document from a file.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close() //nolint:errcheck

	cfg, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes the config document in JSON or YAML form.
func Parse(data []byte) (*Config, error) {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse storage config: %w", err)
	}

	var cfg Config

	if err = json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode storage config: %w", err)
	}

	return &cfg, nil
}

// Clone returns a deep copy of the document.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(c)
	if err != nil {
		panic(fmt.Sprintf("storage config is not serializable: %s", err))
	}

	clone, err := Parse(data)
	if err != nil {
		panic(fmt.Sprintf("storage config does not round-trip: %s", err))
	}

	return clone
}

// Devices returns drives followed by MD RAIDs.
func (c *Config) Devices() []DriveElement {
	result := make([]DriveElement, 0, len(c.Drives)+len(c.MdRaids))
	result = append(result, c.Drives...)

	return append(result, c.MdRaids...)
}
