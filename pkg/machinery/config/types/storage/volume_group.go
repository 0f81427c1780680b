// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Check interfaces.
var (
	_ PhysicalVolumeElement = PhysicalVolumeAlias("")
	_ PhysicalVolumeElement = (*PhysicalVolumesGenerator)(nil)

	_ LogicalVolumeElement = (*LogicalVolume)(nil)
	_ LogicalVolumeElement = (*VolumesGenerator)(nil)
)

// VolumeGroup is an LVM volume group.
type VolumeGroup struct {
	Name            string             `json:"name"`
	ExtentSize      *SizeBound         `json:"extentSize,omitempty"`
	PhysicalVolumes PhysicalVolumeList `json:"physicalVolumes,omitempty"`
	LogicalVolumes  LogicalVolumeList  `json:"logicalVolumes,omitempty"`
}

// PhysicalVolumeElement is an entry of the physical volumes list.
//
// PhysicalVolumeElement is one of PhysicalVolumeAlias or *PhysicalVolumesGenerator.
type PhysicalVolumeElement interface {
	isPhysicalVolumeElement()
}

// PhysicalVolumeAlias refers to an existing device (usually a partition) by its alias.
type PhysicalVolumeAlias string

// PhysicalVolumesGenerator creates physical volumes on the target devices.
type PhysicalVolumesGenerator struct {
	TargetDevices []string
	Encryption    *Encryption
}

func (PhysicalVolumeAlias) isPhysicalVolumeElement()       {}
func (*PhysicalVolumesGenerator) isPhysicalVolumeElement() {}

type physicalVolumesGenerate struct {
	TargetDevices []string    `json:"targetDevices"`
	Encryption    *Encryption `json:"encryption,omitempty"`
}

// MarshalJSON implements json.Marshaler.
//
// The short form {"generate": [aliases]} is used when there are no options.
func (g *PhysicalVolumesGenerator) MarshalJSON() ([]byte, error) {
	if g.Encryption == nil {
		return json.Marshal(map[string][]string{"generate": g.TargetDevices})
	}

	return json.Marshal(map[string]physicalVolumesGenerate{
		"generate": {TargetDevices: g.TargetDevices, Encryption: g.Encryption},
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (g *PhysicalVolumesGenerator) UnmarshalJSON(data []byte) error {
	var aux struct {
		Generate json.RawMessage `json:"generate"`
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	generate := bytes.TrimSpace(aux.Generate)

	if len(generate) > 0 && generate[0] == '[' {
		var targets []string

		if err := json.Unmarshal(generate, &targets); err != nil {
			return err
		}

		*g = PhysicalVolumesGenerator{TargetDevices: targets}

		return nil
	}

	var obj physicalVolumesGenerate

	if err := json.Unmarshal(generate, &obj); err != nil {
		return fmt.Errorf("invalid physical volumes generator: %w", err)
	}

	*g = PhysicalVolumesGenerator(obj)

	return nil
}

// PhysicalVolumeList is a list of physical volume elements.
type PhysicalVolumeList []PhysicalVolumeElement

// UnmarshalJSON implements json.Unmarshaler.
func (l *PhysicalVolumeList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make(PhysicalVolumeList, 0, len(raw))

	for i, item := range raw {
		item = bytes.TrimSpace(item)

		if len(item) > 0 && item[0] == '"' {
			var alias string

			if err := json.Unmarshal(item, &alias); err != nil {
				return fmt.Errorf("physical volume %d: %w", i, err)
			}

			result = append(result, PhysicalVolumeAlias(alias))

			continue
		}

		var generator PhysicalVolumesGenerator

		if err := json.Unmarshal(item, &generator); err != nil {
			return fmt.Errorf("physical volume %d: %w", i, err)
		}

		result = append(result, &generator)
	}

	*l = result

	return nil
}

// TargetAliases returns the aliases of the devices physical volumes are generated on.
func (vg *VolumeGroup) TargetAliases() []string {
	var aliases []string

	for _, pv := range vg.PhysicalVolumes {
		if generator, ok := pv.(*PhysicalVolumesGenerator); ok {
			aliases = append(aliases, generator.TargetDevices...)
		}
	}

	return aliases
}

// LogicalVolumeElement is an entry of the logical volumes list.
//
// LogicalVolumeElement is one of *LogicalVolume or *VolumesGenerator.
type LogicalVolumeElement interface {
	isLogicalVolumeElement()
}

// LogicalVolume is an LVM logical volume.
type LogicalVolume struct {
	Name       string      `json:"name,omitempty"`
	Alias      string      `json:"alias,omitempty"`
	Size       Size        `json:"size,omitempty"`
	Stripes    *uint64     `json:"stripes,omitempty"`
	StripeSize *SizeBound  `json:"stripeSize,omitempty"`
	Encryption *Encryption `json:"encryption,omitempty"`
	Filesystem *Filesystem `json:"filesystem,omitempty"`
}

func (*LogicalVolume) isLogicalVolumeElement()    {}
func (*VolumesGenerator) isLogicalVolumeElement() {}

// UnmarshalJSON implements json.Unmarshaler.
func (lv *LogicalVolume) UnmarshalJSON(data []byte) error {
	type logicalVolume LogicalVolume

	var aux struct {
		logicalVolume

		Size json.RawMessage `json:"size,omitempty"`
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	size, err := ParseSizeSpec(aux.Size)
	if err != nil {
		return err
	}

	*lv = LogicalVolume(aux.logicalVolume)
	lv.Size = size

	return nil
}

// LogicalVolumeList is a list of logical volume elements.
type LogicalVolumeList []LogicalVolumeElement

// UnmarshalJSON implements json.Unmarshaler.
func (l *LogicalVolumeList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make(LogicalVolumeList, 0, len(raw))

	for i, item := range raw {
		var keys struct {
			Generate json.RawMessage `json:"generate"`
		}

		if err := json.Unmarshal(item, &keys); err != nil {
			return fmt.Errorf("logical volume %d: %w", i, err)
		}

		var element LogicalVolumeElement = &LogicalVolume{}

		if keys.Generate != nil {
			element = &VolumesGenerator{}
		}

		if err := json.Unmarshal(item, element); err != nil {
			return fmt.Errorf("logical volume %d: %w", i, err)
		}

		result = append(result, element)
	}

	*l = result

	return nil
}
