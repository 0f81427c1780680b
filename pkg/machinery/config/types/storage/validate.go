// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package storage

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// ErrInvalid is wrapped by all validation errors.
var ErrInvalid = errors.New("invalid storage config")

// Validate checks the document for consistency.
//
// Validate returns a list of warnings and a (multi)error wrapping ErrInvalid.
func (c *Config) Validate() ([]string, error) {
	var (
		warnings []string
		result   *multierror.Error
	)

	aliases := map[string]struct{}{}

	addAlias := func(where, alias string) {
		if alias == "" {
			return
		}

		if _, ok := aliases[alias]; ok {
			result = multierror.Append(result, fmt.Errorf("%w: %s: duplicate alias %q", ErrInvalid, where, alias))

			return
		}

		aliases[alias] = struct{}{}
	}

	for i, device := range c.Devices() {
		where := fmt.Sprintf("device %d", i)

		addAlias(where, device.DeviceAlias())

		switch d := device.(type) {
		case *FormattedDrive:
			if d.Filesystem == nil {
				result = multierror.Append(result, fmt.Errorf("%w: %s: formatted device without filesystem", ErrInvalid, where))
			}
		case *PartitionedDrive:
			for j, element := range d.Partitions {
				partitionWarnings, err := validatePartition(element)
				if err != nil {
					result = multierror.Append(result, fmt.Errorf("%s partition %d: %w", where, j, err))
				}

				warnings = append(warnings, partitionWarnings...)

				if p, ok := element.(*Partition); ok {
					addAlias(fmt.Sprintf("%s partition %d", where, j), p.Alias)
				}
			}
		default:
			result = multierror.Append(result, fmt.Errorf("%w: %s: unsupported device %T", ErrInvalid, where, device))
		}
	}

	vgNames := map[string]struct{}{}

	for i, vg := range c.VolumeGroups {
		where := fmt.Sprintf("volume group %d", i)

		if vg.Name == "" {
			result = multierror.Append(result, fmt.Errorf("%w: %s: name is required", ErrInvalid, where))
		} else if _, ok := vgNames[vg.Name]; ok {
			result = multierror.Append(result, fmt.Errorf("%w: %s: duplicate name %q", ErrInvalid, where, vg.Name))
		}

		vgNames[vg.Name] = struct{}{}

		for _, lv := range vg.LogicalVolumes {
			if lv, ok := lv.(*LogicalVolume); ok {
				addAlias(where, lv.Alias)

				if err := validateSize(lv.Size); err != nil {
					result = multierror.Append(result, fmt.Errorf("%s logical volume %q: %w", where, lv.Name, err))
				}
			}
		}
	}

	for i, vg := range c.VolumeGroups {
		for _, pv := range vg.PhysicalVolumes {
			var refs []string

			switch pv := pv.(type) {
			case PhysicalVolumeAlias:
				refs = []string{string(pv)}
			case *PhysicalVolumesGenerator:
				refs = pv.TargetDevices

				if len(refs) == 0 {
					warnings = append(warnings, fmt.Sprintf("volume group %d: physical volumes generator without target devices", i))
				}
			}

			for _, ref := range refs {
				if _, ok := aliases[ref]; !ok {
					result = multierror.Append(result, fmt.Errorf("%w: volume group %d: unknown alias %q", ErrInvalid, i, ref))
				}
			}
		}
	}

	if c.Boot != nil && c.Boot.Device != "" {
		if _, ok := aliases[c.Boot.Device]; !ok {
			result = multierror.Append(result, fmt.Errorf("%w: boot: unknown device alias %q", ErrInvalid, c.Boot.Device))
		}
	}

	return warnings, result.ErrorOrNil()
}

func validatePartition(element PartitionElement) ([]string, error) {
	switch p := element.(type) {
	case *Partition:
		if p.Search == nil && p.Filesystem == nil && p.Encryption == nil {
			return []string{"new partition without filesystem"}, validateSize(p.Size)
		}

		return nil, validateSize(p.Size)
	case *PartitionToDelete:
		if p.Search == nil {
			return nil, fmt.Errorf("%w: partition to delete requires a search", ErrInvalid)
		}
	case *PartitionToDeleteIfNeeded:
		if p.Search == nil {
			return nil, fmt.Errorf("%w: partition to delete if needed requires a search", ErrInvalid)
		}

		return nil, validateSize(p.Size)
	case *VolumesGenerator:
		switch p.Generate.Mode {
		case GenerateDefault, GenerateMandatory:
		default:
			return nil, fmt.Errorf("%w: unsupported generate mode %q", ErrInvalid, p.Generate.Mode)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported partition element %T", ErrInvalid, element)
	}

	return nil, nil
}

func validateSize(size Size) error {
	if size == nil {
		return nil
	}

	minSize, maxSize := size.Bounds()

	if maxSize == nil || minSize.IsCurrent() || maxSize.IsCurrent() {
		return nil
	}

	if minSize.Value() > maxSize.Value() {
		return fmt.Errorf("%w: min size %s is greater than max size %s", ErrInvalid, minSize, maxSize)
	}

	return nil
}
