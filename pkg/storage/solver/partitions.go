// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package solver

import (
	"context"
	"fmt"

	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
	"github.com/siderolabs/storagecfg/pkg/storage/system"
)

func (st *state) resolvePartitions(ctx context.Context) error {
	for _, device := range st.config.Devices() {
		if err := ctx.Err(); err != nil {
			return err
		}

		d, ok := device.(*storage.PartitionedDrive)
		if !ok {
			continue
		}

		// partitions of skipped devices are left as they are
		dev, ok := st.devices[device]
		if !ok {
			continue
		}

		if err := st.resolveDrivePartitions(d, dev); err != nil {
			return fmt.Errorf("%s: %w", dev.Name, err)
		}
	}

	return nil
}

// resolveDrivePartitions resolves the partition searches of a drive.
//
// An element matching several partitions is resolved to the first one in place, copies
// resolved to the other ones are appended to the list.
//
//nolint:gocyclo
func (st *state) resolveDrivePartitions(d *storage.PartitionedDrive, dev *system.Device) error {
	named := map[string]struct{}{}

	for _, element := range d.Partitions {
		if p, ok := element.(*storage.Partition); ok {
			if name, ok := storage.SearchedName(p.Search); ok {
				named[name] = struct{}{}
			}
		}
	}

	var extra storage.PartitionList

	for _, element := range d.Partitions {
		search := storage.ElementSearch(element)

		if search == nil {
			if p, ok := element.(*storage.Partition); ok {
				if err := st.resolveNewPartition(p); err != nil {
					return err
				}
			}

			continue
		}

		matches := matchPartitions(dev, search, named)

		if len(matches) == 0 {
			switch partitionIfNotFound(search) {
			case storage.IfNotFoundSkip:
				setPartitionSearch(element, unresolvedSearch())
			case storage.IfNotFoundCreate:
				p, ok := element.(*storage.Partition)
				if !ok {
					return fmt.Errorf("%w: only regular partitions can be created", ErrInvalidConfig)
				}

				p.Search = nil

				if err := st.resolveNewPartition(p); err != nil {
					return err
				}
			case storage.IfNotFoundError:
				fallthrough
			default:
				return fmt.Errorf("%w: partition %s", ErrDeviceNotFound, describeSearch(search))
			}

			continue
		}

		resolved := []storage.PartitionElement{element}

		for range matches[1:] {
			c := copyPartitionElement(element)

			resolved = append(resolved, c)
			extra = append(extra, c)
		}

		for i, match := range matches {
			setPartitionSearch(resolved[i], storage.SearchName(match.Name))
			st.resolveExistingPartition(resolved[i], match)
		}
	}

	d.Partitions = append(d.Partitions, extra...)

	return nil
}

func (st *state) resolveNewPartition(p *storage.Partition) error {
	var path string

	if p.Filesystem != nil {
		path = p.Filesystem.Path
	}

	size, err := st.newVolumeSize(p.Size, path)
	if err != nil {
		return err
	}

	p.Size = size

	st.resolveFilesystem(p.Filesystem, "")

	return nil
}

func (st *state) resolveExistingPartition(element storage.PartitionElement, match *system.Partition) {
	switch p := element.(type) {
	case *storage.Partition:
		p.Size = existingSize(p.Size, match)

		st.resolveFilesystem(p.Filesystem, match.Filesystem)
	case *storage.PartitionToDeleteIfNeeded:
		if p.Size != nil {
			p.Size = existingSize(p.Size, match)
		}
	}
}

// matchPartitions returns the partitions of the device matched by the search.
//
// Searches without a name don't match the partitions other elements refer to by name.
func matchPartitions(dev *system.Device, search storage.Search, named map[string]struct{}) []*system.Partition {
	if name, ok := storage.SearchedName(search); ok {
		if p := dev.Partition(name); p != nil {
			return []*system.Partition{p}
		}

		return nil
	}

	limit := -1

	if s, ok := search.(*storage.AdvancedSearch); ok && s.Max != nil {
		limit = *s.Max
	}

	var result []*system.Partition

	for i := range dev.Partitions {
		if len(result) == limit {
			break
		}

		if _, ok := named[dev.Partitions[i].Name]; ok {
			continue
		}

		result = append(result, &dev.Partitions[i])
	}

	return result
}

// partitionIfNotFound returns the policy for a search without matches.
//
// A device without partitions is not an error for "*".
func partitionIfNotFound(search storage.Search) storage.IfNotFound {
	if _, ok := search.(storage.SearchAll); ok {
		return storage.IfNotFoundSkip
	}

	return storage.SearchIfNotFound(search)
}

func setPartitionSearch(element storage.PartitionElement, search storage.Search) {
	switch p := element.(type) {
	case *storage.Partition:
		p.Search = search
	case *storage.PartitionToDelete:
		p.Search = search
	case *storage.PartitionToDeleteIfNeeded:
		p.Search = search
	}
}

func copyPartitionElement(element storage.PartitionElement) storage.PartitionElement {
	switch p := element.(type) {
	case *storage.Partition:
		c := *p

		if p.Filesystem != nil {
			fs := *p.Filesystem
			c.Filesystem = &fs
		}

		return &c
	case *storage.PartitionToDelete:
		c := *p

		return &c
	case *storage.PartitionToDeleteIfNeeded:
		c := *p

		return &c
	default:
		return element
	}
}
