// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package sysblock gathers block devices from the /sys/block filesystem.
package sysblock

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mdlayher/kobject"
)

// Event value keys.
const (
	KeyDevName = "DEVNAME"
	KeyDevType = "DEVTYPE"
	// KeySize is not a uevent key, it carries the size of the device in bytes read from sysfs.
	KeySize = "SIZE"
	// KeyParent is not a uevent key, it carries the DEVNAME of the parent disk of a partition.
	KeyParent = "PARENT"
)

// Device types.
const (
	TypeDisk      = "disk"
	TypePartition = "partition"
)

const sectorSize = 512

// Walk walks the /sys/block filesystem and returns an add event for every disk and
// partition found.
//
// Partition events follow the event of their disk.
func Walk(root string) ([]*kobject.Event, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", root, err)
	}

	result := make([]*kobject.Event, 0, len(entries))

	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())

		if entry.Type()&os.ModeSymlink != 0 {
			path, err = filepath.EvalSymlinks(path)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}

				return nil, fmt.Errorf("failed to resolve symlink %s: %w", entry.Name(), err)
			}
		} else if !entry.IsDir() {
			continue
		}

		disk, err := readDevice(path, entry.Name())
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return nil, err
		}

		result = append(result, disk)

		partitions, err := readPartitions(path, disk.Values[KeyDevName])
		if err != nil {
			return nil, err
		}

		result = append(result, partitions...)
	}

	return result, nil
}

// DevName returns the kernel name of the device of the event.
func DevName(ev *kobject.Event) string {
	return ev.Values[KeyDevName]
}

// IsPartition reports whether the event describes a partition.
func IsPartition(ev *kobject.Event) bool {
	return ev.Values[KeyDevType] == TypePartition
}

// Size returns the size in bytes of the device of the event.
func Size(ev *kobject.Event) uint64 {
	size, err := strconv.ParseUint(ev.Values[KeySize], 10, 64)
	if err != nil {
		return 0
	}

	return size
}

func readDevice(path, name string) (*kobject.Event, error) {
	uevent, err := readUevent(path)
	if err != nil {
		return nil, err
	}

	if uevent[KeyDevName] == "" {
		uevent[KeyDevName] = name
	}

	if uevent[KeyDevType] == "" {
		uevent[KeyDevType] = TypeDisk
	}

	if size, ok := readSize(path); ok {
		uevent[KeySize] = strconv.FormatUint(size, 10)
	}

	return &kobject.Event{
		Action:     kobject.Add,
		DevicePath: path,
		Subsystem:  "block",
		Values:     uevent,
	}, nil
}

// readUevent reads the uevent file of the device as key=value pairs.
func readUevent(path string) (map[string]string, error) {
	path = filepath.Join(path, "uevent")

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}

	result := map[string]string{}

	for _, kv := range bytes.Split(content, []byte("\n")) {
		key, value, ok := bytes.Cut(kv, []byte("="))
		if !ok {
			continue
		}

		result[string(key)] = string(value)
	}

	return result, nil
}

// readSize reads the size file of the device, the size is always in 512-byte sectors.
func readSize(path string) (uint64, bool) {
	content, err := os.ReadFile(filepath.Join(path, "size"))
	if err != nil {
		return 0, false
	}

	sectors, err := strconv.ParseUint(string(bytes.TrimSpace(content)), 10, 64)
	if err != nil {
		return 0, false
	}

	return sectors * sectorSize, true
}

// readPartitions reads the partitions of the disk at path.
//
// Partitions are the subdirectories with a partition file.
func readPartitions(path, parent string) ([]*kobject.Event, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var result []*kobject.Event //nolint:prealloc

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		partitionPath := filepath.Join(path, entry.Name())

		if _, err = os.Stat(filepath.Join(partitionPath, "partition")); err != nil {
			continue
		}

		ev, err := readDevice(partitionPath, entry.Name())
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return nil, err
		}

		ev.Values[KeyDevType] = TypePartition
		ev.Values[KeyParent] = parent

		result = append(result, ev)
	}

	return result, nil
}
