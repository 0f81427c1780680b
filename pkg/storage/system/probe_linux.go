// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package system

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/siderolabs/go-blockdevice/v2/blkid"
	"github.com/siderolabs/go-blockdevice/v2/partitioning"
	"go.uber.org/zap"

	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
	"github.com/siderolabs/storagecfg/pkg/storage/system/internal/sysblock"
)

// Probe builds the inventory of the running system.
//
// Every disk and MD RAID found in sysfs is probed with blkid. Devices which fail to
// probe are kept with the size and the partitions known to sysfs.
//
//nolint:gocyclo
func Probe(ctx context.Context, logger *zap.Logger, opts ...ProbeOption) (*System, error) {
	options := DefaultProbeOptions()

	for _, opt := range opts {
		opt(&options)
	}

	events, err := sysblock.Walk(options.SysBlockRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to walk block devices: %w", err)
	}

	sys := &System{
		VolumeTemplates:   options.VolumeTemplates,
		EncryptionMethods: DefaultEncryptionMethods(),
	}

	byName := map[string]int{}

	for _, ev := range events {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		name := sysblock.DevName(ev)

		if sysblock.IsPartition(ev) {
			idx, ok := byName[ev.Values[sysblock.KeyParent]]
			if !ok || sys.Devices[idx].PtableType != "" {
				// the partitions of probed devices come from the partition table
				continue
			}

			sys.Devices[idx].Partitions = append(sys.Devices[idx].Partitions, Partition{
				Name: filepath.Join(options.DevRoot, name),
				Size: storage.Bytes(sysblock.Size(ev)),
			})

			continue
		}

		if skipDevice(name) || sysblock.Size(ev) == 0 {
			logger.Debug("skipping device", zap.String("device", name))

			continue
		}

		device := probeDevice(logger, options, name)
		if device.Size.Value() == 0 {
			device.Size = storage.Bytes(sysblock.Size(ev))
		}

		byName[name] = len(sys.Devices)
		sys.Devices = append(sys.Devices, device)
	}

	logger.Info("probed system", zap.Int("devices", len(sys.Devices)))

	return sys, nil
}

func probeDevice(logger *zap.Logger, options ProbeOptions, name string) Device {
	devPath := filepath.Join(options.DevRoot, name)

	device := Device{
		Name: devPath,
		Type: guessType(name),
	}

	info, err := blkid.ProbePath(devPath,
		blkid.WithProbeLogger(logger.With(zap.String("device", name))),
		blkid.WithSkipLocking(true),
	)
	if err != nil {
		logger.Debug("failed to probe device", zap.String("device", name), zap.Error(err))

		return device
	}

	logger.Debug("probed device", zap.String("device", name), zap.String("type", info.Name), zap.Int("partitions", len(info.Parts)))

	device.Size = storage.Bytes(info.Size)

	if len(info.Parts) > 0 || info.Name == "gpt" || info.Name == "dos" {
		device.PtableType = info.Name
	} else {
		device.Filesystem = info.Name
	}

	for _, nested := range info.Parts {
		partition := Partition{
			Name:       filepath.Join(options.DevRoot, partitioning.DevName(name, nested.PartitionIndex)),
			Filesystem: nested.ProbeResult.Name,
		}

		if nested.ProbedSize != 0 {
			partition.Size = storage.Bytes(nested.ProbedSize)
		} else {
			partition.Size = storage.Bytes(nested.PartitionSize)
		}

		switch {
		case nested.ProbeResult.Label != nil:
			partition.Label = *nested.ProbeResult.Label
		case nested.PartitionLabel != nil:
			partition.Label = *nested.PartitionLabel
		}

		device.Partitions = append(device.Partitions, partition)
	}

	return device
}

func skipDevice(name string) bool {
	for _, prefix := range []string{"loop", "ram", "zram", "sr", "nbd", "dm-"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}

	return false
}
