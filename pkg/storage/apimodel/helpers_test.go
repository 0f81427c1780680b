// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package apimodel_test

import (
	"testing"

	"github.com/siderolabs/go-pointer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/storagecfg/pkg/storage/apimodel"
)

// fullModel extends sdaModel with every kind of nested value the helpers copy.
func fullModel() *apimodel.Config {
	cfg := sdaModel()

	cfg.Boot = &apimodel.Boot{Configure: true, Device: &apimodel.BootDevice{Name: "/dev/sda"}}
	cfg.Encryption = &apimodel.Encryption{Method: "luks2", Password: "secret"}

	cfg.Drives[0].Partitions[1].Resize = pointer.To(false)
	cfg.Drives[0].Partitions[1].ResizeIfNeeded = pointer.To(true)
	cfg.Drives[0].Partitions[0].Size.Max = pointer.To[uint64](20 << 30)

	cfg.Drives = append(cfg.Drives, apimodel.Drive{
		Name:        "/dev/sdb",
		SpacePolicy: apimodel.SpacePolicyDelete,
		Partitions: []apimodel.Partition{
			{
				MountPath:  "/var",
				Filesystem: &apimodel.Filesystem{Type: "xfs"},
			},
		},
	})

	cfg.VolumeGroups = []apimodel.VolumeGroup{
		{
			VgName:        "system",
			ExtentSize:    pointer.To[uint64](4 << 20),
			TargetDevices: []string{"/dev/sdb"},
			LogicalVolumes: []apimodel.LogicalVolume{
				{
					LvName:     "srv",
					MountPath:  "/srv",
					Filesystem: &apimodel.Filesystem{Type: "btrfs", Snapshots: pointer.To(false)},
					Size:       &apimodel.Size{Min: 5 << 30, Max: pointer.To[uint64](10 << 30)},
					Stripes:    pointer.To[uint64](2),
					StripeSize: pointer.To[uint64](64 << 10),
				},
			},
		},
	}

	return cfg
}

func scribbleFilesystem(fs *apimodel.Filesystem) {
	if fs == nil {
		return
	}

	fs.Type += "-changed"
	fs.Reuse = !fs.Reuse

	if fs.Snapshots != nil {
		*fs.Snapshots = !*fs.Snapshots
	}
}

func scribbleSize(s *apimodel.Size) {
	if s == nil {
		return
	}

	s.Min++

	if s.Max != nil {
		*s.Max++
	}
}

func scribbleUint(v *uint64) {
	if v != nil {
		*v++
	}
}

func scribbleBool(v *bool) {
	if v != nil {
		*v = !*v
	}
}

func scribbleDrives(drives []apimodel.Drive) {
	for i := range drives {
		d := &drives[i]

		d.Name += "-changed"
		scribbleFilesystem(d.Filesystem)

		for j := range d.Partitions {
			p := &d.Partitions[j]

			p.Name += "-changed"
			p.MountPath += "-changed"
			p.Delete = !p.Delete

			scribbleFilesystem(p.Filesystem)
			scribbleSize(p.Size)
			scribbleBool(p.Resize)
			scribbleBool(p.ResizeIfNeeded)
		}
	}
}

// scribble changes every value reachable from the config in place.
func scribble(cfg *apimodel.Config) {
	if cfg.Boot != nil {
		cfg.Boot.Configure = !cfg.Boot.Configure

		if cfg.Boot.Device != nil {
			cfg.Boot.Device.Name += "-changed"
		}
	}

	if cfg.Encryption != nil {
		cfg.Encryption.Password += "-changed"
	}

	scribbleDrives(cfg.Drives)
	scribbleDrives(cfg.MdRaids)

	for i := range cfg.VolumeGroups {
		vg := &cfg.VolumeGroups[i]

		vg.VgName += "-changed"
		scribbleUint(vg.ExtentSize)

		for j := range vg.TargetDevices {
			vg.TargetDevices[j] += "-changed"
		}

		for j := range vg.LogicalVolumes {
			lv := &vg.LogicalVolumes[j]

			lv.LvName += "-changed"
			lv.MountPath += "-changed"

			scribbleFilesystem(lv.Filesystem)
			scribbleSize(lv.Size)
			scribbleUint(lv.Stripes)
			scribbleUint(lv.StripeSize)
		}
	}
}

func TestHelpersKeepInput(t *testing.T) {
	t.Parallel()

	noError := func(f func(*apimodel.Config) *apimodel.Config) func(*apimodel.Config) (*apimodel.Config, error) {
		return func(cfg *apimodel.Config) (*apimodel.Config, error) {
			return f(cfg), nil
		}
	}

	for _, test := range []struct {
		name string
		call func(*apimodel.Config) (*apimodel.Config, error)
	}{
		{
			name: "AddVolumeGroup moving content",
			call: func(cfg *apimodel.Config) (*apimodel.Config, error) {
				return apimodel.AddVolumeGroup(cfg, apimodel.VolumeGroupData{VgName: "data", TargetDevices: []string{"/dev/sda"}}, true)
			},
		},
		{
			name: "AddVolumeGroup",
			call: func(cfg *apimodel.Config) (*apimodel.Config, error) {
				return apimodel.AddVolumeGroup(cfg, apimodel.VolumeGroupData{VgName: "data", TargetDevices: []string{"/dev/sdc"}}, false)
			},
		},
		{
			name: "DeviceToVolumeGroup",
			call: func(cfg *apimodel.Config) (*apimodel.Config, error) {
				return apimodel.DeviceToVolumeGroup(cfg, "/dev/sda")
			},
		},
		{
			name: "EditVolumeGroup",
			call: func(cfg *apimodel.Config) (*apimodel.Config, error) {
				return apimodel.EditVolumeGroup(cfg, "system", apimodel.VolumeGroupData{
					VgName:        "data",
					ExtentSize:    pointer.To[uint64](8 << 20),
					TargetDevices: []string{"/dev/sdb", "/dev/sdc"},
				})
			},
		},
		{
			name: "VolumeGroupToPartitions",
			call: func(cfg *apimodel.Config) (*apimodel.Config, error) {
				return apimodel.VolumeGroupToPartitions(cfg, "system")
			},
		},
		{
			name: "DeleteVolumeGroup",
			call: func(cfg *apimodel.Config) (*apimodel.Config, error) {
				return apimodel.DeleteVolumeGroup(cfg, "system")
			},
		},
		{
			name: "AddLogicalVolume",
			call: func(cfg *apimodel.Config) (*apimodel.Config, error) {
				return apimodel.AddLogicalVolume(cfg, "system", apimodel.LogicalVolume{MountPath: "/opt"})
			},
		},
		{
			name: "EditLogicalVolume",
			call: func(cfg *apimodel.Config) (*apimodel.Config, error) {
				return apimodel.EditLogicalVolume(cfg, "system", "/srv", apimodel.LogicalVolume{LvName: "srv", MountPath: "/data"})
			},
		},
		{
			name: "DeleteLogicalVolume",
			call: func(cfg *apimodel.Config) (*apimodel.Config, error) {
				return apimodel.DeleteLogicalVolume(cfg, "system", "/srv")
			},
		},
		{
			name: "AddDrive",
			call: noError(func(cfg *apimodel.Config) *apimodel.Config {
				return apimodel.AddDrive(cfg, "/dev/sdc")
			}),
		},
		{
			name: "RemoveDrive",
			call: func(cfg *apimodel.Config) (*apimodel.Config, error) {
				return apimodel.RemoveDrive(cfg, "/dev/sdb")
			},
		},
		{
			name: "SwitchDrive to a configured drive",
			call: func(cfg *apimodel.Config) (*apimodel.Config, error) {
				return apimodel.SwitchDrive(cfg, "/dev/sda", "/dev/sdb")
			},
		},
		{
			name: "SwitchDrive to a new drive",
			call: func(cfg *apimodel.Config) (*apimodel.Config, error) {
				return apimodel.SwitchDrive(cfg, "/dev/sda", "/dev/sdc")
			},
		},
		{
			name: "AddPartition",
			call: func(cfg *apimodel.Config) (*apimodel.Config, error) {
				return apimodel.AddPartition(cfg, "/dev/sda", apimodel.Partition{MountPath: "/opt"})
			},
		},
		{
			name: "EditPartition",
			call: func(cfg *apimodel.Config) (*apimodel.Config, error) {
				return apimodel.EditPartition(cfg, "/dev/sda", "/", apimodel.Partition{MountPath: "/"})
			},
		},
		{
			name: "DeletePartition",
			call: func(cfg *apimodel.Config) (*apimodel.Config, error) {
				return apimodel.DeletePartition(cfg, "/dev/sda", "/")
			},
		},
		{
			name: "SetSpacePolicy",
			call: func(cfg *apimodel.Config) (*apimodel.Config, error) {
				return apimodel.SetSpacePolicy(cfg, "/dev/sda", apimodel.SpacePolicyCustom, []apimodel.SpacePolicyAction{
					{DeviceName: "/dev/sda1", Value: apimodel.SpacePolicyActionResizeIfNeeded},
					{DeviceName: "/dev/sda2", Value: apimodel.SpacePolicyActionDelete},
				})
			},
		},
		{
			name: "SetBootDevice",
			call: noError(func(cfg *apimodel.Config) *apimodel.Config {
				return apimodel.SetBootDevice(cfg, "/dev/sdb")
			}),
		},
		{
			name: "SetDefaultBootDevice",
			call: noError(apimodel.SetDefaultBootDevice),
		},
		{
			name: "DisableBoot",
			call: noError(apimodel.DisableBoot),
		},
		{
			name: "SetEncryption",
			call: noError(func(cfg *apimodel.Config) *apimodel.Config {
				return apimodel.SetEncryption(cfg, "luks1", "other")
			}),
		},
		{
			name: "DisableEncryption",
			call: noError(apimodel.DisableEncryption),
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			in := fullModel()
			before := apimodel.Copy(in)

			out, err := test.call(in)
			require.NoError(t, err)
			require.NotNil(t, out)

			assert.Equal(t, before, in, "input must not be modified")
			assert.NotSame(t, in, out)

			scribble(out)

			assert.Equal(t, before, in, "output must not share memory with the input")
		})
	}
}
