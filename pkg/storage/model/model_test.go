// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package model_test

import (
	"encoding/json"
	"testing"

	"github.com/siderolabs/go-pointer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/storagecfg/pkg/storage/apimodel"
	"github.com/siderolabs/storagecfg/pkg/storage/model"
)

func testConfig() *apimodel.Config {
	return &apimodel.Config{
		Boot: &apimodel.Boot{Configure: true, Device: &apimodel.BootDevice{Name: "/dev/vdc"}},
		Drives: []apimodel.Drive{
			{
				Name:        "/dev/vda",
				SpacePolicy: apimodel.SpacePolicyCustom,
				Partitions: []apimodel.Partition{
					{MountPath: "/", Filesystem: &apimodel.Filesystem{Type: "btrfs"}},
					{Name: "/dev/vda1", MountPath: "/home", Filesystem: &apimodel.Filesystem{Reuse: true}},
					{Name: "/dev/vda2", Delete: true},
					{Name: "/dev/vda3", ResizeIfNeeded: pointer.To(true)},
					{Name: "/dev/vda4"},
				},
			},
			{Name: "/dev/vdb"},
			{Name: "/dev/vdc"},
		},
		MdRaids: []apimodel.MdRaid{
			{Name: "/dev/md0", MountPath: "/data", Filesystem: &apimodel.Filesystem{Type: "xfs"}},
		},
		VolumeGroups: []apimodel.VolumeGroup{
			{
				VgName:        "system",
				TargetDevices: []string{"/dev/vdb", "/dev/missing"},
				LogicalVolumes: []apimodel.LogicalVolume{
					{LvName: "srv", MountPath: "/srv"},
					{LvName: "raw"},
				},
			},
		},
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	m := model.Build(testConfig())

	require.Len(t, m.Drives, 3)
	require.Len(t, m.MdRaids, 1)
	require.Len(t, m.VolumeGroups, 1)

	vda, vdb, vdc := m.Drives[0], m.Drives[1], m.Drives[2]

	assert.Equal(t, model.ListDrives, vda.List)
	assert.Equal(t, 1, vdb.ListIndex)
	assert.Equal(t, model.ListMdRaids, m.MdRaids[0].List)

	assert.True(t, vda.IsUsed)
	assert.True(t, vda.IsAddingPartitions)
	assert.True(t, vda.IsReusingPartitions)
	assert.False(t, vda.IsTargetDevice)
	assert.Equal(t, []string{"/", "/home"}, vda.MountPaths())

	assert.True(t, vdb.IsUsed)
	assert.True(t, vdb.IsTargetDevice)
	assert.False(t, vdb.IsAddingPartitions)
	assert.Empty(t, vdb.MountPaths())

	assert.True(t, vdc.IsBoot)
	assert.True(t, vdc.IsExplicitBoot)
	assert.True(t, vdc.IsUsed)

	assert.Equal(t, []string{"/data"}, m.MdRaids[0].MountPaths())
	assert.Equal(t, []string{"/", "/home", "/data", "/srv"}, m.MountPaths())
}

func TestPartitions(t *testing.T) {
	t.Parallel()

	vda := model.Build(testConfig()).Drives[0]

	root := vda.Partition("/")
	require.NotNil(t, root)
	assert.True(t, root.IsNew)
	assert.True(t, root.IsUsed)
	assert.False(t, root.IsReused)

	home := vda.Partition("/home")
	require.NotNil(t, home)
	assert.False(t, home.IsNew)
	assert.True(t, home.IsReused)
	assert.Equal(t, "/dev/vda1", home.Name)

	assert.Nil(t, vda.Partition("/var"))

	assert.True(t, vda.Partitions[2].IsUsedBySpacePolicy)
	assert.True(t, vda.Partitions[3].IsUsedBySpacePolicy)
	assert.False(t, vda.Partitions[4].IsUsedBySpacePolicy)

	names := func(partitions []*model.Partition) []string {
		result := make([]string, 0, len(partitions))

		for _, p := range partitions {
			result = append(result, p.Name)
		}

		return result
	}

	assert.Equal(t, []string{"/dev/vda1", "/dev/vda2", "/dev/vda3"}, names(vda.ConfiguredExistingPartitions()))

	cfg := testConfig()
	cfg.Drives[0].SpacePolicy = apimodel.SpacePolicyKeep

	assert.Equal(t, []string{"/dev/vda1"}, names(model.Build(cfg).Drives[0].ConfiguredExistingPartitions()))
}

func TestVolumeGroups(t *testing.T) {
	t.Parallel()

	m := model.Build(testConfig())

	vg := m.VolumeGroup("system")
	require.NotNil(t, vg)

	assert.Nil(t, m.VolumeGroup("data"))
	assert.Equal(t, []string{"/srv"}, vg.MountPaths())

	targets := vg.TargetDevices()
	require.Len(t, targets, 1, "missing devices are skipped")
	assert.Same(t, m.Drives[1], targets[0])

	assert.Equal(t, []*model.VolumeGroup{vg}, m.Drives[1].VolumeGroups())
	assert.Empty(t, m.Drives[0].VolumeGroups())
}

func TestBoot(t *testing.T) {
	t.Parallel()

	m := model.Build(testConfig())

	assert.True(t, m.Boot.Configure)
	assert.False(t, m.Boot.IsDefault)
	assert.Same(t, m.Drives[2], m.Boot.Device())

	cfg := testConfig()
	cfg.Boot.Device = &apimodel.BootDevice{Default: true, Name: "/dev/vda"}

	m = model.Build(cfg)

	assert.True(t, m.Boot.IsDefault)
	assert.True(t, m.Drives[0].IsBoot)
	assert.False(t, m.Drives[0].IsExplicitBoot)

	cfg = testConfig()
	cfg.Boot.Configure = false

	m = model.Build(cfg)

	for _, d := range m.Drives {
		assert.Equal(t, cfg.IsBoot(d.Name), d.IsBoot, d.Name)
		assert.Equal(t, cfg.IsExplicitBoot(d.Name), d.IsExplicitBoot, d.Name)
		assert.Equal(t, cfg.IsUsedDevice(d.Name), d.IsUsed, d.Name)
	}

	assert.False(t, m.Drives[2].IsExplicitBoot)
	assert.False(t, m.Drives[2].IsUsed)

	empty := model.Build(nil)

	assert.False(t, empty.Boot.Configure)
	assert.Nil(t, empty.Boot.Device())
	assert.Empty(t, empty.MountPaths())
}

func TestBuildDoesNotShareMemory(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	m := model.Build(cfg)

	cfg.Drives[0].Partitions[0].MountPath = "/var"
	cfg.VolumeGroups[0].TargetDevices[0] = "/dev/vdc"

	assert.NotNil(t, m.Drives[0].Partition("/"))
	assert.Equal(t, "/dev/vdb", m.VolumeGroups[0].TargetNames[0])
}

func TestMarshal(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(model.Build(testConfig()))
	require.NoError(t, err)

	var out map[string]any

	require.NoError(t, json.Unmarshal(data, &out))
	assert.Contains(t, out, "drives")
	assert.Contains(t, out, "volumeGroups")
	assert.Equal(t, map[string]any{"configure": true, "isDefault": false, "device": "/dev/vdc"}, out["boot"])
}
