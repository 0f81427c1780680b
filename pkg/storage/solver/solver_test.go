// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package solver_test

import (
	"context"
	"testing"

	"github.com/siderolabs/go-pointer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
	"github.com/siderolabs/storagecfg/pkg/storage/apimodel"
	"github.com/siderolabs/storagecfg/pkg/storage/model/config"
	"github.com/siderolabs/storagecfg/pkg/storage/solver"
	"github.com/siderolabs/storagecfg/pkg/storage/system"
)

func newSolver(t *testing.T) *solver.Local {
	t.Helper()

	sys, err := system.LoadFile("testdata/system.yaml")
	require.NoError(t, err)

	return solver.NewLocal(sys, zaptest.NewLogger(t))
}

func parse(t *testing.T, in string) *storage.Config {
	t.Helper()

	cfg, err := storage.Parse([]byte(in))
	require.NoError(t, err)

	return cfg
}

func solve(t *testing.T, in string) (*storage.Config, *storage.Config) {
	t.Helper()

	raw := parse(t, in)

	solved, err := newSolver(t).Solve(context.Background(), raw)
	require.NoError(t, err)

	return raw, solved
}

func partitionNames(d storage.DriveElement) []string {
	var names []string

	for _, element := range d.(*storage.PartitionedDrive).Partitions {
		name, _ := storage.SearchedName(storage.ElementSearch(element))
		names = append(names, name)
	}

	return names
}

func TestSolveDeleteAll(t *testing.T) {
	t.Parallel()

	raw, solved := solve(t, `{"drives": [{"search": "/dev/vda", "partitions": [
		{"search": "*", "delete": true},
		{"filesystem": {"path": "/"}}
	]}]}`)

	drive := solved.Drives[0].(*storage.PartitionedDrive)

	assert.Equal(t, storage.SearchName("/dev/vda"), drive.Search)
	assert.Equal(t, "gpt", drive.PtableType)
	assert.Equal(t, []string{"/dev/vda1", "", "/dev/vda2", "/dev/vda3"}, partitionNames(drive))

	model := config.Generate(raw, solved)
	require.Len(t, model.Drives, 1)

	assert.Equal(t, apimodel.SpacePolicyDelete, model.Drives[0].SpacePolicy)
	assert.Equal(t, []apimodel.Partition{
		{Name: "/dev/vda1", Delete: true},
		{
			MountPath:  "/",
			Filesystem: &apimodel.Filesystem{Default: true, Type: "btrfs", Snapshots: pointer.To(true)},
			Size:       &apimodel.Size{Auto: true, Min: 5 << 30, Max: pointer.To[uint64](10 << 30)},
		},
		{Name: "/dev/vda2", Delete: true},
		{Name: "/dev/vda3", Delete: true},
	}, model.Drives[0].Partitions)
}

func TestSolveKeepsNamedPartitions(t *testing.T) {
	t.Parallel()

	raw, solved := solve(t, `{"drives": [{"search": "/dev/vda", "partitions": [
		{"search": "/dev/vda2", "filesystem": {"path": "/home", "reuseIfPossible": true}},
		{"search": "*", "size": [0, "current"]}
	]}]}`)

	assert.Equal(t, []string{"/dev/vda2", "/dev/vda1", "/dev/vda3"}, partitionNames(solved.Drives[0]))

	model := config.Generate(raw, solved)
	require.Len(t, model.Drives, 1)

	drive := model.Drives[0]

	assert.Equal(t, apimodel.SpacePolicyResize, drive.SpacePolicy)
	require.Len(t, drive.Partitions, 3)

	home := drive.Partitions[0]
	assert.Equal(t, "/home", home.MountPath)
	assert.Equal(t, &apimodel.Filesystem{Reuse: true, Default: true, Type: "ext4"}, home.Filesystem)
	assert.Equal(t, &apimodel.Size{Auto: true, Min: 20 << 30, Max: pointer.To[uint64](20 << 30)}, home.Size)

	vda3 := drive.Partitions[2]
	assert.Equal(t, "/dev/vda3", vda3.Name)
	assert.Equal(t, &apimodel.Size{Max: pointer.To[uint64](10 << 30)}, vda3.Size)
	assert.Equal(t, pointer.To(true), vda3.ResizeIfNeeded)
}

func TestSolveSearchMax(t *testing.T) {
	t.Parallel()

	_, solved := solve(t, `{"drives": [{"search": "/dev/vda", "partitions": [
		{"search": {"max": 2, "ifNotFound": "skip"}, "delete": true}
	]}]}`)

	assert.Equal(t, []string{"/dev/vda1", "/dev/vda2"}, partitionNames(solved.Drives[0]))
}

func TestSolveDriveSearches(t *testing.T) {
	t.Parallel()

	_, solved := solve(t, `{
		"drives": [
			{"alias": "first"},
			{"search": "/dev/vda"},
			{"search": {"condition": {"name": "/dev/vdz"}, "ifNotFound": "skip"}},
			{"search": {"ifNotFound": "skip"}}
		],
		"mdRaids": [{"search": "*"}]
	}`)

	names := make([]string, 0, len(solved.Drives))

	for _, d := range solved.Drives {
		name, _ := storage.SearchedName(d.DeviceSearch())
		names = append(names, name)
	}

	assert.Equal(t, []string{"/dev/vdb", "/dev/vda", "", ""}, names)
	assert.Equal(t, storage.SearchName("/dev/md0"), solved.MdRaids[0].DeviceSearch())
}

func TestSolveNotFound(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		name string
		in   string
	}{
		{name: "drive", in: `{"drives": [{"search": "/dev/vdz"}]}`},
		{name: "no more drives", in: `{"drives": [{}, {}, {}]}`},
		{name: "partition", in: `{"drives": [{"search": "/dev/vda", "partitions": [{"search": "/dev/vda9", "delete": true}]}]}`},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			_, err := newSolver(t).Solve(context.Background(), parse(t, test.in))
			require.ErrorIs(t, err, solver.ErrDeviceNotFound)
		})
	}
}

func TestSolveInvalid(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		name string
		in   string
	}{
		{name: "validation", in: `{"drives": [{"alias": "a"}, {"alias": "a"}]}`},
		{name: "encryption", in: `{"drives": [{"partitions": [{"filesystem": {"path": "/"}, "encryption": {"luks1": {"password": "x"}}}]}]}`},
		{name: "current size of new partition", in: `{"drives": [{"partitions": [{"filesystem": {"path": "/"}, "size": [0, "current"]}]}]}`},
		{name: "created drive", in: `{"drives": [{"search": {"condition": {"name": "/dev/vdz"}, "ifNotFound": "create"}}]}`},
		{name: "created deleted partition", in: `{"drives": [{"partitions": [{"search": {"condition": {"name": "/dev/vdb1"}, "ifNotFound": "create"}, "delete": true}]}]}`},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			_, err := newSolver(t).Solve(context.Background(), parse(t, test.in))
			require.ErrorIs(t, err, solver.ErrInvalidConfig)
		})
	}

	_, err := newSolver(t).Solve(context.Background(), nil)
	require.ErrorIs(t, err, solver.ErrInvalidConfig)
}

func TestSolveCreatePartition(t *testing.T) {
	t.Parallel()

	_, solved := solve(t, `{"drives": [{"search": "/dev/vda", "partitions": [
		{"search": {"condition": {"name": "/dev/vda9"}, "ifNotFound": "create"}, "filesystem": {"path": "/srv"}}
	]}]}`)

	p := solved.Drives[0].(*storage.PartitionedDrive).Partitions[0].(*storage.Partition)

	assert.Nil(t, p.Search)
	assert.Equal(t, storage.PlainFilesystemType("xfs"), p.Filesystem.Type)

	minSize, maxSize := p.Size.Bounds()
	assert.Equal(t, uint64(2<<30), minSize.Value())
	assert.Nil(t, maxSize)
}

func TestSolveCurrentSize(t *testing.T) {
	t.Parallel()

	_, solved := solve(t, `{"drives": [{"search": "/dev/vda", "partitions": [
		{"search": "/dev/vda2", "size": {"min": "current"}},
		{"search": "/dev/vda3", "deleteIfNeeded": true, "size": [0, "current"]}
	]}]}`)

	partitions := solved.Drives[0].(*storage.PartitionedDrive).Partitions

	minSize, maxSize := partitions[0].(*storage.Partition).Size.Bounds()
	assert.Equal(t, uint64(20<<30), minSize.Value())
	assert.Nil(t, maxSize)

	minSize, maxSize = partitions[1].(*storage.PartitionToDeleteIfNeeded).Size.Bounds()
	assert.Zero(t, minSize.Value())
	require.NotNil(t, maxSize)
	assert.Equal(t, uint64(10<<30), maxSize.Value())
}

func TestSolveGenerators(t *testing.T) {
	t.Parallel()

	raw, solved := solve(t, `{
		"drives": [
			{"search": "/dev/vdb", "partitions": [
				{"generate": {"partitions": "default", "encryption": {"luks2": {"password": "secret"}}}}
			]},
			{"search": "/dev/vda", "partitions": [{"generate": "mandatory"}]}
		]
	}`)

	vdb := solved.Drives[0].(*storage.PartitionedDrive)
	require.Len(t, vdb.Partitions, 3, "generator followed by the generated partitions")
	assert.IsType(t, &storage.VolumesGenerator{}, vdb.Partitions[0])

	assert.Empty(t, solved.Drives[1].(*storage.PartitionedDrive).Partitions[1:], "mount paths are generated once")

	model := config.Generate(raw, solved)
	require.Len(t, model.Drives, 2)

	assert.Equal(t, []string{"/", "swap"}, model.Drives[0].MountPaths())
	assert.Equal(t, &apimodel.Encryption{Method: "luks2", Password: "secret"}, model.Encryption)
	assert.Equal(t, apimodel.SpacePolicyKeep, model.Drives[0].SpacePolicy)
}

func TestSolveVolumeGroups(t *testing.T) {
	t.Parallel()

	raw, solved := solve(t, `{
		"drives": [{"search": "/dev/vdb", "alias": "pv"}],
		"volumeGroups": [{
			"name": "system",
			"physicalVolumes": [{"generate": ["pv"]}],
			"logicalVolumes": [
				{"filesystem": {"path": "/home", "type": "ext4"}, "size": "4 GiB"},
				{"filesystem": {"path": "/srv"}},
				{"generate": "default"}
			]
		}]
	}`)

	var names []string

	for _, element := range solved.VolumeGroups[0].LogicalVolumes {
		if lv, ok := element.(*storage.LogicalVolume); ok {
			names = append(names, lv.Name)
		}
	}

	assert.Equal(t, []string{"home", "srv", "root", "swap"}, names)

	model := config.Generate(raw, solved)
	require.Len(t, model.VolumeGroups, 1)

	vg := model.VolumeGroups[0]

	assert.Equal(t, []string{"/dev/vdb"}, vg.TargetDevices)
	require.Len(t, vg.LogicalVolumes, 4)
	assert.Equal(t, &apimodel.Size{Min: 4 << 30, Max: pointer.To[uint64](4 << 30)}, vg.LogicalVolumes[0].Size)
	assert.Equal(t, &apimodel.Size{Auto: true, Min: 2 << 30}, vg.LogicalVolumes[1].Size)
	assert.Equal(t, "xfs", vg.LogicalVolumes[1].Filesystem.Type)
}

func TestSolveBoot(t *testing.T) {
	t.Parallel()

	raw, solved := solve(t, `{
		"boot": {"configure": true},
		"drives": [
			{"search": "/dev/vdb"},
			{"search": "/dev/vda", "partitions": [{"filesystem": {"path": "/"}}]}
		]
	}`)

	assert.Equal(t, "/dev/vda", solved.Boot.Device)

	model := config.Generate(raw, solved)
	assert.Equal(t, &apimodel.BootDevice{Default: true, Name: "/dev/vda"}, model.Boot.Device)

	_, solved = solve(t, `{
		"boot": {"configure": true},
		"drives": [{"search": "/dev/vdb", "alias": "pv"}],
		"volumeGroups": [{"name": "system", "physicalVolumes": [{"generate": ["pv"]}], "logicalVolumes": [{"filesystem": {"path": "/"}}]}]
	}`)

	assert.Equal(t, "pv", solved.Boot.Device)
}

func TestSolveDoesNotModifyInput(t *testing.T) {
	t.Parallel()

	in := `{"drives": [{"partitions": [{"search": "*", "delete": true}, {"filesystem": {"path": "/"}}]}]}`

	raw := parse(t, in)

	_, err := newSolver(t).Solve(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, parse(t, in), raw)
}

func TestSolveCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newSolver(t).Solve(ctx, parse(t, `{"drives": [{}]}`))
	require.ErrorIs(t, err, context.Canceled)
}
