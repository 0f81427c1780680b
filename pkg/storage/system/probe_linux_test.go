// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package system_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/storagecfg/pkg/storage/system"
)

func fakeSysBlock(t *testing.T, devices map[string]map[string]string) string {
	t.Helper()

	root := t.TempDir()

	for name, files := range devices {
		for file, content := range files {
			path := filepath.Join(root, name, file)

			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		}
	}

	return root
}

func TestProbe(t *testing.T) {
	t.Parallel()

	sysBlock := fakeSysBlock(t, map[string]map[string]string{
		"vda": {
			"uevent":         "DEVNAME=vda\nDEVTYPE=disk\n",
			"size":           "20971520\n",
			"vda1/uevent":    "DEVNAME=vda1\nDEVTYPE=partition\n",
			"vda1/partition": "1\n",
			"vda1/size":      "2048\n",
		},
		"loop0": {
			"uevent": "DEVNAME=loop0\nDEVTYPE=disk\n",
			"size":   "2048\n",
		},
		"md127": {
			"uevent": "DEVNAME=md127\nDEVTYPE=disk\n",
			"size":   "0\n",
		},
	})

	templates := []system.VolumeTemplate{{MountPath: "/", Filesystem: "btrfs"}}

	// device nodes are missing from the empty dev root, devices are described by sysfs only
	sys, err := system.Probe(context.Background(), zaptest.NewLogger(t),
		system.WithSysBlockRoot(sysBlock),
		system.WithDevRoot(t.TempDir()),
		system.WithVolumeTemplates(templates),
	)
	require.NoError(t, err)

	require.Len(t, sys.Devices, 1)

	vda := sys.Devices[0]

	assert.Equal(t, "vda", filepath.Base(vda.Name))
	assert.Equal(t, system.DeviceTypeDisk, vda.Type)
	assert.Equal(t, uint64(10<<30), vda.Size.Value())
	require.Len(t, vda.Partitions, 1)
	assert.Equal(t, "vda1", filepath.Base(vda.Partitions[0].Name))
	assert.Equal(t, uint64(1<<20), vda.Partitions[0].Size.Value())

	assert.Equal(t, templates, sys.VolumeTemplates)
	assert.NotEmpty(t, sys.EncryptionMethods)
}

func TestProbeCanceled(t *testing.T) {
	t.Parallel()

	sysBlock := fakeSysBlock(t, map[string]map[string]string{
		"vda": {"uevent": "DEVNAME=vda\nDEVTYPE=disk\n", "size": "2048\n"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := system.Probe(ctx, zaptest.NewLogger(t), system.WithSysBlockRoot(sysBlock), system.WithDevRoot(t.TempDir()))
	require.ErrorIs(t, err, context.Canceled)
}
