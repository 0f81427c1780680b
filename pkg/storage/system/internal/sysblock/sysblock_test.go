// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package sysblock_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/storagecfg/pkg/storage/system/internal/sysblock"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWalk(t *testing.T) {
	t.Parallel()

	sys := t.TempDir()
	devices := filepath.Join(sys, "devices", "virtio0")
	root := filepath.Join(sys, "block")

	writeFile(t, filepath.Join(devices, "vda", "uevent"), "MAJOR=253\nMINOR=0\nDEVNAME=vda\nDEVTYPE=disk\n")
	writeFile(t, filepath.Join(devices, "vda", "size"), "2097152\n")
	writeFile(t, filepath.Join(devices, "vda", "vda1", "uevent"), "DEVNAME=vda1\nDEVTYPE=partition\nPARTN=1\n")
	writeFile(t, filepath.Join(devices, "vda", "vda1", "partition"), "1\n")
	writeFile(t, filepath.Join(devices, "vda", "vda1", "size"), "2048\n")
	writeFile(t, filepath.Join(devices, "vda", "queue", "rotational"), "0\n")

	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.Symlink(filepath.Join(devices, "vda"), filepath.Join(root, "vda")))
	require.NoError(t, os.Symlink(filepath.Join(devices, "gone"), filepath.Join(root, "gone")))

	events, err := sysblock.Walk(root)
	require.NoError(t, err)
	require.Len(t, events, 2)

	disk, partition := events[0], events[1]

	assert.Equal(t, "block", disk.Subsystem)
	assert.Equal(t, "vda", sysblock.DevName(disk))
	assert.False(t, sysblock.IsPartition(disk))
	assert.EqualValues(t, 1<<30, sysblock.Size(disk))

	assert.Equal(t, "vda1", sysblock.DevName(partition))
	assert.True(t, sysblock.IsPartition(partition))
	assert.EqualValues(t, 1<<20, sysblock.Size(partition))
	assert.Equal(t, "vda", partition.Values[sysblock.KeyParent])
	assert.Equal(t, "1", partition.Values["PARTN"])
}

func TestWalkMissingRoot(t *testing.T) {
	t.Parallel()

	_, err := sysblock.Walk(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}
