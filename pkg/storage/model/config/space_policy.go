// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package config

import (
	"slices"

	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
	"github.com/siderolabs/storagecfg/pkg/storage/apimodel"
)

// GenerateSpacePolicy classifies the actions on the existing partitions of a raw device.
//
// First match wins:
//   - formatted device: delete;
//   - unconditional deletion of all partitions: delete;
//   - all partitions shrunk to [0, current]: resize;
//   - any other delete, delete-if-needed or resize action: custom;
//   - otherwise keep.
//
// An unknown device variant has no policy.
func GenerateSpacePolicy(device storage.DriveElement) apimodel.SpacePolicy {
	var partitions storage.PartitionList

	switch d := device.(type) {
	case *storage.FormattedDrive:
		return apimodel.SpacePolicyDelete
	case *storage.PartitionedDrive:
		partitions = d.Partitions
	default:
		return ""
	}

	switch {
	case slices.ContainsFunc(partitions, isDeleteAll):
		return apimodel.SpacePolicyDelete
	case slices.ContainsFunc(partitions, isResizeAll):
		return apimodel.SpacePolicyResize
	case slices.ContainsFunc(partitions, isSpaceAction):
		return apimodel.SpacePolicyCustom
	default:
		return apimodel.SpacePolicyKeep
	}
}

func isDeleteAll(element storage.PartitionElement) bool {
	p, ok := element.(*storage.PartitionToDelete)

	return ok && storage.MatchesAll(p.Search)
}

func isResizeAll(element storage.PartitionElement) bool {
	p, ok := element.(*storage.Partition)

	return ok && storage.MatchesAll(p.Search) && storage.IsShrinkToCurrent(p.Size)
}

func isSpaceAction(element storage.PartitionElement) bool {
	switch p := element.(type) {
	case *storage.PartitionToDelete, *storage.PartitionToDeleteIfNeeded:
		return true
	case *storage.Partition:
		return p.Search != nil && p.Size != nil
	default:
		return false
	}
}
