// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package storage

import (
	"encoding/json"
	"fmt"
)

// Check interfaces.
var (
	_ DriveElement = (*FormattedDrive)(nil)
	_ DriveElement = (*PartitionedDrive)(nil)

	_ json.Unmarshaler = (*DriveList)(nil)
)

// DriveElement is a drive or an MD RAID.
//
// DriveElement is one of *FormattedDrive or *PartitionedDrive.
type DriveElement interface {
	isDriveElement()

	// DeviceSearch returns the search selecting the device.
	DeviceSearch() Search
	// DeviceAlias returns the alias of the device.
	DeviceAlias() string
	// DeviceEncryption returns the encryption of the device.
	DeviceEncryption() *Encryption
}

// FormattedDrive is a device formatted as a whole, without a partition table.
type FormattedDrive struct {
	Search     Search      `json:"search,omitempty"`
	Alias      string      `json:"alias,omitempty"`
	Encryption *Encryption `json:"encryption,omitempty"`
	Filesystem *Filesystem `json:"filesystem"`
}

// PartitionedDrive is a device holding a partition table.
type PartitionedDrive struct {
	Search     Search        `json:"search,omitempty"`
	Alias      string        `json:"alias,omitempty"`
	Encryption *Encryption   `json:"encryption,omitempty"`
	PtableType string        `json:"ptableType,omitempty"`
	Partitions PartitionList `json:"partitions,omitempty"`
}

func (*FormattedDrive) isDriveElement()   {}
func (*PartitionedDrive) isDriveElement() {}

// DeviceSearch implements DriveElement.
func (d *FormattedDrive) DeviceSearch() Search { return d.Search }

// DeviceAlias implements DriveElement.
func (d *FormattedDrive) DeviceAlias() string { return d.Alias }

// DeviceEncryption implements DriveElement.
func (d *FormattedDrive) DeviceEncryption() *Encryption { return d.Encryption }

// DeviceSearch implements DriveElement.
func (d *PartitionedDrive) DeviceSearch() Search { return d.Search }

// DeviceAlias implements DriveElement.
func (d *PartitionedDrive) DeviceAlias() string { return d.Alias }

// DeviceEncryption implements DriveElement.
func (d *PartitionedDrive) DeviceEncryption() *Encryption { return d.Encryption }

// UnmarshalJSON implements json.Unmarshaler.
func (d *FormattedDrive) UnmarshalJSON(data []byte) error {
	type formattedDrive FormattedDrive

	var aux struct {
		formattedDrive

		Search json.RawMessage `json:"search,omitempty"`
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	search, err := ParseSearch(aux.Search)
	if err != nil {
		return err
	}

	*d = FormattedDrive(aux.formattedDrive)
	d.Search = search

	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *PartitionedDrive) UnmarshalJSON(data []byte) error {
	type partitionedDrive PartitionedDrive

	var aux struct {
		partitionedDrive

		Search json.RawMessage `json:"search,omitempty"`
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	search, err := ParseSearch(aux.Search)
	if err != nil {
		return err
	}

	*d = PartitionedDrive(aux.partitionedDrive)
	d.Search = search

	return nil
}

// DriveList is a list of drives or MD RAIDs.
type DriveList []DriveElement

// UnmarshalJSON implements json.Unmarshaler.
func (l *DriveList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make(DriveList, 0, len(raw))

	for i, item := range raw {
		var keys struct {
			Filesystem json.RawMessage `json:"filesystem"`
			Partitions json.RawMessage `json:"partitions"`
		}

		if err := json.Unmarshal(item, &keys); err != nil {
			return fmt.Errorf("device %d: %w", i, err)
		}

		var element DriveElement

		switch {
		case keys.Filesystem != nil && keys.Partitions != nil:
			return fmt.Errorf("device %d: filesystem and partitions are mutually exclusive", i)
		case keys.Filesystem != nil:
			element = &FormattedDrive{}
		default:
			element = &PartitionedDrive{}
		}

		if err := json.Unmarshal(item, element); err != nil {
			return fmt.Errorf("device %d: %w", i, err)
		}

		result = append(result, element)
	}

	*l = result

	return nil
}
