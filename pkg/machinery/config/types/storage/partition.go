// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Check interfaces.
var (
	_ PartitionElement = (*Partition)(nil)
	_ PartitionElement = (*PartitionToDelete)(nil)
	_ PartitionElement = (*PartitionToDeleteIfNeeded)(nil)
	_ PartitionElement = (*VolumesGenerator)(nil)

	_ json.Unmarshaler = (*PartitionList)(nil)
)

// PartitionElement is an entry of a partition list.
//
// PartitionElement is one of *Partition, *PartitionToDelete, *PartitionToDeleteIfNeeded
// or *VolumesGenerator.
type PartitionElement interface {
	isPartitionElement()
}

// Partition is a regular partition: either a new one or an existing one found by search.
type Partition struct {
	Search     Search      `json:"search,omitempty"`
	Alias      string      `json:"alias,omitempty"`
	ID         string      `json:"id,omitempty"`
	Size       Size        `json:"size,omitempty"`
	Encryption *Encryption `json:"encryption,omitempty"`
	Filesystem *Filesystem `json:"filesystem,omitempty"`
}

// PartitionToDelete removes the matching partitions unconditionally.
type PartitionToDelete struct {
	Search Search `json:"search"`
	Delete bool   `json:"delete"`
}

// PartitionToDeleteIfNeeded removes the matching partitions only to make space.
type PartitionToDeleteIfNeeded struct {
	Search         Search `json:"search"`
	DeleteIfNeeded bool   `json:"deleteIfNeeded"`
	Size           Size   `json:"size,omitempty"`
}

// VolumesGenerator expands to the volumes defined by the product.
type VolumesGenerator struct {
	Generate VolumesGenerate `json:"generate"`
}

// VolumesGenerate selects which volumes are generated.
//
// In JSON it is either the mode string or {"partitions": mode, "encryption": ...}.
type VolumesGenerate struct {
	Mode       GenerateMode
	Encryption *Encryption
}

// GenerateMode selects the generated volumes.
type GenerateMode string

// Generate modes.
const (
	GenerateDefault   GenerateMode = "default"
	GenerateMandatory GenerateMode = "mandatory"
)

func (*Partition) isPartitionElement()                 {}
func (*PartitionToDelete) isPartitionElement()         {}
func (*PartitionToDeleteIfNeeded) isPartitionElement() {}
func (*VolumesGenerator) isPartitionElement()          {}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Partition) UnmarshalJSON(data []byte) error {
	type partition Partition

	var aux struct {
		partition

		Search json.RawMessage `json:"search,omitempty"`
		Size   json.RawMessage `json:"size,omitempty"`
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	search, err := ParseSearch(aux.Search)
	if err != nil {
		return err
	}

	size, err := ParseSizeSpec(aux.Size)
	if err != nil {
		return err
	}

	*p = Partition(aux.partition)
	p.Search = search
	p.Size = size

	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *PartitionToDelete) UnmarshalJSON(data []byte) error {
	var aux struct {
		Search json.RawMessage `json:"search"`
		Delete bool            `json:"delete"`
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	search, err := ParseSearch(aux.Search)
	if err != nil {
		return err
	}

	*p = PartitionToDelete{Search: search, Delete: aux.Delete}

	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *PartitionToDeleteIfNeeded) UnmarshalJSON(data []byte) error {
	var aux struct {
		Search         json.RawMessage `json:"search"`
		DeleteIfNeeded bool            `json:"deleteIfNeeded"`
		Size           json.RawMessage `json:"size,omitempty"`
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	search, err := ParseSearch(aux.Search)
	if err != nil {
		return err
	}

	size, err := ParseSizeSpec(aux.Size)
	if err != nil {
		return err
	}

	*p = PartitionToDeleteIfNeeded{Search: search, DeleteIfNeeded: aux.DeleteIfNeeded, Size: size}

	return nil
}

type volumesGenerateObject struct {
	Partitions GenerateMode `json:"partitions,omitempty"`
	Encryption *Encryption  `json:"encryption,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (g VolumesGenerate) MarshalJSON() ([]byte, error) {
	if g.Encryption == nil {
		return json.Marshal(string(g.Mode))
	}

	return json.Marshal(volumesGenerateObject{Partitions: g.Mode, Encryption: g.Encryption})
}

// UnmarshalJSON implements json.Unmarshaler.
func (g *VolumesGenerate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '"' {
		var mode string

		if err := json.Unmarshal(data, &mode); err != nil {
			return err
		}

		*g = VolumesGenerate{Mode: GenerateMode(mode)}

		return nil
	}

	var obj volumesGenerateObject

	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid generate: %w", err)
	}

	*g = VolumesGenerate{Mode: obj.Partitions, Encryption: obj.Encryption}

	if g.Mode == "" {
		g.Mode = GenerateDefault
	}

	return nil
}

// PartitionList is a list of partition elements.
type PartitionList []PartitionElement

// UnmarshalJSON implements json.Unmarshaler.
func (l *PartitionList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make(PartitionList, 0, len(raw))

	for i, item := range raw {
		element, err := parsePartitionElement(item)
		if err != nil {
			return fmt.Errorf("partition %d: %w", i, err)
		}

		result = append(result, element)
	}

	*l = result

	return nil
}

func parsePartitionElement(data json.RawMessage) (PartitionElement, error) {
	var keys struct {
		Generate       json.RawMessage `json:"generate"`
		Delete         bool            `json:"delete"`
		DeleteIfNeeded bool            `json:"deleteIfNeeded"`
	}

	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, err
	}

	var element PartitionElement

	switch {
	case keys.Generate != nil:
		element = &VolumesGenerator{}
	case keys.Delete && keys.DeleteIfNeeded:
		return nil, fmt.Errorf("delete and deleteIfNeeded are mutually exclusive")
	case keys.Delete:
		element = &PartitionToDelete{}
	case keys.DeleteIfNeeded:
		element = &PartitionToDeleteIfNeeded{}
	default:
		element = &Partition{}
	}

	if err := json.Unmarshal(data, element); err != nil {
		return nil, err
	}

	return element, nil
}

// ElementSearch returns the search of a partition element, if it has one.
func ElementSearch(element PartitionElement) Search {
	switch p := element.(type) {
	case *Partition:
		return p.Search
	case *PartitionToDelete:
		return p.Search
	case *PartitionToDeleteIfNeeded:
		return p.Search
	default:
		return nil
	}
}
