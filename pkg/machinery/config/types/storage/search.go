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
	_ Search = SearchAll{}
	_ Search = SearchName("")
	_ Search = (*AdvancedSearch)(nil)
)

const searchAllToken = "*"

// Search selects existing devices.
//
// Search is one of SearchAll, SearchName or *AdvancedSearch.
type Search interface {
	isSearch()
}

// SearchAll matches all devices.
type SearchAll struct{}

// SearchName matches the device with the given name.
type SearchName string

// IfNotFound defines what to do when a search matches nothing.
type IfNotFound string

// IfNotFound values.
const (
	IfNotFoundError  IfNotFound = "error"
	IfNotFoundSkip   IfNotFound = "skip"
	IfNotFoundCreate IfNotFound = "create"
)

// SearchCondition restricts the matched devices.
type SearchCondition struct {
	Name string `json:"name,omitempty"`
}

// AdvancedSearch is the object form of a search.
type AdvancedSearch struct {
	Condition  *SearchCondition `json:"condition,omitempty"`
	Max        *int             `json:"max,omitempty"`
	IfNotFound IfNotFound       `json:"ifNotFound,omitempty"`
}

func (SearchAll) isSearch()       {}
func (SearchName) isSearch()      {}
func (*AdvancedSearch) isSearch() {}

// MarshalJSON implements json.Marshaler.
func (SearchAll) MarshalJSON() ([]byte, error) {
	return json.Marshal(searchAllToken)
}

// ParseSearch decodes a search from its JSON form.
func ParseSearch(data json.RawMessage) (Search, error) {
	data = bytes.TrimSpace(data)

	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	switch data[0] {
	case '"':
		var name string

		if err := json.Unmarshal(data, &name); err != nil {
			return nil, err
		}

		if name == searchAllToken {
			return SearchAll{}, nil
		}

		return SearchName(name), nil
	case '{':
		var search AdvancedSearch

		if err := json.Unmarshal(data, &search); err != nil {
			return nil, fmt.Errorf("invalid search: %w", err)
		}

		return &search, nil
	default:
		return nil, fmt.Errorf("unsupported search %s", data)
	}
}

// MatchesAll reports whether the search selects every device.
//
// Both "*" and an advanced search without a name condition, without max and with
// ifNotFound "skip" match all devices.
func MatchesAll(search Search) bool {
	switch s := search.(type) {
	case SearchAll:
		return true
	case *AdvancedSearch:
		return (s.Condition == nil || s.Condition.Name == "") && s.Max == nil && s.IfNotFound == IfNotFoundSkip
	default:
		return false
	}
}

// SearchedName returns the name of the device the search refers to.
func SearchedName(search Search) (string, bool) {
	switch s := search.(type) {
	case SearchName:
		if s == "" || s == searchAllToken {
			return "", false
		}

		return string(s), true
	case *AdvancedSearch:
		if s.Condition == nil || s.Condition.Name == "" {
			return "", false
		}

		return s.Condition.Name, true
	default:
		return "", false
	}
}

// SearchIfNotFound returns the policy for a search without matches.
func SearchIfNotFound(search Search) IfNotFound {
	if s, ok := search.(*AdvancedSearch); ok && s.IfNotFound != "" {
		return s.IfNotFound
	}

	return IfNotFoundError
}
