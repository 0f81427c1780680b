// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Check interfaces.
var (
	_ json.Marshaler   = SizeBound{}
	_ json.Unmarshaler = (*SizeBound)(nil)

	_ Size = SizeValue{}
	_ Size = SizeTuple{}
	_ Size = SizeRange{}
)

const currentSizeToken = "current"

// SizeBound is a size limit: either a byte count or the current size of the device.
type SizeBound struct {
	raw     string
	value   uint64
	current bool
}

// CurrentSize is the bound which keeps the current size of the device.
var CurrentSize = SizeBound{current: true}

// Bytes returns a bound of the given byte count.
func Bytes(value uint64) SizeBound {
	return SizeBound{value: value}
}

// MustSizeBound parses the bound, panicking on error.
func MustSizeBound(value string) SizeBound {
	var b SizeBound

	if err := b.UnmarshalJSON([]byte(strconv.Quote(value))); err != nil {
		panic(err)
	}

	return b
}

// IsCurrent reports whether the bound refers to the current size.
func (b SizeBound) IsCurrent() bool {
	return b.current
}

// Value returns the byte count (zero for the current size).
func (b SizeBound) Value() uint64 {
	if b.current {
		return 0
	}

	return b.value
}

// String implements fmt.Stringer.
func (b SizeBound) String() string {
	switch {
	case b.current:
		return currentSizeToken
	case b.raw != "":
		return b.raw
	default:
		return humanize.IBytes(b.value)
	}
}

// MarshalJSON implements json.Marshaler.
func (b SizeBound) MarshalJSON() ([]byte, error) {
	switch {
	case b.current:
		return json.Marshal(currentSizeToken)
	case b.raw != "":
		return json.Marshal(b.raw)
	default:
		return json.Marshal(b.value)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *SizeBound) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '"' {
		var s string

		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		if strings.EqualFold(strings.TrimSpace(s), currentSizeToken) {
			*b = CurrentSize

			return nil
		}

		value, err := ParseSize(s)
		if err != nil {
			return err
		}

		*b = SizeBound{raw: s, value: value}

		return nil
	}

	var n json.Number

	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid size %s: %w", data, err)
	}

	if value, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		*b = SizeBound{value: value}

		return nil
	}

	value, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || value < 0 {
		return fmt.Errorf("invalid size %s", data)
	}

	if value >= math.MaxUint64 {
		return fmt.Errorf("size %s is too large", data)
	}

	*b = SizeBound{value: uint64(value)}

	return nil
}

// ParseSize parses a size string like "2 GiB", "10gb" or "1k" into bytes.
//
// Units are case-insensitive, binary (KiB, MiB, ...) and decimal (kb, k, ...) units are
// supported, fractional values are truncated. Strings with an unknown unit fall back to
// their leading integer prefix, a string without one is zero. Sizes which don't fit in
// 64 bits are an error.
func ParseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)

	value, err := humanize.ParseBytes(s)
	if err == nil {
		return value, nil
	}

	// humanize reports overflow with an unwrapped "too large: ..." error
	if strings.HasPrefix(err.Error(), "too large") {
		return 0, fmt.Errorf("size %q is too large", s)
	}

	end := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if end == -1 {
		end = len(s)
	}

	if end == 0 {
		return 0, nil
	}

	value, err = strconv.ParseUint(s[:end], 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("size %q is too large", s)
	}

	return value, err
}

// Size is the size of a partition or a logical volume.
//
// Size is one of SizeValue, SizeTuple or SizeRange.
type Size interface {
	isSize()

	// Bounds returns the lower bound and the optional upper bound.
	Bounds() (SizeBound, *SizeBound)
}

// SizeValue is an exact size, both bounds are equal.
type SizeValue struct {
	Value SizeBound
}

// SizeTuple is either [min] or [min, max].
type SizeTuple []SizeBound

// SizeRange is the {min, max} form.
type SizeRange struct {
	Min SizeBound  `json:"min"`
	Max *SizeBound `json:"max,omitempty"`
}

func (SizeValue) isSize() {}
func (SizeTuple) isSize() {}
func (SizeRange) isSize() {}

// Bounds implements Size.
func (s SizeValue) Bounds() (SizeBound, *SizeBound) {
	return s.Value, &s.Value
}

// Bounds implements Size.
func (s SizeTuple) Bounds() (SizeBound, *SizeBound) {
	switch len(s) {
	case 0:
		return SizeBound{}, nil
	case 1:
		return s[0], nil
	default:
		return s[0], &s[1]
	}
}

// Bounds implements Size.
func (s SizeRange) Bounds() (SizeBound, *SizeBound) {
	return s.Min, s.Max
}

// MarshalJSON implements json.Marshaler.
func (s SizeValue) MarshalJSON() ([]byte, error) {
	return s.Value.MarshalJSON()
}

// NewSizeRange builds a {min, max} size, a nil max means no upper limit.
func NewSizeRange(minSize SizeBound, maxSize *SizeBound) SizeRange {
	return SizeRange{Min: minSize, Max: maxSize}
}

// IsShrinkToCurrent reports whether the size is [0, "current"]: shrink as needed, never grow.
func IsShrinkToCurrent(s Size) bool {
	if s == nil {
		return false
	}

	minSize, maxSize := s.Bounds()

	return !minSize.IsCurrent() && minSize.Value() == 0 && maxSize != nil && maxSize.IsCurrent()
}

// ParseSizeSpec decodes a size from any of its JSON forms.
func ParseSizeSpec(data json.RawMessage) (Size, error) {
	data = bytes.TrimSpace(data)

	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	switch data[0] {
	case '[':
		var tuple SizeTuple

		if err := json.Unmarshal(data, &tuple); err != nil {
			return nil, fmt.Errorf("invalid size tuple: %w", err)
		}

		if len(tuple) < 1 || len(tuple) > 2 {
			return nil, fmt.Errorf("size tuple must have one or two elements, got %d", len(tuple))
		}

		return tuple, nil
	case '{':
		var rng SizeRange

		if err := json.Unmarshal(data, &rng); err != nil {
			return nil, fmt.Errorf("invalid size range: %w", err)
		}

		return rng, nil
	default:
		var value SizeBound

		if err := value.UnmarshalJSON(data); err != nil {
			return nil, err
		}

		return SizeValue{Value: value}, nil
	}
}
