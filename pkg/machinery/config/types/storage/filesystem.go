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
	_ FilesystemType = PlainFilesystemType("")
	_ FilesystemType = BtrfsFilesystemType{}

	_ json.Unmarshaler = (*Filesystem)(nil)
)

// Btrfs is the name of the btrfs filesystem type.
const Btrfs = "btrfs"

// FilesystemType is the type of a filesystem.
//
// FilesystemType is one of PlainFilesystemType or BtrfsFilesystemType.
type FilesystemType interface {
	isFilesystemType()

	// Name returns the filesystem name, e.g. "xfs".
	Name() string
}

// PlainFilesystemType is a filesystem type without options, e.g. "xfs".
type PlainFilesystemType string

// BtrfsOptions are btrfs specific options.
type BtrfsOptions struct {
	Snapshots *bool `json:"snapshots,omitempty"`
}

// BtrfsFilesystemType is the {"btrfs": {...}} form of the filesystem type.
type BtrfsFilesystemType struct {
	Btrfs BtrfsOptions `json:"btrfs"`
}

func (PlainFilesystemType) isFilesystemType() {}
func (BtrfsFilesystemType) isFilesystemType() {}

// Name implements FilesystemType.
func (t PlainFilesystemType) Name() string { return string(t) }

// Name implements FilesystemType.
func (BtrfsFilesystemType) Name() string { return Btrfs }

// Filesystem describes how a device is formatted and mounted.
type Filesystem struct {
	Reuse        *bool          `json:"reuseIfPossible,omitempty"`
	Type         FilesystemType `json:"type,omitempty"`
	Label        string         `json:"label,omitempty"`
	Path         string         `json:"path,omitempty"`
	MountBy      string         `json:"mountBy,omitempty"`
	MountOptions []string       `json:"mountOptions,omitempty"`
	MkfsOptions  []string       `json:"mkfsOptions,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (fs *Filesystem) UnmarshalJSON(data []byte) error {
	type filesystem Filesystem

	var aux struct {
		filesystem

		Type json.RawMessage `json:"type,omitempty"`
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	fsType, err := ParseFilesystemType(aux.Type)
	if err != nil {
		return err
	}

	*fs = Filesystem(aux.filesystem)
	fs.Type = fsType

	return nil
}

// ParseFilesystemType decodes a filesystem type from its JSON form.
func ParseFilesystemType(data json.RawMessage) (FilesystemType, error) {
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

		return PlainFilesystemType(name), nil
	case '{':
		var btrfs BtrfsFilesystemType

		if err := json.Unmarshal(data, &btrfs); err != nil {
			return nil, fmt.Errorf("invalid filesystem type: %w", err)
		}

		return btrfs, nil
	default:
		return nil, fmt.Errorf("unsupported filesystem type %s", data)
	}
}

// Mounted reports whether the filesystem has a mount path.
func (fs *Filesystem) Mounted() bool {
	return fs != nil && fs.Path != ""
}

// EncryptionMethod is the method used to encrypt a device.
type EncryptionMethod string

// Encryption methods.
const (
	EncryptionLUKS1          EncryptionMethod = "luks1"
	EncryptionLUKS2          EncryptionMethod = "luks2"
	EncryptionPervasiveLUKS2 EncryptionMethod = "pervasiveLuks2"
	EncryptionTPMFDE         EncryptionMethod = "tpmFde"
	EncryptionRandomSwap     EncryptionMethod = "random_swap"
	EncryptionProtectedSwap  EncryptionMethod = "protected_swap"
	EncryptionSecureSwap     EncryptionMethod = "secure_swap"
)

// Encryption describes the encryption of a device.
//
// In JSON it is either the method name (swap methods) or an object with a single
// method key holding the method options, e.g. {"luks2": {"password": "..."}}.
type Encryption struct {
	Method   EncryptionMethod
	Password string
	Label    string
	Cipher   string
	KeySize  int
}

type encryptionOptions struct {
	Password string `json:"password,omitempty"`
	Label    string `json:"label,omitempty"`
	Cipher   string `json:"cipher,omitempty"`
	KeySize  int    `json:"keySize,omitempty"`
}

func (e Encryption) swap() bool {
	switch e.Method { //nolint:exhaustive
	case EncryptionRandomSwap, EncryptionProtectedSwap, EncryptionSecureSwap:
		return true
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler.
func (e Encryption) MarshalJSON() ([]byte, error) {
	if e.swap() {
		return json.Marshal(string(e.Method))
	}

	return json.Marshal(map[EncryptionMethod]encryptionOptions{
		e.Method: {
			Password: e.Password,
			Label:    e.Label,
			Cipher:   e.Cipher,
			KeySize:  e.KeySize,
		},
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Encryption) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '"' {
		var method string

		if err := json.Unmarshal(data, &method); err != nil {
			return err
		}

		*e = Encryption{Method: EncryptionMethod(method)}

		return nil
	}

	var methods map[EncryptionMethod]encryptionOptions

	if err := json.Unmarshal(data, &methods); err != nil {
		return fmt.Errorf("invalid encryption: %w", err)
	}

	if len(methods) != 1 {
		return fmt.Errorf("encryption must define exactly one method, got %d", len(methods))
	}

	for method, opts := range methods {
		*e = Encryption{
			Method:   method,
			Password: opts.Password,
			Label:    opts.Label,
			Cipher:   opts.Cipher,
			KeySize:  opts.KeySize,
		}
	}

	return nil
}
