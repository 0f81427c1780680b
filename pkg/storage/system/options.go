// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package system

import "github.com/siderolabs/storagecfg/pkg/machinery/constants"

// ProbeOptions configure probing.
type ProbeOptions struct {
	SysBlockRoot    string
	DevRoot         string
	VolumeTemplates []VolumeTemplate
}

// ProbeOption configures probing.
type ProbeOption func(*ProbeOptions)

// DefaultProbeOptions returns the options probing the running system.
func DefaultProbeOptions() ProbeOptions {
	return ProbeOptions{
		SysBlockRoot: constants.SysBlockRoot,
		DevRoot:      constants.DevRoot,
	}
}

// WithSysBlockRoot sets the sysfs directory listing the block devices.
func WithSysBlockRoot(root string) ProbeOption {
	return func(o *ProbeOptions) {
		o.SysBlockRoot = root
	}
}

// WithDevRoot sets the directory of the device nodes.
func WithDevRoot(root string) ProbeOption {
	return func(o *ProbeOptions) {
		o.DevRoot = root
	}
}

// WithVolumeTemplates sets the volume templates of the probed system.
func WithVolumeTemplates(templates []VolumeTemplate) ProbeOption {
	return func(o *ProbeOptions) {
		o.VolumeTemplates = templates
	}
}
