// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package constants

import "time"

const (
	// DevRoot is the directory of the device nodes.
	DevRoot = "/dev"

	// SysBlockRoot is the sysfs directory listing the block devices.
	SysBlockRoot = "/sys/block"

	// DefaultVolumeGroupName is the base name of the generated volume group names.
	DefaultVolumeGroupName = "system"

	// DefaultMinVolumeSize is the minimum size of a volume without a size and a template.
	DefaultMinVolumeSize = 1 << 30

	// DefaultPtableType is the partition table type of the devices without one.
	DefaultPtableType = "gpt"
)

const (
	// DefaultListenAddress is the address the storage service HTTP API listens on.
	DefaultListenAddress = "127.0.0.1:9431"

	// DefaultServiceConfigPath is the path of the storage service config file.
	DefaultServiceConfigPath = "/etc/storaged/storaged.yaml"

	// APIPrefix is the path prefix of the storage service HTTP API.
	APIPrefix = "/api/storage"

	// ServiceShutdownTimeout is the time the storage service waits for requests to finish.
	ServiceShutdownTimeout = 10 * time.Second

	// ServiceReadHeaderTimeout is the HTTP server read header timeout.
	ServiceReadHeaderTimeout = 10 * time.Second
)

const (
	// DBusBusName is the well-known name of the storage service.
	DBusBusName = "org.storagecfg.Storage1"

	// DBusInterface is the D-Bus interface of the storage service.
	DBusInterface = "org.storagecfg.Storage1"

	// DBusObjectPath is the D-Bus object path of the storage service.
	DBusObjectPath = "/org/storagecfg/Storage1"

	// DBusCallTimeout is the time a D-Bus method call of the storage service may take.
	DBusCallTimeout = 30 * time.Second
)

const (
	// ClientRequestTimeout is the timeout of a single storage service request.
	ClientRequestTimeout = 30 * time.Second

	// ClientRetryTimeout is the total time a storage service request is retried for.
	ClientRetryTimeout = time.Minute

	// ClientRetryInterval is the initial interval between storage service request attempts.
	ClientRetryInterval = 200 * time.Millisecond
)
