// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build !linux

package system

import (
	"context"

	"go.uber.org/zap"
)

// Probe builds the inventory of the running system.
func Probe(context.Context, *zap.Logger, ...ProbeOption) (*System, error) {
	return nil, ErrUnsupported
}
