// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package storaged_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/storagecfg/internal/app/storaged"
	"github.com/siderolabs/storagecfg/pkg/client"
	"github.com/siderolabs/storagecfg/pkg/storage/system"
)

func TestServiceServe(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)

	store := storaged.NewStore(func(context.Context) (*system.System, error) {
		return system.LoadFile("testdata/system.yaml")
	}, logger)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		errCh <- storaged.NewService(storaged.DefaultConfig(), store, logger).Serve(ctx, listener)
	}()

	c, err := client.New(client.WithEndpoint(listener.Addr().String()), client.WithRetryTimeout(10*time.Second))
	require.NoError(t, err)

	defer c.Close()

	require.NoError(t, c.Health(ctx))

	sys, err := c.System(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, sys.Disks())

	cancel()

	select {
	case err = <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestServiceServeProbeFailure(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)

	store := storaged.NewStore(func(context.Context) (*system.System, error) {
		return nil, errors.New("no sysfs")
	}, logger)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	err = storaged.NewService(storaged.DefaultConfig(), store, logger).Serve(t.Context(), listener)
	assert.ErrorContains(t, err, "no sysfs")
}
