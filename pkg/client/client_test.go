// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package client_test

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/siderolabs/go-retry/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/storagecfg/internal/app/storaged"
	"github.com/siderolabs/storagecfg/pkg/client"
	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
	"github.com/siderolabs/storagecfg/pkg/storage/apimodel"
	"github.com/siderolabs/storagecfg/pkg/storage/system"
)

const srvConfig = `drives:
- search: /dev/vda
  partitions:
  - search: "*"
    delete: true
  - filesystem:
      path: /srv
      type: xfs
    size: 5GiB
`

func newHandler(t *testing.T) http.Handler {
	t.Helper()

	logger := zaptest.NewLogger(t)

	store := storaged.NewStore(func(context.Context) (*system.System, error) {
		return system.LoadFile("../storage/solver/testdata/system.yaml")
	}, logger)

	_, err := store.Probe(t.Context())
	require.NoError(t, err)

	return storaged.NewService(storaged.DefaultConfig(), store, logger).Handler()
}

func newClient(t *testing.T, handler http.Handler, opts ...client.OptionFunc) *client.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := client.New(append([]client.OptionFunc{
		client.WithEndpoint(srv.URL),
		client.WithLogger(zaptest.NewLogger(t)),
		client.WithRetryTimeout(0),
	}, opts...)...)
	require.NoError(t, err)

	t.Cleanup(c.Close)

	return c
}

func TestNewErrors(t *testing.T) {
	t.Parallel()

	for _, endpoint := range []string{"http://", "http://[::1"} {
		_, err := client.New(client.WithEndpoint(endpoint))
		assert.Error(t, err, endpoint)
	}

	_, err := client.New(client.WithEndpoint("127.0.0.1:9431"))
	assert.NoError(t, err)
}

func TestConfig(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	c := newClient(t, newHandler(t))

	require.NoError(t, c.Health(ctx))

	cfg, err := storage.Parse([]byte(srvConfig))
	require.NoError(t, err)

	result, err := c.SetConfig(ctx, cfg)
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.Generation)

	stored, err := c.Config(ctx)
	require.NoError(t, err)
	require.Len(t, stored.Drives, 1)

	m, err := c.ConfigModel(ctx)
	require.NoError(t, err)
	require.Len(t, m.Drives, 1)
	assert.Equal(t, "/dev/vda", m.Drives[0].Name)
	assert.Equal(t, []string{"/srv"}, m.Drives[0].MountPaths())

	m.Drives = append(m.Drives, apimodel.Drive{
		Name:       "/dev/vdb",
		Partitions: []apimodel.Partition{{MountPath: "/"}},
	})

	solved, err := c.SolveConfigModel(ctx, m)
	require.NoError(t, err)
	require.Len(t, solved.Drives, 2)
	assert.Equal(t, []string{"/"}, solved.Drives[1].MountPaths())

	result, err = c.SetConfigModel(ctx, solved)
	require.NoError(t, err)
	assert.EqualValues(t, 3, result.Generation)

	full, err := c.Model(ctx)
	require.NoError(t, err)
	assert.Len(t, full.Drives, 2)
}

func TestVolumeGroups(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	c := newClient(t, newHandler(t))

	cfg, err := storage.Parse([]byte(srvConfig))
	require.NoError(t, err)

	_, err = c.SetConfig(ctx, cfg)
	require.NoError(t, err)

	m, err := c.DeviceToVolumeGroup(ctx, "/dev/vda")
	require.NoError(t, err)
	require.Len(t, m.VolumeGroups, 1)
	assert.Equal(t, "system", m.VolumeGroups[0].VgName)
	assert.Equal(t, []string{"/dev/vda"}, m.VolumeGroups[0].TargetDevices)

	_, err = c.AddVolumeGroup(ctx, apimodel.VolumeGroupData{VgName: "system", TargetDevices: []string{"/dev/vdb"}}, false)
	require.Error(t, err)

	var apiErr *client.APIError

	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.NotEmpty(t, apiErr.Message)

	m, err = c.EditVolumeGroup(ctx, "system", apimodel.VolumeGroupData{VgName: "data", TargetDevices: []string{"/dev/vda", "/dev/vdb"}})
	require.NoError(t, err)
	require.Len(t, m.VolumeGroups, 1)
	assert.Equal(t, "data", m.VolumeGroups[0].VgName)

	m, err = c.VolumeGroupToPartitions(ctx, "data")
	require.NoError(t, err)
	assert.Empty(t, m.VolumeGroups)
	require.Len(t, m.Drives, 1)
	assert.Contains(t, m.Drives[0].MountPaths(), "/srv")

	m, err = c.AddVolumeGroup(ctx, apimodel.VolumeGroupData{TargetDevices: []string{"/dev/vda"}}, true)
	require.NoError(t, err)
	require.Len(t, m.VolumeGroups, 1)

	m, err = c.DeleteVolumeGroup(ctx, m.VolumeGroups[0].VgName)
	require.NoError(t, err)
	assert.Empty(t, m.VolumeGroups)

	_, err = c.DeleteVolumeGroup(ctx, "missing")
	assert.True(t, client.IsNotFound(err))

	_, err = c.DeviceToVolumeGroup(ctx, "/dev/vdz")
	assert.True(t, client.IsNotFound(err))
}

func TestSystem(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	c := newClient(t, newHandler(t))

	sys, err := c.System(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, sys.Disks())

	sys, err = c.Probe(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, sys.Disks())
}

func TestRetry(t *testing.T) {
	t.Parallel()

	handler := newHandler(t)

	var failures atomic.Int32

	flaky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/config_model") && failures.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		handler.ServeHTTP(w, r)
	})

	c := newClient(t, flaky,
		client.WithRetryTimeout(10*time.Second),
		client.WithRetryOptions(retry.WithUnits(10*time.Millisecond), retry.WithJitter(time.Millisecond)),
	)

	_, err := c.ConfigModel(t.Context())
	require.NoError(t, err)
	assert.EqualValues(t, 3, failures.Load())

	_, err = c.DeleteVolumeGroup(t.Context(), "missing")
	require.Error(t, err)
	assert.True(t, client.IsNotFound(err))
}

func TestRetryChanges(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	handler := newHandler(t)

	var posts atomic.Int32

	// the change is applied, but the response comes after the request timeout
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			handler.ServeHTTP(w, r)

			return
		}

		posts.Add(1)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)

		time.Sleep(300 * time.Millisecond)

		w.WriteHeader(rec.Code)
		w.Write(rec.Body.Bytes()) //nolint:errcheck
	})

	c := newClient(t, slow,
		client.WithRequestTimeout(100*time.Millisecond),
		client.WithRetryTimeout(5*time.Second),
		client.WithRetryOptions(retry.WithUnits(10*time.Millisecond), retry.WithJitter(time.Millisecond)),
	)

	cfg, err := storage.Parse([]byte(srvConfig))
	require.NoError(t, err)

	_, err = c.SetConfig(ctx, cfg)
	require.NoError(t, err)

	_, err = c.DeviceToVolumeGroup(ctx, "/dev/vda")
	require.Error(t, err)
	assert.EqualValues(t, 1, posts.Load())

	m, err := c.ConfigModel(ctx)
	require.NoError(t, err)
	require.Len(t, m.VolumeGroups, 1)
	assert.Equal(t, "system", m.VolumeGroups[0].VgName)
}

func TestRetryChangesOnServerError(t *testing.T) {
	t.Parallel()

	var posts atomic.Int32

	failing := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := newClient(t, failing,
		client.WithRetryTimeout(5*time.Second),
		client.WithRetryOptions(retry.WithUnits(10*time.Millisecond), retry.WithJitter(time.Millisecond)),
	)

	_, err := c.AddVolumeGroup(t.Context(), apimodel.VolumeGroupData{TargetDevices: []string{"/dev/vda"}}, false)

	var apiErr *client.APIError

	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.EqualValues(t, 1, posts.Load())
}

func TestRetryChangesNotSent(t *testing.T) {
	t.Parallel()

	// a closed listener leaves an address nothing accepts connections on
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	c, err := client.New(
		client.WithEndpoint(addr),
		client.WithRetryTimeout(200*time.Millisecond),
		client.WithRetryOptions(retry.WithUnits(10*time.Millisecond), retry.WithJitter(time.Millisecond)),
	)
	require.NoError(t, err)

	defer c.Close()

	start := time.Now()

	_, err = c.DeviceToVolumeGroup(t.Context(), "/dev/vda")
	require.Error(t, err)

	// dial errors are retried until the retry timeout
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}
