// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package storaged_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/storagecfg/internal/app/storaged"
	"github.com/siderolabs/storagecfg/pkg/machinery/constants"
	"github.com/siderolabs/storagecfg/pkg/storage/apimodel"
	"github.com/siderolabs/storagecfg/pkg/storage/model"
	"github.com/siderolabs/storagecfg/pkg/storage/system"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := zaptest.NewLogger(t)
	svc := storaged.NewService(storaged.DefaultConfig(), newStore(t), logger)

	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)

	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, []byte) {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)

	defer resp.Body.Close() //nolint:errcheck

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, out
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	srv := newServer(t)

	code, _ := do(t, srv, http.MethodPut, constants.APIPrefix+"/config", srvConfig)
	require.Equal(t, http.StatusOK, code)

	for _, test := range []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{name: "health", method: http.MethodGet, path: "/healthz", code: http.StatusOK},
		{name: "config", method: http.MethodGet, path: "/config", code: http.StatusOK},
		{name: "config model", method: http.MethodGet, path: "/config_model", code: http.StatusOK},
		{name: "model", method: http.MethodGet, path: "/model", code: http.StatusOK},
		{name: "system", method: http.MethodGet, path: "/devices/system", code: http.StatusOK},
		{name: "malformed config", method: http.MethodPut, path: "/config", body: `{"drives": {}}`, code: http.StatusBadRequest},
		{name: "invalid config", method: http.MethodPut, path: "/config", body: `{"volumeGroups": [{}]}`, code: http.StatusUnprocessableEntity},
		{name: "malformed config model", method: http.MethodPut, path: "/config_model", body: `[]`, code: http.StatusBadRequest},
		{name: "unsolvable config model", method: http.MethodPost, path: "/config_model/solve", body: `{"drives": [{"name": "/dev/vdz"}]}`, code: http.StatusUnprocessableEntity},
		{name: "missing volume group", method: http.MethodDelete, path: "/config_model/volume_groups/missing", code: http.StatusNotFound},
		{name: "missing drive", method: http.MethodPost, path: "/config_model/drives/%2Fdev%2Fvdz/to_volume_group", code: http.StatusNotFound},
		{name: "method", method: http.MethodPatch, path: "/config", code: http.StatusMethodNotAllowed},
		{name: "unknown", method: http.MethodGet, path: "/unknown", code: http.StatusNotFound},
	} {
		t.Run(test.name, func(t *testing.T) {
			path := test.path
			if path != "/healthz" {
				path = constants.APIPrefix + path
			}

			code, body := do(t, srv, test.method, path, test.body)
			assert.Equal(t, test.code, code, "body: %s", body)

			if code >= http.StatusBadRequest && code != http.StatusMethodNotAllowed && test.name != "unknown" {
				var resp struct {
					Error string `json:"error"`
				}

				require.NoError(t, json.Unmarshal(body, &resp))
				assert.NotEmpty(t, resp.Error)
			}
		})
	}
}

func TestHTTPConfig(t *testing.T) {
	t.Parallel()

	srv := newServer(t)

	code, body := do(t, srv, http.MethodPut, constants.APIPrefix+"/config", "drives:\n  - search: /dev/vdb\n    partitions:\n      - filesystem:\n          path: /\n")
	require.Equal(t, http.StatusOK, code, "body: %s", body)

	var update storaged.UpdateResponse

	require.NoError(t, json.Unmarshal(body, &update))
	assert.EqualValues(t, 2, update.Generation)

	code, body = do(t, srv, http.MethodGet, constants.APIPrefix+"/config", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"drives": [{"search": "/dev/vdb", "partitions": [{"filesystem": {"path": "/"}}]}]}`, string(body))

	code, body = do(t, srv, http.MethodGet, constants.APIPrefix+"/config_model", "")
	require.Equal(t, http.StatusOK, code)

	var m apimodel.Config

	require.NoError(t, json.Unmarshal(body, &m))
	require.Len(t, m.Drives, 1)
	assert.Equal(t, []string{"/"}, m.Drives[0].MountPaths())
}

func TestHTTPVolumeGroups(t *testing.T) {
	t.Parallel()

	srv := newServer(t)

	code, _ := do(t, srv, http.MethodPut, constants.APIPrefix+"/config", srvConfig)
	require.Equal(t, http.StatusOK, code)

	code, body := do(t, srv, http.MethodPost, constants.APIPrefix+"/config_model/volume_groups", `{"targetDevices": ["/dev/vda"], "moveContent": true}`)
	require.Equal(t, http.StatusOK, code, "body: %s", body)

	var m apimodel.Config

	require.NoError(t, json.Unmarshal(body, &m))
	require.Len(t, m.VolumeGroups, 1)
	assert.Equal(t, "system", m.VolumeGroups[0].VgName)
	require.Len(t, m.VolumeGroups[0].LogicalVolumes, 1)

	code, _ = do(t, srv, http.MethodPost, constants.APIPrefix+"/config_model/volume_groups", `{"vgName": "system", "targetDevices": ["/dev/vdb"]}`)
	assert.Equal(t, http.StatusConflict, code)

	code, body = do(t, srv, http.MethodPut, constants.APIPrefix+"/config_model/volume_groups/system", `{"vgName": "data", "targetDevices": ["/dev/vda", "/dev/vdb"]}`)
	require.Equal(t, http.StatusOK, code, "body: %s", body)

	m = apimodel.Config{}

	require.NoError(t, json.Unmarshal(body, &m))
	require.Len(t, m.VolumeGroups, 1)
	assert.Equal(t, "data", m.VolumeGroups[0].VgName)
	assert.Equal(t, []string{"/dev/vda", "/dev/vdb"}, m.VolumeGroups[0].TargetDevices)

	code, body = do(t, srv, http.MethodGet, constants.APIPrefix+"/model", "")
	require.Equal(t, http.StatusOK, code)

	var view model.Model

	require.NoError(t, json.Unmarshal(body, &view))
	require.Len(t, view.Drives, 2)
	assert.True(t, view.Drives[0].IsTargetDevice)
	assert.True(t, view.Drives[1].IsTargetDevice)

	code, body = do(t, srv, http.MethodPost, constants.APIPrefix+"/config_model/volume_groups/data/to_partitions", "")
	require.Equal(t, http.StatusOK, code, "body: %s", body)

	m = apimodel.Config{}

	require.NoError(t, json.Unmarshal(body, &m))
	assert.Empty(t, m.VolumeGroups)
	require.NotEmpty(t, m.Drives)
	assert.Equal(t, "/dev/vda", m.Drives[0].Name)
	assert.Contains(t, m.Drives[0].MountPaths(), "/srv")

	code, body = do(t, srv, http.MethodPost, constants.APIPrefix+"/config_model/drives/%2Fdev%2Fvda/to_volume_group", "")
	require.Equal(t, http.StatusOK, code, "body: %s", body)

	m = apimodel.Config{}

	require.NoError(t, json.Unmarshal(body, &m))
	require.Len(t, m.VolumeGroups, 1)
	assert.Equal(t, []string{"/dev/vda"}, m.VolumeGroups[0].TargetDevices)

	code, body = do(t, srv, http.MethodDelete, constants.APIPrefix+"/config_model/volume_groups/system", "")
	require.Equal(t, http.StatusOK, code, "body: %s", body)

	m = apimodel.Config{}

	require.NoError(t, json.Unmarshal(body, &m))
	assert.Empty(t, m.VolumeGroups)
}

func TestHTTPProbe(t *testing.T) {
	t.Parallel()

	srv := newServer(t)

	code, body := do(t, srv, http.MethodPost, constants.APIPrefix+"/probe", "")
	require.Equal(t, http.StatusOK, code)

	var sys system.System

	require.NoError(t, json.Unmarshal(body, &sys))
	assert.Len(t, sys.Devices, 3)
}
