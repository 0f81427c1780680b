// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package storaged

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/siderolabs/gen/xerrors"
	"go.uber.org/zap"

	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
	"github.com/siderolabs/storagecfg/pkg/machinery/constants"
	"github.com/siderolabs/storagecfg/pkg/storage/apimodel"
)

const maxBodySize = 4 << 20

// UpdateResponse is the response to a write of the storage config.
type UpdateResponse struct {
	Warnings   []string `json:"warnings,omitempty"`
	Generation uint64   `json:"generation"`
}

// AddVolumeGroupRequest is the body of the volume group creation.
type AddVolumeGroupRequest struct {
	apimodel.VolumeGroupData

	MoveContent bool `json:"moveContent"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns the HTTP API of the service.
func (svc *Service) Handler() http.Handler {
	router := mux.NewRouter()
	// device names are passed escaped in paths
	router.UseEncodedPath()
	router.Use(svc.logRequests)

	router.HandleFunc("/healthz", svc.health).Methods(http.MethodGet, http.MethodHead)

	api := router.PathPrefix(constants.APIPrefix).Subrouter()

	api.HandleFunc("/config", svc.getConfig).Methods(http.MethodGet)
	api.HandleFunc("/config", svc.putConfig).Methods(http.MethodPut)
	api.HandleFunc("/config_model", svc.getConfigModel).Methods(http.MethodGet)
	api.HandleFunc("/config_model", svc.putConfigModel).Methods(http.MethodPut)
	api.HandleFunc("/config_model/solve", svc.solveConfigModel).Methods(http.MethodPost)
	api.HandleFunc("/config_model/volume_groups", svc.addVolumeGroup).Methods(http.MethodPost)
	api.HandleFunc("/config_model/volume_groups/{name}", svc.editVolumeGroup).Methods(http.MethodPut)
	api.HandleFunc("/config_model/volume_groups/{name}", svc.deleteVolumeGroup).Methods(http.MethodDelete)
	api.HandleFunc("/config_model/volume_groups/{name}/to_partitions", svc.volumeGroupToPartitions).Methods(http.MethodPost)
	api.HandleFunc("/config_model/drives/{name}/to_volume_group", svc.deviceToVolumeGroup).Methods(http.MethodPost)
	api.HandleFunc("/model", svc.getModel).Methods(http.MethodGet)
	api.HandleFunc("/devices/system", svc.getSystem).Methods(http.MethodGet)
	api.HandleFunc("/probe", svc.probe).Methods(http.MethodPost)

	return router
}

func (svc *Service) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		svc.logger.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Duration("duration", time.Since(start)))
	})
}

func (svc *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		svc.logger.Warn("failed to write response", zap.Error(err))
	}
}

func (svc *Service) writeError(w http.ResponseWriter, err error) {
	status := httpStatus(err)

	if status == http.StatusInternalServerError {
		svc.logger.Error("request failed", zap.Error(err))
	}

	svc.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, xerrors.NewTaggedf[BadRequestTag]("failed to read request: %w", err)
	}

	return body, nil
}

func decodeJSON(r *http.Request, v any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}

	if err = json.Unmarshal(body, v); err != nil {
		return xerrors.NewTaggedf[BadRequestTag]("failed to decode request: %w", err)
	}

	return nil
}

func pathVar(r *http.Request, name string) (string, error) {
	value, err := url.PathUnescape(mux.Vars(r)[name])
	if err != nil {
		return "", xerrors.NewTaggedf[BadRequestTag]("invalid %s: %w", name, err)
	}

	return value, nil
}

func (svc *Service) health(w http.ResponseWriter, _ *http.Request) {
	svc.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (svc *Service) getConfig(w http.ResponseWriter, _ *http.Request) {
	svc.writeJSON(w, http.StatusOK, svc.store.Config())
}

func (svc *Service) putConfig(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		svc.writeError(w, err)

		return
	}

	cfg, err := storage.Parse(body)
	if err != nil {
		svc.writeError(w, xerrors.NewTaggedf[BadRequestTag]("%w", err))

		return
	}

	warnings, err := svc.store.SetConfig(cfg)
	if err != nil {
		svc.writeError(w, err)

		return
	}

	svc.writeJSON(w, http.StatusOK, UpdateResponse{Warnings: warnings, Generation: svc.store.Generation()})
}

func (svc *Service) getConfigModel(w http.ResponseWriter, r *http.Request) {
	m, err := svc.store.ConfigModel(r.Context())
	if err != nil {
		svc.writeError(w, err)

		return
	}

	svc.writeJSON(w, http.StatusOK, m)
}

func (svc *Service) putConfigModel(w http.ResponseWriter, r *http.Request) {
	var m apimodel.Config

	if err := decodeJSON(r, &m); err != nil {
		svc.writeError(w, err)

		return
	}

	warnings, err := svc.store.SetConfigModel(&m)
	if err != nil {
		svc.writeError(w, err)

		return
	}

	svc.writeJSON(w, http.StatusOK, UpdateResponse{Warnings: warnings, Generation: svc.store.Generation()})
}

func (svc *Service) solveConfigModel(w http.ResponseWriter, r *http.Request) {
	var m apimodel.Config

	if err := decodeJSON(r, &m); err != nil {
		svc.writeError(w, err)

		return
	}

	solved, err := svc.store.SolveConfigModel(r.Context(), &m)
	if err != nil {
		svc.writeError(w, err)

		return
	}

	svc.writeJSON(w, http.StatusOK, solved)
}

func (svc *Service) getModel(w http.ResponseWriter, r *http.Request) {
	m, err := svc.store.Model(r.Context())
	if err != nil {
		svc.writeError(w, err)

		return
	}

	svc.writeJSON(w, http.StatusOK, m)
}

// update runs an API model helper against the stored config and writes the new API model.
func (svc *Service) update(w http.ResponseWriter, r *http.Request, helper func(*apimodel.Config) (*apimodel.Config, error)) {
	m, err := svc.store.UpdateConfigModel(r.Context(), helper)
	if err != nil {
		svc.writeError(w, err)

		return
	}

	svc.writeJSON(w, http.StatusOK, m)
}

func (svc *Service) addVolumeGroup(w http.ResponseWriter, r *http.Request) {
	var req AddVolumeGroupRequest

	if err := decodeJSON(r, &req); err != nil {
		svc.writeError(w, err)

		return
	}

	svc.update(w, r, func(m *apimodel.Config) (*apimodel.Config, error) {
		if req.VgName == "" {
			req.VgName = apimodel.GenerateVolumeGroupName(m)
		}

		return apimodel.AddVolumeGroup(m, req.VolumeGroupData, req.MoveContent)
	})
}

func (svc *Service) editVolumeGroup(w http.ResponseWriter, r *http.Request) {
	name, err := pathVar(r, "name")
	if err != nil {
		svc.writeError(w, err)

		return
	}

	var data apimodel.VolumeGroupData

	if err = decodeJSON(r, &data); err != nil {
		svc.writeError(w, err)

		return
	}

	svc.update(w, r, func(m *apimodel.Config) (*apimodel.Config, error) {
		return apimodel.EditVolumeGroup(m, name, data)
	})
}

func (svc *Service) deleteVolumeGroup(w http.ResponseWriter, r *http.Request) {
	name, err := pathVar(r, "name")
	if err != nil {
		svc.writeError(w, err)

		return
	}

	svc.update(w, r, func(m *apimodel.Config) (*apimodel.Config, error) {
		return apimodel.DeleteVolumeGroup(m, name)
	})
}

func (svc *Service) volumeGroupToPartitions(w http.ResponseWriter, r *http.Request) {
	name, err := pathVar(r, "name")
	if err != nil {
		svc.writeError(w, err)

		return
	}

	svc.update(w, r, func(m *apimodel.Config) (*apimodel.Config, error) {
		return apimodel.VolumeGroupToPartitions(m, name)
	})
}

func (svc *Service) deviceToVolumeGroup(w http.ResponseWriter, r *http.Request) {
	name, err := pathVar(r, "name")
	if err != nil {
		svc.writeError(w, err)

		return
	}

	svc.update(w, r, func(m *apimodel.Config) (*apimodel.Config, error) {
		return apimodel.DeviceToVolumeGroup(m, name)
	})
}

func (svc *Service) getSystem(w http.ResponseWriter, _ *http.Request) {
	svc.writeJSON(w, http.StatusOK, svc.store.System())
}

func (svc *Service) probe(w http.ResponseWriter, r *http.Request) {
	sys, err := svc.store.Probe(r.Context())
	if err != nil {
		svc.writeError(w, err)

		return
	}

	svc.writeJSON(w, http.StatusOK, sys)
}
