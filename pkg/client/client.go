// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package client implements the client of the storage service HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/siderolabs/go-retry/retry"
	"go.uber.org/zap"

	"github.com/siderolabs/storagecfg/pkg/httpdefaults"
	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
	"github.com/siderolabs/storagecfg/pkg/machinery/constants"
	"github.com/siderolabs/storagecfg/pkg/storage/apimodel"
	"github.com/siderolabs/storagecfg/pkg/storage/model"
	"github.com/siderolabs/storagecfg/pkg/storage/system"
)

// Client talks to the storage service.
type Client struct {
	options Options
	http    *http.Client
}

// UpdateResult is returned by the calls replacing the storage config.
type UpdateResult struct {
	Warnings   []string `json:"warnings,omitempty"`
	Generation uint64   `json:"generation"`
}

// APIError is an error response of the storage service.
type APIError struct {
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("storage service returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}

	return fmt.Sprintf("storage service returned %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a not found response.
func IsNotFound(err error) bool {
	var apiErr *APIError

	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// New creates a client.
func New(opts ...OptionFunc) (*Client, error) {
	options := defaultOptions()

	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return nil, err
		}
	}

	httpClient := options.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: httpdefaults.Transport(options.caFile)}
	}

	return &Client{
		options: options,
		http:    httpClient,
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func (c *Client) url(path ...string) string {
	u := *c.options.endpoint

	escaped := make([]string, 0, len(path))

	for _, p := range path {
		escaped = append(escaped, url.PathEscape(p))
	}

	u.RawPath = strings.TrimSuffix(u.Path, "/") + constants.APIPrefix + "/" + strings.Join(escaped, "/")
	u.Path, _ = url.PathUnescape(u.RawPath) //nolint:errcheck

	return u.String()
}

func (c *Client) retrier() retry.Retryer {
	opts := append([]retry.Option{
		retry.WithUnits(constants.ClientRetryInterval),
		retry.WithJitter(constants.ClientRetryInterval / 2),
	}, c.options.retryOptions...)

	return retry.Exponential(c.options.retryTimeout, opts...)
}

// idempotent reports whether repeating the request can't apply a change twice.
func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut:
		return true
	default:
		return false
	}
}

// notSent reports whether the request failed before reaching the server.
func notSent(err error) bool {
	var opErr *net.OpError

	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// do sends the request, retrying on connection errors and server side failures.
//
// POST and DELETE requests are only retried when the connection could not be established.
func (c *Client) do(ctx context.Context, method, target string, in, out any) error {
	var body []byte

	if in != nil {
		var err error

		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	attempt := func(ctx context.Context) error {
		err := c.attempt(ctx, method, target, body, out)
		if err == nil {
			return nil
		}

		var apiErr *APIError

		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			return err
		}

		if ctx.Err() != nil {
			return err
		}

		if !idempotent(method) && !notSent(err) {
			return err
		}

		c.options.logger.Debug("request failed", zap.String("method", method), zap.String("url", target), zap.Error(err))

		return retry.ExpectedError(err)
	}

	if c.options.retryTimeout == 0 {
		return c.attempt(ctx, method, target, body, out)
	}

	return c.retrier().RetryWithContext(ctx, attempt)
}

func (c *Client) attempt(ctx context.Context, method, target string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.options.requestTimeout)
	defer cancel()

	var reqBody io.Reader

	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}

	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}

		var errResp struct {
			Error string `json:"error"`
		}

		if json.Unmarshal(respBody, &errResp) == nil {
			apiErr.Message = errResp.Error
		}

		return apiErr
	}

	if out == nil {
		return nil
	}

	if dec, ok := out.(func([]byte) error); ok {
		return dec(respBody)
	}

	if err = json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// Health checks that the service is up.
func (c *Client) Health(ctx context.Context) error {
	u := *c.options.endpoint
	u.Path = strings.TrimSuffix(u.Path, "/") + "/healthz"
	u.RawPath = ""

	return c.do(ctx, http.MethodGet, u.String(), nil, nil)
}

// Config returns the storage config.
func (c *Client) Config(ctx context.Context) (*storage.Config, error) {
	var cfg *storage.Config

	err := c.do(ctx, http.MethodGet, c.url("config"), nil, func(data []byte) error {
		var err error

		cfg, err = storage.Parse(data)

		return err
	})

	return cfg, err
}

// SetConfig replaces the storage config.
func (c *Client) SetConfig(ctx context.Context, cfg *storage.Config) (*UpdateResult, error) {
	var result UpdateResult

	if err := c.do(ctx, http.MethodPut, c.url("config"), cfg, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// ConfigModel returns the API model of the storage config.
func (c *Client) ConfigModel(ctx context.Context) (*apimodel.Config, error) {
	return c.configModel(ctx, http.MethodGet, c.url("config_model"), nil)
}

// SetConfigModel replaces the storage config by the one of the API model.
func (c *Client) SetConfigModel(ctx context.Context, m *apimodel.Config) (*UpdateResult, error) {
	var result UpdateResult

	if err := c.do(ctx, http.MethodPut, c.url("config_model"), m, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// SolveConfigModel returns the solved API model without storing it.
func (c *Client) SolveConfigModel(ctx context.Context, m *apimodel.Config) (*apimodel.Config, error) {
	return c.configModel(ctx, http.MethodPost, c.url("config_model", "solve"), m)
}

type addVolumeGroupRequest struct {
	apimodel.VolumeGroupData

	MoveContent bool `json:"moveContent"`
}

// AddVolumeGroup adds a volume group, an empty name is generated by the service.
func (c *Client) AddVolumeGroup(ctx context.Context, data apimodel.VolumeGroupData, moveContent bool) (*apimodel.Config, error) {
	return c.configModel(ctx, http.MethodPost, c.url("config_model", "volume_groups"), addVolumeGroupRequest{
		VolumeGroupData: data,
		MoveContent:     moveContent,
	})
}

// EditVolumeGroup updates the volume group.
func (c *Client) EditVolumeGroup(ctx context.Context, vgName string, data apimodel.VolumeGroupData) (*apimodel.Config, error) {
	return c.configModel(ctx, http.MethodPut, c.url("config_model", "volume_groups", vgName), data)
}

// DeleteVolumeGroup removes the volume group and its logical volumes.
func (c *Client) DeleteVolumeGroup(ctx context.Context, vgName string) (*apimodel.Config, error) {
	return c.configModel(ctx, http.MethodDelete, c.url("config_model", "volume_groups", vgName), nil)
}

// VolumeGroupToPartitions replaces the volume group by partitions on its first target device.
func (c *Client) VolumeGroupToPartitions(ctx context.Context, vgName string) (*apimodel.Config, error) {
	return c.configModel(ctx, http.MethodPost, c.url("config_model", "volume_groups", vgName, "to_partitions"), nil)
}

// DeviceToVolumeGroup moves the device content to a new volume group.
func (c *Client) DeviceToVolumeGroup(ctx context.Context, deviceName string) (*apimodel.Config, error) {
	return c.configModel(ctx, http.MethodPost, c.url("config_model", "drives", deviceName, "to_volume_group"), nil)
}

func (c *Client) configModel(ctx context.Context, method, target string, in any) (*apimodel.Config, error) {
	var m apimodel.Config

	if err := c.do(ctx, method, target, in, &m); err != nil {
		return nil, err
	}

	return &m, nil
}

// Model returns the model of the storage config.
func (c *Client) Model(ctx context.Context) (*model.Model, error) {
	var m model.Model

	if err := c.do(ctx, http.MethodGet, c.url("model"), nil, &m); err != nil {
		return nil, err
	}

	return &m, nil
}

// System returns the last probed system.
func (c *Client) System(ctx context.Context) (*system.System, error) {
	return c.system(ctx, http.MethodGet, c.url("devices", "system"))
}

// Probe makes the service probe the system again.
func (c *Client) Probe(ctx context.Context) (*system.System, error) {
	return c.system(ctx, http.MethodPost, c.url("probe"))
}

func (c *Client) system(ctx context.Context, method, target string) (*system.System, error) {
	var sys *system.System

	err := c.do(ctx, method, target, nil, func(data []byte) error {
		var err error

		sys, err = system.Parse(data)

		return err
	})

	return sys, err
}
