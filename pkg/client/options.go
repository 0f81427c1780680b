// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package client

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/siderolabs/go-retry/retry"
	"go.uber.org/zap"

	"github.com/siderolabs/storagecfg/pkg/machinery/constants"
)

// Options contains the set of client configuration options.
type Options struct {
	endpoint       *url.URL
	caFile         string
	httpClient     *http.Client
	logger         *zap.Logger
	requestTimeout time.Duration
	retryTimeout   time.Duration
	retryOptions   []retry.Option
}

// OptionFunc sets an option for the creation of the Client.
type OptionFunc func(*Options) error

func defaultOptions() Options {
	return Options{
		endpoint:       &url.URL{Scheme: "http", Host: constants.DefaultListenAddress},
		logger:         zap.NewNop(),
		requestTimeout: constants.ClientRequestTimeout,
		retryTimeout:   constants.ClientRetryTimeout,
	}
}

// WithEndpoint sets the address of the storage service.
//
// A bare host:port is accepted and means plain HTTP.
func WithEndpoint(endpoint string) OptionFunc {
	return func(o *Options) error {
		if !strings.Contains(endpoint, "://") {
			endpoint = "http://" + endpoint
		}

		u, err := url.Parse(endpoint)
		if err != nil {
			return fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
		}

		if u.Host == "" {
			return fmt.Errorf("invalid endpoint %q: missing host", endpoint)
		}

		o.endpoint = u

		return nil
	}
}

// WithCAFile trusts the certificates from the file in addition to the system ones.
func WithCAFile(path string) OptionFunc {
	return func(o *Options) error {
		o.caFile = path

		return nil
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) OptionFunc {
	return func(o *Options) error {
		o.httpClient = c

		return nil
	}
}

// WithLogger logs failed attempts to the logger.
func WithLogger(logger *zap.Logger) OptionFunc {
	return func(o *Options) error {
		o.logger = logger

		return nil
	}
}

// WithRequestTimeout limits each attempt of a request.
func WithRequestTimeout(timeout time.Duration) OptionFunc {
	return func(o *Options) error {
		o.requestTimeout = timeout

		return nil
	}
}

// WithRetryTimeout limits the total time a request is retried for.
//
// Zero disables retries.
func WithRetryTimeout(timeout time.Duration) OptionFunc {
	return func(o *Options) error {
		o.retryTimeout = timeout

		return nil
	}
}

// WithRetryOptions appends options to the retrier.
func WithRetryOptions(opts ...retry.Option) OptionFunc {
	return func(o *Options) error {
		o.retryOptions = append(o.retryOptions, opts...)

		return nil
	}
}
