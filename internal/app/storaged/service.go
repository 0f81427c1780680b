// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package storaged implements the storage service: it keeps the storage config of the
// installer and serves it over HTTP and D-Bus.
package storaged

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/siderolabs/storagecfg/pkg/logging"
	"github.com/siderolabs/storagecfg/pkg/machinery/constants"
)

// Service is the storage service.
type Service struct {
	store  *Store
	logger *zap.Logger
	cfg    Config
}

// NewService creates the service.
func NewService(cfg Config, store *Store, logger *zap.Logger) *Service {
	return &Service{
		cfg:    cfg,
		store:  store,
		logger: logger.With(logging.Component("storaged")),
	}
}

// Store returns the store of the service.
func (svc *Service) Store() *Store {
	return svc.store
}

// Run listens on the configured address and serves until ctx is canceled.
func (svc *Service) Run(ctx context.Context) error {
	var lc net.ListenConfig

	listener, err := lc.Listen(ctx, "tcp", svc.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %q: %w", svc.cfg.Listen, err)
	}

	return svc.Serve(ctx, listener)
}

// Serve serves the HTTP API on the listener, and D-Bus if enabled, until ctx is canceled.
func (svc *Service) Serve(ctx context.Context, listener net.Listener) error {
	if _, err := svc.store.Probe(ctx); err != nil {
		listener.Close() //nolint:errcheck

		return err
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return svc.serveHTTP(ctx, listener)
	})

	if svc.cfg.DBus.Enabled {
		eg.Go(func() error {
			return svc.serveDBus(ctx)
		})
	}

	return eg.Wait()
}

func (svc *Service) serveHTTP(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           svc.Handler(),
		ReadHeaderTimeout: constants.ServiceReadHeaderTimeout,
		ErrorLog:          logging.StdLogger(svc.logger, zapcore.WarnLevel),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Serve(listener)
	}()

	svc.logger.Info("serving HTTP API", zap.Stringer("address", listener.Addr()))

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ServiceShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
