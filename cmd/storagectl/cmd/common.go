// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"sigs.k8s.io/yaml"

	"github.com/siderolabs/storagecfg/pkg/cli"
	"github.com/siderolabs/storagecfg/pkg/client"
	"github.com/siderolabs/storagecfg/pkg/logging"
	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
	"github.com/siderolabs/storagecfg/pkg/storage/apimodel"
	"github.com/siderolabs/storagecfg/pkg/storage/solver"
	"github.com/siderolabs/storagecfg/pkg/storage/system"
)

// WithClient wraps common code to initialize the storage service client and provide cancellable context.
func WithClient(ctx context.Context, action func(context.Context, *client.Client) error) error {
	return cli.WithContext(ctx, func(ctx context.Context) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}

		c, err := client.New(
			client.WithEndpoint(Endpoint),
			client.WithCAFile(CAFile),
			client.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("error constructing client: %w", err)
		}

		defer c.Close()

		return action(ctx, c)
	})
}

func newLogger() (*zap.Logger, error) {
	return logging.New(os.Stderr, "warn", logging.WithoutTimestamp())
}

func printOutput(cmd *cobra.Command, v any) error {
	format, err := cli.ParseOutputFormat(Output)
	if err != nil {
		return err
	}

	return cli.WriteOutput(cmd.OutOrStdout(), v, format)
}

func loadConfigModel(path string) (*apimodel.Config, error) {
	in, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m apimodel.Config

	if err = yaml.UnmarshalStrict(in, &m); err != nil {
		return nil, fmt.Errorf("failed to parse config model %q: %w", path, err)
	}

	return &m, nil
}

// loadSystem reads the inventory from the file, or probes the local system when path is empty.
func loadSystem(ctx context.Context, path string) (*system.System, error) {
	if path != "" {
		return system.LoadFile(path)
	}

	logger, err := newLogger()
	if err != nil {
		return nil, err
	}

	return system.Probe(ctx, logger)
}

func solve(ctx context.Context, cfg *storage.Config, systemPath string) (*storage.Config, error) {
	sys, err := loadSystem(ctx, systemPath)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger()
	if err != nil {
		return nil, err
	}

	return solver.NewLocal(sys, logger).Solve(ctx, cfg)
}
