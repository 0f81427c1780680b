// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package main provides the storage service daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/siderolabs/storagecfg/internal/app/storaged"
	"github.com/siderolabs/storagecfg/pkg/cli"
	"github.com/siderolabs/storagecfg/pkg/logging"
	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
	"github.com/siderolabs/storagecfg/pkg/machinery/constants"
)

var (
	configPath string
	cfg        = storaged.DefaultConfig()
)

var rootCmd = &cobra.Command{
	Use:           "storaged",
	Short:         "Storage configuration service of the installer",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := configPath
		if !cmd.Flags().Changed("config") {
			if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
				path = ""
			}
		}

		if path != "" {
			if err := cfg.LoadFile(path, cmd.Flags()); err != nil {
				return err
			}
		}

		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err := logging.New(os.Stderr, cfg.LogLevel, logging.WithFormat(logging.Format(cfg.LogFormat)))
		if err != nil {
			return err
		}

		defer logger.Sync() //nolint:errcheck

		return run(cmd.Context(), logger)
	},
}

func run(ctx context.Context, logger *zap.Logger) error {
	prober, err := storaged.NewProber(cfg, logger)
	if err != nil {
		return err
	}

	store := storaged.NewStore(prober, logger)

	if cfg.Storage != "" {
		storageCfg, err := storage.LoadFile(cfg.Storage)
		if err != nil {
			return err
		}

		warnings, err := store.SetConfig(storageCfg)
		if err != nil {
			return fmt.Errorf("initial storage config: %w", err)
		}

		for _, warning := range warnings {
			logger.Warn("initial storage config", zap.String("warning", warning))
		}
	}

	svc := storaged.NewService(cfg, store, logger)

	return cli.WithContext(ctx, svc.Run)
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", constants.DefaultServiceConfigPath, "the path of the service config file")
	cfg.BindFlags(rootCmd.Flags())
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
