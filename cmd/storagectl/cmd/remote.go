// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/siderolabs/storagecfg/pkg/cli"
	"github.com/siderolabs/storagecfg/pkg/client"
	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
)

// Documents served by the storage service.
const (
	docConfig      = "config"
	docConfigModel = "config-model"
	docModel       = "model"
	docSystem      = "system"
)

var getCmd = &cobra.Command{
	Use:       "get <config|config-model|model|system>",
	Short:     "Print a document of the storage service",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{docConfig, docConfigModel, docModel, docSystem},
	RunE: func(cmd *cobra.Command, args []string) error {
		return WithClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
			var (
				doc any
				err error
			)

			switch args[0] {
			case docConfig:
				doc, err = c.Config(ctx)
			case docConfigModel:
				doc, err = c.ConfigModel(ctx)
			case docModel:
				doc, err = c.Model(ctx)
			case docSystem:
				doc, err = c.System(ctx)
			}

			if err != nil {
				return err
			}

			return printOutput(cmd, doc)
		})
	},
}

var setCmd = &cobra.Command{
	Use:       "set <config|config-model> <file>",
	Short:     "Replace the storage config of the storage service",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{docConfig, docConfigModel},
	RunE: func(cmd *cobra.Command, args []string) error {
		return WithClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
			var (
				result *client.UpdateResult
				err    error
			)

			switch args[0] {
			case docConfig:
				var cfg *storage.Config

				if cfg, err = storage.LoadFile(args[1]); err != nil {
					return err
				}

				result, err = c.SetConfig(ctx, cfg)
			case docConfigModel:
				m, loadErr := loadConfigModel(args[1])
				if loadErr != nil {
					return loadErr
				}

				result, err = c.SetConfigModel(ctx, m)
			default:
				return fmt.Errorf("unknown document %q, expected one of: %s, %s", args[0], docConfig, docConfigModel)
			}

			if err != nil {
				return err
			}

			cli.Warn(cmd.ErrOrStderr(), result.Warnings...)

			fmt.Fprintf(cmd.OutOrStdout(), "stored, generation %d\n", result.Generation)

			return nil
		})
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Make the storage service probe the system again",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return WithClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
			sys, err := c.Probe(ctx)
			if err != nil {
				return err
			}

			return cli.RenderSystem(cmd.OutOrStdout(), sys)
		})
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the storage service is up",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return WithClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
			if err := c.Health(ctx); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "ok")

			return nil
		})
	},
}

func init() {
	addCommand(remoteGroup, getCmd)
	addCommand(remoteGroup, setCmd)
	addCommand(remoteGroup, probeCmd)
	addCommand(remoteGroup, healthCmd)
}
