// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/siderolabs/storagecfg/pkg/cli"
	"github.com/siderolabs/storagecfg/pkg/client"
	"github.com/siderolabs/storagecfg/pkg/machinery/config/types/storage"
	"github.com/siderolabs/storagecfg/pkg/storage/apimodel"
	"github.com/siderolabs/storagecfg/pkg/storage/model"
	modelconfig "github.com/siderolabs/storagecfg/pkg/storage/model/config"
)

var modelCmdFlags struct {
	config  string
	system  string
	noSolve bool
}

// modelCmd converts a storage config to the API model.
var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Convert a storage config to the API model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cli.WithContext(cmd.Context(), func(ctx context.Context) error {
			m, err := generateModel(ctx, modelCmdFlags.config, modelCmdFlags.system, modelCmdFlags.noSolve)
			if err != nil {
				return err
			}

			return printOutput(cmd, m)
		})
	},
}

func generateModel(ctx context.Context, configPath, systemPath string, noSolve bool) (*apimodel.Config, error) {
	raw, err := storage.LoadFile(configPath)
	if err != nil {
		return nil, err
	}

	solved := raw

	if !noSolve {
		if solved, err = solve(ctx, raw, systemPath); err != nil {
			return nil, err
		}
	}

	return modelconfig.Generate(raw, solved), nil
}

var toConfigCmdFlags struct {
	model string
}

// toConfigCmd converts the API model back to a storage config.
var toConfigCmd = &cobra.Command{
	Use:   "to-config",
	Short: "Convert an API model to a storage config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		m, err := loadConfigModel(toConfigCmdFlags.model)
		if err != nil {
			return err
		}

		warnings, err := apimodel.Validate(m)
		cli.Warn(cmd.ErrOrStderr(), warnings...)

		if err != nil {
			return err
		}

		return printOutput(cmd, modelconfig.ToConfig(m))
	},
}

var solveCmdFlags struct {
	config string
	system string
}

// solveCmd resolves the searches and sizes of a storage config.
var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve a storage config against a system",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cli.WithContext(cmd.Context(), func(ctx context.Context) error {
			raw, err := storage.LoadFile(solveCmdFlags.config)
			if err != nil {
				return err
			}

			warnings, err := raw.Validate()
			cli.Warn(cmd.ErrOrStderr(), warnings...)

			if err != nil {
				return err
			}

			solved, err := solve(ctx, raw, solveCmdFlags.system)
			if err != nil {
				return err
			}

			return printOutput(cmd, solved)
		})
	},
}

var viewCmdFlags struct {
	config string
	model  string
	system string
}

// viewCmd prints the devices and volumes of a storage config.
var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Show the devices and volumes of a storage config",
	Long: `Shows the storage config given by --config or --model.

Without any of them the config of the storage service is shown.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if viewCmdFlags.config != "" && viewCmdFlags.model != "" {
			return errors.New("--config and --model are mutually exclusive")
		}

		if viewCmdFlags.config == "" && viewCmdFlags.model == "" {
			return WithClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
				m, err := c.Model(ctx)
				if err != nil {
					return err
				}

				return cli.RenderModel(cmd.OutOrStdout(), m)
			})
		}

		return cli.WithContext(cmd.Context(), func(ctx context.Context) error {
			var (
				m   *apimodel.Config
				err error
			)

			if viewCmdFlags.model != "" {
				if m, err = loadConfigModel(viewCmdFlags.model); err != nil {
					return err
				}

				raw := modelconfig.ToConfig(m)

				var solved *storage.Config

				if solved, err = solve(ctx, raw, viewCmdFlags.system); err != nil {
					return err
				}

				m = modelconfig.Generate(raw, solved)
			} else if m, err = generateModel(ctx, viewCmdFlags.config, viewCmdFlags.system, false); err != nil {
				return err
			}

			return cli.RenderModel(cmd.OutOrStdout(), model.Build(m))
		})
	},
}

func init() {
	modelCmd.Flags().StringVarP(&modelCmdFlags.config, "config", "c", "", "the path of the storage config")
	modelCmd.Flags().StringVar(&modelCmdFlags.system, "system", "", "the path of the system inventory, the local system is probed if not set")
	modelCmd.Flags().BoolVar(&modelCmdFlags.noSolve, "no-solve", false, "convert the config as is, without solving it")
	cobra.CheckErr(modelCmd.MarkFlagRequired("config"))
	addCommand(localGroup, modelCmd)

	toConfigCmd.Flags().StringVarP(&toConfigCmdFlags.model, "model", "m", "", "the path of the API model")
	cobra.CheckErr(toConfigCmd.MarkFlagRequired("model"))
	addCommand(localGroup, toConfigCmd)

	solveCmd.Flags().StringVarP(&solveCmdFlags.config, "config", "c", "", "the path of the storage config")
	solveCmd.Flags().StringVar(&solveCmdFlags.system, "system", "", "the path of the system inventory, the local system is probed if not set")
	cobra.CheckErr(solveCmd.MarkFlagRequired("config"))
	addCommand(localGroup, solveCmd)

	viewCmd.Flags().StringVarP(&viewCmdFlags.config, "config", "c", "", "the path of the storage config")
	viewCmd.Flags().StringVarP(&viewCmdFlags.model, "model", "m", "", "the path of the API model")
	viewCmd.Flags().StringVar(&viewCmdFlags.system, "system", "", "the path of the system inventory, the local system is probed if not set")
	addCommand(localGroup, viewCmd)
}
