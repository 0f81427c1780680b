// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package cmd implements the storagectl commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/siderolabs/storagecfg/pkg/machinery/constants"
)

// Common options set on root command.
var (
	Endpoint string
	CAFile   string
	Output   string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:               "storagectl",
	Short:             "Inspect and edit the storage configuration of the installer",
	Long:              ``,
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	cmd, err := rootCmd.ExecuteContextC(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())

		errorString := err.Error()
		if strings.Contains(errorString, "arg(s)") || strings.Contains(errorString, "flag") || strings.Contains(errorString, "command") {
			fmt.Fprintln(os.Stderr)
			fmt.Fprintln(os.Stderr, cmd.UsageString())
		}
	}

	return err
}

const (
	localGroup  = "local"
	editGroup   = "edit"
	remoteGroup = "remote"
)

func addCommand(group string, cmd *cobra.Command) {
	cmd.GroupID = group
	rootCmd.AddCommand(cmd)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&Endpoint, "endpoint", "e", constants.DefaultListenAddress, "the address of the storage service")
	rootCmd.PersistentFlags().StringVar(&CAFile, "ca-file", "", "the path of the CA certificates of the storage service")
	rootCmd.PersistentFlags().StringVarP(&Output, "output", "o", "yaml", "the output format (json or yaml)")

	rootCmd.AddGroup(&cobra.Group{ID: localGroup, Title: "Work with documents on disk:"})
	rootCmd.AddGroup(&cobra.Group{ID: editGroup, Title: "Edit the API model, on disk with --model or in the storage service:"})
	rootCmd.AddGroup(&cobra.Group{ID: remoteGroup, Title: "Talk to the storage service:"})
}
