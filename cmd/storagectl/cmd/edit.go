// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/siderolabs/go-pointer"
	"github.com/spf13/cobra"

	"github.com/siderolabs/storagecfg/pkg/cli"
	"github.com/siderolabs/storagecfg/pkg/client"
	"github.com/siderolabs/storagecfg/pkg/storage/apimodel"
)

// editModelPath is the API model edited on disk, the config of the storage service is edited when empty.
var editModelPath string

type (
	editFunc   func(*apimodel.Config) (*apimodel.Config, error)
	remoteFunc func(context.Context, *client.Client) (*apimodel.Config, error)
)

// edit applies the change to the API model file, or to the storage service.
//
// Without a remote call the service config model is fetched, changed and stored back.
func edit(cmd *cobra.Command, change editFunc, remote remoteFunc) error {
	if editModelPath != "" {
		m, err := loadConfigModel(editModelPath)
		if err != nil {
			return err
		}

		out, err := change(m)
		if err != nil {
			return err
		}

		warnings, err := apimodel.Validate(out)
		cli.Warn(cmd.ErrOrStderr(), warnings...)

		if err != nil {
			return err
		}

		return printOutput(cmd, out)
	}

	return WithClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
		var (
			out *apimodel.Config
			err error
		)

		if remote != nil {
			out, err = remote(ctx, c)
		} else {
			out, err = editRemote(ctx, c, change, cmd)
		}

		if err != nil {
			return err
		}

		return printOutput(cmd, out)
	})
}

func editRemote(ctx context.Context, c *client.Client, change editFunc, cmd *cobra.Command) (*apimodel.Config, error) {
	m, err := c.ConfigModel(ctx)
	if err != nil {
		return nil, err
	}

	out, err := change(m)
	if err != nil {
		return nil, err
	}

	result, err := c.SetConfigModel(ctx, out)
	if err != nil {
		return nil, err
	}

	cli.Warn(cmd.ErrOrStderr(), result.Warnings...)

	return c.ConfigModel(ctx)
}

var vgCmd = &cobra.Command{
	Use:     "vg",
	Aliases: []string{"volume-group"},
	Short:   "Edit the LVM volume groups",
}

var vgCmdFlags struct {
	name        string
	extentSize  string
	targets     []string
	moveContent bool
}

func volumeGroupData() (apimodel.VolumeGroupData, error) {
	data := apimodel.VolumeGroupData{
		VgName:        vgCmdFlags.name,
		TargetDevices: vgCmdFlags.targets,
	}

	if vgCmdFlags.extentSize != "" {
		size, err := humanize.ParseBytes(vgCmdFlags.extentSize)
		if err != nil {
			return data, fmt.Errorf("invalid extent size: %w", err)
		}

		data.ExtentSize = pointer.To(size)
	}

	return data, nil
}

var vgAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a volume group",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		data, err := volumeGroupData()
		if err != nil {
			return err
		}

		return edit(cmd,
			func(m *apimodel.Config) (*apimodel.Config, error) {
				if data.VgName == "" {
					data.VgName = apimodel.GenerateVolumeGroupName(m)
				}

				return apimodel.AddVolumeGroup(m, data, vgCmdFlags.moveContent)
			},
			func(ctx context.Context, c *client.Client) (*apimodel.Config, error) {
				return c.AddVolumeGroup(ctx, data, vgCmdFlags.moveContent)
			},
		)
	},
}

var vgEditCmd = &cobra.Command{
	Use:   "edit <vg>",
	Short: "Rename a volume group or change its target devices",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := volumeGroupData()
		if err != nil {
			return err
		}

		if data.VgName == "" {
			data.VgName = args[0]
		}

		return edit(cmd,
			func(m *apimodel.Config) (*apimodel.Config, error) {
				return apimodel.EditVolumeGroup(m, args[0], data)
			},
			func(ctx context.Context, c *client.Client) (*apimodel.Config, error) {
				return c.EditVolumeGroup(ctx, args[0], data)
			},
		)
	},
}

var vgDeleteCmd = &cobra.Command{
	Use:   "delete <vg>",
	Short: "Delete a volume group and its logical volumes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return edit(cmd,
			func(m *apimodel.Config) (*apimodel.Config, error) {
				return apimodel.DeleteVolumeGroup(m, args[0])
			},
			func(ctx context.Context, c *client.Client) (*apimodel.Config, error) {
				return c.DeleteVolumeGroup(ctx, args[0])
			},
		)
	},
}

var vgToPartitionsCmd = &cobra.Command{
	Use:   "to-partitions <vg>",
	Short: "Replace a volume group by partitions of its first target device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return edit(cmd,
			func(m *apimodel.Config) (*apimodel.Config, error) {
				return apimodel.VolumeGroupToPartitions(m, args[0])
			},
			func(ctx context.Context, c *client.Client) (*apimodel.Config, error) {
				return c.VolumeGroupToPartitions(ctx, args[0])
			},
		)
	},
}

var vgFromDeviceCmd = &cobra.Command{
	Use:   "from-device <device>",
	Short: "Move the new partitions of a device to a new volume group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return edit(cmd,
			func(m *apimodel.Config) (*apimodel.Config, error) {
				return apimodel.DeviceToVolumeGroup(m, args[0])
			},
			func(ctx context.Context, c *client.Client) (*apimodel.Config, error) {
				return c.DeviceToVolumeGroup(ctx, args[0])
			},
		)
	},
}

var driveCmd = &cobra.Command{
	Use:   "drive",
	Short: "Edit the drives",
}

var driveAddCmd = &cobra.Command{
	Use:   "add <device>",
	Short: "Add a drive without partitions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return edit(cmd, func(m *apimodel.Config) (*apimodel.Config, error) {
			return apimodel.AddDrive(m, args[0]), nil
		}, nil)
	},
}

var driveRemoveCmd = &cobra.Command{
	Use:   "remove <device>",
	Short: "Remove a drive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return edit(cmd, func(m *apimodel.Config) (*apimodel.Config, error) {
			return apimodel.RemoveDrive(m, args[0])
		}, nil)
	},
}

var driveSpacePolicyCmdFlags struct {
	actions []string
}

var driveSpacePolicyCmd = &cobra.Command{
	Use:   "space-policy <device> <keep|resize|delete|custom>",
	Short: "Set what happens with the existing content of a drive",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		policy := apimodel.SpacePolicy(args[1])

		switch policy {
		case apimodel.SpacePolicyKeep, apimodel.SpacePolicyResize, apimodel.SpacePolicyDelete, apimodel.SpacePolicyCustom:
		default:
			return fmt.Errorf("unknown space policy %q", args[1])
		}

		actions, err := parseSpacePolicyActions(driveSpacePolicyCmdFlags.actions)
		if err != nil {
			return err
		}

		return edit(cmd, func(m *apimodel.Config) (*apimodel.Config, error) {
			return apimodel.SetSpacePolicy(m, args[0], policy, actions)
		}, nil)
	},
}

// parseSpacePolicyActions parses the <partition>=<keep|delete|resizeIfNeeded> flags.
func parseSpacePolicyActions(in []string) ([]apimodel.SpacePolicyAction, error) {
	actions := make([]apimodel.SpacePolicyAction, 0, len(in))

	for _, s := range in {
		name, value, ok := strings.Cut(s, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid action %q, expected <partition>=<action>", s)
		}

		action := apimodel.SpacePolicyActionType(value)

		switch action {
		case apimodel.SpacePolicyActionKeep, apimodel.SpacePolicyActionDelete, apimodel.SpacePolicyActionResizeIfNeeded:
		default:
			return nil, fmt.Errorf("unknown action %q for partition %q", value, name)
		}

		actions = append(actions, apimodel.SpacePolicyAction{DeviceName: name, Value: action})
	}

	return actions, nil
}

func init() {
	for _, cmd := range []*cobra.Command{vgCmd, driveCmd} {
		cmd.PersistentFlags().StringVarP(&editModelPath, "model", "m", "", "the path of the API model to edit, the storage service config is edited if not set")
	}

	for _, cmd := range []*cobra.Command{vgAddCmd, vgEditCmd} {
		cmd.Flags().StringVar(&vgCmdFlags.name, "name", "", "the name of the volume group")
		cmd.Flags().StringVar(&vgCmdFlags.extentSize, "extent-size", "", "the physical extent size, like 4MiB")
		cmd.Flags().StringSliceVarP(&vgCmdFlags.targets, "target", "t", nil, "the target devices of the volume group")
	}

	vgAddCmd.Flags().BoolVar(&vgCmdFlags.moveContent, "move-content", false, "move the new partitions of the target devices to the volume group")
	cobra.CheckErr(vgAddCmd.MarkFlagRequired("target"))
	cobra.CheckErr(vgEditCmd.MarkFlagRequired("target"))

	vgCmd.AddCommand(vgAddCmd, vgEditCmd, vgDeleteCmd, vgToPartitionsCmd, vgFromDeviceCmd)
	addCommand(editGroup, vgCmd)

	driveSpacePolicyCmd.Flags().StringArrayVarP(&driveSpacePolicyCmdFlags.actions, "action", "a", nil, "the action of an existing partition for the custom policy, as <partition>=<keep|delete|resizeIfNeeded>")

	driveCmd.AddCommand(driveAddCmd, driveRemoveCmd, driveSpacePolicyCmd)
	addCommand(editGroup, driveCmd)
}
