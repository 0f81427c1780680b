// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"sigs.k8s.io/yaml"

	"github.com/siderolabs/storagecfg/pkg/storage/apimodel"
	"github.com/siderolabs/storagecfg/pkg/storage/model"
	"github.com/siderolabs/storagecfg/pkg/storage/system"
)

// OutputFormat is the encoding of documents printed by the tools.
type OutputFormat string

// Output formats.
const (
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

// ParseOutputFormat validates the output format flag.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputJSON, OutputYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q, expected one of: json, yaml", s)
	}
}

// WriteOutput writes the document in the format.
func WriteOutput(w io.Writer, v any, format OutputFormat) error {
	var (
		out []byte
		err error
	)

	switch format {
	case OutputYAML:
		out, err = yaml.Marshal(v)
	case OutputJSON, "":
		out, err = json.MarshalIndent(v, "", "  ")
		out = append(out, '\n')
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}

	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	_, err = w.Write(out)

	return err
}

// Warn prints the warnings highlighted.
func Warn(w io.Writer, warnings ...string) {
	for _, warning := range warnings {
		fmt.Fprintln(w, color.YellowString("WARNING: %s", warning))
	}
}

// RenderModel renders the model view as a table of devices and volumes.
func RenderModel(output io.Writer, m *model.Model) error {
	w := tabwriter.NewWriter(output, 0, 0, 3, ' ', 0)

	fmt.Fprintln(w, "DEVICE\tVOLUME\tMOUNT PATH\tFILESYSTEM\tSIZE\tACTION")

	for _, d := range m.Devices() {
		var flags []string

		if d.IsBoot {
			flags = append(flags, "boot")
		}

		if d.IsTargetDevice {
			flags = append(flags, "pv")
		}

		if d.SpacePolicy != "" {
			flags = append(flags, string(d.SpacePolicy))
		}

		fmt.Fprintf(w, "%s\t\t%s\t%s\t\t%s\n", d.Name, d.MountPath, filesystem(d.Filesystem), strings.Join(flags, ","))

		for _, p := range d.Partitions {
			fmt.Fprintf(w, "\t%s\t%s\t%s\t%s\t%s\n", partitionName(p), p.MountPath, filesystem(p.Filesystem), size(p.Size), partitionAction(p))
		}
	}

	for _, vg := range m.VolumeGroups {
		fmt.Fprintf(w, "%s\t\t\t\t\tvg(%s)\n", vg.Name, strings.Join(vg.TargetNames, ","))

		for _, lv := range vg.LogicalVolumes {
			fmt.Fprintf(w, "\t%s\t%s\t%s\t%s\tcreate\n", lv.LvName, lv.MountPath, filesystem(lv.Filesystem), size(lv.Size))
		}
	}

	return w.Flush()
}

// RenderSystem renders the system inventory.
func RenderSystem(output io.Writer, sys *system.System) error {
	w := tabwriter.NewWriter(output, 0, 0, 3, ' ', 0)

	fmt.Fprintln(w, "DEVICE\tTYPE\tPTABLE\tFILESYSTEM\tLABEL\tSIZE")

	for _, d := range sys.Devices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\t%s\n", d.Name, d.Type, d.PtableType, d.Filesystem, humanize.IBytes(d.Size.Value()))

		for _, p := range d.Partitions {
			fmt.Fprintf(w, "  %s\tpartition\t\t%s\t%s\t%s\n", p.Name, p.Filesystem, p.Label, humanize.IBytes(p.Size.Value()))
		}
	}

	return w.Flush()
}

func partitionName(p *model.Partition) string {
	if p.Name == "" {
		return "(new)"
	}

	return p.Name
}

func partitionAction(p *model.Partition) string {
	switch {
	case p.Delete:
		return "delete"
	case p.DeleteIfNeeded:
		return "delete if needed"
	case p.Resize != nil && *p.Resize:
		return "resize"
	case p.ResizeIfNeeded != nil && *p.ResizeIfNeeded:
		return "resize if needed"
	case p.IsNew:
		return "create"
	case p.IsReused:
		return "reuse"
	default:
		return "keep"
	}
}

func filesystem(fs *apimodel.Filesystem) string {
	switch {
	case fs == nil:
		return ""
	case fs.Reuse:
		return fs.Type + " (current)"
	case fs.Snapshots != nil && *fs.Snapshots:
		return fs.Type + " (snapshots)"
	default:
		return fs.Type
	}
}

func size(s *apimodel.Size) string {
	switch {
	case s == nil:
		return ""
	case s.IsFixed():
		return humanize.IBytes(s.Min)
	case s.Max == nil:
		return "at least " + humanize.IBytes(s.Min)
	default:
		return humanize.IBytes(s.Min) + " - " + humanize.IBytes(*s.Max)
	}
}
