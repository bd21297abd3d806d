package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lingopod/lingopod/pkg/archive"
	"github.com/lingopod/lingopod/pkg/cli"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect and manage exported session archives",
}

func localExporter() (*archive.Exporter, error) {
	paths, err := cli.NewPaths()
	if err != nil {
		return nil, err
	}
	blobs, err := archive.NewDir(paths.ArchiveDir())
	if err != nil {
		return nil, err
	}
	return &archive.Exporter{Blobs: blobs}, nil
}

var archiveShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print an archived session's manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ex, err := localExporter()
		if err != nil {
			return err
		}
		m, err := ex.Open(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return outputResult(m)
	},
}

var archiveClipCmd = &cobra.Command{
	Use:   "clip <session-id> <message-id>",
	Short: "Export one archived clip's PCM audio",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if outputFile == "" {
			return fmt.Errorf("output file is required, use -o flag")
		}
		ex, err := localExporter()
		if err != nil {
			return err
		}
		m, err := ex.Open(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, entry := range m.Clips {
			if entry.MessageID != args[1] {
				continue
			}
			rc, err := ex.OpenClip(cmd.Context(), entry)
			if err != nil {
				return err
			}
			data, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return err
			}
			if err := cli.OutputBytes(data, outputFile); err != nil {
				return err
			}
			cli.PrintSuccess("Wrote %s (%s)", outputFile, cli.FormatBytes(int64(len(data))))
			return nil
		}
		return fmt.Errorf("no clip for message %s in session %s", args[1], args[0])
	},
}

var archiveRmCmd = &cobra.Command{
	Use:   "rm <session-id>",
	Short: "Delete an archived session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ex, err := localExporter()
		if err != nil {
			return err
		}
		if err := ex.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Archive %s removed", args[0])
		return nil
	},
}

func init() {
	archiveCmd.AddCommand(archiveShowCmd)
	archiveCmd.AddCommand(archiveClipCmd)
	archiveCmd.AddCommand(archiveRmCmd)
}
