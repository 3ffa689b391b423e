package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/wikicorpus/internal/storage/columnar"
)

// newInspectCmd creates the 'inspect' subcommand.
func newInspectCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "inspect --file corpus.parquet",
		Short: "Print row counts, row groups, and build metadata of a corpus file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := columnar.Inspect(file)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "corpus Parquet file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
