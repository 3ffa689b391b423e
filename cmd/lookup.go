package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/wikicorpus/internal/storage/columnar"
)

// newLookupCmd creates the 'lookup' subcommand.
func newLookupCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "lookup --file corpus.parquet ID [ID...]",
		Short: "Print the records for the given page ids as JSON lines",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid page id %q: %w", arg, err)
				}
				ids = append(ids, id)
			}

			pages, err := columnar.Read(cmd.Context(), file, ids)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, page := range pages {
				if err := enc.Encode(page); err != nil {
					return fmt.Errorf("write record: %w", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "corpus Parquet file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
