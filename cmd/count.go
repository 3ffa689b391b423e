package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/wikicorpus/internal/logging"
	"github.com/JakeFAU/wikicorpus/internal/scanner"
	pkgconfig "github.com/JakeFAU/wikicorpus/pkg/config"
)

// newCountCmd creates the 'count' subcommand.
func newCountCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count <page> elements in a dump",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts, pkgconfig.FlagKeys{"dump": "dump.path"})
			if err != nil {
				return err
			}
			if cfg.Dump.Path == "" {
				return errors.New("dump.path must be set")
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return err
			}
			defer func() { _ = logging.Flush(logger) }()

			r, err := scanner.OpenDump(cfg.Dump.Path)
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			n, err := scanner.CountPages(cmd.Context(), r)
			if err != nil {
				return err
			}
			logger.Debug("dump counted", zap.String("path", cfg.Dump.Path), zap.Int("pages", n))
			_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
			return err
		},
	}
	cmd.Flags().String("dump", "", "path to the XML dump (.xml, .bz2, .gz, .zst)")
	return cmd
}
