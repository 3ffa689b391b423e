// Package cmd defines the wikicorpus CLI commands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/wikicorpus/internal/config"
	pkgconfig "github.com/JakeFAU/wikicorpus/pkg/config"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	dev        bool
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "wikicorpus",
		Short: "Builds Parquet text corpora from MediaWiki XML dumps.",
		Long: `wikicorpus streams a MediaWiki XML dump, renders each article through the
MediaWiki parse API in a chosen script variant, normalizes the HTML to plain
paragraphs, and writes the result to a Parquet file for random access by id.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (yaml, toml, or json)")
	cmd.PersistentFlags().BoolVar(&opts.dev, "dev", false, "human-readable development logging")

	cmd.AddCommand(
		newBuildCmd(opts),
		newLookupCmd(),
		newInspectCmd(),
		newCountCmd(opts),
	)
	return cmd
}

// loadConfig layers defaults, the config file, WIKICORPUS_* environment, and
// the command's flags, in increasing precedence.
func loadConfig(cmd *cobra.Command, opts *rootOptions, keys pkgconfig.FlagKeys) (config.Config, error) {
	v := config.NewViper()
	bound := pkgconfig.FlagKeys{"dev": "logging.development"}
	for flag, key := range keys {
		bound[flag] = key
	}
	if err := pkgconfig.BindFlags(v, cmd.Flags(), bound); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.LoadFrom(v, opts.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Execute runs the CLI until completion or SIGINT/SIGTERM and returns the
// process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "wikicorpus: %v\n", err)
		return 1
	}
	return 0
}
