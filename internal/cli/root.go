// Package cli holds the pasties command line: serve (the default), prune,
// token and version.
package cli

import (
	"fmt"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/johnwmail/pasties/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// BuildInfo is stamped into the binary with -ldflags
type BuildInfo struct {
	Version    string
	BuildTime  string
	CommitHash string
}

// app carries what PersistentPreRunE prepared to the subcommands
type app struct {
	build  BuildInfo
	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer
}

// NewRootCommand assembles the command tree
func NewRootCommand(build BuildInfo) *cobra.Command {
	a := &app{build: build}

	root := &cobra.Command{
		Use:           "pasties",
		Short:         "pastebin backend",
		Long:          `pasties serves the paste API over SQL, MongoDB, DynamoDB or S3 storage`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initialize(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.String("env-file", ".env", "dotenv file to load, skipped when missing")
	flags.Int("port", 0, "port to listen on (PORT)")
	flags.String("host", "", "address to bind (HOST)")
	flags.String("db-type", "", "storage backend (DB_TYPE): sqlite, postgres, mysql, mongodb, dynamodb, s3, memory")
	flags.String("log-level", "", "debug, info, warn or error (LOG_LEVEL)")
	flags.String("gin-mode", "", "gin mode (GIN_MODE)")

	root.AddCommand(
		newServeCommand(a),
		newPruneCommand(a),
		newTokenCommand(a),
		newVersionCommand(a),
	)
	return root
}

func (a *app) initialize(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()

	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return err
	}
	cfg, err := config.Load(envFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Version = a.build.Version
	cfg.BuildTime = a.build.BuildTime
	cfg.CommitHash = a.build.CommitHash
	a.cfg = cfg

	if err := config.ValidateGinMode(cfg.GinMode); err != nil {
		return err
	}
	gin.SetMode(cfg.GinMode)

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	a.logger = logger
	return nil
}

// Execute runs the root command and returns the process exit code
func Execute(build BuildInfo, args []string) int {
	root := NewRootCommand(build)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
		return 1
	}
	return 0
}
