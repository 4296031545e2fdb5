package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/johnwmail/pasties/internal/auth"
	"github.com/johnwmail/pasties/internal/server"
	"github.com/johnwmail/pasties/internal/services"
	"github.com/johnwmail/pasties/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

// openStore validates the configuration and opens the selected backend
func (a *app) openStore() (storage.PasteStore, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return storage.NewStore(a.cfg, a.logger)
}

func (a *app) serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a.logger.Info("starting pasties",
		zap.String("version", a.build.Version),
		zap.String("build_time", a.build.BuildTime),
		zap.String("commit", a.build.CommitHash))
	a.logger.Debug("loaded config",
		zap.String("db_type", a.cfg.DBType),
		zap.String("listen", a.cfg.ListenAddr()),
		zap.Bool("auth", a.cfg.AuthSecret != ""),
		zap.Bool("cache", a.cfg.RedisAddr != ""),
		zap.Bool("metrics", a.cfg.EnableMetrics))

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			a.logger.Warn("error closing storage", zap.Error(err))
		}
	}()

	srv := server.NewHTTPServer(a.cfg, store, a.logger)
	if server.IsLambda() {
		srv.StartLambda()
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}

func newPruneCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete expired pastes once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			svc := services.NewPasteService(store, services.Options{
				SlugLength: a.cfg.SlugLength,
				Ownership:  a.cfg.PasteOwnership,
				Logger:     a.logger,
			})
			n, err := svc.PruneExpired(cmd.Context())
			if err != nil {
				return fmt.Errorf("prune: %w", err)
			}
			fmt.Fprintf(a.out, "removed %d expired pastes\n", n)
			return nil
		},
	}
}

func newTokenCommand(a *app) *cobra.Command {
	var (
		user string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a session token for a user with AUTH_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			token, err := auth.New(a.cfg.AuthSecret).Issue(user, ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(a.out, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "username the token is issued for")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 never expires")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			fmt.Fprintf(a.out, "pasties %s\nbuild time: %s\ncommit: %s\n",
				a.build.Version, a.build.BuildTime, a.build.CommitHash)
			return nil
		},
	}
}
