package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"
	"github.com/uwececa/dblayer/internal/config"
	"github.com/uwececa/dblayer/internal/database"
	"github.com/uwececa/dblayer/internal/lib/utils"
	"github.com/uwececa/dblayer/internal/logger"
	"github.com/uwececa/dblayer/internal/server"
	"github.com/uwececa/dblayer/internal/sqlerr"
)

// env bundles what every database command needs.
type env struct {
	cfg *config.Config
	log *zerolog.Logger
	svc *logger.LoggerService
}

func loadEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	svc := logger.NewLoggerService(cfg.Observability)
	log := logger.NewLoggerWithService(cfg.Observability, svc)
	return &env{cfg: cfg, log: &log, svc: svc}, nil
}

// RootCmd builds the dbctl command tree.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dbctl",
		Short:         "Apply and inspect the database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Duration("wait", 0, "keep retrying the initial connection for up to this long")

	root.AddCommand(
		MigrateCmd(),
		StatusCmd(),
		SessionsCmd(),
		VersionCmd(),
	)
	return root
}

// MigrateCmd applies pending migrations on a single connection and
// reports the version change.
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.svc.Shutdown()
			wait, _ := cmd.Flags().GetDuration("wait")

			var conn *pgx.Conn
			err = withWait(e.log.WithContext(cmd.Context()), wait, func(ctx context.Context) error {
				conn, err = pgx.Connect(ctx, e.cfg.Database.DSN())
				return sqlerr.Classify(err)
			})
			if err != nil {
				return err
			}
			defer conn.Close(context.WithoutCancel(cmd.Context()))

			res, err := database.Migrate(cmd.Context(), conn, database.Migrations(), logger.WithComponent(e.log, "migrate"))
			if err != nil {
				return err
			}
			if res.Changed() {
				fmt.Fprintf(cmd.OutOrStdout(), "migrated from version %d to %d\n", res.From, res.To)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "already at version %d\n", res.To)
			}
			return nil
		},
	}
}

// StatusCmd connects (migrating if needed) and lists the ledger.
func StatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List applied migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			wait, _ := cmd.Flags().GetDuration("wait")

			var srv *server.Server
			err = withWait(e.log.WithContext(cmd.Context()), wait, func(ctx context.Context) error {
				srv, err = server.New(ctx, e.cfg, e.log, e.svc)
				return err
			})
			if err != nil {
				e.svc.Shutdown()
				return err
			}
			defer func() { _ = srv.Shutdown(context.WithoutCancel(cmd.Context())) }()

			applied, err := database.Applied(cmd.Context(), srv.DB)
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			return printApplied(cmd, applied, asJSON)
		},
	}
	cmd.Flags().Bool("json", false, "print as JSON")
	return cmd
}

// SessionsCmd groups session maintenance.
func SessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Maintain login sessions",
	}
	cmd.AddCommand(pruneSessionsCmd())
	return cmd
}

func pruneSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete expired sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			wait, _ := cmd.Flags().GetDuration("wait")

			var srv *server.Server
			err = withWait(e.log.WithContext(cmd.Context()), wait, func(ctx context.Context) error {
				srv, err = server.New(ctx, e.cfg, e.log, e.svc)
				return err
			})
			if err != nil {
				e.svc.Shutdown()
				return err
			}
			defer func() { _ = srv.Shutdown(context.WithoutCancel(cmd.Context())) }()

			n, err := srv.Repositories.Sessions.DeleteExpired(cmd.Context(), srv.DB, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired sessions\n", n)
			return nil
		},
	}
}

func printApplied(cmd *cobra.Command, applied []database.AppliedMigration, asJSON bool) error {
	if asJSON {
		return utils.PrintJSON(cmd.OutOrStdout(), applied)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED AT\tCHECKSUM")
	for _, m := range applied {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.12s\n", m.Version, m.Name, m.AppliedAt.Format(time.RFC3339), m.Checksum)
	}
	return tw.Flush()
}

// VersionCmd prints config.BuildID.
func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build id",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.BuildID())
		},
	}
}

// withWait runs fn, retrying with backoff for up to wait while it fails
// with sqlerr.Unknown (the server is not reachable yet). Other kinds fail
// immediately. A zero wait runs fn once.
func withWait(ctx context.Context, wait time.Duration, fn func(context.Context) error) error {
	log := logger.FromContext(ctx)
	if wait <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	backoff := retry.WithCappedDuration(5*time.Second, retry.NewExponential(250*time.Millisecond))
	var last error
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && sqlerr.KindOf(err) == sqlerr.Unknown {
			last = err
			log.Warn().Err(err).Msg("database not reachable yet, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
	if errors.Is(err, context.DeadlineExceeded) && last != nil {
		return fmt.Errorf("gave up after %s: %w", wait, last)
	}
	return err
}
