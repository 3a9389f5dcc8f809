package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"webdir/internal/app"
	catservice "webdir/internal/category/service"
	jwttoken "webdir/internal/jwt_token"
	"webdir/internal/platform/config"
	"webdir/internal/platform/logger"
	"webdir/internal/platform/postgres"
	id "webdir/pkg/domain"
)

func migrateCmd() *cobra.Command {
	var printOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if printOnly {
				_, err := fmt.Fprint(cmd.OutOrStdout(), postgres.Schema())
				return err
			}
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := postgres.Open(ctx, cfg.Database)
			if err != nil {
				return err
			}
			if db == nil {
				return errors.New("WEBDIR_DATABASE_URL is not set")
			}
			defer db.Close()
			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	}

	cmd.Flags().BoolVar(&printOnly, "print", false, "print the schema instead of applying it")
	return cmd
}

func seedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a category tree from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			nodes, err := catservice.LoadSeed(r)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				created, err := a.Categories.Seed(ctx, nodes)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %d categories\n", created)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "seed file, - for stdin")
	return cmd
}

func recalcCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "recalc",
		Short: "Recalculate ranks for one category or all of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if category == "" {
					summary, err := a.Ranking.RecalculateAll(ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), summary)
				}
				categoryID, err := id.ParseCategoryID(category)
				if err != nil {
					return err
				}
				result, err := a.Ranking.RecalculateCategory(ctx, categoryID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "category ID (default: every active category)")
	return cmd
}

func healthCmd() *cobra.Command {
	var failed bool

	cmd := &cobra.Command{
		Use:   "health SITE_ID",
		Short: "Record a link check result for a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			siteID, err := id.ParseSiteID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.Sites.RecordCheckResult(ctx, siteID, !failed)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.Flags().BoolVar(&failed, "failed", false, "record a failed check instead of a successful one")
	return cmd
}

func karmaCmd() *cobra.Command {
	var (
		delta     int
		moderator string
	)

	cmd := &cobra.Command{
		Use:   "karma USER_ID",
		Short: "Adjust a user's karma or moderator flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := id.ParseUserID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				switch moderator {
				case "":
				case "on", "off":
					if err := a.Trust.SetModerator(ctx, userID, moderator == "on"); err != nil {
						return err
					}
				default:
					return fmt.Errorf("--moderator must be on or off")
				}
				profile, err := a.Trust.AdjustKarma(ctx, userID, delta)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), profile)
			})
		},
	}

	cmd.Flags().IntVar(&delta, "delta", 0, "karma change, negative to penalize")
	cmd.Flags().StringVar(&moderator, "moderator", "", "grant (on) or revoke (off) moderator")
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token USER_ID",
		Short: "Mint a bearer token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := id.ParseUserID(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			token, err := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer).
				GenerateAccessToken(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

// withApp builds the services, runs fn, then drains queued audit events.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger.NewWithWriter(cmd.ErrOrStderr(), logLevel))
	if err != nil {
		return err
	}
	defer a.Close()

	workerCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.AuditWorker.Run(workerCtx)
	}()

	err = fn(ctx, a)
	stop()
	<-done
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
