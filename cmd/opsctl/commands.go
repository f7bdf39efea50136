package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/openclaw/marketplace/internal/app"
	"github.com/openclaw/marketplace/internal/config"
	"github.com/openclaw/marketplace/internal/db"
	"github.com/openclaw/marketplace/internal/platformconfig"
)

var jsonOut bool

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "opsctl",
		Short:         "Operator tooling for the task marketplace",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&jsonOut, "json", false, "print JSON instead of tables")

	root.AddCommand(migrateCmd())
	root.AddCommand(seedConfigCmd())
	root.AddCommand(recoverCmd())
	root.AddCommand(expireStaleCmd())
	root.AddCommand(unfreezeCmd())
	root.AddCommand(injectBenchmarkCmd())
	root.AddCommand(balanceCmd())
	return root
}

// withApp connects, runs fn against the Postgres-backed service graph, then closes the pool.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, app.New(pool, cfg, logger))
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := db.Migrate(ctx, a.Pool); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}

func seedConfigCmd() *cobra.Command {
	var only string
	cmd := &cobra.Command{
		Use:   "seed-config",
		Short: "Write the built-in defaults into platform_config",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := seedKeys(only)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				defaults := platformconfig.Defaults()
				for _, k := range keys {
					if err := a.Config.Put(ctx, k, defaults[k]); err != nil {
						return fmt.Errorf("seed %s: %w", k, err)
					}
				}
				return render(cmd.OutOrStdout(), map[string]any{"seeded": keys},
					table.Row{"Key"}, rowsOf(keys))
			})
		},
	}
	cmd.Flags().StringVar(&only, "key", "", "seed a single key")
	return cmd
}

// seedKeys resolves --key against the known config keys.
func seedKeys(only string) ([]string, error) {
	if only == "" {
		return platformconfig.Keys, nil
	}
	for _, k := range platformconfig.Keys {
		if k == only {
			return []string{k}, nil
		}
	}
	return nil, fmt.Errorf("unknown config key %q (known: %s)", only, strings.Join(platformconfig.Keys, ", "))
}

func recoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Return timed-out assignments to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.Recovery.RecoverTimeouts(ctx)
				if err != nil {
					return err
				}
				rows := []table.Row{}
				for _, id := range res.WorkersPenalized {
					rows = append(rows, table.Row{id})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recovered %d task(s)\n", res.Recovered)
				return render(cmd.OutOrStdout(), res, table.Row{"Penalized worker"}, rows)
			})
		},
	}
}

func expireStaleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire-stale",
		Short: "Expire pending tasks past their claim window and refund buyers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.Recovery.ExpireStale(ctx)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), res, table.Row{"Expired", "Refunded (cents)"},
					[]table.Row{{res.Expired, res.RefundedCents}})
			})
		},
	}
}

func unfreezeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unfreeze",
		Short: "Release matured frozen earnings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Ledger.UnfreezeMatured(ctx)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), res, table.Row{"Workers", "Unfrozen (cents)"},
					[]table.Row{{res.WorkersProcessed, res.TotalUnfrozen}})
			})
		},
	}
}

func injectBenchmarkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inject-benchmark [type]",
		Short: "Insert one benchmark task with known expected output",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskType := ""
			if len(args) == 1 {
				taskType = args[0]
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.QA.InjectBenchmark(ctx, taskType)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), t, table.Row{"Task", "Type", "Price"},
					[]table.Row{{t.ID, t.Type, t.PriceCents}})
			})
		},
	}
}

func balanceCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "balance <user-id>",
		Short: "Show a balance and its recent ledger entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				b, err := a.Ledger.Balance(ctx, userID)
				if err != nil {
					return err
				}
				txs, err := a.Ledger.History(ctx, userID, limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(cmd.OutOrStdout(), map[string]any{"balance": b, "transactions": txs})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "available %d  frozen %d  deposited %d  earned %d  withdrawn %d\n",
					b.AmountCents, b.FrozenCents, b.TotalDeposited, b.TotalEarned, b.TotalWithdrawn)
				rows := make([]table.Row, 0, len(txs))
				for _, tx := range txs {
					rows = append(rows, table.Row{tx.CreatedAt.Format(time.RFC3339), tx.Type, tx.AmountCents, tx.BalanceAfter, tx.RefID})
				}
				return render(out, nil, table.Row{"At", "Type", "Amount", "Balance after", "Ref"}, rows)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "ledger entries to show")
	return cmd
}

// render prints v as JSON under --json, otherwise a table of rows.
func render(w io.Writer, v any, header table.Row, rows []table.Row) error {
	if jsonOut && v != nil {
		return printJSON(w, v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
	return nil
}

func rowsOf(vals []string) []table.Row {
	rows := make([]table.Row, 0, len(vals))
	for _, v := range vals {
		rows = append(rows, table.Row{v})
	}
	return rows
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
