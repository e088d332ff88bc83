// runctl is the operator CLI for the run service: inspecting stuck runs,
// requeueing them, and redelivering failed webhooks.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"imageflow/internal/config"
	"imageflow/internal/logging"
	"imageflow/internal/repository"
	"imageflow/internal/services"
	"imageflow/pkg/models"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "runctl",
		Short:         "Operator tooling for the image run service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newStuckCmd(), newRequeueCmd(), newRedeliverCmd())
	return root
}

func openStore(ctx context.Context) (*pgxpool.Pool, *repository.PostgresStore, *config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect: %w", err)
	}
	return pool, repository.NewPostgresStore(pool), cfg, nil
}

func newStuckCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "stuck",
		Short: "List generating runs with no recent progress",
		Long: `A run that stays in generating without updates usually means the worker
crashed mid-run. There is no automatic reaper; requeue the run once the
worker is back.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, store, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			runs, err := store.ListStuckRuns(ctx, olderThan)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no stuck runs")
				return nil
			}
			for _, run := range runs {
				fmt.Printf("%s\tupdated %s\tprompt %q\n",
					run.ID, run.UpdatedAt.Format(time.RFC3339), run.Prompt)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 10*time.Minute,
		"minimum time since the last update")
	return cmd
}

func newRequeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <run-id>",
		Short: "Reset a run to queued so the worker picks it up again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, store, _, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := store.UpdateRunStatus(ctx, args[0], models.RunStatusQueued); err != nil {
				return err
			}
			fmt.Printf("run %s requeued\n", args[0])
			return nil
		},
	}
}

func newRedeliverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redeliver",
		Short: "Retry a webhook delivery for a record",
		Long: `Deliveries are single-attempt: a failed webhook stays failed until an
operator redelivers it. Each redelivery counts as one more attempt.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "approval <approval-id>",
		Short: "Redeliver an approval webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return redeliver(cmd.Context(), args[0], true)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "link <submission-id>",
		Short: "Redeliver a link submission webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return redeliver(cmd.Context(), args[0], false)
		},
	})
	return cmd
}

func redeliver(ctx context.Context, id string, approval bool) error {
	pool, store, cfg, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	logger := logging.NewLogger()
	dispatcher := services.NewWebhookDispatcher(store,
		cfg.Webhooks.ApprovalURL, cfg.Webhooks.LinkURL, cfg.Webhooks.Timeout, logger)

	if approval {
		err = dispatcher.DeliverApproval(ctx, id)
	} else {
		err = dispatcher.DeliverLinkSubmission(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("delivery failed (outcome recorded): %w", err)
	}
	fmt.Printf("delivered webhook for %s\n", id)
	return nil
}
