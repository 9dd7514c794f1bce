// Command opsctl is the operator CLI: schema migrations, provider
// credentials, credit grants, queue inspection and one-shot reaping.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"jewelshot/internal/adapter/repo"
	"jewelshot/internal/batch"
	"jewelshot/internal/db"
	"jewelshot/internal/domain"
	"jewelshot/internal/infra"
	"jewelshot/internal/infra/bootstrap"
	"jewelshot/internal/infra/credentials"
	"jewelshot/internal/ledger"
	"jewelshot/internal/notify"
	"jewelshot/internal/queue"
)

// env holds the connections opened by the root command for its children.
type env struct {
	cfg    *infra.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool
	runner *infra.SQLRunner
}

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:          "opsctl",
		Short:        "Operate the jewelshot job engine",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := infra.LoadConfig()
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = infra.NewLogger(cfg.AppEnv)
			e.pool, err = infra.NewDBPool(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			e.runner = infra.NewSQLRunner(e.pool, e.logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.pool != nil {
				e.pool.Close()
			}
		},
	}
	root.AddCommand(
		migrateCmd(e),
		credentialsCmd(e),
		creditsCmd(e),
		queueCmd(e),
		reapCmd(e),
	)
	return root
}

func migrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			applied, err := db.Migrate(cmd.Context(), e.pool, e.logger)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				cmd.Println("schema is up to date")
				return nil
			}
			for _, v := range applied {
				cmd.Printf("applied %s\n", v)
			}
			return nil
		},
	}
}

func credentialsCmd(e *env) *cobra.Command {
	parent := &cobra.Command{Use: "credentials", Short: "Manage provider credentials"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List credentials without revealing key material",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := credentials.NewStore(e.runner).ListCredentials(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLABEL\tKEY\tHEALTHY\tLAST USED\tLAST ERROR")
			for _, c := range creds {
				used := "-"
				if c.LastUsedAt != nil {
					used = c.LastUsedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n", c.ID, c.Label, domain.KeyFingerprint(c.Key), c.Healthy, used, c.LastError)
			}
			return tw.Flush()
		},
	}

	var label string
	add := &cobra.Command{
		Use:   "add <key>",
		Short: "Store a new provider key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cred := &domain.Credential{Label: label, Key: args[0]}
			if err := credentials.NewStore(e.runner).AddCredential(cmd.Context(), cred); err != nil {
				return err
			}
			cmd.Printf("added %s\n", cred)
			return nil
		},
	}
	add.Flags().StringVar(&label, "label", "", "human readable label")

	reset := &cobra.Command{
		Use:   "reset <id>",
		Short: "Return a disabled credential to rotation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := credentials.NewStore(e.runner).ResetCredential(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("credential %s not found", args[0])
			}
			cmd.Printf("reset %s; workers pick it up on their next refresh\n", args[0])
			return nil
		},
	}

	var reason string
	disable := &cobra.Command{
		Use:   "disable <id>",
		Short: "Take a credential out of rotation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := credentials.NewStore(e.runner).MarkUnhealthy(cmd.Context(), args[0], reason); err != nil {
				return err
			}
			cmd.Printf("disabled %s\n", args[0])
			return nil
		},
	}
	disable.Flags().StringVar(&reason, "reason", "disabled by operator", "recorded as the last error")

	parent.AddCommand(list, add, reset, disable)
	return parent
}

func creditsCmd(e *env) *cobra.Command {
	parent := &cobra.Command{Use: "credits", Short: "Inspect and grant user credit"}

	grant := &cobra.Command{
		Use:   "grant <user-id> <amount>",
		Short: "Add credit to a user's balance",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(2)(cmd, args); err != nil {
				return err
			}
			if n, err := strconv.ParseInt(args[1], 10, 64); err != nil || n <= 0 {
				return fmt.Errorf("amount must be a positive integer, got %q", args[1])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, _ := strconv.ParseInt(args[1], 10, 64)
			acct, err := newLedger(e, nil).Grant(cmd.Context(), args[0], amount)
			if err != nil {
				return err
			}
			printAccount(cmd, acct)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a user's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acct, err := newLedger(e, nil).Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printAccount(cmd, acct)
			return nil
		},
	}

	parent.AddCommand(grant, show)
	return parent
}

func queueCmd(e *env) *cobra.Command {
	parent := &cobra.Command{Use: "queue", Short: "Inspect the job lanes"}
	parent.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show queued jobs per lane",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			depths, err := repo.NewJobRepository(e.runner).LaneDepths(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LANE\tQUEUED")
			for _, lane := range domain.Lanes() {
				fmt.Fprintf(tw, "%s\t%d\n", lane, depths[lane])
			}
			return tw.Flush()
		},
	})
	return parent
}

func reapCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Release expired leases, refund stale reservations and time out stuck batch units once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dispatcher, closeNotify, err := bootstrap.Notifier(e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer closeNotify()

			led := newLedger(e, dispatcher)
			released, err := queue.NewJanitor(repo.NewJobRepository(e.runner), led, e.cfg.Backoff().MaxAttempts, e.logger).RunOnce(ctx)
			if err != nil {
				return fmt.Errorf("release leases: %w", err)
			}
			refunded, err := ledger.NewReaper(led, repo.NewCreditRepository(e.runner), e.cfg.ReservationTTL).RunOnce(ctx)
			if err != nil {
				return fmt.Errorf("refund reservations: %w", err)
			}
			orch := batch.NewOrchestrator(repo.NewBatchRepository(e.runner), led, nil, nil, dispatcher, e.cfg.Backoff(), e.logger)
			timedOut, err := batch.NewReaper(orch, e.cfg.ReservationTTL).RunOnce(ctx)
			if err != nil {
				return fmt.Errorf("reap batch units: %w", err)
			}
			cmd.Printf("released %d leases, refunded %d reservations, timed out %d batch units\n", released, refunded, timedOut)
			return nil
		},
	}
}

func newLedger(e *env, dispatcher *notify.Dispatcher) *ledger.Service {
	return ledger.NewService(repo.NewCreditRepository(e.runner), dispatcher, e.cfg.LowCreditThreshold, e.logger)
}

func printAccount(cmd *cobra.Command, acct domain.CreditAccount) {
	cmd.Printf("user %s: balance %d, reserved %d, available %d\n", acct.UserID, acct.Balance, acct.Reserved, acct.Available())
}
