package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/relay/internal/pipeline"
	"github.com/ajitpratap0/relay/pkg/config"
	"github.com/ajitpratap0/relay/pkg/connector/registry"

	// Import all available adapters to register them
	_ "github.com/ajitpratap0/relay/pkg/connector/adapters/bigquery"
	_ "github.com/ajitpratap0/relay/pkg/connector/adapters/gcs"
	_ "github.com/ajitpratap0/relay/pkg/connector/adapters/http"
	_ "github.com/ajitpratap0/relay/pkg/connector/adapters/kafka"
	_ "github.com/ajitpratap0/relay/pkg/connector/adapters/memory"
	_ "github.com/ajitpratap0/relay/pkg/connector/adapters/mongodb"
	_ "github.com/ajitpratap0/relay/pkg/connector/adapters/s3"
	_ "github.com/ajitpratap0/relay/pkg/connector/adapters/sql"
)

var version = "0.1.0"

const shutdownGrace = 10 * time.Second

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var settingsPath string

	root := &cobra.Command{
		Use:   "relay",
		Short: "Relay - paginated extract, transform and load pipelines",
		Long: `Relay moves records between adapters (HTTP APIs, SQL databases, MongoDB,
Kafka, S3, GCS, BigQuery) with pagination, retries, transforms and stored credentials.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&settingsPath, "config", "c", "", "Path to relay settings file (default ./relay.yaml)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Relay v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "adapters",
		Short: "List registered adapters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, id := range registry.List() {
				desc, err := registry.GetRegistry().Descriptor(id)
				if err != nil {
					return err
				}
				pagination := "none"
				if desc.Pagination != nil {
					pagination = string(desc.Pagination.Style)
				}
				fmt.Fprintf(out, "  - %-10s actions=%v pagination=%s\n", id, desc.Actions, pagination)
			}
			return nil
		},
	})

	root.AddCommand(newRunCmd(&settingsPath), newScheduleCmd(&settingsPath), newVaultCmd(&settingsPath))
	return root
}

func newRunCmd(settingsPath *string) *cobra.Command {
	var file string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipelines defined in a file",
		Long: `Run every pipeline in a YAML definition file. Pipelines run concurrently,
bounded by the concurrency setting. A failing pipeline never cancels the others.

Example:
  relay run -f pipelines.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			a, err := newApp(*settingsPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeApp(a)

			_, pipelines, err := a.pipelines(file)
			if err != nil {
				return err
			}
			results, runErr := a.engine.RunAll(ctx, pipelines)
			printResults(cmd.OutOrStdout(), results)
			return runErr
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to pipeline definition YAML file (required)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall deadline for the whole run (0 = none)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newScheduleCmd(settingsPath *string) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run pipelines on their cron schedules until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(*settingsPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeApp(a)

			specs, pipelines, err := a.pipelines(file)
			if err != nil {
				return err
			}
			c, scheduled, err := schedule(ctx, a, specs, pipelines)
			if err != nil {
				return err
			}
			if scheduled == 0 {
				return fmt.Errorf("no pipeline in %s declares a schedule", file)
			}

			c.Start()
			a.log.Info("scheduler started", zap.Int("pipelines", scheduled))
			<-ctx.Done()
			a.log.Info("scheduler stopping, waiting for running pipelines")
			<-c.Stop().Done()
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to pipeline definition YAML file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// schedule registers every pipeline carrying a schedule expression with a
// new cron. Overlapping runs of the same pipeline are skipped.
func schedule(ctx context.Context, a *app, specs []config.PipelineSpec, pipelines []*pipeline.Pipeline) (*cron.Cron, int, error) {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	count := 0
	for i := range specs {
		if specs[i].Schedule == "" {
			continue
		}
		p := pipelines[i]
		job := cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(cron.FuncJob(func() {
			res, err := a.engine.Run(ctx, p)
			if err != nil {
				a.log.Error("scheduled pipeline failed", zap.String("pipeline", p.Name), zap.Error(err))
				return
			}
			a.log.Info("scheduled pipeline finished",
				zap.String("pipeline", p.Name),
				zap.String("status", string(res.Status)),
				zap.Int("delivered", res.Delivered))
		}))
		if _, err := c.AddJob(specs[i].Schedule, job); err != nil {
			return nil, 0, fmt.Errorf("pipeline %q: invalid schedule %q: %w", p.Name, specs[i].Schedule, err)
		}
		count++
	}
	return c, count, nil
}

func newVaultCmd(settingsPath *string) *cobra.Command {
	vaultCmd := &cobra.Command{
		Use:   "vault",
		Short: "Inspect and maintain stored credentials",
	}

	vaultCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored credential ids",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*settingsPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeApp(a)

			lister, ok := a.vault.(interface{ IDs() []string })
			if !ok {
				return fmt.Errorf("vault does not support listing")
			}
			ids := lister.IDs()
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	})

	vaultCmd.AddCommand(&cobra.Command{
		Use:   "refresh <id>",
		Short: "Force a token exchange for an OAuth2 credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*settingsPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeApp(a)

			cred, err := a.creds.Refresh(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			expiry := "never"
			if cred.ExpiresAt != nil {
				expiry = cred.ExpiresAt.Format(time.RFC3339)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refreshed %s, expires %s\n", cred.ID, expiry)
			return nil
		},
	})
	return vaultCmd
}

func closeApp(a *app) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "shutdown:", err)
	}
}
