// Command adforge runs the creative automation pipeline: campaign briefs go
// in, platform-sized promotional images and a per-campaign manifest come out.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"adforge/internal/blob"
	"adforge/internal/brief"
	"adforge/internal/dispatch"
	"adforge/internal/manifest"
	"adforge/internal/pipeline"
)

var (
	verbose bool
	cfgPath string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "adforge",
	Short: "adforge - creative automation pipeline",
	Long: `adforge turns structured campaign briefs into platform-sized promotional
images through an asynchronous multi-stage pipeline: intake validates the
brief and fans out one task per product, the acquisition worker obtains a
base image (generated or reused), and the variant worker renders the social
platform catalog. All stages converge on a shared per-campaign manifest.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline service",
	Long: `Consumes brief notifications and drives campaigns to completion.

In local mode the input directory under the storage root is watched for new
brief documents and workers run in-process. In aws mode briefs arrive via SQS
and workers are either invoked as Lambda functions (when function names are
configured) or run in-process against S3.`,
	RunE: runServe,
}

var submitCmd = &cobra.Command{
	Use:   "submit [brief.json]",
	Short: "Submit a campaign brief to the input location",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

var statusCmd = &cobra.Command{
	Use:   "status [campaign-id]",
	Short: "Show a campaign's manifest summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Execute a single worker task from a JSON payload on stdin",
	Long: `Runs one pipeline worker against a task payload read from stdin. This is
the entry point remote worker deployments wrap: the dispatcher's payload maps
one-to-one onto these commands.`,
}

var workerGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run one image acquisition task",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(cmd.Context(), func(ctx context.Context, env *runtime, payload []byte) error {
			var task dispatch.GenerateTask
			if err := json.Unmarshal(payload, &task); err != nil {
				return fmt.Errorf("decode generate task: %w", err)
			}
			return env.generator.Handle(ctx, task)
		})
	},
}

var workerVariantsCmd = &cobra.Command{
	Use:   "variants",
	Short: "Run one variant rendering task",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(cmd.Context(), func(ctx context.Context, env *runtime, payload []byte) error {
			var task dispatch.VariantsTask
			if err := json.Unmarshal(payload, &task); err != nil {
				return fmt.Errorf("decode variants task: %w", err)
			}
			return env.renderer.Handle(ctx, task)
		})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "adforge.yaml", "path to config file")

	workerCmd.AddCommand(workerGenerateCmd, workerVariantsCmd)
	rootCmd.AddCommand(serveCmd, submitCmd, statusCmd, workerCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env, err := buildRuntime(ctx)
	if err != nil {
		return err
	}

	p := pipeline.New(env.source, env.intake, logger)
	logger.Info("pipeline starting", zap.String("mode", env.cfg.Mode))

	err = p.Run(ctx)
	if env.inproc != nil {
		logger.Info("draining in-flight workers")
		env.inproc.Wait()
	}
	if err != nil && ctx.Err() != nil {
		return nil // clean shutdown
	}
	return err
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	// Reject obviously bad briefs before they ever hit the queue.
	if _, err := brief.Parse(data); err != nil {
		return err
	}

	env, err := buildRuntime(ctx)
	if err != nil {
		return err
	}
	key := manifest.InputPrefix + filepath.Base(args[0])
	if err := env.blobs.Put(ctx, key, blob.Object{Data: data, ContentType: "application/json"}); err != nil {
		return err
	}
	fmt.Printf("Submitted brief at %s\n", key)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	env, err := buildRuntime(ctx)
	if err != nil {
		return err
	}
	m, err := env.manifests.Get(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Campaign:  %s (%s)\n", m.CampaignName, m.CampaignID)
	fmt.Printf("Status:    %s\n", m.Status)
	fmt.Printf("Products:  %d/%d complete\n", m.CompletedProducts(), m.ExpectedProducts)
	fmt.Printf("Total cost: $%.3f\n", m.TotalCost)
	for _, p := range m.Products {
		state := p.Status
		if state == "" {
			state = "registered"
		}
		fmt.Printf("  [%d] %-30s %s", p.Index, p.Name, state)
		if p.VariantsCount > 0 {
			fmt.Printf(" (%d variants)", p.VariantsCount)
		}
		fmt.Println()
	}
	return nil
}

// runWorker executes one task payload from stdin using the configured
// substrate.
func runWorker(ctx context.Context, handle func(context.Context, *runtime, []byte) error) error {
	payload, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	env, err := buildRuntime(ctx)
	if err != nil {
		return err
	}
	return handle(ctx, env, payload)
}
