package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"adforge/internal/blob"
	"adforge/internal/config"
	"adforge/internal/dispatch"
	"adforge/internal/generate"
	"adforge/internal/intake"
	"adforge/internal/manifest"
	"adforge/internal/queue"
	"adforge/internal/variants"
)

// runtime is the wired-up pipeline for the configured substrate.
type runtime struct {
	cfg       *config.Config
	blobs     blob.ConditionalStore
	manifests *manifest.Store
	source    queue.Source
	intake    *intake.Handler
	generator *generate.Worker
	renderer  *variants.Worker

	// inproc is set when workers run inside this process and must be
	// drained on shutdown.
	inproc *dispatch.InProcess
}

// buildRuntime assembles the pipeline components for the configured mode.
func buildRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	env := &runtime{cfg: cfg}

	switch cfg.Mode {
	case config.ModeLocal:
		fs, err := blob.NewFS(cfg.Storage.Root)
		if err != nil {
			return nil, err
		}
		env.blobs = fs
		env.source = queue.NewDirWatcher(cfg.Storage.Root, manifest.InputPrefix, logger)

	case config.ModeAWS:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		env.blobs = blob.NewS3(s3.NewFromConfig(awsCfg), cfg.Storage.Bucket)
		env.source = queue.NewSQSSource(sqs.NewFromConfig(awsCfg), cfg.Queue.URL, logger)
		if cfg.Workers.GeneratorFunction != "" && cfg.Workers.VariantsFunction != "" {
			env.manifests = manifest.NewStore(env.blobs, logger)
			return buildLambdaRuntime(env, lambda.NewFromConfig(awsCfg))
		}
	}

	env.manifests = manifest.NewStore(env.blobs, logger)

	inproc := dispatch.NewInProcess(ctx, logger, cfg.Workers.Concurrency)
	env.inproc = inproc
	if err := buildWorkers(ctx, env, inproc); err != nil {
		return nil, err
	}
	inproc.Register(env.generator.Handle, env.renderer.Handle)
	env.intake = intake.NewHandler(env.blobs, env.manifests, inproc, logger)
	return env, nil
}

// buildLambdaRuntime wires intake against remote Lambda workers. The local
// worker handles are still constructed so the `worker` subcommands can
// execute dispatched payloads.
func buildLambdaRuntime(env *runtime, client dispatch.LambdaAPI) (*runtime, error) {
	d := dispatch.NewLambda(client, env.cfg.Workers.GeneratorFunction, env.cfg.Workers.VariantsFunction, logger)
	if err := buildWorkers(context.Background(), env, d); err != nil {
		return nil, err
	}
	env.intake = intake.NewHandler(env.blobs, env.manifests, d, logger)
	return env, nil
}

// buildWorkers constructs the two pipeline workers against the given
// downstream dispatcher.
func buildWorkers(ctx context.Context, env *runtime, d dispatch.Dispatcher) error {
	var backend generate.Backend
	if env.cfg.Generation.APIKey != "" {
		gemini, err := generate.NewGeminiBackend(ctx, env.cfg.Generation.APIKey, env.cfg.Generation.Model, logger)
		if err != nil {
			return err
		}
		backend = gemini
	} else {
		backend = generate.Disabled{Reason: "GEMINI_API_KEY not configured"}
	}

	env.generator = generate.NewWorker(backend, env.blobs, env.manifests, d, env.cfg.Generation.Model, logger)
	env.generator.SetStagger(env.cfg.GetStagger())
	env.renderer = variants.NewWorker(env.blobs, env.manifests, logger)
	return nil
}
