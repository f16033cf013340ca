// Package generate implements the image acquisition worker: it builds a
// generation prompt from the campaign context, calls the external generative
// image backend under a bounded retry/backoff policy, persists the base
// image, records its cost in the manifest, and hands off to the variant
// worker.
package generate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"go.uber.org/zap"

	"adforge/internal/blob"
	"adforge/internal/dispatch"
	"adforge/internal/manifest"
)

var (
	// ErrRateLimited marks a backend rejection caused by rate limiting.
	// This is the only error class the worker retries.
	ErrRateLimited = errors.New("generation backend rate limited")

	// ErrExhausted marks a generation that failed even after the full retry
	// budget. Terminal for that product; the campaign stays incomplete.
	ErrExhausted = errors.New("generation attempts exhausted")
)

// CostPerImage is the fixed cost billed per generated image.
const CostPerImage = 0.04

const (
	defaultMaxAttempts  = 6
	defaultBaseDelay    = 5 * time.Second
	defaultStaggerDelay = 3 * time.Second
	jitterRange         = 2 * time.Second
)

// Backend produces image bytes for a prompt. Implementations map their
// provider's throttling error onto ErrRateLimited.
type Backend interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// Disabled is a Backend that rejects every call. It stands in when no
// generation credentials are configured, so existing-asset campaigns still
// run while generation fails with a clear reason.
type Disabled struct {
	Reason string
}

func (d Disabled) Generate(ctx context.Context, prompt string) ([]byte, error) {
	return nil, fmt.Errorf("generation backend disabled: %s", d.Reason)
}

// Worker is the image acquisition worker.
type Worker struct {
	backend    Backend
	blobs      blob.Store
	manifests  *manifest.Store
	dispatcher dispatch.Dispatcher
	log        *zap.Logger

	model       string
	maxAttempts int
	baseDelay   time.Duration
	stagger     time.Duration

	// injectable for tests
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

// NewWorker creates an acquisition worker using model as the backend model
// identifier recorded alongside generated images.
func NewWorker(backend Backend, blobs blob.Store, manifests *manifest.Store, dispatcher dispatch.Dispatcher, model string, logger *zap.Logger) *Worker {
	return &Worker{
		backend:     backend,
		blobs:       blobs,
		manifests:   manifests,
		dispatcher:  dispatcher,
		log:         logger.Named("generate"),
		model:       model,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		stagger:     defaultStaggerDelay,
		sleep:       sleepCtx,
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(jitterRange)))
		},
	}
}

// SetStagger overrides the per-index stagger delay.
func (w *Worker) SetStagger(d time.Duration) {
	if d >= 0 {
		w.stagger = d
	}
}

// Handle processes one acquisition task end to end.
func (w *Worker) Handle(ctx context.Context, task dispatch.GenerateTask) error {
	log := w.log.With(
		zap.String("campaign_id", task.CampaignID),
		zap.Int("product_index", task.ProductIndex),
		zap.String("product", task.ProductName))

	// Workers for one campaign dispatch near-simultaneously. Spreading them
	// out by index keeps the burst off the backend without a rate limiter.
	if task.ProductIndex > 0 {
		delay := time.Duration(task.ProductIndex) * w.stagger
		log.Info("staggering request", zap.Duration("delay", delay))
		if err := w.sleep(ctx, delay); err != nil {
			return err
		}
	}

	prompt := BuildPrompt(PromptInput{
		ProductName:        task.ProductName,
		ProductDescription: task.ProductDescription,
		CampaignMessage:    task.CampaignMessage,
		TargetAudience:     task.TargetAudience,
		TargetRegion:       task.TargetRegion,
	}, log)

	img, err := w.generate(ctx, prompt, log)
	if err != nil {
		return err
	}
	log.Info("image generated", zap.Int("bytes", len(img)))

	imageKey := manifest.GeneratedImageKey(task.CampaignID, task.ProductName, task.ProductIndex)
	err = w.blobs.Put(ctx, imageKey, blob.Object{
		Data:        img,
		ContentType: "image/png",
		Metadata: map[string]string{
			"campaign-id":   asciiSafe(task.CampaignID),
			"product-name":  asciiSafe(task.ProductName),
			"product-index": strconv.Itoa(task.ProductIndex),
			"model":         w.model,
			"cost":          strconv.FormatFloat(CostPerImage, 'f', -1, 64),
		},
	})
	if err != nil {
		return fmt.Errorf("generate: store image %s: %w", imageKey, err)
	}

	_, err = w.manifests.Update(ctx, task.CampaignID, func(m *manifest.Manifest) error {
		if !m.RecordImage(task.ProductIndex, imageKey, manifest.SourceGenerated, CostPerImage, w.model) {
			log.Info("image already recorded, skipping cost merge")
		}
		return nil
	})
	if err != nil {
		return err
	}

	return w.dispatcher.DispatchVariants(ctx, dispatch.VariantsTask{
		CampaignID:      task.CampaignID,
		ProductName:     task.ProductName,
		ProductIndex:    task.ProductIndex,
		ImageKey:        imageKey,
		ImageSource:     string(manifest.SourceGenerated),
		CampaignMessage: task.CampaignMessage,
		BrandColors:     task.BrandColors,
	})
}

// generate calls the backend with exponential backoff on rate limiting:
// delays double per attempt from the base delay, plus random jitter. Any
// other error class fails immediately.
func (w *Worker) generate(ctx context.Context, prompt string, log *zap.Logger) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < w.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := w.baseDelay*(1<<(attempt-1)) + w.jitter()
			log.Warn("backend throttled, backing off",
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", w.maxAttempts),
				zap.Duration("delay", delay))
			if err := w.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		img, err := w.backend.Generate(ctx, prompt)
		if err == nil {
			return img, nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return nil, fmt.Errorf("generate: backend: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrExhausted, w.maxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// asciiSafe percent-encodes metadata values that storage backends reject
// outside ASCII.
func asciiSafe(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			return percentEncode(s)
		}
	}
	return s
}

func percentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	out := make([]byte, 0, len(s)*3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c > 0x7f || c == '%' {
			out = append(out, '%', hex[c>>4], hex[c&0xf])
		} else {
			out = append(out, c)
		}
	}
	return string(out)
}
