package variants

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"go.uber.org/zap"

	"adforge/internal/blob"
	"adforge/internal/dispatch"
	"adforge/internal/manifest"
)

// Stage costs recorded by the terminal merge. The worker re-derives the
// figure from the image source instead of trusting a passed-in amount, so a
// redelivered task records the same cost regardless of how it was invoked.
const (
	CostExisting  = 0.01
	CostGenerated = 0.05
)

// Worker renders the platform catalog for one base image and performs the
// terminal manifest merge.
type Worker struct {
	blobs     blob.Store
	manifests *manifest.Store
	log       *zap.Logger

	now func() time.Time
}

// NewWorker creates a variant worker.
func NewWorker(blobs blob.Store, manifests *manifest.Store, logger *zap.Logger) *Worker {
	return &Worker{
		blobs:     blobs,
		manifests: manifests,
		log:       logger.Named("variants"),
		now:       time.Now,
	}
}

// Handle processes one variants task: download the base image, render and
// persist every catalog entry, then merge the completed product record and
// re-evaluate campaign completion.
func (w *Worker) Handle(ctx context.Context, task dispatch.VariantsTask) error {
	log := w.log.With(
		zap.String("campaign_id", task.CampaignID),
		zap.Int("product_index", task.ProductIndex),
		zap.String("product", task.ProductName))

	data, err := w.blobs.Get(ctx, task.ImageKey)
	if err != nil {
		return fmt.Errorf("variants: load base image %s: %w", task.ImageKey, err)
	}
	base, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("variants: decode base image %s: %w", task.ImageKey, err)
	}

	primary := "#FFFFFF"
	if len(task.BrandColors) > 0 {
		primary = task.BrandColors[0]
	}

	rendered := make([]manifest.Variant, 0, len(catalog))
	for _, spec := range Catalog() {
		out, err := Render(base, spec, task.CampaignMessage, primary)
		if err != nil {
			return err
		}
		key := manifest.VariantKey(task.CampaignID, task.ProductName, spec.Width, spec.Height, spec.Platform)
		if err := w.blobs.Put(ctx, key, blob.Object{Data: out, ContentType: "image/jpeg"}); err != nil {
			return fmt.Errorf("variants: store %s: %w", key, err)
		}
		log.Debug("variant saved", zap.String("platform", spec.Platform), zap.String("key", key))
		rendered = append(rendered, manifest.Variant{Platform: spec.Platform, Key: key})
	}

	source := manifest.Source(task.ImageSource)
	cost := CostGenerated
	if source == manifest.SourceExisting {
		cost = CostExisting
	}

	m, err := w.manifests.Update(ctx, task.CampaignID, func(m *manifest.Manifest) error {
		if !m.RecordVariants(task.ProductIndex, task.ImageKey, source, rendered, cost, w.now().UTC()) {
			log.Info("variants already recorded, skipping merge")
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("variants complete",
		zap.Int("count", len(rendered)),
		zap.Float64("cost", cost),
		zap.String("campaign_status", string(m.Status)))
	return nil
}
