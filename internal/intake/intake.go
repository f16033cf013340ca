// Package intake validates incoming campaign briefs, creates the campaign
// identity and initial manifest, and fans out one task per product.
//
// Validation failure is terminal for a brief: no manifest is created and no
// worker is dispatched. Once the manifest exists, each product is routed
// either straight to the variant worker (existing asset confirmed present in
// storage) or through the image acquisition worker.
package intake

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"adforge/internal/blob"
	"adforge/internal/brief"
	"adforge/internal/dispatch"
	"adforge/internal/manifest"
	"adforge/internal/queue"
)

// Handler processes brief notifications.
type Handler struct {
	blobs      blob.Store
	manifests  *manifest.Store
	dispatcher dispatch.Dispatcher
	log        *zap.Logger

	now func() time.Time
}

// NewHandler creates an intake handler.
func NewHandler(blobs blob.Store, manifests *manifest.Store, dispatcher dispatch.Dispatcher, logger *zap.Logger) *Handler {
	return &Handler{
		blobs:      blobs,
		manifests:  manifests,
		dispatcher: dispatcher,
		log:        logger.Named("intake"),
		now:        time.Now,
	}
}

// Handle consumes one notification: load the brief, validate it, create the
// campaign, and dispatch per-product work. Returns the campaign id on
// success. A brief.ErrInvalidBrief error means the brief itself is bad and
// must not be retried.
func (h *Handler) Handle(ctx context.Context, n queue.Notification) (string, error) {
	log := h.log.With(zap.String("key", n.Key), zap.String("message_id", n.ID))
	log.Info("processing campaign brief")

	data, err := h.blobs.Get(ctx, n.Key)
	if err != nil {
		return "", fmt.Errorf("intake: load brief %s: %w", n.Key, err)
	}

	b, err := brief.Parse(data)
	if err != nil {
		log.Warn("brief rejected", zap.Error(err))
		return "", err
	}

	campaignID := manifest.NewCampaignID(b.CampaignName, h.now())
	log = log.With(zap.String("campaign_id", campaignID))

	m := newManifest(campaignID, b, h.now())
	if err := h.manifests.Create(ctx, m); err != nil {
		return "", err
	}

	for idx, p := range b.Products {
		if err := h.process(ctx, campaignID, idx, p, b, log); err != nil {
			return campaignID, err
		}
	}

	log.Info("campaign intake complete", zap.Int("products", len(b.Products)))
	return campaignID, nil
}

// newManifest builds the initial processing-state document from a validated
// brief.
func newManifest(campaignID string, b *brief.Brief, now time.Time) *manifest.Manifest {
	return &manifest.Manifest{
		CampaignID:       campaignID,
		CampaignName:     b.CampaignName,
		CampaignMessage:  b.CampaignMessage,
		TargetAudience:   b.TargetAudience,
		BrandColors:      b.BrandColors,
		TargetRegions:    b.TargetRegions,
		Status:           manifest.StatusProcessing,
		CreatedAt:        now.UTC(),
		ExpectedProducts: len(b.Products),
		TotalCost:        0,
		Products:         []manifest.ProductRecord{},
	}
}

// process registers one product record and dispatches its pipeline.
func (h *Handler) process(ctx context.Context, campaignID string, idx int, p brief.Product, b *brief.Brief, log *zap.Logger) error {
	_, err := h.manifests.Update(ctx, campaignID, func(m *manifest.Manifest) error {
		m.Register(idx, p.Name)
		return nil
	})
	if err != nil {
		return err
	}

	if p.ExistingAssets != "" {
		assetKey := manifest.ExistingAssetKey(p.ExistingAssets)
		ok, err := h.blobs.Exists(ctx, assetKey)
		if err != nil {
			return fmt.Errorf("intake: check asset %s: %w", assetKey, err)
		}
		if ok {
			log.Info("reusing existing asset",
				zap.Int("product_index", idx),
				zap.String("asset_key", assetKey))
			return h.dispatcher.DispatchVariants(ctx, dispatch.VariantsTask{
				CampaignID:      campaignID,
				ProductName:     p.Name,
				ProductIndex:    idx,
				ImageKey:        assetKey,
				ImageSource:     string(manifest.SourceExisting),
				CampaignMessage: b.CampaignMessage,
				BrandColors:     b.BrandColors,
			})
		}
		// Asset not found: fall back to generation rather than failing.
		log.Warn("existing asset missing, generating instead",
			zap.Int("product_index", idx),
			zap.String("asset_key", assetKey))
	}

	log.Info("generating new image", zap.Int("product_index", idx), zap.String("product", p.Name))
	return h.dispatcher.DispatchGenerate(ctx, dispatch.GenerateTask{
		CampaignID:         campaignID,
		ProductName:        p.Name,
		ProductDescription: p.Description,
		ProductIndex:       idx,
		CampaignMessage:    b.CampaignMessage,
		TargetAudience:     b.TargetAudience,
		TargetRegion:       b.PrimaryRegion(),
		BrandColors:        b.BrandColors,
	})
}
