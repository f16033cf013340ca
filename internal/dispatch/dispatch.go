// Package dispatch models the fire-and-forget work dispatch between pipeline
// stages. A stage hands a task to a Dispatcher and moves on; no result is
// awaited. Delivery is at-least-once, so every receiving stage merges its
// manifest contribution idempotently.
package dispatch

import "context"

// GenerateTask asks the image acquisition worker to produce a base image for
// one product. Field names match the wire payload exchanged between workers.
type GenerateTask struct {
	CampaignID         string   `json:"campaign_id"`
	ProductName        string   `json:"product_name"`
	ProductDescription string   `json:"product_description"`
	ProductIndex       int      `json:"product_index"`
	CampaignMessage    string   `json:"campaign_message"`
	TargetAudience     string   `json:"target_audience"`
	TargetRegion       string   `json:"target_region"`
	BrandColors        []string `json:"brand_colors"`
}

// VariantsTask asks the variant worker to derive the platform catalog from
// one base image. ImageSource is "generated" or "existing" and determines the
// processing cost the worker records.
type VariantsTask struct {
	CampaignID      string   `json:"campaign_id"`
	ProductName     string   `json:"product_name"`
	ProductIndex    int      `json:"product_index"`
	ImageKey        string   `json:"image_key"`
	ImageSource     string   `json:"image_source"`
	CampaignMessage string   `json:"campaign_message"`
	BrandColors     []string `json:"brand_colors"`
}

// Dispatcher sends tasks to downstream workers without awaiting results.
type Dispatcher interface {
	DispatchGenerate(ctx context.Context, task GenerateTask) error
	DispatchVariants(ctx context.Context, task VariantsTask) error
}
