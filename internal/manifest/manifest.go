// Package manifest implements the shared per-campaign state document and the
// aggregation protocol that independently scheduled workers converge on.
//
// The manifest is the only shared mutable resource in the pipeline. Every
// stage merges its contribution through Store.Update, which wraps the merge
// in a versioned read / conditional write loop so concurrent merges never
// lose each other's updates. Merges are idempotent per product and stage, so
// at-least-once worker invocation cannot double-count costs.
package manifest

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Status is the campaign-level lifecycle status.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
)

// Source identifies how a product's base image was obtained.
type Source string

const (
	SourceGenerated Source = "generated"
	SourceExisting  Source = "existing"
)

// Variant is one platform-sized derived image. Immutable once written.
type Variant struct {
	Platform string `json:"platform"`
	Key      string `json:"key"`
}

// ProductRecord tracks one product's progress through the pipeline. Records
// are keyed by Index, which is unique and stable across all stages.
//
// A record moves through an implicit lifecycle: registered (index and name
// only), image-acquired (image key, source, and generation cost), then
// variants-complete (variant list, processing cost, completion timestamp).
type ProductRecord struct {
	Index          int        `json:"index"`
	Name           string     `json:"name"`
	ImageKey       string     `json:"image_key,omitempty"`
	ImageSource    Source     `json:"image_source,omitempty"`
	Cost           float64    `json:"cost,omitempty"`
	Model          string     `json:"model,omitempty"`
	Variants       []Variant  `json:"variants,omitempty"`
	VariantsCount  int        `json:"variants_count,omitempty"`
	ProcessingCost float64    `json:"processing_cost,omitempty"`
	Status         string     `json:"status,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Manifest is the shared per-campaign aggregate document. It is the sole
// source of truth for any reporting surface, so it is always written whole
// and is valid JSON at every intermediate state.
type Manifest struct {
	CampaignID       string          `json:"campaign_id"`
	CampaignName     string          `json:"campaign_name"`
	CampaignMessage  string          `json:"campaign_message"`
	TargetAudience   string          `json:"target_audience"`
	BrandColors      []string        `json:"brand_colors"`
	TargetRegions    []string        `json:"target_regions"`
	Status           Status          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	ExpectedProducts int             `json:"expected_products"`
	TotalCost        float64         `json:"total_cost"`
	Products         []ProductRecord `json:"products"`
}

// find returns the record with the given product index, or nil.
func (m *Manifest) find(index int) *ProductRecord {
	for i := range m.Products {
		if m.Products[i].Index == index {
			return &m.Products[i]
		}
	}
	return nil
}

// Product returns a copy of the record with the given index.
func (m *Manifest) Product(index int) (ProductRecord, bool) {
	if rec := m.find(index); rec != nil {
		return *rec, true
	}
	return ProductRecord{}, false
}

// Register adds a registered-stage record for index. Registering an index
// that already exists is a no-op, keeping indices unique under redelivery.
func (m *Manifest) Register(index int, name string) bool {
	if m.find(index) != nil {
		return false
	}
	m.Products = append(m.Products, ProductRecord{
		Index:  index,
		Name:   name,
		Status: "processing",
	})
	return true
}

// RecordImage merges an image-acquired update into the record for index.
// The merge locates by index and never appends a duplicate; a record that
// already holds an image key is left untouched so a retried acquisition
// worker cannot double-bill. Returns false when the update was a no-op.
func (m *Manifest) RecordImage(index int, key string, source Source, cost float64, model string) bool {
	rec := m.find(index)
	if rec == nil || rec.ImageKey != "" {
		return false
	}
	rec.ImageKey = key
	rec.ImageSource = source
	rec.Cost = cost
	rec.Model = model
	return true
}

// RecordVariants merges the terminal variants-complete update into the record
// for index. A record that already holds variants is left untouched. The
// image key and source are filled in when the acquisition stage was skipped
// (existing-asset route). Returns false when the update was a no-op.
func (m *Manifest) RecordVariants(index int, imageKey string, source Source, variants []Variant, processingCost float64, at time.Time) bool {
	rec := m.find(index)
	if rec == nil || len(rec.Variants) > 0 {
		return false
	}
	if rec.ImageKey == "" {
		rec.ImageKey = imageKey
		rec.ImageSource = source
	}
	rec.Variants = variants
	rec.VariantsCount = len(variants)
	rec.ProcessingCost = processingCost
	rec.Status = "completed"
	completed := at
	rec.CompletedAt = &completed
	return true
}

// CompletedProducts counts records bearing a variant list.
func (m *Manifest) CompletedProducts() int {
	n := 0
	for i := range m.Products {
		if len(m.Products[i].Variants) > 0 {
			n++
		}
	}
	return n
}

// refresh re-derives the aggregate fields from the product records: the total
// cost is always the sum of per-record stage contributions, and the campaign
// flips to completed the moment every expected product bears variants. Both
// are computed fresh on every merge rather than incrementally, which makes
// the aggregation self-correcting regardless of arrival order.
func (m *Manifest) refresh(now time.Time) {
	total := 0.0
	for i := range m.Products {
		total += m.Products[i].Cost + m.Products[i].ProcessingCost
	}
	m.TotalCost = roundCost(total)

	if m.Status != StatusCompleted && m.ExpectedProducts > 0 &&
		m.CompletedProducts() == m.ExpectedProducts {
		m.Status = StatusCompleted
		completed := now
		m.CompletedAt = &completed
	}
}

// roundCost trims float summation noise to a tenth of a cent.
func roundCost(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// slugMaxLen caps slugs so storage keys stay readable.
const slugMaxLen = 30

// Slug sanitizes text for use in identifiers and storage keys. The length cap
// counts runes so a multi-byte name is never cut mid-character.
func Slug(text string) string {
	s := strings.ToLower(text)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	if r := []rune(s); len(r) > slugMaxLen {
		s = string(r[:slugMaxLen])
	}
	return s
}

// NewCampaignID derives the campaign identity from the sanitized campaign
// name and the intake timestamp, unique per intake event.
func NewCampaignID(campaignName string, at time.Time) string {
	return fmt.Sprintf("%s-%s", Slug(campaignName), at.UTC().Format("20060102-150405"))
}

// InputPrefix is the namespace where campaign briefs are submitted.
const InputPrefix = "input/campaign-briefs/"

// Key returns the storage key of a campaign's manifest document.
func Key(campaignID string) string {
	return fmt.Sprintf("output/%s/manifest.json", campaignID)
}

// GeneratedImageKey returns the storage key for a freshly generated base
// image.
func GeneratedImageKey(campaignID, productName string, index int) string {
	return fmt.Sprintf("output/%s/generated/%s-%d.png", campaignID, Slug(productName), index)
}

// VariantKey returns the storage key for one platform variant.
func VariantKey(campaignID, productName string, width, height int, platform string) string {
	return fmt.Sprintf("output/%s/%s/aspect-ratios/%dx%d/%s.jpg",
		campaignID, Slug(productName), width, height, platform)
}

// ExistingAssetKey resolves an existing-asset reference to its storage key.
func ExistingAssetKey(ref string) string {
	return fmt.Sprintf("existing-assets/%sproduct.png", ref)
}
