// Package brief defines the campaign brief input document and its validation
// rules. A brief that fails validation is rejected terminally: no manifest is
// created and no worker is dispatched for it.
package brief

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidBrief marks a brief that failed schema validation. The wrapped
// message carries the first violation found.
var ErrInvalidBrief = errors.New("invalid campaign brief")

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Product is one product entry in a brief. ExistingAssets, when set, names an
// asset under the existing-assets namespace that may be reused instead of
// generating a new base image.
type Product struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	ExistingAssets string `json:"existing_assets,omitempty"`
}

// Brief is a campaign request as submitted to the input location.
type Brief struct {
	CampaignName    string    `json:"campaign_name"`
	CampaignMessage string    `json:"campaign_message"`
	TargetAudience  string    `json:"target_audience"`
	BrandColors     []string  `json:"brand_colors,omitempty"`
	TargetRegions   []string  `json:"target_regions"`
	Products        []Product `json:"products"`
}

// Parse decodes, validates, and applies defaults to a brief document.
func Parse(data []byte) (*Brief, error) {
	var b Brief
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON: %v", ErrInvalidBrief, err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	b.applyDefaults()
	return &b, nil
}

// Validate checks the brief against the intake schema and returns the first
// violation wrapped in ErrInvalidBrief.
func (b *Brief) Validate() error {
	if strings.TrimSpace(b.CampaignName) == "" {
		return violation("campaign_name is required")
	}
	if strings.TrimSpace(b.CampaignMessage) == "" {
		return violation("campaign_message is required")
	}
	if strings.TrimSpace(b.TargetAudience) == "" {
		return violation("target_audience is required")
	}
	if len(b.TargetRegions) == 0 {
		return violation("target_regions must have at least 1 entry")
	}
	for i, r := range b.TargetRegions {
		if strings.TrimSpace(r) == "" {
			return violation(fmt.Sprintf("target_regions[%d] is empty", i))
		}
	}
	for i, c := range b.BrandColors {
		if !hexColor.MatchString(c) {
			return violation(fmt.Sprintf("brand_colors[%d] %q does not match #RRGGBB", i, c))
		}
	}
	if len(b.Products) < 2 {
		return violation(fmt.Sprintf("products must have at least 2 entries, got %d", len(b.Products)))
	}
	for i, p := range b.Products {
		if strings.TrimSpace(p.Name) == "" {
			return violation(fmt.Sprintf("products[%d].name is required", i))
		}
		if strings.TrimSpace(p.Description) == "" {
			return violation(fmt.Sprintf("products[%d].description is required", i))
		}
	}
	return nil
}

// applyDefaults fills the optional fields the downstream stages expect to be
// populated.
func (b *Brief) applyDefaults() {
	if len(b.BrandColors) == 0 {
		b.BrandColors = []string{"#000000", "#FFFFFF"}
	}
}

// PrimaryColor returns the first brand color, or white when none is set.
func (b *Brief) PrimaryColor() string {
	if len(b.BrandColors) == 0 {
		return "#FFFFFF"
	}
	return b.BrandColors[0]
}

// PrimaryRegion returns the first target region.
func (b *Brief) PrimaryRegion() string {
	if len(b.TargetRegions) == 0 {
		return "US"
	}
	return b.TargetRegions[0]
}

func violation(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidBrief, msg)
}
