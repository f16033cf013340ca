package intake

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"adforge/internal/blob"
	"adforge/internal/brief"
	"adforge/internal/dispatch"
	"adforge/internal/manifest"
	"adforge/internal/queue"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	generate []dispatch.GenerateTask
	variants []dispatch.VariantsTask
}

func (d *fakeDispatcher) DispatchGenerate(ctx context.Context, task dispatch.GenerateTask) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.generate = append(d.generate, task)
	return nil
}

func (d *fakeDispatcher) DispatchVariants(ctx context.Context, task dispatch.VariantsTask) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.variants = append(d.variants, task)
	return nil
}

func newIntakeFixture(t *testing.T) (*Handler, *blob.Memory, *manifest.Store, *fakeDispatcher) {
	t.Helper()
	mem := blob.NewMemory()
	manifests := manifest.NewStore(mem, zaptest.NewLogger(t))
	disp := &fakeDispatcher{}
	h := NewHandler(mem, manifests, disp, zaptest.NewLogger(t))
	h.now = func() time.Time { return time.Date(2026, 8, 30, 14, 5, 9, 0, time.UTC) }
	return h, mem, manifests, disp
}

func putBrief(t *testing.T, mem *blob.Memory, key string, b map[string]any) {
	t.Helper()
	data, err := json.Marshal(b)
	require.NoError(t, err)
	require.NoError(t, mem.Put(context.Background(), key, blob.Object{
		Data:        data,
		ContentType: "application/json",
	}))
}

func sampleBrief() map[string]any {
	return map[string]any{
		"campaign_name":    "Summer Launch",
		"campaign_message": "Freshness you can feel",
		"target_audience":  "young professionals",
		"brand_colors":     []string{"#00AACC", "#FFFFFF"},
		"target_regions":   []string{"US", "DE"},
		"products": []map[string]any{
			{"name": "Sparkling Water", "description": "Citrus sparkling water in a slim can"},
			{"name": "Cold Brew", "description": "Nitro cold brew coffee"},
		},
	}
}

func notification(key string) queue.Notification {
	return queue.Notification{ID: "msg-1", Key: key}
}

func TestHandle_CreatesManifestAndFansOut(t *testing.T) {
	h, mem, manifests, disp := newIntakeFixture(t)
	putBrief(t, mem, "input/campaign-briefs/summer.json", sampleBrief())

	id, err := h.Handle(context.Background(), notification("input/campaign-briefs/summer.json"))
	require.NoError(t, err)
	assert.Equal(t, "summer-launch-20260830-140509", id)

	m, err := manifests.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Summer Launch", m.CampaignName)
	assert.Equal(t, manifest.StatusProcessing, m.Status)
	assert.Equal(t, 2, m.ExpectedProducts)
	assert.Zero(t, m.TotalCost)
	require.Len(t, m.Products, 2)

	seen := map[int]bool{}
	for _, p := range m.Products {
		assert.False(t, seen[p.Index], "indices unique")
		seen[p.Index] = true
	}

	require.Len(t, disp.generate, 2)
	assert.Empty(t, disp.variants)

	want := dispatch.GenerateTask{
		CampaignID:         id,
		ProductName:        "Sparkling Water",
		ProductDescription: "Citrus sparkling water in a slim can",
		ProductIndex:       0,
		CampaignMessage:    "Freshness you can feel",
		TargetAudience:     "young professionals",
		TargetRegion:       "US",
		BrandColors:        []string{"#00AACC", "#FFFFFF"},
	}
	if diff := cmp.Diff(want, disp.generate[0]); diff != "" {
		t.Errorf("generate task mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, disp.generate[1].ProductIndex)
}

func TestHandle_InvalidBriefIsTerminal(t *testing.T) {
	h, mem, _, disp := newIntakeFixture(t)
	b := sampleBrief()
	b["products"] = b["products"].([]map[string]any)[:1] // below minimum
	putBrief(t, mem, "input/campaign-briefs/bad.json", b)

	_, err := h.Handle(context.Background(), notification("input/campaign-briefs/bad.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, brief.ErrInvalidBrief)

	// No campaign document, no dispatched work.
	assert.Empty(t, disp.generate)
	assert.Empty(t, disp.variants)
	for _, key := range mem.Keys() {
		assert.NotContains(t, key, "manifest.json")
	}
}

func TestHandle_MissingBriefFails(t *testing.T) {
	h, _, _, _ := newIntakeFixture(t)
	_, err := h.Handle(context.Background(), notification("input/campaign-briefs/nope.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestHandle_ExistingAssetRoutesToVariants(t *testing.T) {
	h, mem, _, disp := newIntakeFixture(t)

	b := sampleBrief()
	b["products"] = []map[string]any{
		{"name": "Sparkling Water", "description": "Citrus sparkling water", "existing_assets": "sw-"},
		{"name": "Cold Brew", "description": "Nitro cold brew coffee"},
	}
	putBrief(t, mem, "input/campaign-briefs/mixed.json", b)
	require.NoError(t, mem.Put(context.Background(), "existing-assets/sw-product.png",
		blob.Object{Data: []byte("png"), ContentType: "image/png"}))

	_, err := h.Handle(context.Background(), notification("input/campaign-briefs/mixed.json"))
	require.NoError(t, err)

	require.Len(t, disp.variants, 1)
	assert.Equal(t, "existing-assets/sw-product.png", disp.variants[0].ImageKey)
	assert.Equal(t, string(manifest.SourceExisting), disp.variants[0].ImageSource)
	assert.Equal(t, 0, disp.variants[0].ProductIndex)

	require.Len(t, disp.generate, 1)
	assert.Equal(t, 1, disp.generate[0].ProductIndex)
}

func TestHandle_MissingAssetFallsBackToGeneration(t *testing.T) {
	h, mem, _, disp := newIntakeFixture(t)

	b := sampleBrief()
	products := b["products"].([]map[string]any)
	products[0]["existing_assets"] = "gone-"
	putBrief(t, mem, "input/campaign-briefs/fallback.json", b)

	_, err := h.Handle(context.Background(), notification("input/campaign-briefs/fallback.json"))
	require.NoError(t, err)

	assert.Empty(t, disp.variants)
	require.Len(t, disp.generate, 2, "missing asset routes through generation")
}

func TestHandle_DuplicateNotificationKeepsIndicesUnique(t *testing.T) {
	// The same brief delivered twice lands on distinct campaign ids only when
	// the timestamp differs; with a frozen clock the second intake hits the
	// create-only write and fails instead of corrupting the first campaign.
	h, mem, manifests, _ := newIntakeFixture(t)
	putBrief(t, mem, "input/campaign-briefs/summer.json", sampleBrief())

	id, err := h.Handle(context.Background(), notification("input/campaign-briefs/summer.json"))
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), notification("input/campaign-briefs/summer.json"))
	require.Error(t, err)

	m, err := manifests.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, m.Products, 2)
}
