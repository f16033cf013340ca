package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"adforge/internal/blob"
)

// ErrConflict is returned when a merge could not be applied within the retry
// bound because concurrent writers kept invalidating the version token.
var ErrConflict = errors.New("manifest: merge conflict unresolved")

const (
	defaultMergeAttempts = 8
	conflictDelayBase    = 10 * time.Millisecond
	conflictDelayJitter  = 25 * time.Millisecond
)

// Store persists manifests through a conditional blob store. Updates follow a
// compare-and-swap discipline: read the document with its version token,
// apply the merge, write back guarded on the token, and retry the whole merge
// when another writer got there first. The stored document is always complete
// JSON, so a concurrent dashboard reader never observes a torn manifest.
type Store struct {
	blobs    blob.ConditionalStore
	log      *zap.Logger
	attempts int
	now      func() time.Time
}

// NewStore creates a manifest store over the given blob store.
func NewStore(blobs blob.ConditionalStore, logger *zap.Logger) *Store {
	return &Store{
		blobs:    blobs,
		log:      logger.Named("manifest"),
		attempts: defaultMergeAttempts,
		now:      time.Now,
	}
}

// Create writes the initial manifest for a campaign. The write is
// create-only: a second intake of the same campaign identity fails rather
// than clobbering in-flight state.
func (s *Store) Create(ctx context.Context, m *Manifest) error {
	data, err := marshal(m)
	if err != nil {
		return err
	}
	if _, err := s.blobs.PutIf(ctx, Key(m.CampaignID), jsonObject(data), ""); err != nil {
		return fmt.Errorf("manifest: create %s: %w", m.CampaignID, err)
	}
	s.log.Info("manifest created",
		zap.String("campaign_id", m.CampaignID),
		zap.Int("expected_products", m.ExpectedProducts))
	return nil
}

// Get loads a campaign's manifest.
func (s *Store) Get(ctx context.Context, campaignID string) (*Manifest, error) {
	data, err := s.blobs.Get(ctx, Key(campaignID))
	if err != nil {
		return nil, fmt.Errorf("manifest: load %s: %w", campaignID, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode %s: %w", campaignID, err)
	}
	return &m, nil
}

// Update applies merge to the campaign's manifest under the compare-and-swap
// protocol and returns the document as written. The aggregate fields (total
// cost, completion status) are re-derived after every merge, inside the same
// guarded write.
//
// merge must be safe to re-run: it may be applied to a fresher copy of the
// document after a version conflict.
func (s *Store) Update(ctx context.Context, campaignID string, merge func(*Manifest) error) (*Manifest, error) {
	key := Key(campaignID)
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			delay := conflictDelayBase + time.Duration(rand.Int63n(int64(conflictDelayJitter)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		data, version, err := s.blobs.GetVersioned(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("manifest: load %s: %w", campaignID, err)
		}
		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("manifest: decode %s: %w", campaignID, err)
		}

		if err := merge(&m); err != nil {
			return nil, err
		}
		wasProcessing := m.Status == StatusProcessing
		m.refresh(s.now().UTC())

		out, err := marshal(&m)
		if err != nil {
			return nil, err
		}
		if _, err := s.blobs.PutIf(ctx, key, jsonObject(out), version); err != nil {
			if errors.Is(err, blob.ErrPreconditionFailed) {
				s.log.Debug("manifest merge conflict, retrying",
					zap.String("campaign_id", campaignID),
					zap.Int("attempt", attempt+1))
				continue
			}
			return nil, fmt.Errorf("manifest: write %s: %w", campaignID, err)
		}

		if wasProcessing && m.Status == StatusCompleted {
			s.log.Info("campaign completed",
				zap.String("campaign_id", campaignID),
				zap.Float64("total_cost", m.TotalCost),
				zap.Int("products", len(m.Products)))
		}
		return &m, nil
	}
	return nil, fmt.Errorf("manifest: update %s after %d attempts: %w", campaignID, s.attempts, ErrConflict)
}

func marshal(m *Manifest) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("manifest: encode %s: %w", m.CampaignID, err)
	}
	return data, nil
}

func jsonObject(data []byte) blob.Object {
	return blob.Object{Data: data, ContentType: "application/json"}
}
