package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("id-%d", s.n.Add(1)), nil
}

func TestProfileStoreUpsertKeepsExistingURLs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewProfileStore(&seqIDs{})
	first, err := store.UpsertURLs(ctx, "user-1", crawler.ProfileURLs{GitHubURL: "https://github.com/octo"})
	require.NoError(t, err)
	require.Equal(t, "id-1", first.ID)
	require.False(t, first.RawData.Has(crawler.SourceGitHub))

	second, err := store.UpsertURLs(ctx, "user-1", crawler.ProfileURLs{LinkedInURL: "https://linkedin.com/in/octo"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "https://github.com/octo", second.GitHubURL)
	require.Equal(t, "https://linkedin.com/in/octo", second.LinkedInURL)
}

func TestProfileStorePerFieldUpdates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewProfileStore(&seqIDs{})
	profile, err := store.UpsertURLs(ctx, "user-1", crawler.ProfileURLs{GitHubURL: "https://github.com/octo"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, store.SaveSourceData(ctx, profile.ID, crawler.SourceGitHub, json.RawMessage(`{"username":"octo"}`)))
		assert.NoError(t, store.MarkProcessed(ctx, profile.ID, crawler.SourceGitHub))
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, store.SaveSourceData(ctx, profile.ID, crawler.SourceLinkedIn, json.RawMessage(`{"name":"Octo"}`)))
		assert.NoError(t, store.MarkProcessed(ctx, profile.ID, crawler.SourceLinkedIn))
	}()
	wg.Wait()

	got, err := store.GetProfileByID(ctx, profile.ID)
	require.NoError(t, err)
	require.True(t, got.GitHubProcessed)
	require.True(t, got.LinkedInProcessed)
	require.JSONEq(t, `{"username":"octo"}`, string(got.RawData.GitHub))
	require.JSONEq(t, `{"name":"Octo"}`, string(got.RawData.LinkedIn))

	require.ErrorIs(t, store.MarkProcessed(ctx, "missing", crawler.SourceGitHub), crawler.ErrNotFound)
	require.ErrorIs(t, store.MarkProcessed(ctx, profile.ID, "myspace"), crawler.ErrValidation)
}

func TestProfileStoreAggregationGuard(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewProfileStore(&seqIDs{})
	_, err := store.UpsertURLs(ctx, "user-1", crawler.ProfileURLs{GitHubURL: "https://github.com/octo"})
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := store.TryTriggerAggregation(ctx, "user-1")
			assert.NoError(t, err)
			if won {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, wins.Load())

	require.NoError(t, store.ReleaseAggregation(ctx, "user-1"))
	won, err := store.TryTriggerAggregation(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, won)

	_, err = store.UpsertURLs(ctx, "user-1", crawler.ProfileURLs{LinkedInURL: "https://linkedin.com/in/octo"})
	require.NoError(t, err)
	got, err := store.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, got.AggregationTriggered)

	_, err = store.TryTriggerAggregation(ctx, "nobody")
	require.ErrorIs(t, err, crawler.ErrNotFound)
}
