package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

// ProfileStore is an in-memory crawler.ProfileStore. Every mutation touches
// only the fields it names, under one lock.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*crawler.StudentProfile
	byUser   map[string]string
	ids      crawler.IDGenerator
	now      func() time.Time
}

// NewProfileStore constructs a ProfileStore that assigns ids with ids.
func NewProfileStore(ids crawler.IDGenerator) *ProfileStore {
	return &ProfileStore{
		profiles: make(map[string]*crawler.StudentProfile),
		byUser:   make(map[string]string),
		ids:      ids,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// UpsertURLs creates the profile if needed and records non-empty URLs.
func (s *ProfileStore) UpsertURLs(
	_ context.Context,
	userID string,
	urls crawler.ProfileURLs,
) (crawler.StudentProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	profile, ok := s.lookupUser(userID)
	if !ok {
		id, err := s.ids.NewID()
		if err != nil {
			return crawler.StudentProfile{}, fmt.Errorf("generate profile id: %w", err)
		}
		profile = &crawler.StudentProfile{
			ID:        id,
			UserID:    userID,
			RawData:   emptyRawData(),
			CreatedAt: now,
		}
		s.profiles[id] = profile
		s.byUser[userID] = id
	}
	if urls.GitHubURL != "" {
		profile.GitHubURL = urls.GitHubURL
	}
	if urls.LinkedInURL != "" {
		profile.LinkedInURL = urls.LinkedInURL
	}
	profile.AggregationTriggered = false
	profile.UpdatedAt = now
	return cloneProfile(*profile), nil
}

// GetProfile returns the profile owned by userID.
func (s *ProfileStore) GetProfile(_ context.Context, userID string) (crawler.StudentProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.lookupUser(userID)
	if !ok {
		return crawler.StudentProfile{}, fmt.Errorf("profile for user %s: %w", userID, crawler.ErrNotFound)
	}
	return cloneProfile(*profile), nil
}

// GetProfileByID returns a profile by its own id.
func (s *ProfileStore) GetProfileByID(_ context.Context, profileID string) (crawler.StudentProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[profileID]
	if !ok {
		return crawler.StudentProfile{}, fmt.Errorf("profile %s: %w", profileID, crawler.ErrNotFound)
	}
	return cloneProfile(*profile), nil
}

// SaveSourceData replaces one source slot.
func (s *ProfileStore) SaveSourceData(
	_ context.Context,
	profileID string,
	source crawler.SourceType,
	data json.RawMessage,
) error {
	return s.mutate(profileID, func(p *crawler.StudentProfile) error {
		copied := append(json.RawMessage(nil), data...)
		switch source {
		case crawler.SourceGitHub:
			p.RawData.GitHub = copied
		case crawler.SourceLinkedIn:
			p.RawData.LinkedIn = copied
		default:
			return fmt.Errorf("unknown source %q: %w", source, crawler.ErrValidation)
		}
		return nil
	})
}

// MarkProcessed sets source's completion flag.
func (s *ProfileStore) MarkProcessed(_ context.Context, profileID string, source crawler.SourceType) error {
	return s.mutate(profileID, func(p *crawler.StudentProfile) error {
		switch source {
		case crawler.SourceGitHub:
			p.GitHubProcessed = true
		case crawler.SourceLinkedIn:
			p.LinkedInProcessed = true
		default:
			return fmt.Errorf("unknown source %q: %w", source, crawler.ErrValidation)
		}
		return nil
	})
}

// TryTriggerAggregation flips the aggregation guard if it is unset.
func (s *ProfileStore) TryTriggerAggregation(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.lookupUser(userID)
	if !ok {
		return false, fmt.Errorf("profile for user %s: %w", userID, crawler.ErrNotFound)
	}
	if profile.AggregationTriggered {
		return false, nil
	}
	profile.AggregationTriggered = true
	profile.UpdatedAt = s.now()
	return true, nil
}

// ReleaseAggregation clears the aggregation guard.
func (s *ProfileStore) ReleaseAggregation(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.lookupUser(userID)
	if !ok {
		return fmt.Errorf("profile for user %s: %w", userID, crawler.ErrNotFound)
	}
	profile.AggregationTriggered = false
	profile.UpdatedAt = s.now()
	return nil
}

func (s *ProfileStore) lookupUser(userID string) (*crawler.StudentProfile, bool) {
	id, ok := s.byUser[userID]
	if !ok {
		return nil, false
	}
	profile, ok := s.profiles[id]
	return profile, ok
}

func (s *ProfileStore) mutate(profileID string, fn func(*crawler.StudentProfile) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[profileID]
	if !ok {
		return fmt.Errorf("profile %s: %w", profileID, crawler.ErrNotFound)
	}
	if err := fn(profile); err != nil {
		return err
	}
	profile.UpdatedAt = s.now()
	return nil
}

func emptyRawData() crawler.RawData {
	return crawler.RawData{GitHub: json.RawMessage(`{}`), LinkedIn: json.RawMessage(`{}`)}
}

func cloneProfile(p crawler.StudentProfile) crawler.StudentProfile {
	p.RawData.GitHub = append(json.RawMessage(nil), p.RawData.GitHub...)
	p.RawData.LinkedIn = append(json.RawMessage(nil), p.RawData.LinkedIn...)
	return p
}
