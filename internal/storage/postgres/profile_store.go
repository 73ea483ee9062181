package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

var profileColumns = []string{
	"id",
	"user_id",
	"github_url",
	"linkedin_url",
	"raw_data",
	"github_processed",
	"linkedin_processed",
	"aggregation_triggered",
	"created_at",
	"updated_at",
}

// ProfileStore persists student profiles. Each method updates only the
// columns it owns so concurrent source workers never overwrite each other.
type ProfileStore struct {
	db  querier
	ids crawler.IDGenerator
	now func() time.Time
}

// NewProfileStore constructs a ProfileStore on db.
func NewProfileStore(db querier, ids crawler.IDGenerator) (*ProfileStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	return &ProfileStore{db: db, ids: ids, now: utcNow}, nil
}

// UpsertURLs inserts the profile or merges non-empty URLs into it, clearing
// the aggregation guard.
func (s *ProfileStore) UpsertURLs(
	ctx context.Context,
	userID string,
	urls crawler.ProfileURLs,
) (crawler.StudentProfile, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return crawler.StudentProfile{}, fmt.Errorf("generate profile id: %w", err)
	}
	now := s.now()
	query, args, err := psql.Insert("student_profiles").
		Columns("id", "user_id", "github_url", "linkedin_url", "created_at", "updated_at").
		Values(id, userID, urls.GitHubURL, urls.LinkedInURL, now, now).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
	github_url = COALESCE(NULLIF(EXCLUDED.github_url, ''), student_profiles.github_url),
	linkedin_url = COALESCE(NULLIF(EXCLUDED.linkedin_url, ''), student_profiles.linkedin_url),
	aggregation_triggered = FALSE,
	updated_at = EXCLUDED.updated_at
RETURNING ` + strings.Join(profileColumns, ", ")).
		ToSql()
	if err != nil {
		return crawler.StudentProfile{}, fmt.Errorf("build upsert profile: %w", err)
	}
	profile, err := scanProfile(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		return crawler.StudentProfile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return profile, nil
}

// GetProfile loads the profile owned by userID.
func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (crawler.StudentProfile, error) {
	return s.getBy(ctx, "user_id", userID)
}

// GetProfileByID loads a profile by its id.
func (s *ProfileStore) GetProfileByID(ctx context.Context, profileID string) (crawler.StudentProfile, error) {
	return s.getBy(ctx, "id", profileID)
}

func (s *ProfileStore) getBy(ctx context.Context, column, value string) (crawler.StudentProfile, error) {
	query, args, err := psql.Select(profileColumns...).
		From("student_profiles").
		Where(sq.Eq{column: value}).
		ToSql()
	if err != nil {
		return crawler.StudentProfile{}, fmt.Errorf("build select profile: %w", err)
	}
	profile, err := scanProfile(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.StudentProfile{}, fmt.Errorf("profile %s=%s: %w", column, value, crawler.ErrNotFound)
		}
		return crawler.StudentProfile{}, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

// SaveSourceData replaces the raw_data slot for source.
func (s *ProfileStore) SaveSourceData(
	ctx context.Context,
	profileID string,
	source crawler.SourceType,
	data json.RawMessage,
) error {
	if !source.Valid() {
		return fmt.Errorf("unknown source %q: %w", source, crawler.ErrValidation)
	}
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	query, args, err := psql.Update("student_profiles").
		Set("raw_data", sq.Expr("jsonb_set(raw_data, ?::text[], ?::jsonb, true)", []string{string(source)}, string(data))).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": profileID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build save source data: %w", err)
	}
	return s.execOne(ctx, "save source data", profileID, query, args)
}

// MarkProcessed sets the completion flag owned by source.
func (s *ProfileStore) MarkProcessed(ctx context.Context, profileID string, source crawler.SourceType) error {
	column, err := processedColumn(source)
	if err != nil {
		return err
	}
	query, args, err := psql.Update("student_profiles").
		Set(column, true).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": profileID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark processed: %w", err)
	}
	return s.execOne(ctx, "mark processed", profileID, query, args)
}

// TryTriggerAggregation flips aggregation_triggered false->true and reports
// whether this call performed the flip.
func (s *ProfileStore) TryTriggerAggregation(ctx context.Context, userID string) (bool, error) {
	query, args, err := psql.Update("student_profiles").
		Set("aggregation_triggered", true).
		Set("updated_at", s.now()).
		Where(sq.Eq{"user_id": userID, "aggregation_triggered": false}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build trigger aggregation: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("trigger aggregation: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	err = s.db.QueryRow(ctx, "SELECT TRUE FROM student_profiles WHERE user_id = $1", userID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("profile for user %s: %w", userID, crawler.ErrNotFound)
		}
		return false, fmt.Errorf("load profile: %w", err)
	}
	return false, nil
}

// ReleaseAggregation clears aggregation_triggered.
func (s *ProfileStore) ReleaseAggregation(ctx context.Context, userID string) error {
	query, args, err := psql.Update("student_profiles").
		Set("aggregation_triggered", false).
		Set("updated_at", s.now()).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build release aggregation: %w", err)
	}
	return s.execOne(ctx, "release aggregation", userID, query, args)
}

func (s *ProfileStore) execOne(ctx context.Context, op, key, query string, args []any) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", op, key, crawler.ErrNotFound)
	}
	return nil
}

func processedColumn(source crawler.SourceType) (string, error) {
	switch source {
	case crawler.SourceGitHub:
		return "github_processed", nil
	case crawler.SourceLinkedIn:
		return "linkedin_processed", nil
	default:
		return "", fmt.Errorf("unknown source %q: %w", source, crawler.ErrValidation)
	}
}

func scanProfile(row pgx.Row) (crawler.StudentProfile, error) {
	var (
		p   crawler.StudentProfile
		raw []byte
	)
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.GitHubURL,
		&p.LinkedInURL,
		&raw,
		&p.GitHubProcessed,
		&p.LinkedInProcessed,
		&p.AggregationTriggered,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return crawler.StudentProfile{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p.RawData); err != nil {
			return crawler.StudentProfile{}, fmt.Errorf("decode raw_data: %w", err)
		}
	}
	return p, nil
}
