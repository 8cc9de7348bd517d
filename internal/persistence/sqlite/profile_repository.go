package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/campus-events/internal/persistence"
)

const profileColumns = `id, username, full_name, bio, followers, is_verified, is_private, media_count,
	profile_pic_url, last_seen_shortcode, last_updated, created_at`

// ProfileRepository implements persistence.ProfileRepository using SQLite
type ProfileRepository struct {
	helper *QueryHelper
	mapper *ErrorMapper
	now    func() time.Time
}

// NewProfileRepository creates a new SQLite profile repository
func NewProfileRepository(pool *ConnectionPool) *ProfileRepository {
	return &ProfileRepository{
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		now:    time.Now,
	}
}

// ListProfiles returns all tracked profiles ordered by username.
func (r *ProfileRepository) ListProfiles(ctx context.Context) ([]persistence.Profile, error) {
	rows, err := r.helper.Query(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY username ASC`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var profiles []persistence.Profile
	for rows.Next() {
		profile, err := r.scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return profiles, nil
}

// GetProfile retrieves a profile by ID.
func (r *ProfileRepository) GetProfile(ctx context.Context, id string) (persistence.Profile, error) {
	if id == "" {
		return persistence.Profile{}, persistence.ErrNotFound
	}
	return r.scanProfile(r.helper.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id))
}

// UpsertProfile inserts a profile or refreshes the scraped metadata of an
// existing one. CreatedAt is only written on insert.
func (r *ProfileRepository) UpsertProfile(ctx context.Context, profile persistence.Profile) error {
	profile.Username = strings.TrimPrefix(strings.TrimSpace(profile.Username), "@")
	if profile.ID == "" || profile.Username == "" {
		return persistence.ErrConstraintViolation
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = r.now().UTC()
	}

	_, err := r.helper.Exec(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			full_name = excluded.full_name,
			bio = excluded.bio,
			followers = excluded.followers,
			is_verified = excluded.is_verified,
			is_private = excluded.is_private,
			media_count = excluded.media_count,
			profile_pic_url = excluded.profile_pic_url,
			last_seen_shortcode = excluded.last_seen_shortcode,
			last_updated = excluded.last_updated
	`,
		profile.ID,
		profile.Username,
		profile.FullName,
		profile.Bio,
		profile.Followers,
		profile.IsVerified,
		profile.IsPrivate,
		profile.MediaCount,
		profile.ProfilePicURL,
		profile.LastSeenShortcode,
		nullableTime(profile.LastUpdated),
		formatTime(profile.CreatedAt),
	)
	return r.mapper.MapError(err)
}

func (r *ProfileRepository) scanProfile(row scanner) (persistence.Profile, error) {
	var profile persistence.Profile
	var lastUpdated sql.NullString
	var createdAt string
	err := row.Scan(
		&profile.ID,
		&profile.Username,
		&profile.FullName,
		&profile.Bio,
		&profile.Followers,
		&profile.IsVerified,
		&profile.IsPrivate,
		&profile.MediaCount,
		&profile.ProfilePicURL,
		&profile.LastSeenShortcode,
		&lastUpdated,
		&createdAt,
	)
	if err != nil {
		return persistence.Profile{}, r.mapper.MapError(err)
	}
	if profile.LastUpdated, err = parseNullableTime(lastUpdated); err != nil {
		return persistence.Profile{}, fmt.Errorf("failed to parse last_updated: %w", err)
	}
	if profile.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Profile{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return profile, nil
}
