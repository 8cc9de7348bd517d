package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/campus-events/internal/persistence"
)

const postColumns = `id, shortcode, profile_id, caption_path, posted_at, processed, created_at`

// PostRepository implements persistence.PostRepository using SQLite
type PostRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
	now    func() time.Time
}

// NewPostRepository creates a new SQLite post repository
func NewPostRepository(pool *ConnectionPool) *PostRepository {
	return &PostRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
		now:    time.Now,
	}
}

// CreatePost stores a post and its image paths in order.
func (r *PostRepository) CreatePost(ctx context.Context, post persistence.Post) error {
	if post.ID == "" || post.Shortcode == "" || post.ProfileID == "" {
		return persistence.ErrConstraintViolation
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = r.now().UTC()
	}

	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO posts (`+postColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`,
				post.ID,
				post.Shortcode,
				post.ProfileID,
				post.CaptionPath,
				formatTime(post.PostedAt),
				post.Processed,
				formatTime(post.CreatedAt),
			); err != nil {
				return r.mapper.MapError(err)
			}
			for i, path := range post.ImagePaths {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO post_images (id, post_id, position, file_path) VALUES (?, ?, ?, ?)
				`, fmt.Sprintf("%s-%d", post.ID, i), post.ID, i, path); err != nil {
					return r.mapper.MapError(err)
				}
			}
			return nil
		})
	})
}

// PostExists reports whether a post with shortcode has been stored.
func (r *PostRepository) PostExists(ctx context.Context, shortcode string) (bool, error) {
	var count int
	err := r.helper.QueryRow(ctx, `SELECT COUNT(*) FROM posts WHERE shortcode = ?`, strings.TrimSpace(shortcode)).Scan(&count)
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	return count > 0, nil
}

// ListUnprocessedPosts returns posts awaiting extraction, oldest first.
func (r *PostRepository) ListUnprocessedPosts(ctx context.Context, limit int) ([]persistence.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE processed = 0 ORDER BY posted_at ASC, id ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var posts []persistence.Post
	for rows.Next() {
		post, err := r.scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	rows.Close()

	for i := range posts {
		if posts[i].ImagePaths, err = r.imagePaths(ctx, posts[i].ID); err != nil {
			return nil, err
		}
	}
	return posts, nil
}

// MarkPostProcessed flags a post so it is not extracted again.
func (r *PostRepository) MarkPostProcessed(ctx context.Context, id string) error {
	return r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, `UPDATE posts SET processed = 1 WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireAffected(result)
	})
}

// ResetProcessed queues every post for extraction again and reports how many
// were flagged.
func (r *PostRepository) ResetProcessed(ctx context.Context) (int64, error) {
	var affected int64
	err := r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, `UPDATE posts SET processed = 0 WHERE processed = 1`)
		if err != nil {
			return r.mapper.MapError(err)
		}
		affected, err = result.RowsAffected()
		return err
	})
	return affected, err
}

func (r *PostRepository) imagePaths(ctx context.Context, postID string) ([]string, error) {
	rows, err := r.helper.Query(ctx, `SELECT file_path FROM post_images WHERE post_id = ? ORDER BY position ASC`, postID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, r.mapper.MapError(err)
		}
		paths = append(paths, path)
	}
	return paths, r.mapper.MapError(rows.Err())
}

func (r *PostRepository) scanPost(row scanner) (persistence.Post, error) {
	var post persistence.Post
	var postedAt, createdAt string
	err := row.Scan(
		&post.ID,
		&post.Shortcode,
		&post.ProfileID,
		&post.CaptionPath,
		&postedAt,
		&post.Processed,
		&createdAt,
	)
	if err != nil {
		return persistence.Post{}, r.mapper.MapError(err)
	}
	if post.PostedAt, err = parseTime(postedAt); err != nil {
		return persistence.Post{}, fmt.Errorf("failed to parse posted_at: %w", err)
	}
	if post.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Post{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return post, nil
}
