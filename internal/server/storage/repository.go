package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"reelsaver/server/internal/database"
	"reelsaver/server/internal/models"
)

// ReelRepository defines operations for accessing reels.
type ReelRepository interface {
	FindByURL(ctx context.Context, url string) (*models.Reel, error)
	Get(ctx context.Context, id int64) (*models.Reel, error)
	Insert(ctx context.Context, reel *models.Reel) (*models.Reel, error)
	List(ctx context.Context, opts models.ListOptions) ([]models.Reel, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Stats(ctx context.Context) (*models.Stats, error)
	Ping(ctx context.Context) error
}

// sqlxRepository implements ReelRepository using sqlx.
type sqlxRepository struct {
	db *database.DB
	sb squirrel.StatementBuilderType
}

// NewRepository creates a new repository instance.
func NewRepository(db *database.DB) ReelRepository {
	return &sqlxRepository{db: db, sb: db.Builder()}
}

// FindByURL returns the reel stored for url, or nil when there is none.
func (r *sqlxRepository) FindByURL(ctx context.Context, url string) (*models.Reel, error) {
	return r.getOne(ctx, squirrel.Eq{"url": url})
}

// Get returns the reel with the given id, or nil when there is none.
func (r *sqlxRepository) Get(ctx context.Context, id int64) (*models.Reel, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

func (r *sqlxRepository) getOne(ctx context.Context, pred squirrel.Sqlizer) (*models.Reel, error) {
	query, args, err := r.sb.Select(reelColumns...).From(reelsTable).Where(pred).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var reel models.Reel
	if err := r.db.GetContext(ctx, &reel, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return &reel, nil
}

// Insert stores reel and returns the row as persisted. A second row for the
// same URL yields models.ErrDuplicateURL.
func (r *sqlxRepository) Insert(ctx context.Context, reel *models.Reel) (*models.Reel, error) {
	createdAt := reel.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query, args, err := r.sb.Insert(reelsTable).
		Columns(reelColumns[1:]...).
		Values(
			reel.URL, reel.VideoURL, reel.Title, reel.AddedBy, reel.Language, reel.Description,
			reel.Tags, reel.Duration, reel.Uploader, reel.UploadDate, reel.Audio,
			reel.Likes, reel.Views, reel.Comments, reel.Shares, createdAt.UTC(),
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert: %w", err)
	}

	var id int64
	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, models.ErrDuplicateURL
		}
		return nil, fmt.Errorf("failed to insert reel: %w", err)
	}

	stored, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("inserted reel %d not found", id)
	}
	return stored, nil
}

// List returns the reels matching opts. The result is never nil.
func (r *sqlxRepository) List(ctx context.Context, opts models.ListOptions) ([]models.Reel, error) {
	query, args, err := ListQuery(r.sb, opts).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	reels := []models.Reel{}
	if err := r.db.SelectContext(ctx, &reels, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []models.Reel{}, nil
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return reels, nil
}

// Delete removes the reel with id and reports whether a row was removed.
func (r *sqlxRepository) Delete(ctx context.Context, id int64) (bool, error) {
	query, args, err := r.sb.Delete(reelsTable).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build delete: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to delete reel %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// Stats aggregates the library. Sums are zero on an empty table and
// languages are ordered by count, most common first.
func (r *sqlxRepository) Stats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{Languages: []models.LanguageCount{}}

	query, args, err := r.sb.Select("COUNT(*)").From(reelsTable).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	if err := r.db.GetContext(ctx, &stats.Total, query, args...); err != nil {
		return nil, fmt.Errorf("failed to count reels: %w", err)
	}

	query, args, err = r.sb.Select("language", "COUNT(*) AS count").
		From(reelsTable).
		GroupBy("language").
		OrderBy("count DESC", "language ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	if err := r.db.SelectContext(ctx, &stats.Languages, query, args...); err != nil {
		return nil, fmt.Errorf("failed to count languages: %w", err)
	}

	query, args, err = r.sb.Select(
		"CAST(COALESCE(SUM(likes), 0) AS BIGINT) AS total_likes",
		"CAST(COALESCE(SUM(views), 0) AS BIGINT) AS total_views",
		"CAST(COALESCE(SUM(comments), 0) AS BIGINT) AS total_comments",
		"CAST(COALESCE(SUM(shares), 0) AS BIGINT) AS total_shares",
	).From(reelsTable).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	if err := r.db.GetContext(ctx, &stats.Engagement, query, args...); err != nil {
		return nil, fmt.Errorf("failed to sum engagement: %w", err)
	}

	return stats, nil
}

// Ping checks that the database answers.
func (r *sqlxRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
