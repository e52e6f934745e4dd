// Package library serves the read and delete side of the reel collection.
package library

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"reelsaver/server/internal/apperr"
	"reelsaver/server/internal/models"
	"reelsaver/server/internal/server/pagination"
)

// Repository is the subset of the reel store the library needs.
// Get returns nil, nil for an unknown id.
type Repository interface {
	Get(ctx context.Context, id int64) (*models.Reel, error)
	List(ctx context.Context, opts models.ListOptions) ([]models.Reel, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Stats(ctx context.Context) (*models.Stats, error)
}

// ObjectStore removes media and maps public URLs back to keys.
type ObjectStore interface {
	Delete(ctx context.Context, key string) error
	KeyFromURL(publicURL string) string
}

type Service struct {
	repo  Repository
	store ObjectStore
	log   zerolog.Logger
}

func NewService(repo Repository, store ObjectStore, logger zerolog.Logger) *Service {
	return &Service{
		repo:  repo,
		store: store,
		log:   logger.With().Str("component", "library").Logger(),
	}
}

// List returns one page of reels. Out of range windows are clamped and an
// unknown sort falls back to newest. The result is never nil.
func (s *Service) List(ctx context.Context, opts models.ListOptions) ([]models.Reel, error) {
	w := pagination.Window{Limit: opts.Limit, Offset: opts.Offset}.Normalize()
	opts.Limit, opts.Offset = w.Limit, w.Offset
	opts.Sort = models.ParseSort(string(opts.Sort))
	opts.Search = strings.TrimSpace(opts.Search)
	opts.Language = strings.TrimSpace(opts.Language)

	reels, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, apperr.External("library.list", "Failed to load library", err)
	}
	if reels == nil {
		reels = []models.Reel{}
	}
	return reels, nil
}

// Delete removes a reel and its media. The object goes first so a failure
// never leaves a row pointing at missing media. Unknown ids succeed without
// doing anything.
func (s *Service) Delete(ctx context.Context, id int64) error {
	const op = "library.delete"
	if id <= 0 {
		return apperr.Validation(op, "A positive reel id is required")
	}

	reel, err := s.repo.Get(ctx, id)
	if err != nil {
		return apperr.External(op, "Failed to look up reel", err)
	}
	if reel == nil {
		s.log.Debug().Int64("reel_id", id).Msg("Reel already gone, nothing to delete")
		return nil
	}

	if reel.VideoURL != nil {
		if key := s.store.KeyFromURL(*reel.VideoURL); key != "" {
			if err := s.store.Delete(ctx, key); err != nil {
				return apperr.External(op, "Failed to delete reel media", err)
			}
		} else {
			s.log.Warn().Int64("reel_id", id).Str("video_url", *reel.VideoURL).Msg("No object key in video URL, deleting row only")
		}
	}

	if _, err := s.repo.Delete(ctx, id); err != nil {
		return apperr.External(op, "Failed to delete reel", err)
	}
	s.log.Info().Int64("reel_id", id).Str("url", reel.URL).Msg("Reel deleted")
	return nil
}

// Stats aggregates the whole library.
func (s *Service) Stats(ctx context.Context) (*models.Stats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, apperr.External("library.stats", "Failed to compute stats", err)
	}
	if stats.Languages == nil {
		stats.Languages = []models.LanguageCount{}
	}
	return stats, nil
}
