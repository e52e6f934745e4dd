// Package ingest turns a submitted reel URL into a persisted library record
// backed by stored media.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"reelsaver/server/internal/apperr"
	"reelsaver/server/internal/extractor"
	"reelsaver/server/internal/metrics"
	"reelsaver/server/internal/models"
	"reelsaver/server/internal/objectstore"
)

// Repository defines the persistence operations the pipeline needs.
// FindByURL returns nil, nil when no reel has the URL. Insert returns
// models.ErrDuplicateURL when the URL is already stored.
type Repository interface {
	FindByURL(ctx context.Context, url string) (*models.Reel, error)
	Insert(ctx context.Context, reel *models.Reel) (*models.Reel, error)
}

// ObjectStore receives the downloaded media.
type ObjectStore interface {
	Upload(ctx context.Context, key, localPath, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Extractor resolves a URL into metadata and media.
type Extractor interface {
	Extract(ctx context.Context, url string) (*extractor.Metadata, error)
	Download(ctx context.Context, url, dest string) error
}

// Config bounds the external calls of a pipeline run.
type Config struct {
	ScratchDir      string
	ExtractTimeout  time.Duration
	DownloadTimeout time.Duration
	UploadTimeout   time.Duration
	StoreTimeout    time.Duration
}

// Request is a client submission.
type Request struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	Language string `json:"language"`
}

// Outcome tells a successful run apart from a skipped duplicate.
type Outcome string

const (
	OutcomeCreated Outcome = "success"
	OutcomeExists  Outcome = "exists"
)

// Result describes a completed run.
type Result struct {
	Outcome  Outcome
	Reel     *models.Reel
	Filename string // storage key of the uploaded media, empty for duplicates
	Message  string
}

const existsMessage = "Reel already exists in the library"

// Pipeline orchestrates duplicate detection, extraction, download, upload
// and persistence of one reel.
type Pipeline struct {
	cfg       Config
	repo      Repository
	store     ObjectStore
	extractor Extractor
	log       zerolog.Logger
}

// New creates a pipeline. Zero timeouts fall back to conservative defaults.
func New(cfg Config, repo Repository, store ObjectStore, ext Extractor, logger zerolog.Logger) *Pipeline {
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = time.Minute
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 5 * time.Minute
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 2 * time.Minute
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 15 * time.Second
	}
	return &Pipeline{
		cfg:       cfg,
		repo:      repo,
		store:     store,
		extractor: ext,
		log:       logger.With().Str("component", "ingest").Logger(),
	}
}

// Ingest runs the pipeline for req. A URL that is already in the library
// short-circuits to OutcomeExists before any extraction happens.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Result, error) {
	const op = "ingest"

	url := strings.TrimSpace(req.URL)
	if url == "" {
		return nil, apperr.Validation(op, "No URL provided")
	}
	logger := p.log.With().Str("url", url).Logger()

	var existing *models.Reel
	err := p.stage(ctx, "lookup", p.cfg.StoreTimeout, func(ctx context.Context) error {
		var err error
		existing, err = p.repo.FindByURL(ctx, url)
		return err
	})
	if err != nil {
		metrics.RecordIngest("failure")
		return nil, apperr.External(op, "Failed to check the library", err)
	}
	if existing != nil {
		logger.Info().Int64("reel_id", existing.ID).Msg("Reel already in library, skipping")
		metrics.RecordIngest(string(OutcomeExists))
		return &Result{Outcome: OutcomeExists, Reel: existing, Message: existsMessage}, nil
	}

	result, err := p.create(ctx, op, url, req, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ingest failed")
		metrics.RecordIngest("failure")
		return nil, err
	}
	metrics.RecordIngest(string(result.Outcome))
	return result, nil
}

func (p *Pipeline) create(ctx context.Context, op, url string, req Request, logger zerolog.Logger) (*Result, error) {
	var md *extractor.Metadata
	err := p.stage(ctx, "extract", p.cfg.ExtractTimeout, func(ctx context.Context) error {
		var err error
		md, err = p.extractor.Extract(ctx, url)
		return err
	})
	if err != nil {
		return nil, apperr.External(op, "Failed to fetch reel metadata", err)
	}
	if md == nil {
		md = &extractor.Metadata{}
	}

	key := StorageKey(md.Title, url)

	scratchDir, err := os.MkdirTemp(p.cfg.ScratchDir, "reel-*")
	if err != nil {
		return nil, apperr.New(apperr.KindInternal, op, "Failed to prepare download", err)
	}
	defer func() {
		if err := os.RemoveAll(scratchDir); err != nil {
			logger.Warn().Err(err).Str("path", scratchDir).Msg("Failed to remove scratch directory")
		}
	}()
	scratchPath := filepath.Join(scratchDir, key)

	err = p.stage(ctx, "download", p.cfg.DownloadTimeout, func(ctx context.Context) error {
		return p.extractor.Download(ctx, url, scratchPath)
	})
	if err != nil {
		return nil, apperr.External(op, "Failed to download reel", err)
	}
	if err := checkVideo(scratchPath); err != nil {
		return nil, apperr.External(op, "Downloaded file is not a video", err)
	}

	var publicURL string
	err = p.stage(ctx, "upload", p.cfg.UploadTimeout, func(ctx context.Context) error {
		var err error
		publicURL, err = p.store.Upload(ctx, key, scratchPath, objectstore.VideoContentType)
		return err
	})
	if err != nil {
		return nil, apperr.External(op, "Failed to store reel media", err)
	}

	reel := buildReel(url, req, md, publicURL)

	var stored *models.Reel
	err = p.stage(ctx, "insert", p.cfg.StoreTimeout, func(ctx context.Context) error {
		var err error
		stored, err = p.repo.Insert(ctx, reel)
		return err
	})
	if errors.Is(err, models.ErrDuplicateURL) {
		// A concurrent ingest of the same URL won the insert. Both runs
		// wrote the same key, so the object is kept for the winning row.
		logger.Info().Msg("Reel inserted concurrently, reporting as existing")
		existing, findErr := p.repo.FindByURL(ctx, url)
		if findErr != nil {
			return nil, apperr.External(op, "Failed to check the library", findErr)
		}
		return &Result{Outcome: OutcomeExists, Reel: existing, Message: existsMessage}, nil
	}
	if err != nil {
		p.discardUpload(ctx, key, logger)
		return nil, apperr.External(op, "Failed to save reel", err)
	}

	logger.Info().
		Int64("reel_id", stored.ID).
		Str("key", key).
		Str("title", stored.Title).
		Msg("Reel added to library")

	return &Result{Outcome: OutcomeCreated, Reel: stored, Filename: key}, nil
}

// stage runs fn under its own timeout and records how long it took. A
// deadline hit by the stage is kept in the error chain even when the
// collaborator reports it under its own error type.
func (p *Pipeline) stage(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) error) error {
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(stageCtx)
	metrics.RecordStage(name, time.Since(start).Seconds())

	if err != nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%s timed out after %s: %w", name, timeout, errors.Join(err, context.DeadlineExceeded))
	}
	return err
}

// discardUpload removes an object whose row could not be written.
func (p *Pipeline) discardUpload(ctx context.Context, key string, logger zerolog.Logger) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.StoreTimeout)
	defer cancel()
	if err := p.store.Delete(cleanupCtx, key); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Failed to remove orphaned upload")
	}
}

func checkVideo(path string) error {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(mtype.String(), "video/") {
		return fmt.Errorf("detected %s", mtype.String())
	}
	return nil
}

func buildReel(url string, req Request, md *extractor.Metadata, publicURL string) *models.Reel {
	reel := models.NewReel(url)
	if md.Title != "" {
		reel.Title = md.Title
	}
	if username := strings.TrimSpace(req.Username); username != "" {
		reel.AddedBy = username
	}
	if language := strings.TrimSpace(req.Language); language != "" {
		reel.Language = language
	}
	if md.Uploader != "" {
		reel.Uploader = md.Uploader
	}
	if md.Audio != "" {
		reel.Audio = md.Audio
	}
	reel.Description = md.Description
	reel.Tags = strings.Join(md.Tags, ",")
	reel.Duration = md.Duration
	reel.UploadDate = md.UploadDate
	reel.Likes = count(md.Likes)
	reel.Views = count(md.Views)
	reel.Comments = count(md.Comments)
	reel.Shares = count(md.Shares)
	if publicURL != "" {
		reel.VideoURL = &publicURL
	}
	return reel
}

func count(v *int64) int64 {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}
