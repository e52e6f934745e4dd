package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"reelsaver/server/internal/metrics"
)

const backendLocal = "local"

// LocalStore keeps reels on the local filesystem. The server exposes the
// root directory so that public URLs resolve.
type LocalStore struct {
	basePath string
	baseURL  string
	log      zerolog.Logger
}

// NewLocalStore creates a filesystem store rooted at basePath.
func NewLocalStore(basePath, baseURL string, log zerolog.Logger) (*LocalStore, error) {
	logger := log.With().Str("component", "local-storage").Logger()

	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("local storage path is not configured")
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create local storage directory: %w", err)
	}

	store := &LocalStore{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
		log:      logger,
	}

	logger.Info().
		Str("path", basePath).
		Str("base_url", store.baseURL).
		Msg("local storage initialized")

	return store, nil
}

// Root returns the directory objects are stored under.
func (l *LocalStore) Root() string {
	return l.basePath
}

func (l *LocalStore) objectPath(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if key == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(l.basePath, rel), nil
}

// Upload copies the file at localPath to key and returns its public URL.
func (l *LocalStore) Upload(ctx context.Context, key, localPath, contentType string) (publicURL string, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordObjectStoreOperation(backendLocal, "upload", err, time.Since(start).Seconds())
	}()

	fullPath, err := l.objectPath(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, readerWithContext(ctx, src))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return "", fmt.Errorf("failed to move %s into place: %w", key, err)
	}

	metrics.RecordUploadBytes(backendLocal, n)
	l.log.Debug().Str("key", key).Int64("bytes", n).Str("content_type", contentType).Msg("Stored object")
	return PublicURL(l.baseURL, key), nil
}

// Delete removes key. Deleting a missing key succeeds.
func (l *LocalStore) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordObjectStoreOperation(backendLocal, "delete", err, time.Since(start).Seconds())
	}()

	fullPath, err := l.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// KeyFromURL recovers the object key of a URL returned by Upload.
func (l *LocalStore) KeyFromURL(publicURL string) string {
	return KeyFromURL(l.baseURL, publicURL)
}

// Health checks that the root directory is still present.
func (l *LocalStore) Health(ctx context.Context) error {
	_, err := os.Stat(l.basePath)
	return err
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
