// Package extractor resolves short-form video URLs into metadata and media
// files by driving the yt-dlp command line tool.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Metadata is the subset of the yt-dlp info dictionary kept for a reel.
// Engagement counts are nil when the source does not expose them.
type Metadata struct {
	ID          string
	Title       string
	Uploader    string
	Duration    int64
	Description string
	Tags        []string
	UploadDate  string
	Audio       string
	Likes       *int64
	Views       *int64
	Comments    *int64
	Shares      *int64
}

// info mirrors the yt-dlp JSON fields we read.
type info struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Uploader     string   `json:"uploader"`
	UploaderID   string   `json:"uploader_id"`
	Channel      string   `json:"channel"`
	Duration     *float64 `json:"duration"`
	Description  string   `json:"description"`
	Tags         []string `json:"tags"`
	UploadDate   string   `json:"upload_date"`
	Track        string   `json:"track"`
	Artist       string   `json:"artist"`
	LikeCount    *int64   `json:"like_count"`
	ViewCount    *int64   `json:"view_count"`
	CommentCount *int64   `json:"comment_count"`
	RepostCount  *int64   `json:"repost_count"`
}

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// YTDLP extracts metadata and media through the yt-dlp binary.
type YTDLP struct {
	binary  string
	cookies string
	run     Runner
	log     zerolog.Logger
}

// Option customizes a YTDLP extractor.
type Option func(*YTDLP)

// WithCookies passes a Netscape cookies file to every yt-dlp invocation.
func WithCookies(path string) Option {
	return func(y *YTDLP) { y.cookies = path }
}

// WithRunner replaces the command runner.
func WithRunner(run Runner) Option {
	return func(y *YTDLP) { y.run = run }
}

// NewYTDLP creates an extractor running the given yt-dlp binary.
func NewYTDLP(binary string, logger zerolog.Logger, opts ...Option) *YTDLP {
	if binary == "" {
		binary = "yt-dlp"
	}
	y := &YTDLP{
		binary: binary,
		run:    execRunner,
		log:    logger.With().Str("component", "extractor").Logger(),
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

// Extract fetches the metadata of url without downloading any media.
func (y *YTDLP) Extract(ctx context.Context, url string) (*Metadata, error) {
	args := y.baseArgs("--dump-single-json", "--skip-download")
	args = append(args, "--", url)

	y.log.Debug().Str("url", url).Msg("Extracting metadata")
	out, err := y.run(ctx, y.binary, args...)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp metadata for %s: %w", url, err)
	}
	return ParseInfo(out)
}

// Download materializes the media of url at dest, forcing an mp4 container.
func (y *YTDLP) Download(ctx context.Context, url, dest string) error {
	args := y.baseArgs(
		"--format", "best[ext=mp4]/mp4/best",
		"--merge-output-format", "mp4",
		"--force-overwrites",
		"--output", dest,
	)
	args = append(args, "--", url)

	y.log.Debug().Str("url", url).Str("dest", dest).Msg("Downloading media")
	if _, err := y.run(ctx, y.binary, args...); err != nil {
		return fmt.Errorf("yt-dlp download for %s: %w", url, err)
	}
	return nil
}

func (y *YTDLP) baseArgs(extra ...string) []string {
	args := []string{"--quiet", "--no-warnings", "--no-playlist", "--no-progress"}
	if y.cookies != "" {
		args = append(args, "--cookies", y.cookies)
	}
	return append(args, extra...)
}

// ParseInfo decodes a yt-dlp JSON info dictionary.
func ParseInfo(data []byte) (*Metadata, error) {
	var in info
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to decode yt-dlp output: %w", err)
	}

	md := &Metadata{
		ID:          in.ID,
		Title:       strings.TrimSpace(in.Title),
		Uploader:    firstNonEmpty(in.Uploader, in.Channel, in.UploaderID),
		Description: in.Description,
		UploadDate:  in.UploadDate,
		Likes:       nonNegative(in.LikeCount),
		Views:       nonNegative(in.ViewCount),
		Comments:    nonNegative(in.CommentCount),
		Shares:      nonNegative(in.RepostCount),
	}
	if in.Duration != nil && *in.Duration > 0 {
		md.Duration = int64(math.Round(*in.Duration))
	}
	for _, tag := range in.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			md.Tags = append(md.Tags, tag)
		}
	}
	switch {
	case in.Track != "" && in.Artist != "":
		md.Audio = in.Track + " - " + in.Artist
	case in.Track != "":
		md.Audio = in.Track
	}
	return md, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func nonNegative(v *int64) *int64 {
	if v == nil || *v < 0 {
		return nil
	}
	return v
}

// execRunner runs the command under ctx, reporting stderr on failure.
func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("exit status %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}
