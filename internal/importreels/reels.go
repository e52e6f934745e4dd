// Package importreels reads bulk reel submissions from CSV.
package importreels

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"reelsaver/server/internal/ingest"
)

const downloadTimeout = time.Minute

// RowError describes a CSV row that was skipped.
type RowError struct {
	Line   int
	Reason string
}

func (e RowError) String() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Importer loads reel requests from a local file or an http(s) URL.
type Importer struct {
	client *http.Client
}

// NewImporter creates a new reel importer. A nil client uses a default
// client with a bounded timeout.
func NewImporter(client *http.Client) *Importer {
	if client == nil {
		client = &http.Client{Timeout: downloadTimeout}
	}
	return &Importer{client: client}
}

// Load reads the CSV at source.
func (i *Importer) Load(ctx context.Context, source string) ([]ingest.Request, []RowError, error) {
	log.Info().Str("csv", source).Msg("Starting reel import")

	rc, err := i.open(ctx, source)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get CSV data: %w", err)
	}
	defer rc.Close()

	reqs, skipped, err := Parse(rc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse CSV: %w", err)
	}

	log.Info().
		Int("requests", len(reqs)).
		Int("skipped", len(skipped)).
		Msg("CSV parsed")
	return reqs, skipped, nil
}

func (i *Importer) open(ctx context.Context, source string) (io.ReadCloser, error) {
	if !isRemote(source) {
		log.Info().Str("path", source).Msg("Using local CSV file")
		f, err := os.Open(source)
		if err != nil {
			return nil, err
		}
		return f, nil
	}

	log.Info().Str("url", source).Msg("Downloading CSV from remote source")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to download file: HTTP status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func isRemote(source string) bool {
	s := strings.ToLower(source)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Parse reads a CSV with a header row. The url column is required,
// username (or added_by) and language are optional, anything else is
// ignored. Rows without a URL and repeated URLs are skipped and reported.
func Parse(r io.Reader) ([]ingest.Request, []RowError, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, errors.New("CSV is empty")
		}
		return nil, nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}
	log.Debug().Strs("header", header).Msg("CSV header read")

	urlIdx := findColumnIndex(header, "url")
	if urlIdx < 0 {
		return nil, nil, errors.New("required column 'url' not found in CSV header")
	}
	usernameIdx := findColumnIndex(header, "username")
	if usernameIdx < 0 {
		usernameIdx = findColumnIndex(header, "added_by")
	}
	languageIdx := findColumnIndex(header, "language")

	var (
		reqs    []ingest.Request
		skipped []RowError
		seen    = map[string]int{}
	)

	line := 1 // Header was already read
	for {
		line++
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("Error reading CSV line")
			skipped = append(skipped, RowError{Line: line, Reason: err.Error()})
			continue
		}

		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			log.Debug().Int("line", line).Msg("Skipping empty row")
			continue
		}

		url := safeGetValue(record, urlIdx)
		if url == "" {
			skipped = append(skipped, RowError{Line: line, Reason: "empty URL"})
			continue
		}
		if first, ok := seen[url]; ok {
			skipped = append(skipped, RowError{Line: line, Reason: fmt.Sprintf("duplicate of line %d", first)})
			continue
		}
		seen[url] = line

		reqs = append(reqs, ingest.Request{
			URL:      url,
			Username: safeGetValue(record, usernameIdx),
			Language: safeGetValue(record, languageIdx),
		})
	}

	return reqs, skipped, nil
}

func findColumnIndex(header []string, columnName string) int {
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), columnName) {
			return i
		}
	}
	return -1
}

// safeGetValue returns the trimmed value at index, or "" when the index is
// out of bounds.
func safeGetValue(record []string, index int) string {
	if index >= 0 && index < len(record) {
		return strings.TrimSpace(record[index])
	}
	return ""
}
