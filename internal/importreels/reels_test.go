package importreels

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelsaver/server/internal/ingest"
)

const sampleCSV = `url,username,language,title
https://example.com/v/1,maya,es,Dance
  https://example.com/v/2 ,,,
,bob,en,
https://example.com/v/1,again,en,
`

func TestParse(t *testing.T) {
	reqs, skipped, err := Parse(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, []ingest.Request{
		{URL: "https://example.com/v/1", Username: "maya", Language: "es"},
		{URL: "https://example.com/v/2"},
	}, reqs)
	assert.Equal(t, []RowError{
		{Line: 4, Reason: "empty URL"},
		{Line: 5, Reason: "duplicate of line 2"},
	}, skipped)
}

func TestParseOnlyURLColumn(t *testing.T) {
	reqs, skipped, err := Parse(strings.NewReader("\uFEFFURL\nhttps://example.com/v/1\n\nhttps://example.com/v/2\n"))
	require.NoError(t, err)

	assert.Len(t, reqs, 2)
	assert.Empty(t, skipped)
}

func TestParseAcceptsExportHeader(t *testing.T) {
	export := "url,username,language,title,video_url\nhttps://example.com/v/1,Anonymous,en,Cat,https://cdn/x.mp4\n"

	reqs, _, err := Parse(strings.NewReader(export))
	require.NoError(t, err)
	assert.Equal(t, []ingest.Request{{URL: "https://example.com/v/1", Username: "Anonymous", Language: "en"}}, reqs)
}

func TestParseAddedByAlias(t *testing.T) {
	reqs, _, err := Parse(strings.NewReader("added_by,url\nmaya,https://example.com/v/1\n"))
	require.NoError(t, err)
	assert.Equal(t, "maya", reqs[0].Username)
}

func TestParseErrors(t *testing.T) {
	_, _, err := Parse(strings.NewReader(""))
	assert.Error(t, err)

	_, _, err = Parse(strings.NewReader("username,language\nmaya,en\n"))
	assert.ErrorContains(t, err, "url")
}

func TestLoadLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reels.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0644))

	reqs, skipped, err := NewImporter(nil).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, reqs, 2)
	assert.Len(t, skipped, 2)
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := NewImporter(nil).Load(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestLoadRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reels.csv" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	imp := NewImporter(srv.Client())

	reqs, _, err := imp.Load(context.Background(), srv.URL+"/reels.csv")
	require.NoError(t, err)
	assert.Len(t, reqs, 2)

	_, _, err = imp.Load(context.Background(), srv.URL+"/missing.csv")
	assert.ErrorContains(t, err, "404")
}
