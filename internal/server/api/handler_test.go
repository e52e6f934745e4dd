package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelsaver/server/internal/apperr"
	"reelsaver/server/internal/ingest"
	"reelsaver/server/internal/models"
)

const testPassword = "s3cret"

type fakeIngester struct {
	got    ingest.Request
	result *ingest.Result
	err    error
}

func (f *fakeIngester) Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error) {
	f.got = req
	return f.result, f.err
}

type fakeLibrary struct {
	listOpts  models.ListOptions
	reels     []models.Reel
	deletedID int64
	stats     *models.Stats
	err       error
}

func (f *fakeLibrary) List(ctx context.Context, opts models.ListOptions) ([]models.Reel, error) {
	f.listOpts = opts
	return f.reels, f.err
}

func (f *fakeLibrary) Delete(ctx context.Context, id int64) error {
	f.deletedID = id
	return f.err
}

func (f *fakeLibrary) Stats(ctx context.Context) (*models.Stats, error) {
	return f.stats, f.err
}

func newTestHandler() (*ReelHandler, *fakeIngester, *fakeLibrary) {
	ing := &fakeIngester{}
	lib := &fakeLibrary{}
	return NewReelHandler(testPassword, ing, lib), ing, lib
}

func do(handler http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestRoot(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := do(h.Root, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, LivenessMessage, rec.Body.String())

	rec = do(h.Root, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogin(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := do(h.Login, http.MethodPost, "/login", `{"password":"s3cret"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", decode(t, rec)["status"])

	rec = do(h.Login, http.MethodPost, "/login", `{"password":"guess"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Wrong Password", decode(t, rec)["error"])

	rec = do(h.Login, http.MethodPost, "/login", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(h.Login, http.MethodPost, "/login", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPasswordMatches(t *testing.T) {
	assert.True(t, PasswordMatches("abc", "abc"))
	assert.False(t, PasswordMatches("abc", "abd"))
	assert.False(t, PasswordMatches("abc", "abcd"))
	assert.False(t, PasswordMatches("", ""))
}

func TestAddReelSuccess(t *testing.T) {
	h, ing, _ := newTestHandler()
	ing.result = &ingest.Result{
		Outcome:  ingest.OutcomeCreated,
		Filename: "Funny_Cat_0123456789.mp4",
		Reel:     &models.Reel{ID: 1, URL: "https://example.com/v/1", Title: "Funny Cat!", Likes: 10, Views: 500},
	}

	rec := do(h.AddReel, http.MethodPost, "/add_reel", `{"url":"https://example.com/v/1","username":"maya","language":"es"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ingest.Request{URL: "https://example.com/v/1", Username: "maya", Language: "es"}, ing.got)

	body := decode(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "Funny_Cat_0123456789.mp4", body["filename"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "Funny Cat!", data["title"])
	assert.EqualValues(t, 10, data["likes"])
	assert.EqualValues(t, 0, data["shares"])
}

func TestAddReelExists(t *testing.T) {
	h, ing, _ := newTestHandler()
	ing.result = &ingest.Result{Outcome: ingest.OutcomeExists, Message: "Reel already exists in the library"}

	rec := do(h.AddReel, http.MethodPost, "/add_reel", `{"url":"https://example.com/v/1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "exists", body["status"])
	assert.Equal(t, "Reel already exists in the library", body["message"])
	assert.NotContains(t, body, "data")
}

func TestAddReelErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", apperr.Validation("ingest", "No URL provided"), http.StatusBadRequest, "No URL provided"},
		{"external", apperr.External("ingest", "Failed to download reel", errors.New("exit status 1: secret path")), http.StatusInternalServerError, "Failed to download reel"},
		{"timeout", apperr.External("ingest", "Failed to download reel", context.DeadlineExceeded), http.StatusGatewayTimeout, "Failed to download reel (timed out)"},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, ing, _ := newTestHandler()
			ing.err = tt.err

			rec := do(h.AddReel, http.MethodPost, "/add_reel", `{"url":"https://example.com/v/1"}`)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.msg, decode(t, rec)["error"])
		})
	}
}

func TestAddReelMalformedBody(t *testing.T) {
	h, _, _ := newTestHandler()

	for _, body := range []string{"", "{", `["url"]`} {
		rec := do(h.AddReel, http.MethodPost, "/add_reel", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "No URL provided", decode(t, rec)["error"])
	}
}

func TestLibraryPassesOptions(t *testing.T) {
	h, _, lib := newTestHandler()
	lib.reels = []models.Reel{{ID: 2, Title: "b"}, {ID: 1, Title: "a"}}

	rec := do(h.Library, http.MethodGet, "/library?search=cat&language=en&sort=most_liked&limit=5&offset=10", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ListOptions{
		Search:   "cat",
		Language: "en",
		Sort:     models.SortMostLiked,
		Limit:    5,
		Offset:   10,
	}, lib.listOpts)

	var reels []models.Reel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reels))
	assert.Len(t, reels, 2)
}

func TestLibraryEmptyIsArray(t *testing.T) {
	h, _, _ := newTestHandler()

	rec := do(h.Library, http.MethodGet, "/library", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestLibraryInvalidWindow(t *testing.T) {
	h, _, _ := newTestHandler()

	for _, q := range []string{"limit=abc", "limit=-1", "offset=-5"} {
		rec := do(h.Library, http.MethodGet, "/library?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestLibraryFailure(t *testing.T) {
	h, _, lib := newTestHandler()
	lib.err = apperr.External("library.list", "Failed to load library", errors.New("db down"))

	rec := do(h.Library, http.MethodGet, "/library", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to load library", decode(t, rec)["error"])
}

func TestDeleteReel(t *testing.T) {
	h, _, lib := newTestHandler()

	rec := do(h.DeleteReel, http.MethodPost, "/delete_reel", `{"id":7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "deleted", decode(t, rec)["status"])
	assert.Equal(t, int64(7), lib.deletedID)

	rec = do(h.DeleteReel, http.MethodPost, "/delete_reel", `{"id":"8"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(8), lib.deletedID)
}

func TestDeleteReelInvalidID(t *testing.T) {
	h, _, lib := newTestHandler()

	for _, body := range []string{`{}`, `{"id":0}`, `{"id":-1}`, `{"id":1.5}`, `{"id":"abc"}`, ``} {
		rec := do(h.DeleteReel, http.MethodPost, "/delete_reel", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Zero(t, lib.deletedID)
}

func TestDeleteReelFailure(t *testing.T) {
	h, _, lib := newTestHandler()
	lib.err = apperr.External("library.delete", "Failed to delete reel media", errors.New("s3 down"))

	rec := do(h.DeleteReel, http.MethodPost, "/delete_reel", `{"id":3}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to delete reel media", decode(t, rec)["error"])
}

func TestStats(t *testing.T) {
	h, _, lib := newTestHandler()
	lib.stats = &models.Stats{
		Total:      3,
		Languages:  []models.LanguageCount{{Language: "en", Count: 2}, {Language: "es", Count: 1}},
		Engagement: models.Engagement{TotalLikes: 12, TotalViews: 300},
	}

	rec := do(h.Stats, http.MethodGet, "/stats", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"total": 3,
		"languages": [{"language": "en", "count": 2}, {"language": "es", "count": 1}],
		"engagement": {"total_likes": 12, "total_views": 300, "total_comments": 0, "total_shares": 0}
	}`, rec.Body.String())
}
