package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelsaver/server/internal/database"
	"reelsaver/server/internal/models"
)

func newTestRepository(t *testing.T) ReelRepository {
	t.Helper()
	db, err := database.NewDB(database.NewConfig(filepath.Join(t.TempDir(), "reels.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db)
}

func TestRepositoryInsertAndFind(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	videoURL := "https://cdn.example.com/reels/Funny_Cat_abc.mp4"

	reel := models.NewReel("https://example.com/v/1")
	reel.Title = "Funny Cat!"
	reel.VideoURL = &videoURL
	reel.Tags = "cat,funny"
	reel.Likes = 10
	reel.Views = 500

	stored, err := repo.Insert(ctx, reel)
	require.NoError(t, err)
	assert.Positive(t, stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())
	assert.Equal(t, "Funny Cat!", stored.Title)
	assert.Equal(t, models.DefaultLanguage, stored.Language)
	require.NotNil(t, stored.VideoURL)
	assert.Equal(t, videoURL, *stored.VideoURL)

	found, err := repo.FindByURL(ctx, "https://example.com/v/1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, stored.ID, found.ID)
	assert.Equal(t, int64(10), found.Likes)
	assert.Equal(t, int64(500), found.Views)

	byID, err := repo.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, found, byID)
}

func TestRepositoryMissingRowsAreNil(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	found, err := repo.FindByURL(ctx, "https://example.com/none")
	require.NoError(t, err)
	assert.Nil(t, found)

	byID, err := repo.Get(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, byID)
}

func TestRepositoryNullVideoURL(t *testing.T) {
	repo := newTestRepository(t)

	stored, err := repo.Insert(context.Background(), models.NewReel("https://example.com/v/no-media"))
	require.NoError(t, err)
	assert.Nil(t, stored.VideoURL)
}

func TestRepositoryInsertDuplicateURL(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Insert(ctx, models.NewReel("https://example.com/v/1"))
	require.NoError(t, err)

	_, err = repo.Insert(ctx, models.NewReel("https://example.com/v/1"))
	assert.ErrorIs(t, err, models.ErrDuplicateURL)
}

func seedLibrary(t *testing.T, repo ReelRepository) {
	t.Helper()
	rows := []struct {
		title, uploader, language string
		likes, views              int64
	}{
		{"Funny Cat!", "kitty_fan", "en", 10, 500},
		{"Dog park", "CATherine", "en", 50, 100},
		{"Baile", "dancer", "es", 30, 900},
		{"Sunset", "traveler", "fr", 0, 20},
		{"100% real", "skeptic", "en", 5, 5},
	}
	for i, row := range rows {
		reel := models.NewReel(fmt.Sprintf("https://example.com/v/%d", i+1))
		reel.Title = row.title
		reel.Uploader = row.uploader
		reel.Language = row.language
		reel.Likes = row.likes
		reel.Views = row.views
		_, err := repo.Insert(context.Background(), reel)
		require.NoError(t, err)
	}
}

func titles(reels []models.Reel) []string {
	out := make([]string, len(reels))
	for i, r := range reels {
		out[i] = r.Title
	}
	return out
}

func TestRepositoryListSorts(t *testing.T) {
	repo := newTestRepository(t)
	seedLibrary(t, repo)
	ctx := context.Background()

	newest, err := repo.List(ctx, models.ListOptions{Sort: models.SortNewest, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, []string{"100% real", "Sunset", "Baile", "Dog park", "Funny Cat!"}, titles(newest))

	oldest, err := repo.List(ctx, models.ListOptions{Sort: models.SortOldest, Limit: 20})
	require.NoError(t, err)
	for i := 1; i < len(oldest); i++ {
		assert.Less(t, oldest[i-1].ID, oldest[i].ID)
	}

	liked, err := repo.List(ctx, models.ListOptions{Sort: models.SortMostLiked, Limit: 20})
	require.NoError(t, err)
	for i := 1; i < len(liked); i++ {
		assert.GreaterOrEqual(t, liked[i-1].Likes, liked[i].Likes)
	}

	viewed, err := repo.List(ctx, models.ListOptions{Sort: models.SortMostViewed, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, "Baile", viewed[0].Title)
}

func TestRepositoryListSearch(t *testing.T) {
	repo := newTestRepository(t)
	seedLibrary(t, repo)
	ctx := context.Background()

	reels, err := repo.List(ctx, models.ListOptions{Search: "cat", Limit: 20})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Funny Cat!", "Dog park"}, titles(reels))

	// Wildcards in the term match literally.
	reels, err = repo.List(ctx, models.ListOptions{Search: "100%", Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, []string{"100% real"}, titles(reels))

	reels, err = repo.List(ctx, models.ListOptions{Search: "%", Limit: 20})
	require.NoError(t, err)
	assert.Len(t, reels, 1)

	reels, err = repo.List(ctx, models.ListOptions{Search: "x' OR '1'='1", Limit: 20})
	require.NoError(t, err)
	assert.Empty(t, reels)
	assert.NotNil(t, reels)
}

func TestRepositoryListSearchFoldsNonASCII(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	school := models.NewReel("https://example.com/v/ecole")
	school.Title = "ÉCOLE d'ÉTÉ"
	_, err := repo.Insert(ctx, school)
	require.NoError(t, err)

	skier := models.NewReel("https://example.com/v/ski")
	skier.Title = "Powder day"
	skier.Uploader = "ÅSA Øberg"
	_, err = repo.Insert(ctx, skier)
	require.NoError(t, err)

	reels, err := repo.List(ctx, models.ListOptions{Search: "école", Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, []string{"ÉCOLE d'ÉTÉ"}, titles(reels))

	reels, err = repo.List(ctx, models.ListOptions{Search: "d'été", Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, []string{"ÉCOLE d'ÉTÉ"}, titles(reels))

	reels, err = repo.List(ctx, models.ListOptions{Search: "åsa øb", Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, []string{"Powder day"}, titles(reels))
}

func TestRepositoryListLanguageAndWindow(t *testing.T) {
	repo := newTestRepository(t)
	seedLibrary(t, repo)
	ctx := context.Background()

	reels, err := repo.List(ctx, models.ListOptions{Language: "en", Sort: models.SortOldest, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, []string{"Funny Cat!", "Dog park", "100% real"}, titles(reels))

	page, err := repo.List(ctx, models.ListOptions{Sort: models.SortOldest, Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Dog park", "Baile"}, titles(page))

	past, err := repo.List(ctx, models.ListOptions{Limit: 20, Offset: 100})
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestRepositoryDelete(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	stored, err := repo.Insert(ctx, models.NewReel("https://example.com/v/1"))
	require.NoError(t, err)

	deleted, err := repo.Delete(ctx, stored.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, stored.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	found, err := repo.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestRepositoryStatsEmpty(t *testing.T) {
	repo := newTestRepository(t)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)

	assert.Zero(t, stats.Total)
	assert.NotNil(t, stats.Languages)
	assert.Empty(t, stats.Languages)
	assert.Equal(t, models.Engagement{}, stats.Engagement)
}

func TestRepositoryStats(t *testing.T) {
	repo := newTestRepository(t)
	seedLibrary(t, repo)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(5), stats.Total)
	assert.Equal(t, []models.LanguageCount{
		{Language: "en", Count: 3},
		{Language: "es", Count: 1},
		{Language: "fr", Count: 1},
	}, stats.Languages)
	assert.Equal(t, int64(95), stats.Engagement.TotalLikes)
	assert.Equal(t, int64(1525), stats.Engagement.TotalViews)
	assert.Zero(t, stats.Engagement.TotalComments)
	assert.Zero(t, stats.Engagement.TotalShares)
}

func TestRepositoryPing(t *testing.T) {
	repo := newTestRepository(t)
	assert.NoError(t, repo.Ping(context.Background()))
}
