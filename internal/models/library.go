package models

import "strings"

// Sort selects the ordering of a library listing.
type Sort string

const (
	SortNewest     Sort = "newest"
	SortOldest     Sort = "oldest"
	SortMostLiked  Sort = "most_liked"
	SortMostViewed Sort = "most_viewed"
)

// ParseSort maps a client supplied sort key to a Sort.
// Unknown or empty keys fall back to SortNewest.
func ParseSort(s string) Sort {
	switch Sort(strings.ToLower(strings.TrimSpace(s))) {
	case SortOldest:
		return SortOldest
	case SortMostLiked:
		return SortMostLiked
	case SortMostViewed:
		return SortMostViewed
	default:
		return SortNewest
	}
}

// ListOptions holds the filters, ordering and window of a library query.
type ListOptions struct {
	Search   string // case-insensitive substring of title or uploader
	Language string // exact match
	Sort     Sort
	Limit    int
	Offset   int
}

// LanguageCount is one row of the per-language breakdown.
type LanguageCount struct {
	Language string `db:"language" json:"language"`
	Count    int64  `db:"count" json:"count"`
}

// Engagement holds the summed engagement metrics of the library.
type Engagement struct {
	TotalLikes    int64 `db:"total_likes" json:"total_likes"`
	TotalViews    int64 `db:"total_views" json:"total_views"`
	TotalComments int64 `db:"total_comments" json:"total_comments"`
	TotalShares   int64 `db:"total_shares" json:"total_shares"`
}

// Stats is the aggregate view served by the stats endpoint.
type Stats struct {
	Total      int64           `json:"total"`
	Languages  []LanguageCount `json:"languages"`
	Engagement Engagement      `json:"engagement"`
}
