package storage

import (
	"strings"

	"github.com/Masterminds/squirrel"

	"reelsaver/server/internal/models"
)

const reelsTable = "reels"

// reelColumns lists the columns scanned into models.Reel, in table order.
var reelColumns = []string{
	"id", "url", "video_url", "title", "added_by", "language", "description",
	"tags", "duration", "uploader", "upload_date", "audio",
	"likes", "views", "comments", "shares", "created_at",
}

// Every ordering ends on id so pages stay stable when the primary key ties.
var sortOrders = map[models.Sort][]string{
	models.SortNewest:     {"id DESC"},
	models.SortOldest:     {"id ASC"},
	models.SortMostLiked:  {"likes DESC", "id DESC"},
	models.SortMostViewed: {"views DESC", "id DESC"},
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a case-folded substring pattern with LIKE wildcards in
// the term escaped.
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}

// ListQuery builds the library query for opts. Filter values only ever
// travel as bound arguments. A zero Limit leaves the result unbounded and
// Offset then has no effect.
func ListQuery(b squirrel.StatementBuilderType, opts models.ListOptions) squirrel.SelectBuilder {
	q := b.Select(reelColumns...).From(reelsTable)

	if search := strings.TrimSpace(opts.Search); search != "" {
		pattern := likePattern(search)
		q = q.Where(squirrel.Or{
			squirrel.Expr(`LOWER(title) LIKE ? ESCAPE '\'`, pattern),
			squirrel.Expr(`LOWER(uploader) LIKE ? ESCAPE '\'`, pattern),
		})
	}
	if language := strings.TrimSpace(opts.Language); language != "" {
		q = q.Where(squirrel.Eq{"language": language})
	}

	order, ok := sortOrders[opts.Sort]
	if !ok {
		order = sortOrders[models.SortNewest]
	}
	q = q.OrderBy(order...)

	if opts.Limit > 0 {
		q = q.Limit(uint64(opts.Limit))
		if opts.Offset > 0 {
			q = q.Offset(uint64(opts.Offset))
		}
	}
	return q
}
