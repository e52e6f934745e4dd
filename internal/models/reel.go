package models

import (
	"errors"
	"time"
)

// ErrDuplicateURL is returned by stores when a reel with the same source URL
// already exists.
var ErrDuplicateURL = errors.New("reel with this url already exists")

// Defaults applied to fields the extractor or the client did not supply.
const (
	DefaultTitle    = "Untitled"
	DefaultAddedBy  = "Anonymous"
	DefaultLanguage = "en"
	DefaultUploader = "Unknown"
	DefaultAudio    = "Original audio"
)

// Reel represents a row in the 'reels' table
type Reel struct {
	ID          int64     `db:"id" json:"id"`
	URL         string    `db:"url" json:"url"`
	VideoURL    *string   `db:"video_url" json:"video_url"` // nil when no media was stored
	Title       string    `db:"title" json:"title"`
	AddedBy     string    `db:"added_by" json:"added_by"`
	Language    string    `db:"language" json:"language"`
	Description string    `db:"description" json:"description"`
	Tags        string    `db:"tags" json:"tags"` // comma-joined labels
	Duration    int64     `db:"duration" json:"duration"`
	Uploader    string    `db:"uploader" json:"uploader"`
	UploadDate  string    `db:"upload_date" json:"upload_date"` // raw extractor format, e.g. 20240131
	Audio       string    `db:"audio" json:"audio"`
	Likes       int64     `db:"likes" json:"likes"`
	Views       int64     `db:"views" json:"views"`
	Comments    int64     `db:"comments" json:"comments"`
	Shares      int64     `db:"shares" json:"shares"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// NewReel creates a new Reel with default values
func NewReel(url string) *Reel {
	return &Reel{
		URL:      url,
		Title:    DefaultTitle,
		AddedBy:  DefaultAddedBy,
		Language: DefaultLanguage,
		Uploader: DefaultUploader,
		Audio:    DefaultAudio,
	}
}
