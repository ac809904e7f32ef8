// Package merger joins extracted watch-history entries with cached video
// metadata into flat rows.
package merger

import (
	"time"

	"github.com/ad-tracker/watch-history-pipeline/internal/history"
	"github.com/ad-tracker/watch-history-pipeline/internal/model"
)

// UnknownCategory is used for missing or unrecognized category IDs.
const UnknownCategory = "Unknown"

const watchURLPrefix = "https://www.youtube.com/watch?v="

// categories is the YouTube video category taxonomy.
var categories = map[string]string{
	"1":  "Film & Animation",
	"2":  "Autos & Vehicles",
	"10": "Music",
	"15": "Pets & Animals",
	"17": "Sports",
	"19": "Travel & Events",
	"20": "Gaming",
	"22": "People & Blogs",
	"23": "Comedy",
	"24": "Entertainment",
	"25": "News & Politics",
	"26": "Howto & Style",
	"27": "Education",
	"28": "Science & Technology",
	"29": "Nonprofits & Activism",
	"30": "Movies",
	"31": "Anime/Animation",
	"32": "Action/Adventure",
	"33": "Classics",
	"34": "Comedy",
	"35": "Documentary",
	"36": "Drama",
	"37": "Family",
	"38": "Foreign",
	"39": "Horror",
	"40": "Sci-Fi/Fantasy",
	"41": "Thriller",
	"42": "Shorts",
	"43": "Shows",
	"44": "Trailers",
}

// MetadataLookup resolves cached metadata by video ID.
type MetadataLookup interface {
	Get(videoID string) (*model.VideoMetadata, bool)
}

// CategoryName maps a category ID to its display name.
func CategoryName(categoryID string) string {
	if name, ok := categories[categoryID]; ok {
		return name
	}
	return UnknownCategory
}

// Merge emits one row per entry with a resolvable video ID, in entry order.
// Entries whose video has no cached metadata still produce a row: the title
// falls back to the entry title and the type is Long-form.
func Merge(entries []model.WatchHistoryEntry, lookup MetadataLookup) []model.WatchRow {
	rows := make([]model.WatchRow, 0, len(entries))

	for _, entry := range entries {
		videoID, ok := history.VideoIDFromURL(entry.TitleURL)
		if !ok {
			continue
		}

		row := model.WatchRow{
			Title:    entry.Title,
			URL:      watchURLPrefix + videoID,
			VideoID:  videoID,
			Category: UnknownCategory,
			Type:     model.TypeLongForm,
		}
		if t, err := history.ParseTimestamp(entry.Time); err == nil {
			row.WatchedAt = t
		}

		if md, found := lookup.Get(videoID); found && md != nil {
			fill(&row, md)
		}

		rows = append(rows, row)
	}

	return rows
}

func fill(row *model.WatchRow, md *model.VideoMetadata) {
	if md.Snippet.Title != "" {
		row.Title = md.Snippet.Title
	}
	row.Channel = md.Snippet.Channel
	row.CategoryID = md.Snippet.CategoryID
	row.Category = CategoryName(md.Snippet.CategoryID)
	row.PublishedAt = parsePublished(md.Snippet.PublishedAt)

	if d := md.ContentDetails.DurationSeconds; d != nil {
		v := *d
		row.DurationSeconds = &v
	}
	row.Type = model.VideoType(row.DurationSeconds)

	views := md.Statistics.ViewCount
	likes := md.Statistics.LikeCount
	row.Views = &views
	row.Likes = &likes
}

// parsePublished accepts the DATETIME format and legacy RFC 3339 values.
func parsePublished(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := history.ParseTimestamp(s)
	if err != nil {
		return nil
	}
	return &t
}
