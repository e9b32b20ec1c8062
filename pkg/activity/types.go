package activity

import (
	"fmt"
	"strings"
	"time"

	apperrors "flickrheat/pkg/errors"
)

// DateLayout is the calendar day format used for buckets
const DateLayout = "2006-01-02"

// TakenLayout is the provider's local-time format for taken dates
const TakenLayout = "2006-01-02 15:04:05"

// Mode selects which timestamp buckets a photo
type Mode string

const (
	ModeUpload Mode = "upload"
	ModeTaken  Mode = "taken"
)

// ParseMode accepts "upload", "uploaded" and "taken". An empty string
// yields def.
func ParseMode(s string, def Mode) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return def, nil
	case "upload", "uploaded":
		return ModeUpload, nil
	case "taken":
		return ModeTaken, nil
	default:
		return "", apperrors.Validation(fmt.Sprintf("invalid activity mode %q (expected upload or taken)", s))
	}
}

// ActivityType is the label stored with snapshots
func (m Mode) ActivityType() string {
	if m == ModeTaken {
		return "taken"
	}
	return "uploaded"
}

// PhotoRecord is a photo as reported by the provider
type PhotoRecord struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner"`
	// UploadTimestamp is unix seconds
	UploadTimestamp int64 `json:"dateupload"`
	// TakenTimestamp is local time "YYYY-MM-DD HH:MM:SS", empty when unknown
	TakenTimestamp string `json:"datetaken,omitempty"`
}

// Day is one calendar day of the series
type Day struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
	Level int    `json:"level"`
}

// Page is a single search page
type Page struct {
	Photos     []PhotoRecord
	PageNumber int
	TotalPages int
	Total      int
}

// PhotoSet is the result of a full paginated listing. Partial is set when
// the page cap stopped the listing before the last page.
type PhotoSet struct {
	Photos       []PhotoRecord
	PagesFetched int
	TotalPages   int
	Partial      bool
}

// Filters are optional bounds on upload and taken time. Zero values are
// left out of the query.
type Filters struct {
	MinUpload time.Time
	MaxUpload time.Time
	MinTaken  time.Time
	MaxTaken  time.Time
}

// FiltersFor bounds the search to w using the timestamp mode buckets by
func FiltersFor(mode Mode, w Window) Filters {
	end := w.End.Add(24*time.Hour - time.Second)
	if mode == ModeTaken {
		return Filters{MinTaken: w.Start, MaxTaken: end}
	}
	return Filters{MinUpload: w.Start, MaxUpload: end}
}

// ProgressFunc is called after each page of a listing
type ProgressFunc func(page, totalPages, fetched int)

// Profile describes a resolved user
type Profile struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	RealName string `json:"realname,omitempty"`
	Avatar   string `json:"avatar"`
	// EarliestDate is YYYY-MM-DD of the first upload, empty when unknown
	EarliestDate string `json:"earliestDate,omitempty"`
	PhotoCount   int    `json:"photoCount"`
}

// Request describes a heatmap computation. UserID skips resolution when set.
type Request struct {
	Identifier string
	UserID     string
	Year       int
	Mode       Mode
	Leveling   string
}

// Heatmap is a complete series for one user and year
type Heatmap struct {
	UserID      string `json:"userId"`
	Year        int    `json:"year"`
	Mode        Mode   `json:"mode"`
	Leveling    string `json:"leveling"`
	Days        []Day  `json:"data"`
	Stats       Stats  `json:"stats"`
	TotalPhotos int    `json:"totalPhotos"`
	Partial     bool   `json:"partial"`
}
