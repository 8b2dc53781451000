// Package model defines the video descriptor shared by extraction, download
// and history.
package model

import (
	"strings"
	"time"

	"ytsubs/internal/textutil"
)

const uploadDateLayout = "20060102"

// Video describes one video resolved from a URL. Optional fields are nil or
// empty when unknown.
type Video struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	URL           string     `json:"url"`
	Duration      *float64   `json:"duration,omitempty"`
	Uploader      string     `json:"uploader,omitempty"`
	UploadDate    *time.Time `json:"upload_date,omitempty"`
	UploadDateRaw string     `json:"upload_date_raw,omitempty"`
}

// Label returns the title, or the id when the title is unknown.
func (v Video) Label() string {
	if title := strings.TrimSpace(v.Title); title != "" {
		return title
	}
	return v.ID
}

// Key returns the deterministic output key "<YYYYMMDD>_<id>", or just the
// id when the upload date is unknown.
func (v Video) Key() string {
	id := textutil.SanitizeKey(v.ID)
	if v.UploadDate != nil {
		return v.UploadDate.Format(uploadDateLayout) + "_" + id
	}
	if _, ok := ParseUploadDate(v.UploadDateRaw); ok {
		return v.UploadDateRaw + "_" + id
	}
	return id
}

// Enrich returns a copy of v with absent fields filled from extra. Present
// fields are never overwritten, and the id is never changed.
func (v Video) Enrich(extra Video) Video {
	out := v
	if strings.TrimSpace(out.Title) == "" {
		out.Title = extra.Title
	}
	if strings.TrimSpace(out.URL) == "" {
		out.URL = extra.URL
	}
	if out.Duration == nil && extra.Duration != nil {
		d := *extra.Duration
		out.Duration = &d
	}
	if strings.TrimSpace(out.Uploader) == "" {
		out.Uploader = extra.Uploader
	}
	if out.UploadDateRaw == "" {
		out.UploadDateRaw = extra.UploadDateRaw
	}
	if out.UploadDate == nil {
		if extra.UploadDate != nil {
			ts := *extra.UploadDate
			out.UploadDate = &ts
		} else if ts, ok := ParseUploadDate(out.UploadDateRaw); ok {
			out.UploadDate = &ts
		}
	}
	return out
}

// NeedsEnrichment reports whether a supplementary metadata fetch would add
// anything used for naming or reporting.
func (v Video) NeedsEnrichment() bool {
	return v.UploadDate == nil || strings.TrimSpace(v.Title) == ""
}

// ParseUploadDate parses the 8-digit YYYYMMDD form reported by yt-dlp.
func ParseUploadDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) != len(uploadDateLayout) {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation(uploadDateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// WatchURL resolves a playable URL from an id and an optional URL field as
// reported in flat playlists.
func WatchURL(id, maybeURL string) string {
	u := strings.TrimSpace(maybeURL)
	if u != "" {
		if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
			return u
		}
		if strings.HasPrefix(u, "watch?") || strings.HasPrefix(u, "/watch?") {
			return "https://www.youtube.com/" + strings.TrimPrefix(u, "/")
		}
	}
	if id = strings.TrimSpace(id); id != "" {
		return "https://www.youtube.com/watch?v=" + id
	}
	return ""
}

// Dedupe drops videos without an id and later duplicates of an id,
// keeping source order.
func Dedupe(videos []Video) []Video {
	seen := make(map[string]struct{}, len(videos))
	out := make([]Video, 0, len(videos))
	for _, v := range videos {
		id := strings.TrimSpace(v.ID)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		v.ID = id
		out = append(out, v)
	}
	return out
}
