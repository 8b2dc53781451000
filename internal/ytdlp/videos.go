package ytdlp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ytsubs/internal/logging"
	"ytsubs/internal/model"
	"ytsubs/internal/services"
)

// infoDoc is the subset of yt-dlp's -J output ytsubs reads. Playlists and
// channels nest entries; channel tabs nest playlists.
type infoDoc struct {
	Type       string    `json:"_type"`
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	WebpageURL string    `json:"webpage_url"`
	Duration   *float64  `json:"duration"`
	Uploader   string    `json:"uploader"`
	Channel    string    `json:"channel"`
	UploadDate string    `json:"upload_date"`
	Entries    []infoDoc `json:"entries"`
}

func (d infoDoc) isCollection() bool {
	return d.Type == "playlist" || d.Type == "multi_video" || len(d.Entries) > 0
}

func (d infoDoc) video() model.Video {
	url := d.WebpageURL
	if url == "" {
		url = d.URL
	}
	uploader := strings.TrimSpace(d.Uploader)
	if uploader == "" {
		uploader = strings.TrimSpace(d.Channel)
	}
	v := model.Video{
		ID:            strings.TrimSpace(d.ID),
		Title:         strings.TrimSpace(d.Title),
		URL:           model.WatchURL(d.ID, url),
		Duration:      d.Duration,
		Uploader:      uploader,
		UploadDateRaw: strings.TrimSpace(d.UploadDate),
	}
	if ts, ok := model.ParseUploadDate(v.UploadDateRaw); ok {
		v.UploadDate = &ts
	}
	return v
}

func flatten(doc infoDoc, out []model.Video) []model.Video {
	if !doc.isCollection() {
		if title := strings.TrimSpace(doc.Title); title == "[Private video]" || title == "[Deleted video]" {
			return append(out, model.Video{ID: strings.TrimSpace(doc.ID), Title: title, URL: model.WatchURL(doc.ID, doc.URL)})
		}
		return append(out, doc.video())
	}
	for _, entry := range doc.Entries {
		out = flatten(entry, out)
	}
	return out
}

// ListVideos resolves a video, playlist, or channel URL into videos in
// source order. Entries without an id and repeated ids are dropped.
func (c *Client) ListVideos(ctx context.Context, sourceURL string) ([]model.Video, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return nil, services.Wrap(services.ErrExtraction, "extract", "list videos", "source URL is required", nil)
	}
	cookies, err := c.cookieArgs()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "extract", "cookies", "", err)
	}

	args := append([]string{"--flat-playlist", "-J", "--no-warnings"}, cookies...)
	args = append(args, sourceURL)
	stdout, _, err := c.invoke(ctx, args)
	if err != nil {
		return nil, services.Wrap(services.ErrExtraction, "extract", "list videos", sourceURL, err)
	}
	if len(strings.TrimSpace(string(stdout))) == 0 {
		return nil, services.Wrap(services.ErrExtraction, "extract", "list videos", "yt-dlp returned empty output", nil)
	}

	var doc infoDoc
	if err := json.Unmarshal(stdout, &doc); err != nil {
		return nil, services.Wrap(services.ErrExtraction, "extract", "parse yt-dlp JSON", sourceURL, err)
	}
	videos := model.Dedupe(flatten(doc, nil))
	if len(videos) == 0 {
		return nil, services.Wrap(services.ErrExtraction, "extract", "list videos", fmt.Sprintf("no videos found at %s", sourceURL), nil)
	}
	c.logger.Debug("videos resolved",
		logging.String("source", sourceURL),
		logging.Int("count", len(videos)),
	)
	return videos, nil
}

// Enrich fetches full metadata for v and fills its missing fields.
func (c *Client) Enrich(ctx context.Context, v model.Video) (model.Video, error) {
	cookies, err := c.cookieArgs()
	if err != nil {
		return v, services.Wrap(services.ErrConfiguration, "enrich", "cookies", "", err)
	}
	args := append([]string{"-J", "--skip-download", "--no-playlist", "--no-warnings"}, cookies...)
	args = append(args, model.WatchURL(v.ID, v.URL))
	stdout, _, err := c.invoke(ctx, args)
	if err != nil {
		return v, services.Wrap(services.ErrDownload, "enrich", "fetch metadata", v.ID, err)
	}
	var doc infoDoc
	if err := json.Unmarshal(stdout, &doc); err != nil {
		return v, services.Wrap(services.ErrDownload, "enrich", "parse yt-dlp JSON", v.ID, err)
	}
	return v.Enrich(doc.video()), nil
}
