// Package stats accumulates per-run download statistics and renders the
// end-of-run summary.
package stats

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// MaxReportedFailures bounds the itemized failure list in Report.
const MaxReportedFailures = 5

// Success describes one video that produced output.
type Success struct {
	VideoID   string   `json:"video_id"`
	Title     string   `json:"title"`
	Files     int      `json:"files"`
	Bytes     int64    `json:"bytes"`
	Languages []string `json:"languages"`
}

// Failure describes one failed video.
type Failure struct {
	VideoID string `json:"video_id"`
	Title   string `json:"title"`
	Error   string `json:"error"`
}

// Stats is a read-only copy of the collector state.
type Stats struct {
	TotalVideos     int           `json:"total_videos"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	TotalFiles      int           `json:"total_files"`
	TotalBytes      int64         `json:"total_bytes"`
	Languages       []string      `json:"languages"`
	Successes       []Success     `json:"successes"`
	Failures        []Failure     `json:"failures"`
	StartedAt       time.Time     `json:"started_at"`
	EndedAt         time.Time     `json:"ended_at,omitzero"`
	Elapsed         time.Duration `json:"elapsed_ns"`
	AveragePerVideo time.Duration `json:"average_per_video_ns"`
	SuccessRate     int           `json:"success_rate"`
}

// Collector is safe for concurrent use.
type Collector struct {
	mu        sync.Mutex
	now       func() time.Time
	total     int
	succeeded int
	failed    int
	files     int
	bytes     int64
	languages map[string]struct{}
	successes []Success
	failures  []Failure
	startedAt time.Time
	endedAt   time.Time
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns an empty collector.
func New(opts ...Option) *Collector {
	c := &Collector{now: time.Now, languages: make(map[string]struct{})}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start resets the collector and records the start time.
func (c *Collector) Start(totalVideos int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total = max(totalVideos, 0)
	c.succeeded, c.failed, c.files, c.bytes = 0, 0, 0, 0
	c.languages = make(map[string]struct{})
	c.successes = nil
	c.failures = nil
	c.startedAt = c.now()
	c.endedAt = time.Time{}
}

// RecordSuccess adds a successful video with the files it produced.
func (c *Collector) RecordSuccess(videoID, title string, files int, bytes int64, languages []string) {
	entry := Success{VideoID: videoID, Title: title, Files: max(files, 0), Bytes: max(bytes, 0)}
	for _, lang := range languages {
		if lang = strings.TrimSpace(lang); lang != "" {
			entry.Languages = append(entry.Languages, lang)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.succeeded++
	c.files += entry.Files
	c.bytes += entry.Bytes
	for _, lang := range entry.Languages {
		c.languages[lang] = struct{}{}
	}
	c.successes = append(c.successes, entry)
}

// RecordFailure adds a failed video.
func (c *Collector) RecordFailure(videoID, title string, err error) {
	message := "unknown error"
	if err != nil {
		message = err.Error()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed++
	c.failures = append(c.failures, Failure{VideoID: videoID, Title: title, Error: message})
}

// End records the end time. Elapsed time is frozen afterwards.
func (c *Collector) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.endedAt.IsZero() {
		c.endedAt = c.now()
	}
}

// Snapshot returns the current statistics. Before End, elapsed time is
// measured against the current time.
func (c *Collector) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	end := c.endedAt
	if end.IsZero() {
		end = c.now()
	}
	var elapsed time.Duration
	if !c.startedAt.IsZero() {
		elapsed = end.Sub(c.startedAt)
	}
	var average time.Duration
	if done := c.succeeded + c.failed; done > 0 {
		average = elapsed / time.Duration(done)
	}
	rate := 0
	if c.total > 0 {
		rate = int(math.Round(float64(c.succeeded) / float64(c.total) * 100))
	}

	languages := make([]string, 0, len(c.languages))
	for lang := range c.languages {
		languages = append(languages, lang)
	}
	sort.Strings(languages)

	return Stats{
		TotalVideos:     c.total,
		Succeeded:       c.succeeded,
		Failed:          c.failed,
		TotalFiles:      c.files,
		TotalBytes:      c.bytes,
		Languages:       languages,
		Successes:       append([]Success(nil), c.successes...),
		Failures:        append([]Failure(nil), c.failures...),
		StartedAt:       c.startedAt,
		EndedAt:         c.endedAt,
		Elapsed:         elapsed,
		AveragePerVideo: average,
		SuccessRate:     rate,
	}
}

// Report renders the fixed-layout summary shown at the end of a run.
func (c *Collector) Report() string {
	return Render(c.Snapshot())
}

// Render formats a statistics snapshot.
func Render(s Stats) string {
	var b strings.Builder
	rule := strings.Repeat("=", 50)
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "Download summary")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "%-18s %d\n", "Total videos:", s.TotalVideos)
	fmt.Fprintf(&b, "%-18s %d\n", "Succeeded:", s.Succeeded)
	fmt.Fprintf(&b, "%-18s %d\n", "Failed:", s.Failed)
	fmt.Fprintf(&b, "%-18s %d%%\n", "Success rate:", s.SuccessRate)
	fmt.Fprintf(&b, "%-18s %s\n", "Elapsed:", formatDuration(s.Elapsed))
	fmt.Fprintf(&b, "%-18s %s\n", "Average/video:", formatDuration(s.AveragePerVideo))
	fmt.Fprintf(&b, "%-18s %d\n", "Files written:", s.TotalFiles)
	fmt.Fprintf(&b, "%-18s %s\n", "Total size:", humanize.Bytes(uint64(max(s.TotalBytes, 0))))
	languages := "none"
	if len(s.Languages) > 0 {
		languages = strings.Join(s.Languages, ", ")
	}
	fmt.Fprintf(&b, "%-18s %s\n", "Languages:", languages)

	if len(s.Failures) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Failed videos:")
		for i, f := range s.Failures {
			if i == MaxReportedFailures {
				fmt.Fprintf(&b, "  ... and %d more\n", len(s.Failures)-MaxReportedFailures)
				break
			}
			label := f.VideoID
			if title := strings.TrimSpace(f.Title); title != "" && title != f.VideoID {
				label = fmt.Sprintf("%s (%s)", title, f.VideoID)
			}
			fmt.Fprintf(&b, "  - %s: %s\n", label, f.Error)
		}
	}
	fmt.Fprint(&b, rule)
	return b.String()
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
