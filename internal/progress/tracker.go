// Package progress keeps live overall and per-item status for one run and
// writes a status line for every transition.
package progress

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"ytsubs/internal/logging"
)

// Status is the lifecycle state of a single item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

var (
	// ErrUnknownItem is returned when an item finishes without having started.
	ErrUnknownItem = errors.New("progress: unknown item")
	// ErrItemState is returned for a transition the item's status does not allow.
	ErrItemState = errors.New("progress: invalid item transition")
	// ErrCompleted is returned for any mutation after Complete.
	ErrCompleted = errors.New("progress: tracker already completed")
)

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
	ansiBlue  = "\x1b[34m"
)

// State is a point-in-time copy of the tracker counters.
type State struct {
	Total     int
	Completed int
	Succeeded int
	Failed    int
	Items     map[string]Status
}

// Percent returns completed/total as a percentage, 0 when total is 0.
func (s State) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total) * 100
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithColor enables ANSI colors on status lines.
func WithColor(enabled bool) Option {
	return func(t *Tracker) { t.color = enabled }
}

// WithLogger mirrors transitions to a structured logger at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logging.NewComponentLogger(logger, "progress") }
}

// Tracker is safe for concurrent use. Lines are written while holding the
// lock so they never interleave.
type Tracker struct {
	mu        sync.Mutex
	out       io.Writer
	logger    *slog.Logger
	color     bool
	total     int
	completed int
	succeeded int
	failed    int
	items     map[string]Status
	done      bool
}

// New creates a tracker writing status lines to out. A nil out discards them.
func New(out io.Writer, opts ...Option) *Tracker {
	if out == nil {
		out = io.Discard
	}
	t := &Tracker{
		out:    out,
		logger: logging.NewNop(),
		items:  make(map[string]Status),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start resets the counters for a run of total items.
func (t *Tracker) Start(total int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrCompleted
	}
	if total < 0 {
		total = 0
	}
	t.total = total
	t.completed, t.succeeded, t.failed = 0, 0, 0
	t.items = make(map[string]Status, total)
	t.writeLocked(ansiBlue, fmt.Sprintf("Processing %d video(s)", total))
	t.logger.Debug("progress started", logging.Int("total", total))
	return nil
}

// StartItem marks id as processing.
func (t *Tracker) StartItem(id, label string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrCompleted
	}
	if status, ok := t.items[id]; ok && status != StatusPending {
		return fmt.Errorf("%w: %s is %s", ErrItemState, id, status)
	}
	t.items[id] = StatusProcessing
	t.writeLocked("", fmt.Sprintf("%s → %s", t.prefixLocked(), displayLabel(id, label)))
	t.logger.Debug("item started", logging.String(logging.FieldVideoID, id))
	return nil
}

// SucceedItem marks a processing item as succeeded.
func (t *Tracker) SucceedItem(id, label string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.finishLocked(id, StatusSucceeded); err != nil {
		return err
	}
	t.succeeded++
	t.writeLocked(ansiGreen, fmt.Sprintf("%s ✓ %s", t.prefixLocked(), displayLabel(id, label)))
	t.logger.Debug("item succeeded", logging.String(logging.FieldVideoID, id))
	return nil
}

// FailItem marks a processing item as failed with a short error summary.
func (t *Tracker) FailItem(id, label, summary string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.finishLocked(id, StatusFailed); err != nil {
		return err
	}
	t.failed++
	line := fmt.Sprintf("%s ✗ %s", t.prefixLocked(), displayLabel(id, label))
	if summary = strings.TrimSpace(summary); summary != "" {
		line += ": " + firstLine(summary)
	}
	t.writeLocked(ansiRed, line)
	t.logger.Debug("item failed", logging.String(logging.FieldVideoID, id), logging.String("summary", summary))
	return nil
}

// Complete ends the run and returns the final counters. Later mutations
// return ErrCompleted; calling Complete again returns the same state.
func (t *Tracker) Complete() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.done {
		t.done = true
		color := ansiGreen
		if t.failed > 0 {
			color = ansiRed
		}
		t.writeLocked(color, fmt.Sprintf("Completed: %d succeeded, %d failed", t.succeeded, t.failed))
	}
	return t.snapshotLocked()
}

// ItemStatus returns the status of id and whether the tracker has seen it.
func (t *Tracker) ItemStatus(id string) (Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	status, ok := t.items[id]
	return status, ok
}

// Snapshot returns a copy of the current counters.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) finishLocked(id string, next Status) error {
	if t.done {
		return ErrCompleted
	}
	status, ok := t.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	if status != StatusProcessing {
		return fmt.Errorf("%w: %s is %s", ErrItemState, id, status)
	}
	t.items[id] = next
	t.completed++
	return nil
}

func (t *Tracker) snapshotLocked() State {
	items := make(map[string]Status, len(t.items))
	for id, status := range t.items {
		items[id] = status
	}
	return State{
		Total:     t.total,
		Completed: t.completed,
		Succeeded: t.succeeded,
		Failed:    t.failed,
		Items:     items,
	}
}

func (t *Tracker) prefixLocked() string {
	width := len(fmt.Sprint(t.total))
	state := State{Total: t.total, Completed: t.completed}
	return fmt.Sprintf("[%*d/%d %3.0f%%]", width, t.completed, t.total, state.Percent())
}

func (t *Tracker) writeLocked(color, line string) {
	if t.color && color != "" {
		line = color + line + ansiReset
	}
	_, _ = io.WriteString(t.out, line+"\n")
}

func displayLabel(id, label string) string {
	label = strings.TrimSpace(label)
	if label == "" || label == id {
		return id
	}
	return fmt.Sprintf("%s (%s)", label, id)
}

func firstLine(s string) string {
	if idx := strings.IndexAny(s, "\r\n"); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return s
}
