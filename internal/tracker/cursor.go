package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/desertthunder/crate/internal/shared"
)

// DefaultLookbackDays is how far back the first run looks when no cursor has been stored.
const DefaultLookbackDays = 30

// CursorStore persists the time of the last completed run.
type CursorStore interface {
	// LastRun returns the stored cursor; ok is false when none has been stored yet.
	LastRun(ctx context.Context) (t time.Time, ok bool, err error)
	SetLastRun(ctx context.Context, t time.Time) error
}

// ResolveCursor loads the stored cursor, falling back to now minus lookbackDays.
func ResolveCursor(ctx context.Context, store CursorStore, now time.Time, lookbackDays int) (time.Time, error) {
	t, ok, err := store.LastRun(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if ok {
		return t, nil
	}
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	return now.AddDate(0, 0, -lookbackDays), nil
}

type cursorFile struct {
	LastRun string `json:"last_run"`
}

// cursorLayouts are the accepted last_run formats. Timestamps without an offset are local time.
var cursorLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseCursor parses a last_run value.
func ParseCursor(s string) (time.Time, error) {
	for _, layout := range cursorLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized last_run %q", shared.ErrInvalidInput, s)
}

// FileCursor stores the cursor as {"last_run": "<RFC3339Nano>"}.
type FileCursor struct {
	Path string
}

// NewFileCursor creates a cursor backed by path.
func NewFileCursor(path string) *FileCursor {
	return &FileCursor{Path: path}
}

func (f *FileCursor) LastRun(ctx context.Context) (time.Time, bool, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read cursor: %w", err)
	}

	var c cursorFile
	if err := json.Unmarshal(data, &c); err != nil {
		return time.Time{}, false, fmt.Errorf("%w: corrupt cursor file %s: %v", shared.ErrInvalidInput, f.Path, err)
	}
	if c.LastRun == "" {
		return time.Time{}, false, nil
	}

	t, err := ParseCursor(c.LastRun)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func (f *FileCursor) SetLastRun(ctx context.Context, t time.Time) error {
	return shared.WriteJSONFile(f.Path, cursorFile{LastRun: t.Format(time.RFC3339Nano)})
}

// MemoryCursor keeps the cursor in memory.
type MemoryCursor struct {
	mu  sync.Mutex
	t   time.Time
	set bool
}

// NewMemoryCursor returns a cursor preset to t; the zero time means unset.
func NewMemoryCursor(t time.Time) *MemoryCursor {
	return &MemoryCursor{t: t, set: !t.IsZero()}
}

func (m *MemoryCursor) LastRun(ctx context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t, m.set, nil
}

func (m *MemoryCursor) SetLastRun(ctx context.Context, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t, m.set = t, true
	return nil
}
