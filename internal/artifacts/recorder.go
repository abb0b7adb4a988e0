package artifacts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kuitang/e2ekit/internal/clock"
	"github.com/kuitang/e2ekit/internal/obs"
)

// Screenshotter captures the current page as PNG bytes. locator.Document
// satisfies it.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Record describes one stored screenshot.
type Record struct {
	Label    string
	Name     string
	Location string
	Size     int
	TakenAt  time.Time
}

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// UploadRPS limits how many screenshots per second reach the store.
	// Zero means unlimited.
	UploadRPS float64
	// Clock stamps screenshot names; nil means the wall clock.
	Clock clock.Clock
}

// Recorder takes screenshots and stores them under timestamped names. Safe
// for concurrent use.
type Recorder struct {
	store   Store
	limiter *rate.Limiter
	clock   clock.Clock

	mu      sync.Mutex
	records []Record
	names   map[string]int
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store Store, cfg RecorderConfig) *Recorder {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.UploadRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.UploadRPS), 1)
	}
	c := cfg.Clock
	if c == nil {
		c = clock.Real{}
	}
	return &Recorder{
		store:   store,
		limiter: limiter,
		clock:   c,
		names:   make(map[string]int),
	}
}

// Capture screenshots src and stores it as ScreenshotName(label, now).
func (r *Recorder) Capture(ctx context.Context, src Screenshotter, label string) (Record, error) {
	data, err := src.Screenshot(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("artifacts: screenshot %q: %w", label, err)
	}
	return r.Save(ctx, label, data)
}

// Save stores already captured PNG bytes.
func (r *Recorder) Save(ctx context.Context, label string, png []byte) (Record, error) {
	now := r.clock.Now()
	name := r.uniqueName(ScreenshotName(label, now))

	if err := r.limiter.Wait(ctx); err != nil {
		return Record{}, fmt.Errorf("artifacts: upload throttle: %w", err)
	}
	location, err := r.store.Put(ctx, name, png, "image/png")
	if err != nil {
		return Record{}, err
	}

	rec := Record{Label: label, Name: name, Location: location, Size: len(png), TakenAt: now}
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()

	obs.From(ctx).Info("screenshot saved", "pkg", "artifacts", "label", label, "location", location, "bytes", len(png))
	return rec, nil
}

// uniqueName suffixes repeated names so two captures in the same
// millisecond do not overwrite each other.
func (r *Recorder) uniqueName(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.names[name]
	r.names[name] = n + 1
	if n == 0 {
		return name
	}
	return fmt.Sprintf("%s-%d.png", strings.TrimSuffix(name, ".png"), n+1)
}

// Records returns every stored screenshot in capture order.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Discard deletes every recorded screenshot from the store. Records whose
// deletion failed stay recorded and their errors are joined.
func (r *Recorder) Discard(ctx context.Context) error {
	r.mu.Lock()
	records := r.records
	r.records = nil
	r.mu.Unlock()

	var kept []Record
	var errList []error
	for _, rec := range records {
		if err := r.store.Delete(ctx, rec.Name); err != nil {
			kept = append(kept, rec)
			errList = append(errList, fmt.Errorf("artifacts: discard %s: %w", rec.Name, err))
		}
	}
	if len(kept) > 0 {
		r.mu.Lock()
		r.records = append(kept, r.records...)
		r.mu.Unlock()
	}
	obs.From(ctx).Info("screenshots discarded", "pkg", "artifacts", "count", len(records)-len(kept))
	return errors.Join(errList...)
}
