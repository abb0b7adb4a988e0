// Package artifacts names, stores and records screenshots taken during e2e
// runs. Screenshots go to a local directory or an S3 bucket.
package artifacts

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrObjectNotFound is returned when a requested artifact does not exist.
var ErrObjectNotFound = errors.New("artifacts: object not found")

// Store persists artifact bytes under a key.
type Store interface {
	// Put stores content and returns where it can be found (a path or URL).
	Put(ctx context.Context, key string, content []byte, contentType string) (string, error)
	// Get returns the content stored under key, or ErrObjectNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

const timestampLayout = "2006-01-02T15:04:05.000Z"

var timestampReplacer = strings.NewReplacer(":", "-", ".", "-")

// ScreenshotName returns "<label>-<timestamp>.png" where timestamp is the
// UTC time with millisecond precision and every ':' and '.' replaced by '-',
// e.g. "login-2026-01-02T03-04-05-678Z.png".
func ScreenshotName(label string, at time.Time) string {
	return sanitizeLabel(label) + "-" + timestampReplacer.Replace(at.UTC().Format(timestampLayout)) + ".png"
}

// sanitizeLabel keeps labels usable as file names and object keys.
func sanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "screenshot"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, label)
}
