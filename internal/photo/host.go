// Package photo abstracts the external photo hosting service. Product photos
// are uploaded before the product record is written and destroyed best-effort
// when products are deleted or photos replaced.
package photo

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Upload is the stored result of a successful upload.
type Upload struct {
	URL       string
	PublicID  string
	Timestamp time.Time
}

// UploadInput carries one photo payload with optional capture metadata.
type UploadInput struct {
	FileName  string
	Body      io.Reader
	Latitude  *float64
	Longitude *float64
}

// Host is the photo hosting boundary.
type Host interface {
	Upload(ctx context.Context, in UploadInput) (Upload, error)
	Destroy(ctx context.Context, publicID string) error
}

// InMemoryHost records uploads and destroys for tests.
type InMemoryHost struct {
	mu        sync.Mutex
	nextID    int
	Uploaded  []Upload
	Destroyed []string
	UploadErr error
	// FailAfter makes uploads fail once this many have succeeded. Zero means
	// never fail by count.
	FailAfter int
}

// Upload stores the upload and returns a synthetic URL and public id.
func (h *InMemoryHost) Upload(_ context.Context, in UploadInput) (Upload, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.UploadErr != nil {
		return Upload{}, h.UploadErr
	}
	if h.FailAfter > 0 && len(h.Uploaded) >= h.FailAfter {
		return Upload{}, fmt.Errorf("photo: upload rejected after %d", h.FailAfter)
	}
	h.nextID++
	up := Upload{
		URL:       fmt.Sprintf("https://photos.test/%d/%s", h.nextID, in.FileName),
		PublicID:  fmt.Sprintf("photo-%d", h.nextID),
		Timestamp: time.Now(),
	}
	h.Uploaded = append(h.Uploaded, up)
	return up, nil
}

// Destroy records the destroyed public id.
func (h *InMemoryHost) Destroy(_ context.Context, publicID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Destroyed = append(h.Destroyed, publicID)
	return nil
}

// NopHost ignores all calls. Used when no photo host is configured.
type NopHost struct{}

// Upload returns an empty result.
func (NopHost) Upload(context.Context, UploadInput) (Upload, error) { return Upload{}, nil }

// Destroy does nothing.
func (NopHost) Destroy(context.Context, string) error { return nil }
