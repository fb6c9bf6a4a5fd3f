package photo

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/organoz/village-market/internal/resilience"
)

// HTTPHost talks to a Cloudinary-style upload API: multipart uploads signed
// with a shared secret, destroys by public id.
type HTTPHost struct {
	BaseURL string
	Key     string
	Secret  string
	HTTP    resilience.HTTPClient
	now     func() time.Time
}

// NewHTTPHost constructs an HTTPHost. Requests retry on transport errors and
// 5xx responses behind a circuit breaker shared across uploads and destroys.
func NewHTTPHost(baseURL, key, secret string) *HTTPHost {
	return &HTTPHost{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Key:     key,
		Secret:  secret,
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{Timeout: 30 * time.Second},
			Breaker:     resilience.NewBreaker(10, 0.5, 30*time.Second).WithTarget("photo_host"),
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: 3,
			Jitter:      0.2,
		},
		now: time.Now,
	}
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
}

// Upload posts the photo as multipart form data.
func (h *HTTPHost) Upload(ctx context.Context, in UploadInput) (Upload, error) {
	ts := h.timestamp()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", in.FileName)
	if err != nil {
		return Upload{}, fmt.Errorf("photo: build form: %w", err)
	}
	if _, err := io.Copy(part, in.Body); err != nil {
		return Upload{}, fmt.Errorf("photo: read payload: %w", err)
	}
	fields := map[string]string{
		"api_key":   h.Key,
		"timestamp": ts,
		"signature": h.sign(map[string]string{"timestamp": ts}),
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return Upload{}, fmt.Errorf("photo: build form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return Upload{}, fmt.Errorf("photo: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/upload", &buf)
	if err != nil {
		return Upload{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := h.HTTP.Do(ctx, req)
	if err != nil {
		return Upload{}, fmt.Errorf("photo: upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Upload{}, fmt.Errorf("photo: upload failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Upload{}, fmt.Errorf("photo: decode upload response: %w", err)
	}
	if parsed.SecureURL == "" || parsed.PublicID == "" {
		return Upload{}, fmt.Errorf("photo: upload response missing url or public id")
	}
	return Upload{URL: parsed.SecureURL, PublicID: parsed.PublicID, Timestamp: h.timeNow()}, nil
}

// Destroy removes a photo by public id.
func (h *HTTPHost) Destroy(ctx context.Context, publicID string) error {
	publicID = strings.TrimSpace(publicID)
	if publicID == "" {
		return nil
	}
	ts := h.timestamp()
	form := url.Values{}
	form.Set("public_id", publicID)
	form.Set("api_key", h.Key)
	form.Set("timestamp", ts)
	form.Set("signature", h.sign(map[string]string{"public_id": publicID, "timestamp": ts}))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/destroy", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("photo: destroy: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("photo: destroy failed with status %d", resp.StatusCode)
	}
	return nil
}

// sign computes the hex SHA-1 of the sorted key=value pairs joined with '&'
// followed by the secret.
func (h *HTTPHost) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	// Parameter order is fixed and small; sort by simple insertion.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + h.Secret))
	return hex.EncodeToString(sum[:])
}

func (h *HTTPHost) timeNow() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}

func (h *HTTPHost) timestamp() string {
	return strconv.FormatInt(h.timeNow().Unix(), 10)
}
