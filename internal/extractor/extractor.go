// Package extractor computes face descriptors from images using an external
// face embedding server.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/punchclock/internal/logging"
)

var (
	// ErrFaceNotDetected is returned when the image contains no face.
	ErrFaceNotDetected = errors.New("no face detected in image")
	// ErrNotInitialized is returned by Extract before Init succeeded.
	ErrNotInitialized = errors.New("extractor not initialized")
)

const maxImageSide = 1024

// Client talks to the embedding server's /embed/face endpoint.
type Client struct {
	baseURL string
	dim     int
	client  *http.Client

	once    sync.Once
	initErr error
	ready   atomic.Bool
}

// New creates a client. dim is the expected descriptor length.
func New(baseURL string, dim int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dim:     dim,
		client:  &http.Client{Timeout: timeout},
	}
}

// Init checks the embedding server once. Later calls return the first result.
func (c *Client) Init(ctx context.Context) error {
	c.once.Do(func() {
		c.initErr = c.ping(ctx)
		c.ready.Store(c.initErr == nil)
		if c.initErr == nil {
			logging.FromContext(ctx).Info("face extractor ready", "url", c.baseURL, "dim", c.dim)
		}
	})
	return c.initErr
}

func (c *Client) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("extractor unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("extractor health check returned status %d", resp.StatusCode)
	}
	return nil
}

// faceDetection is a single detected face
type faceDetection struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// faceResponse is the response of the face embedding endpoint
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Extract returns the descriptor of the most confidently detected face.
func (c *Client) Extract(ctx context.Context, imageData []byte) ([]float32, error) {
	if !c.ready.Load() {
		return nil, ErrNotInitialized
	}

	prepared, err := PrepareImage(imageData, maxImageSide)
	if err != nil {
		return nil, err
	}

	body, err := c.postMultipartImage(ctx, "/embed/face", prepared)
	if err != nil {
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	best := -1
	for i, f := range faceResp.Faces {
		if len(f.Embedding) == 0 {
			continue
		}
		if best < 0 || f.DetScore > faceResp.Faces[best].DetScore {
			best = i
		}
	}
	if best < 0 {
		return nil, ErrFaceNotDetected
	}

	descriptor := faceResp.Faces[best].Embedding
	if c.dim > 0 && len(descriptor) != c.dim {
		return nil, fmt.Errorf("extractor returned %d values, expected %d", len(descriptor), c.dim)
	}
	return descriptor, nil
}

// postMultipartImage posts the JPEG image as the "file" form field.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="face.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
