package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/pixelkit/bgremover/pkg/errors"
)

// DefaultBaseURL is where the processing service listens by default
const DefaultBaseURL = "http://localhost:5000"

// maxErrorBody bounds how much of a failed response is kept for logging
const maxErrorBody = 512

// StatusError is returned for any non-2xx response. The service's error
// payload is opaque; it is kept only for diagnostics.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.StatusCode)
}

// Client calls the processing service over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the service at baseURL. A nil httpClient
// uses a client without a timeout: calls run until the service answers.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	slog.Info("remote_client_init", "base_url", baseURL)

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// RemoveBackground posts img to /remove-bg
func (c *Client) RemoveBackground(ctx context.Context, img Upload) ([]byte, error) {
	return c.post(ctx, RemoveBackgroundPath, img, nil)
}

// AddBorder posts img with the border settings to /add-border
func (c *Client) AddBorder(ctx context.Context, img Upload, thickness int, color string) ([]byte, error) {
	return c.post(ctx, AddBorderPath, img, [][2]string{
		{FieldBorderThickness, strconv.Itoa(thickness)},
		{FieldBorderColor, color},
	})
}

func (c *Client) post(ctx context.Context, path string, img Upload, fields [][2]string) ([]byte, error) {
	body, contentType, err := encodeMultipart(img, fields)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode multipart body")
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", contentType)

	slog.Info("remote_request_start", "endpoint", path, "filename", img.Filename, "size", len(img.Data))
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("remote_request_failed", "endpoint", path, "error", err)
		return nil, errors.Wrap(err, "request to "+path+" failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		slog.Error("remote_request_rejected",
			"endpoint", path,
			"status", resp.StatusCode,
			"body", string(excerpt))
		return nil, &StatusError{Endpoint: path, StatusCode: resp.StatusCode, Body: string(excerpt)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Error("remote_response_read_failed", "endpoint", path, "error", err)
		return nil, errors.Wrap(err, "failed to read response from "+path)
	}

	slog.Info("remote_request_complete",
		"endpoint", path,
		"status", resp.StatusCode,
		"size", len(data),
		"duration_ms", time.Since(start).Milliseconds())

	return data, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encodeMultipart writes the image part with its own media type, the way a
// browser sends a Blob, followed by any plain fields.
func encodeMultipart(img Upload, fields [][2]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	filename := img.Filename
	if filename == "" {
		filename = "blob"
	}
	mediaType := img.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		FieldImage, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", mediaType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", err
	}

	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
