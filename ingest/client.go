// Package ingest talks to the document ingestion service, which turns an
// uploaded document into candidate task rows.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"governance-api/domain"
)

const (
	previewPath           = "/documents/preview"
	defaultFailureMessage = "Failed to process document"
	maxResponseBytes      = 8 << 20
)

// RemoteError is a non-2xx answer from the ingestion service.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("ingestion service returned %d: %s", e.Status, e.Message)
}

// UserMessage is the message safe to show to the uploader.
func (e *RemoteError) UserMessage() string { return e.Message }

// Client posts documents to the ingestion service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a client for baseURL with the given request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type previewResponse struct {
	PreviewData []domain.CandidateRow `json:"previewData"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Preview uploads the document and returns the extracted rows in document
// order. A response without previewData yields an empty slice.
func (c *Client) Preview(ctx context.Context, eventID, filename string, doc io.Reader) ([]domain.CandidateRow, error) {
	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, doc); err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if err := mw.WriteField("eventId", eventID); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+previewPath, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ingestion request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read ingestion response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, remoteError(resp.StatusCode, data)
	}

	var out previewResponse
	if len(bytes.TrimSpace(data)) > 0 {
		if err := sonic.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode ingestion response: %w", err)
		}
	}
	if out.PreviewData == nil {
		return []domain.CandidateRow{}, nil
	}
	for i := range out.PreviewData {
		out.PreviewData[i].ID = ""
	}
	return out.PreviewData, nil
}

func remoteError(status int, data []byte) *RemoteError {
	var body errorResponse
	if err := sonic.Unmarshal(data, &body); err == nil && strings.TrimSpace(body.Message) != "" {
		return &RemoteError{Status: status, Message: body.Message}
	}
	return &RemoteError{Status: status, Message: defaultFailureMessage}
}
