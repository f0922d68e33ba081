// Package knowledge manages the documents the backend answers from.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrBadStatus = errors.New("knowledge backend returned an error status")

// File is a document known to the backend.
type File struct {
	Name   string `json:"name"`
	Size   string `json:"size"`
	Status string `json:"status"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

type filesResponse struct {
	Files []File `json:"files"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload sends a document for indexing. Indexing continues on the backend
// after the call returns; the returned status describes that.
func (c *Client) Upload(ctx context.Context, name string, content io.Reader) (string, error) {
	ctx, span := tracer.Start(ctx, "upload knowledge file")
	defer span.End()
	span.SetAttributes(attribute.String("file.name", name))

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		err = fmt.Errorf("error creating form file: %w", err)
		span.RecordError(err)
		return "", err
	}
	size, err := io.Copy(part, content)
	if err != nil {
		err = fmt.Errorf("error reading file content: %w", err)
		span.RecordError(err)
		return "", err
	}
	if err := form.Close(); err != nil {
		err = fmt.Errorf("error closing form: %w", err)
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.Int64("file.size", size))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &body)
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		return "", err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var status statusResponse
	if err := c.do(req, span, &status); err != nil {
		return "", err
	}
	return status.Status, nil
}

func (c *Client) List(ctx context.Context) ([]File, error) {
	ctx, span := tracer.Start(ctx, "list knowledge files")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files", nil)
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		return nil, err
	}

	var files filesResponse
	if err := c.do(req, span, &files); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("response.file_count", len(files.Files)))
	return files.Files, nil
}

// Delete removes a document from disk and from the index. The backend may
// report a partial failure through the status with a nil error.
func (c *Client) Delete(ctx context.Context, name string) (string, error) {
	ctx, span := tracer.Start(ctx, "delete knowledge file")
	defer span.End()
	span.SetAttributes(attribute.String("file.name", name))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/files/"+url.PathEscape(name), nil)
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		return "", err
	}

	var status statusResponse
	if err := c.do(req, span, &status); err != nil {
		return "", err
	}
	if status.Details != "" {
		logger.Warn("knowledge file only partially deleted", "file", name, "details", status.Details)
	}
	return status.Status, nil
}

func (c *Client) do(req *http.Request, span trace.Span, out any) error {
	span.SetAttributes(attribute.String("request.url", req.URL.String()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		return err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("%w: %s", ErrBadStatus, resp.Status)
		span.RecordError(err)
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		err = fmt.Errorf("error decoding response: %w", err)
		span.RecordError(err)
		return err
	}
	return nil
}
