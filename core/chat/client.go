package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jinzhu/copier"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultBaseURL = "http://127.0.0.1:8000/api"

var (
	// ErrUnreachable wraps transport failures, the request never produced a
	// response.
	ErrUnreachable = errors.New("chat backend unreachable")
	// ErrBadStatus is returned for any non-2xx response.
	ErrBadStatus = errors.New("chat backend returned an error status")
)

// Request is a single user turn sent to the backend.
type Request struct {
	Message string
	// ActiveFile optionally scopes the answer to one knowledge base file.
	ActiveFile string
}

type requestBody struct {
	Message    string `json:"message"`
	ActiveFile string `json:"active_file,omitempty"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// Stream posts the request and returns the raw chunked reply body. The caller
// owns the body and must close it. Cancelling ctx aborts an in-progress read.
func (c *Client) Stream(ctx context.Context, request Request) (io.ReadCloser, error) {
	ctx, span := tracer.Start(ctx, "open chat stream")
	defer span.End()

	var reqBody requestBody
	if err := copier.Copy(&reqBody, &request); err != nil {
		err = fmt.Errorf("error copying request: %w", err)
		span.RecordError(err)
		return nil, err
	}

	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		err = fmt.Errorf("error marshalling JSON: %w", err)
		span.RecordError(err)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(requestBodyBytes))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	span.SetAttributes(
		attribute.String("request.url", req.URL.String()),
		attribute.Bool("request.has_active_file", request.ActiveFile != ""),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrUnreachable, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		if errorBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err != nil {
			logger.Warn("error reading error body", "error", err)
		} else {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}

		err := fmt.Errorf("%w: %s", ErrBadStatus, resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, resp.Status)
		return nil, err
	}

	return resp.Body, nil
}
