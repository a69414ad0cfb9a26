// Package backend is the HTTP client for the remote code execution service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cloudcompute/webclient/internal/models"
)

// Form field names expected by /process-code.
const (
	FieldAPIKey   = "apiKey"
	FieldCodeFile = "codeFile"
)

// Options configures a Client.
type Options struct {
	ProcessURL  string
	RegisterURL string
	// Timeout bounds each request. Zero means no timeout.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the execution backend.
type Client struct {
	httpClient  *http.Client
	processURL  string
	registerURL string
	timeout     time.Duration
	logger      *slog.Logger
}

// New creates a backend client.
func New(opts Options, logger *slog.Logger) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		httpClient:  hc,
		processURL:  opts.ProcessURL,
		registerURL: opts.RegisterURL,
		timeout:     opts.Timeout,
		logger:      logger.With("component", "backend"),
	}
}

// ProcessCode uploads a source file for execution and returns its console output.
// Failures are *TransportError, *StatusError or *ParseError.
func (c *Client) ProcessCode(ctx context.Context, apiKey, fileName string, code io.Reader) (*models.ExecutionResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField(FieldAPIKey, apiKey); err != nil {
		return nil, fmt.Errorf("writing %s field: %w", FieldAPIKey, err)
	}
	part, err := writer.CreateFormFile(FieldCodeFile, fileName)
	if err != nil {
		return nil, fmt.Errorf("creating %s part: %w", FieldCodeFile, err)
	}
	if _, err := io.Copy(part, code); err != nil {
		return nil, fmt.Errorf("copying code file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.processURL, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	// The backend authenticates the bearer header; the form field is kept for older deployments.
	req.Header.Set("Authorization", "Bearer "+apiKey)

	start := time.Now()
	status, respBody, err := c.do(req)
	if err != nil {
		c.logger.Warn("process-code request failed", "file", fileName, "error", err)
		return nil, err
	}
	c.logger.Info("process-code completed", "file", fileName, "status", status.code, "elapsed", time.Since(start).Round(time.Millisecond))

	if status.code < 200 || status.code > 299 {
		return nil, &StatusError{Code: status.code, StatusText: status.text, Body: respBody}
	}

	var result models.ExecutionResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &ParseError{Err: err}
	}
	return &result, nil
}

// Register posts a registration. A decoded body is returned whenever one is
// present, including on non-2xx statuses, so callers can surface its error field.
func (c *Client) Register(ctx context.Context, reg models.RegistrationRequest) (*models.RegistrationResponse, error) {
	payload, err := json.Marshal(reg)
	if err != nil {
		return nil, fmt.Errorf("encoding registration: %w", err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.registerURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	status, respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp models.RegistrationResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		if status.code < 200 || status.code > 299 {
			return nil, &StatusError{Code: status.code, StatusText: status.text, Body: respBody}
		}
		return nil, &ParseError{Err: err}
	}
	if resp.Error == "" && (status.code < 200 || status.code > 299) {
		return nil, &StatusError{Code: status.code, StatusText: status.text, Body: respBody}
	}
	return &resp, nil
}

type responseStatus struct {
	code int
	text string
}

func (c *Client) do(req *http.Request) (responseStatus, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return responseStatus{}, nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return responseStatus{}, nil, &TransportError{Err: fmt.Errorf("reading body: %w", err)}
	}
	return responseStatus{code: resp.StatusCode, text: statusText(resp)}, body, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// statusText returns the reason phrase the server sent, falling back to the standard one.
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}
