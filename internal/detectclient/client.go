// Package detectclient talks to the Detection Service over its HTTP API.
// A Client satisfies session.DetectionService, gate.LockConfigSource and
// gate.Verifier.
package detectclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/fault"
	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/types"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("too many PIN attempts")
)

const (
	DefaultBaseURL = "http://localhost:8000"
	defaultTimeout = 5 * time.Second
	// maxResponseBody bounds every response; saved captures are the
	// largest.
	maxResponseBody = 32 << 20

	protobufContentType = "application/x-protobuf"
)

// APIError is a non-2xx response. It unwraps to the fault kind that the
// status code maps to.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	kind       error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("detection service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("detection service returned %d %s: %s", e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.kind }

type Options struct {
	BaseURL string
	Timeout time.Duration
	// Protobuf asks for metrics as a protobuf Struct instead of JSON.
	Protobuf   bool
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	base     *url.URL
	http     *http.Client
	protobuf bool
	logger   *slog.Logger
}

func New(opts Options) (*Client, error) {
	raw := opts.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse service url %q: %w", raw, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("service url %q: scheme must be http or https", raw)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{base: base, http: hc, protobuf: opts.Protobuf, logger: logger}, nil
}

// ── Audit lifecycle ──────────────────────────────────────────────────────────

func (c *Client) Status(ctx context.Context) (types.AuditStatus, error) {
	var resp types.StatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/status", nil, nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (c *Client) Metrics(ctx context.Context) (types.Metrics, error) {
	if c.protobuf {
		return c.metricsProto(ctx)
	}
	var m types.Metrics
	err := c.doJSON(ctx, http.MethodGet, "/api/metrics", nil, nil, &m)
	return m, err
}

func (c *Client) Start(ctx context.Context) (types.Metrics, error) {
	var m types.Metrics
	err := c.doJSON(ctx, http.MethodPost, "/api/audit/start", nil, nil, &m)
	return m, err
}

func (c *Client) Stop(ctx context.Context) (types.Metrics, error) {
	var m types.Metrics
	err := c.doJSON(ctx, http.MethodPost, "/api/audit/stop", nil, nil, &m)
	return m, err
}

func (c *Client) Reset(ctx context.Context) (types.Metrics, error) {
	var m types.Metrics
	err := c.doJSON(ctx, http.MethodPost, "/api/audit/reset", nil, nil, &m)
	return m, err
}

func (c *Client) metricsProto(ctx context.Context) (types.Metrics, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/metrics", nil, nil)
	if err != nil {
		return types.Metrics{}, err
	}
	req.Header.Set("Accept", protobufContentType)

	body, _, err := c.do(req)
	if err != nil {
		return types.Metrics{}, err
	}

	var msg structpb.Struct
	if err := proto.Unmarshal(body, &msg); err != nil {
		return types.Metrics{}, fmt.Errorf("decode metrics: %w: %w", fault.ErrValidationFailure, err)
	}
	b, err := json.Marshal(msg.AsMap())
	if err != nil {
		return types.Metrics{}, fmt.Errorf("decode metrics: %w: %w", fault.ErrValidationFailure, err)
	}
	var m types.Metrics
	if err := json.Unmarshal(b, &m); err != nil {
		return types.Metrics{}, fmt.Errorf("decode metrics: %w: %w", fault.ErrValidationFailure, err)
	}
	return m, nil
}

// ── Captures ─────────────────────────────────────────────────────────────────

func (c *Client) Capture(ctx context.Context, credential string) (types.CaptureResponse, error) {
	var resp types.CaptureResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/capture", nil, types.CaptureRequest{FilePIN: credential}, &resp)
	return resp, err
}

// Upload sends image as a multipart form. The part's content type is
// sniffed from the bytes.
func (c *Client) Upload(ctx context.Context, image []byte, persist bool, credential string) (types.UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="upload"`)
	h.Set("Content-Type", http.DetectContentType(image))
	part, err := mw.CreatePart(h)
	if err != nil {
		return types.UploadResponse{}, fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return types.UploadResponse{}, fmt.Errorf("build upload: %w", err)
	}
	if err := mw.WriteField("save", strconv.FormatBool(persist)); err != nil {
		return types.UploadResponse{}, fmt.Errorf("build upload: %w", err)
	}
	if err := mw.WriteField("file_pin", credential); err != nil {
		return types.UploadResponse{}, fmt.Errorf("build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return types.UploadResponse{}, fmt.Errorf("build upload: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/upload", nil, &buf)
	if err != nil {
		return types.UploadResponse{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, _, err := c.do(req)
	if err != nil {
		return types.UploadResponse{}, err
	}
	var resp types.UploadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return types.UploadResponse{}, fmt.Errorf("decode upload: %w: %w", fault.ErrValidationFailure, err)
	}
	return resp, nil
}

func (c *Client) SavedCaptures(ctx context.Context, credential string) ([]string, error) {
	var resp types.SavedListResponse
	q := url.Values{"file_pin": {credential}}
	if err := c.doJSON(ctx, http.MethodGet, "/api/saved", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// DownloadCapture returns a saved image and its content type.
func (c *Client) DownloadCapture(ctx context.Context, id, credential string) ([]byte, string, error) {
	q := url.Values{"file_pin": {credential}}
	req, err := c.newRequest(ctx, http.MethodGet, "/api/saved/"+url.PathEscape(id), q, nil)
	if err != nil {
		return nil, "", err
	}
	return c.do(req)
}

// ── Settings & PIN ───────────────────────────────────────────────────────────

func (c *Client) LockConfig(ctx context.Context) (types.LockConfig, error) {
	var cfg types.LockConfig
	err := c.doJSON(ctx, http.MethodGet, "/api/settings", nil, nil, &cfg)
	return cfg, err
}

func (c *Client) VerifyPIN(ctx context.Context, lock, candidate string) (bool, error) {
	var resp types.VerifyPINResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/verify_pin", nil, types.VerifyPINRequest{Lock: lock, PIN: candidate}, &resp)
	if err != nil {
		return false, err
	}
	return resp.Valid, nil
}

func (c *Client) SetPIN(ctx context.Context, lock string, enabled bool, pin string) error {
	var ack map[string]bool
	return c.doJSON(ctx, http.MethodPost, "/api/settings/"+url.PathEscape(lock)+"_pin", nil, types.SetPINRequest{Enabled: enabled, PIN: pin}, &ack)
}

// ── transport ────────────────────────────────────────────────────────────────

func (c *Client) doJSON(ctx context.Context, method, path string, q url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := c.newRequest(ctx, method, path, q, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	raw, _, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w: %w", path, fault.ErrValidationFailure, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	u := *c.base
	u.Path = c.base.Path + path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	return req, nil
}

// do sends req and returns the body of a 2xx response. Transport failures
// unwrap to fault.ErrServiceUnavailable; error responses to *APIError.
func (c *Client) do(req *http.Request) ([]byte, string, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		// Cancellation belongs to the caller, not the service.
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, "", fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, ctxErr)
		}
		return nil, "", fmt.Errorf("%s %s: %w: %w", req.Method, req.URL.Path, fault.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, "", fmt.Errorf("%s %s: read body: %w: %w", req.Method, req.URL.Path, fault.ErrServiceUnavailable, err)
	}
	c.logger.Debug("detection service call",
		"method", req.Method, "path", req.URL.Path,
		"status", resp.StatusCode, "dur", time.Since(start))

	if resp.StatusCode/100 != 2 {
		return nil, "", apiError(resp.StatusCode, body)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func apiError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status}
	var eb types.ErrorBody
	if json.Unmarshal(body, &eb) == nil {
		e.Code, e.Message = eb.Error.Code, eb.Error.Message
	}

	switch {
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		e.kind = fault.ErrCredentialDenied
	case status == http.StatusNotFound:
		e.kind = ErrNotFound
	case status == http.StatusTooManyRequests:
		e.kind = fmt.Errorf("%w: %w", ErrRateLimited, fault.ErrServiceUnavailable)
	case status >= 500:
		e.kind = fault.ErrServiceUnavailable
	default:
		e.kind = fault.ErrValidationFailure
	}
	return e
}
