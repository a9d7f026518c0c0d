// Package client talks to the recognition backend. Every call is exactly one
// HTTP attempt; responses are decoded into closed result types per endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/andresmejia3/rollcall/internal/encoder"
	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/rs/zerolog/log"
)

// Endpoint paths relative to the backend base URL.
const (
	EndpointProcessFrame    = "api/process_frame"
	EndpointSaveImage       = "api/save_image"
	EndpointTrain           = "api/train"
	EndpointAttendanceToday = "api/attendance_today"
	EndpointUsers           = "api/users"
)

const maxResponseBytes = 1 << 20

// TransportError reports a network failure or an unparseable response.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err is (or wraps) a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Client is a recognition backend client.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// New creates a client for the backend at rawURL. A timeout of zero leaves
// requests unbounded.
func New(rawURL string, timeout time.Duration) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(rawURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme must be http or https", rawURL)
	}
	return &Client{baseURL: parsed, http: &http.Client{Timeout: timeout}}, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

type statusEnvelope struct {
	Status     string     `json:"status"`
	Message    string     `json:"message"`
	Name       string     `json:"name"`
	UserID     flexString `json:"user_id"`
	Confidence *float64   `json:"confidence"`
	Marked     bool       `json:"marked"`
	Count      int        `json:"count"`
}

// ProcessFrame submits an attendance frame.
func (c *Client) ProcessFrame(ctx context.Context, frame encoder.EncodedFrame) (FrameResult, error) {
	form := url.Values{}
	form.Set("image", frame.DataURL())

	env, err := c.postForm(ctx, EndpointProcessFrame, form)
	if err != nil {
		return nil, err
	}

	switch env.Status {
	case "recognized":
		if env.Confidence == nil {
			return nil, &TransportError{Endpoint: EndpointProcessFrame, Err: errors.New("malformed response: recognized without confidence")}
		}
		return Recognized{UserID: string(env.UserID), Name: env.Name, Confidence: *env.Confidence, Marked: env.Marked}, nil
	case "unknown":
		if env.Confidence == nil {
			return nil, &TransportError{Endpoint: EndpointProcessFrame, Err: errors.New("malformed response: unknown without confidence")}
		}
		return Unknown{Confidence: *env.Confidence}, nil
	case "no_face":
		return NoFace{}, nil
	default:
		return FrameRejected{Status: env.Status, Message: env.Message}, nil
	}
}

// SaveImage submits one enrollment sample for the identity.
func (c *Client) SaveImage(ctx context.Context, id types.Identity, frame encoder.EncodedFrame) (SaveResult, error) {
	id = id.Trimmed()
	form := url.Values{}
	form.Set("user_id", id.ID)
	form.Set("user_name", id.Name)
	form.Set("image", frame.DataURL())

	env, err := c.postForm(ctx, EndpointSaveImage, form)
	if err != nil {
		return nil, err
	}
	if env.Status == "success" {
		return Saved{Message: env.Message, Count: env.Count}, nil
	}
	return SaveRejected{Message: env.Message}, nil
}

// Train asks the backend to rebuild its model from the stored samples.
func (c *Client) Train(ctx context.Context) (TrainResult, error) {
	env, err := c.postForm(ctx, EndpointTrain, nil)
	if err != nil {
		return nil, err
	}
	if env.Status == "success" {
		return Trained{Message: env.Message}, nil
	}
	return TrainRejected{Message: env.Message}, nil
}

// AttendanceToday fetches today's attendance marks.
func (c *Client) AttendanceToday(ctx context.Context) ([]AttendanceRecord, error) {
	var rows []struct {
		UserID flexString `json:"user_id"`
		Name   string     `json:"name"`
		Date   string     `json:"date"`
		Time   string     `json:"time"`
	}
	if err := c.getJSON(ctx, EndpointAttendanceToday, &rows); err != nil {
		return nil, err
	}
	out := make([]AttendanceRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, AttendanceRecord{UserID: string(r.UserID), Name: r.Name, Date: r.Date, Time: r.Time})
	}
	return out, nil
}

// Users fetches the enrolled users.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var rows []struct {
		UserID flexString `json:"user_id"`
		Name   string     `json:"name"`
	}
	if err := c.getJSON(ctx, EndpointUsers, &rows); err != nil {
		return nil, err
	}
	out := make([]User, 0, len(rows))
	for _, r := range rows {
		out = append(out, User{UserID: string(r.UserID), Name: r.Name})
	}
	return out, nil
}

// postForm sends a form-encoded POST and decodes the status envelope. The body
// is decoded whatever the HTTP status, since rejections come back as 400 + JSON.
func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) (*statusEnvelope, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolveURL(endpoint), body)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("could not create request: %w", err)}
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	raw, code, err := c.do(req, endpoint)
	if err != nil {
		return nil, err
	}

	var env statusEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("could not unmarshal response (HTTP %d): %w", code, err)}
	}
	if env.Status == "" {
		return nil, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("malformed response (HTTP %d): missing status", code)}
	}
	return &env, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolveURL(endpoint), nil)
	if err != nil {
		return &TransportError{Endpoint: endpoint, Err: fmt.Errorf("could not create request: %w", err)}
	}

	raw, code, err := c.do(req, endpoint)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return &TransportError{Endpoint: endpoint, Err: fmt.Errorf("request failed with status %d: %s", code, bytes.TrimSpace(raw))}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &TransportError{Endpoint: endpoint, Err: fmt.Errorf("could not unmarshal response: %w", err)}
	}
	return nil
}

func (c *Client) do(req *http.Request, endpoint string) ([]byte, int, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("could not send request: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, &TransportError{Endpoint: endpoint, Err: fmt.Errorf("could not read response body: %w", err)}
	}

	log.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("backend call")
	return raw, resp.StatusCode, nil
}

func (c *Client) resolveURL(endpoint string) string {
	return c.baseURL.JoinPath(endpoint).String()
}

// flexString accepts a JSON string or number; the backend sends numeric user ids.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*f = flexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexString(n.String())
	return nil
}
