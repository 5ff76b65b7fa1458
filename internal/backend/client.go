// Package backend is the HTTP client for the capture API: recording
// storage, session creation, speech-to-text, act extraction, subscription
// lookup, and auth refresh.
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
	"strings"
	"sync/atomic"
	"time"

	"github.com/actcue/actcue/internal/auth"
	"github.com/actcue/actcue/internal/policy"
)

// TokenSource supplies the bearer token attached to every request.
type TokenSource interface {
	Token() string
}

// RecordingMeta is the capture metadata stored alongside an uploaded blob.
type RecordingMeta struct {
	Title           string  `json:"title"`
	Category        string  `json:"category"`
	Description     string  `json:"description"`
	Share           bool    `json:"share"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Transcript is the speech-to-text result for one recording.
type Transcript struct {
	Text string `json:"text"`
}

// ExtractedAct is one action statement derived from a transcript.
type ExtractedAct struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Client talks to the capture backend over JSON/HTTP.
type Client struct {
	baseURL    string
	healthPath string
	http       *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

// New constructs a client. tokens may be nil for unauthenticated probes.
func New(baseURL string, healthPath string, timeout time.Duration, tokens TokenSource, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if healthPath == "" {
		healthPath = "/v1/health"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		healthPath: healthPath,
		http:       &http.Client{Timeout: timeout},
		tokens:     tokens,
		logger:     logger,
	}
}

// SaveRecording uploads a WAV blob with its metadata and returns the
// recording id. onProgress, when non-nil, observes upload byte counts as
// the transport consumes the request body.
func (c *Client) SaveRecording(ctx context.Context, wav []byte, meta RecordingMeta, onProgress func(sent, total int64)) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode recording metadata: %w", err)
	}
	if err := writer.WriteField("metadata", string(metaJSON)); err != nil {
		return "", fmt.Errorf("write metadata field: %w", err)
	}

	part, err := writer.CreateFormFile("audio", "capture.wav")
	if err != nil {
		return "", fmt.Errorf("create audio part: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("write audio part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalize multipart body: %w", err)
	}

	total := int64(body.Len())
	reader := &countingReader{reader: &body, total: total, onProgress: onProgress}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/recordings", reader)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.ContentLength = total
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload recording: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		RecordingID string `json:"recording_id"`
	}
	if err := decodeResponse(resp, &out); err != nil {
		return "", err
	}
	if out.RecordingID == "" {
		return "", fmt.Errorf("upload recording: backend returned no recording id")
	}
	return out.RecordingID, nil
}

// CreateSession registers a capture session for a stored recording and
// returns the session id.
func (c *Client) CreateSession(ctx context.Context, recordingID string, meta RecordingMeta) (string, error) {
	in := struct {
		RecordingID string `json:"recording_id"`
		RecordingMeta
	}{RecordingID: recordingID, RecordingMeta: meta}

	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions", in, &out); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("create session: backend returned no session id")
	}
	return out.SessionID, nil
}

// Transcribe runs speech-to-text on a stored recording. Duration is passed
// so the service can prioritize work; the call is otherwise opaque.
func (c *Client) Transcribe(ctx context.Context, recordingID string, duration time.Duration) (Transcript, error) {
	in := struct {
		RecordingID     string  `json:"recording_id"`
		DurationSeconds float64 `json:"duration_seconds"`
	}{RecordingID: recordingID, DurationSeconds: duration.Seconds()}

	var out Transcript
	if err := c.doJSON(ctx, http.MethodPost, "/v1/transcriptions", in, &out); err != nil {
		return Transcript{}, err
	}
	return out, nil
}

// ExtractActs derives action statements from a transcript.
func (c *Client) ExtractActs(ctx context.Context, sessionID string, transcript string) ([]ExtractedAct, error) {
	in := struct {
		SessionID  string `json:"session_id"`
		Transcript string `json:"transcript"`
	}{SessionID: sessionID, Transcript: transcript}

	var out struct {
		Acts []ExtractedAct `json:"acts"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/extractions", in, &out); err != nil {
		return nil, err
	}
	return out.Acts, nil
}

// CurrentTier returns the caller's subscription tier.
func (c *Client) CurrentTier(ctx context.Context) (policy.Tier, error) {
	var out struct {
		Tier string `json:"tier"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/subscription", nil, &out); err != nil {
		return "", err
	}
	return policy.Tier(out.Tier), nil
}

// RefreshSession exchanges a bearer token for a fresh one.
func (c *Client) RefreshSession(ctx context.Context, token string) (auth.Token, error) {
	in := struct {
		Token string `json:"token"`
	}{Token: token}

	var out auth.Token
	if err := c.doJSON(ctx, http.MethodPost, "/v1/auth/refresh", in, &out); err != nil {
		return auth.Token{}, err
	}
	return out, nil
}

// Health probes the backend readiness endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend health probe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend health probe: HTTP %d", resp.StatusCode)
	}
	return nil
}

// doJSON runs one JSON request/response roundtrip against an API path.
func (c *Client) doJSON(ctx context.Context, method string, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if c.logger != nil {
		c.logger.Debug("backend call",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"latency_ms", time.Since(started).Milliseconds(),
		)
	}

	return decodeResponse(resp, out)
}

// authorize attaches the bearer token when a token source is configured.
func (c *Client) authorize(req *http.Request) {
	if c.tokens == nil {
		return
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// decodeResponse maps non-2xx statuses to errors and decodes the body.
func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		text := strings.TrimSpace(string(snippet))
		if text == "" {
			return fmt.Errorf("backend returned HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("backend returned HTTP %d: %s", resp.StatusCode, text)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode backend response: %w", err)
	}
	return nil
}

// countingReader reports cumulative bytes consumed by the HTTP transport.
type countingReader struct {
	reader     io.Reader
	total      int64
	sent       atomic.Int64
	onProgress func(sent, total int64)
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		sent := r.sent.Add(int64(n))
		if r.onProgress != nil {
			r.onProgress(sent, r.total)
		}
	}
	return n, err
}
