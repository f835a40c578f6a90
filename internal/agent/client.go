// Package agent relays data snapshots to the external multi-agent
// orchestration server and extracts the returned analysis and optimization
// text. The server's reasoning is opaque to this package.
package agent

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	carbonpilot "github.com/carbondriven/carbon-pilot"
	"github.com/carbondriven/carbon-pilot/internal/cache"
	"github.com/carbondriven/carbon-pilot/internal/must"
	"github.com/google/uuid"
)

const (
	analyzerAgentName  = "analyzer_agent"
	optimizerAgentName = "optimizer_agent"

	maxAttempts = 3
)

// Analysis is the outcome of one pipeline run: the analyzer's impact
// categorization and the optimizer's reduction strategies, both as the JSON
// text the agents produced.
type Analysis struct {
	SessionID    string `json:"sessionId"`
	Analysis     string `json:"analysis"`
	Optimization string `json:"optimization"`
}

type ClientOption func(c *Client)

// WithBaseURL sets the orchestration server base url.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithAppName sets the pipeline app to run on the orchestration server.
func WithAppName(appName string) ClientOption {
	return func(c *Client) {
		c.appName = appName
	}
}

// WithAPIKey sets the bearer token sent on every request.
func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

// WithTimeout bounds every pipeline run end to end.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithCacheTTL sets how long an analysis is reused for an identical
// snapshot.
func WithCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.cacheTTL = ttl
	}
}

// Client talks to the orchestration server. Analyses are cached by snapshot
// digest so re-submitting unchanged data does not re-run the pipeline.
type Client struct {
	baseURL    string
	appName    string
	userID     string
	apiKey     string
	httpClient *http.Client
	cacheTTL   time.Duration
	cache      *cache.Memory
}

// NewClient returns a configured client. The cache janitor runs until ctx
// is done.
func NewClient(ctx context.Context, opts ...ClientOption) *Client {
	client := &Client{
		appName:    "pilot",
		userID:     "carbonpilot",
		httpClient: &http.Client{Timeout: 60 * time.Second},
		cacheTTL:   10 * time.Minute,
	}

	for _, option := range opts {
		option(client)
	}

	client.cache = cache.NewMemory(ctx, client.cacheTTL)

	return client
}

// Analyze relays a snapshot through the pipeline and returns the extracted
// analysis. Identical snapshots are served from cache.
func (c *Client) Analyze(ctx context.Context, snapshot string) (*Analysis, error) {
	digest := sha256.Sum256([]byte(snapshot))

	v, err := c.cache.GetOrSet(ctx, hex.EncodeToString(digest[:]), func(ctx context.Context) (any, error) {
		return c.run(ctx, snapshot)
	})
	if err != nil {
		return nil, err
	}

	analysis, ok := v.(*Analysis)
	if !ok {
		return nil, &carbonpilot.RelayErr{
			Err:       fmt.Errorf("cached value is not an analysis"),
			Operation: "load cached analysis",
		}
	}

	return analysis, nil
}

// Ping checks that the orchestration server answers.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/list-apps", nil)
	if err != nil {
		return &carbonpilot.RelayErr{Err: err, Operation: "ping orchestration server"}
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &carbonpilot.RelayErr{Err: err, Operation: "ping orchestration server"}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &carbonpilot.RelayErr{
			Err:       fmt.Errorf("orchestration server returned status %d", resp.StatusCode),
			Operation: "ping orchestration server",
		}
	}

	return nil
}

func (c *Client) run(ctx context.Context, snapshot string) (*Analysis, error) {
	sessionID := uuid.NewString()

	if err := c.createSession(ctx, sessionID); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{
		"app_name":   c.appName,
		"user_id":    c.userID,
		"session_id": sessionID,
		"new_message": map[string]any{
			"role": "user",
			"parts": []map[string]string{
				{"text": snapshot},
			},
		},
	})
	if err != nil {
		return nil, &carbonpilot.RelayErr{Err: err, Operation: "encode pipeline request"}
	}

	body, err := c.post(ctx, "/run", payload)
	if err != nil {
		return nil, err
	}

	var events []event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, &carbonpilot.RelayErr{Err: err, Operation: "decode pipeline events"}
	}
	if len(events) == 0 {
		return nil, &carbonpilot.RelayErr{
			Err:       fmt.Errorf("pipeline produced no events"),
			Operation: "run analysis pipeline",
		}
	}

	analysis := &Analysis{SessionID: sessionID}
	texts := lastTextByAuthor(events)
	analysis.Analysis = extractJSONBlock(texts[analyzerAgentName])
	analysis.Optimization = extractJSONBlock(texts[optimizerAgentName])

	// agents renamed server side still yield the final event's text
	if analysis.Analysis == "" && analysis.Optimization == "" {
		analysis.Optimization = extractJSONBlock(lastText(events))
	}

	slog.Debug("analysis pipeline completed", "session_id", sessionID, "events", len(events))

	return analysis, nil
}

func (c *Client) createSession(ctx context.Context, sessionID string) error {
	path := fmt.Sprintf("/apps/%s/users/%s/sessions/%s", c.appName, c.userID, sessionID)
	if _, err := c.post(ctx, path, []byte("{}")); err != nil {
		return err
	}
	return nil
}

// post sends a JSON payload, retrying transport errors and 5xx answers with
// a linear backoff.
func (c *Client) post(ctx context.Context, path string, payload []byte) ([]byte, error) {
	wait := must.NewWait(2 * time.Second)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}

		wait.Linearly(500 * time.Millisecond)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, &carbonpilot.RelayErr{Err: err, Operation: "build pipeline request"}
		}
		req.Header.Set("Content-Type", "application/json")
		c.authorize(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			slog.Warn("pipeline request failed", "path", path, "attempt", attempt+1, "err", err.Error())
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("orchestration server returned status %d", resp.StatusCode)
			slog.Warn("pipeline request failed", "path", path, "attempt", attempt+1, "status", resp.StatusCode)
			continue
		}

		if resp.StatusCode >= 400 {
			return nil, &carbonpilot.RelayErr{
				Err:       fmt.Errorf("orchestration server returned status %d: %s", resp.StatusCode, body),
				Operation: "run analysis pipeline",
			}
		}

		return body, nil
	}

	return nil, &carbonpilot.RelayErr{Err: lastErr, Operation: "run analysis pipeline"}
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

type event struct {
	Author  string `json:"author"`
	Content struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"content"`
}

func (e event) text() string {
	for _, part := range e.Content.Parts {
		if part.Text != "" {
			return part.Text
		}
	}
	return ""
}

func lastTextByAuthor(events []event) map[string]string {
	texts := make(map[string]string)
	for _, ev := range events {
		if text := ev.text(); text != "" {
			texts[ev.Author] = text
		}
	}
	return texts
}

func lastText(events []event) string {
	for i := len(events) - 1; i >= 0; i-- {
		if text := events[i].text(); text != "" {
			return text
		}
	}
	return ""
}

// extractJSONBlock cuts the text down to the outermost JSON object when the
// agent wrapped it in prose. Text without braces passes through unchanged.
func extractJSONBlock(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}
