package arbitrate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config for the OpenAI-compatible arbitration client.
type Config struct {
	APIKey      string        // if empty, falls back to env ARBITER_API_KEY
	BaseURL     string        // default https://api.openai.com/v1
	Model       string        // e.g. "gpt-4o-mini"
	Temperature float32       // 0..2
	Timeout     time.Duration // per-call http timeout
}

// Client implements Arbitrator against a chat/completions endpoint with a
// JSON-schema-constrained response.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ARBITER_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Arbitrate sends the evidence bundle and returns the service's verdict.
// Transport failures, non-2xx statuses and schema-invalid answers all come
// back as ErrUnavailable: arbitration failure is never fatal upstream.
func (c *Client) Arbitrate(ctx context.Context, ev Evidence) (Verdict, error) {
	rid := uuid.New().String()
	start := time.Now()

	fields := fieldNames(ev.Candidates)
	schema := BuildVerdictSchema(fields)

	c.logger.Info("arbitrate.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"identifier", ev.Identifier,
		"candidates", len(ev.Candidates),
	)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt(fields)},
			{"role": "user", "content": userPrompt(ev)},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.logger.Error("arbitrate.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil || len(cc.Choices) == 0 {
		c.logger.Error("arbitrate.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return Verdict{}, fmt.Errorf("%w: undecodable response", ErrUnavailable)
	}

	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))
	if err := ValidateJSONAgainstSchema(schema, content); err != nil {
		c.logger.Error("arbitrate.schema_validation_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var verdict Verdict
	if err := json.Unmarshal(content, &verdict); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.logger.Info("arbitrate.ok",
		"req_id", rid,
		"identifier", ev.Identifier,
		"field", verdict.Field,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return verdict, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("arbitrate response body close error", "error", err)
		}
	}()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(raw), 512))
	}
	return raw, nil
}

func systemPrompt(fields []string) string {
	parts := []string{
		"You are an arbiter for conflicting values extracted from a financial statement.",
		"Pick the single correct value for the disputed field, based only on the evidence provided.",
		"Return ONLY JSON that matches the provided JSON Schema.",
		"The 'field' MUST be one of: " + strings.Join(fields, ", ") + ".",
		"Keep 'rationale' to one short sentence.",
		"Never output null. Never invent values absent from the evidence unless the context text plainly supports them.",
	}
	return strings.Join(parts, " ")
}

func userPrompt(ev Evidence) string {
	var b strings.Builder
	b.WriteString("Identifier: ")
	b.WriteString(ev.Identifier)
	b.WriteString("\nCandidates:\n")
	for _, cand := range ev.Candidates {
		fmt.Fprintf(&b, "- field=%s value=%q source=%s confidence=%.2f\n",
			cand.Field, cand.Value, cand.Source, cand.Confidence)
	}
	b.WriteString("\nContext text:\n")
	b.WriteString(truncate(ev.ContextText, 3000))
	return b.String()
}

func fieldNames(candidates []Candidate) []string {
	seen := make(map[string]bool)
	var fields []string
	for _, cand := range candidates {
		if !seen[cand.Field] {
			seen[cand.Field] = true
			fields = append(fields, cand.Field)
		}
	}
	return fields
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…(truncated)"
}
