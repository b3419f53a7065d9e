package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/solarsentry/space-weather-forecast/internal/domain"
)

const systemPrompt = `You are a space weather forecaster writing for satellite operators, ` +
	`power grid engineers and aviation planners. Write a forecast in plain prose. ` +
	`Start with a single title line containing the word "Forecast". Then describe ` +
	`current solar activity, expected impacts on infrastructure over the next 24 ` +
	`hours, and a closing outlook. Do not invent events beyond the data provided.`

// Client implements domain.NarrativeGenerator using the OpenAI chat
// completions API. Every failure mode, transport errors, non-200 statuses,
// empty completions, surfaces as an error so the caller can fall back.
type Client struct {
	apiKey     string
	model      string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates an OpenAI narrative client.
func NewClient(baseURL, apiKey, model string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		logger:  logger,
	}
}

// Generate asks the model for a forecast narrative grounded in the window
// summary.
func (c *Client) Generate(ctx context.Context, req domain.NarrativeRequest) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(req)},
		},
		Temperature: 0.7,
		MaxTokens:   700,
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("openai API error: status %d: %s", resp.StatusCode, excerpt)
	}

	var completion chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", errors.New("empty completion")
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("blank completion content")
	}
	return content, nil
}

// buildPrompt renders the window summary as a compact fact sheet. Map-backed
// distributions are emitted in fixed severity order so identical summaries
// produce identical prompts.
func buildPrompt(req domain.NarrativeRequest) string {
	var b strings.Builder

	summary := req.Summary
	fmt.Fprintf(&b, "Observation window: last %d days.\n", summary.WindowDays)

	fmt.Fprintf(&b, "Coronal mass ejections: %d", summary.CME.Count)
	if summary.CME.Count > 0 {
		fmt.Fprintf(&b, " (earth-directed: %d, average speed: %.0f km/s, max speed: %.0f km/s)",
			summary.CME.EarthDirected, summary.CME.AverageSpeed, summary.CME.MaxSpeed)
		if dist := formatSeverities(summary.CME.Severity); dist != "" {
			fmt.Fprintf(&b, ", severity: %s", dist)
		}
	}
	b.WriteString(".\n")

	fmt.Fprintf(&b, "Solar flares: %d", summary.Flare.Count)
	if summary.Flare.Count > 0 {
		fmt.Fprintf(&b, " (X-class: %d", summary.Flare.XClass)
		if dist := formatClasses(summary.Flare.ByClass); dist != "" {
			fmt.Fprintf(&b, ", by class: %s", dist)
		}
		b.WriteString(")")
	}
	b.WriteString(".\n")

	fmt.Fprintf(&b, "Composite risk index: %.1f/100, level %s.\n", req.Risk.Score, req.Risk.Level)

	if summary.HasErrors() {
		b.WriteString("Data caveat: some feed categories failed to load this window; treat the picture as partial.\n")
	}
	return b.String()
}

func formatSeverities(dist map[domain.Severity]int) string {
	order := []domain.Severity{domain.SeverityExtreme, domain.SeverityHigh, domain.SeverityModerate, domain.SeverityLow}
	parts := make([]string, 0, len(order))
	for _, severity := range order {
		if n := dist[severity]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, severity))
		}
	}
	return strings.Join(parts, ", ")
}

func formatClasses(dist map[string]int) string {
	order := []string{"X", "M", "C", "B", "A"}
	parts := make([]string, 0, len(order))
	for _, class := range order {
		if n := dist[class]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, class))
		}
	}
	return strings.Join(parts, ", ")
}

// OpenAI API request and response types.

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}
