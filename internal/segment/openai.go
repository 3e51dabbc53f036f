package segment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	Limits      Limits
}

// OpenAITranslator asks an OpenAI-compatible chat endpoint for a JSON query
// plan. The model output is untrusted: it is parsed and validated against the
// same whitelist as every other plan, so the model can never inject SQL.
type OpenAITranslator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	limits      Limits
	client      *http.Client
}

func NewOpenAITranslator(cfg OpenAIConfig) (*OpenAITranslator, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-5"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenAITranslator{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		limits:      cfg.Limits.withDefaults(),
		client:      &http.Client{Timeout: timeout},
	}, nil
}

func (t *OpenAITranslator) Translate(ctx context.Context, query string) (Outcome, error) {
	body, err := json.Marshal(buildPlanPayload(t.model, t.temperature, query))
	if err != nil {
		return Outcome{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Outcome{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Outcome{}, fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{}, fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Outcome{}, fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, string(rawRespBody))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return Outcome{}, fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Outcome{}, fmt.Errorf("empty chat completion choices")
	}

	return t.parseModelPlan(parsed.Choices[0].Message.Content)
}

func (t *OpenAITranslator) parseModelPlan(content string) (Outcome, error) {
	content = stripMarkdownJSON(content)

	var envelope struct {
		Plan          *QueryPlan `json:"plan"`
		Clarification string     `json:"clarification"`
	}
	if err := json.Unmarshal([]byte(content), &envelope); err != nil {
		return Outcome{}, fmt.Errorf("decode model plan: %w", err)
	}

	if envelope.Plan == nil {
		message := strings.TrimSpace(envelope.Clarification)
		if message == "" {
			return clarification(), nil
		}
		return Outcome{Clarification: message, Suggestions: clarification().Suggestions}, nil
	}

	validated, err := Validate(*envelope.Plan, t.limits)
	if err != nil {
		// A plan outside the whitelist is treated as not understood, never
		// executed partially.
		return clarification(), nil
	}
	return Outcome{Plan: &validated}, nil
}

func buildPlanPayload(model string, temperature float64, query string) map[string]any {
	systemPrompt := "You convert natural language customer segmentation requests into a JSON query plan. " +
		"Respond ONLY with JSON of the shape " +
		`{"plan": {"predicates": [{"field": "...", "op": "...", "value": 0, "upper": 0, "days": 0}], "sort_by": "...", "sort_desc": false, "limit": 0}} ` +
		"or, when the request cannot be expressed, " +
		`{"clarification": "..."}. ` +
		"Allowed fields: total_orders, total_value (ops gte, gt, lte, lt, eq, between), last_purchase (ops older_than, newer_than with days). " +
		"No markdown, no explanation."
	userPrompt := strings.TrimSpace(query)

	return map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": temperature,
	}
}

func stripMarkdownJSON(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
