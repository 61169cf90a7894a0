package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// OpenAIProvider implements the Provider interface for OpenAI
type OpenAIProvider struct {
	apiKey    string
	model     string
	maxTokens int
	timeout   time.Duration
	logger    *zap.Logger
	baseURL   string
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey, model string, maxTokens int, timeout time.Duration, logger *zap.Logger) *OpenAIProvider {
	if apiKey == "" {
		return &OpenAIProvider{logger: logger}
	}

	return &OpenAIProvider{
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
		logger:    logger,
		baseURL:   "https://api.openai.com/v1",
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// IsAvailable checks if the provider is available
func (p *OpenAIProvider) IsAvailable() bool {
	return p.apiKey != ""
}

// GenerateQuery translates a natural-language question into a single SQL
// statement against the documented schema.
func (p *OpenAIProvider) GenerateQuery(ctx context.Context, req *QueryRequest) (string, error) {
	if !p.IsAvailable() {
		return "", fmt.Errorf("OpenAI provider not available")
	}

	systemPrompt := `You translate questions about a building-materials business into SQL.
Rules:
- Return exactly one SQL statement and nothing else. No prose, no explanation.
- Use only the tables and columns from the schema below.
- Prefer SELECT; use a row limit when listing.
- Inline literal values directly in the statement. Never use placeholders,
  host variables or @variables; the statement is executed exactly as written.

Schema:
` + req.Schema

	userPrompt := req.Question
	if req.History != "" {
		userPrompt = "Recent conversation:\n" + req.History + "\n\nQuestion: " + req.Question
	}

	return p.chat(ctx, systemPrompt, userPrompt, 0.0)
}

// SummarizeRows renders raw rows into a short spoken answer in the language
// of the original question.
func (p *OpenAIProvider) SummarizeRows(ctx context.Context, req *SummarizeRowsRequest) (string, error) {
	if !p.IsAvailable() {
		return "", fmt.Errorf("OpenAI provider not available")
	}

	rowsJSON, err := json.Marshal(req.Rows)
	if err != nil {
		return "", fmt.Errorf("failed to marshal rows: %w", err)
	}

	systemPrompt := `You summarize database results for a voice assistant.
Answer in one or two short sentences, in the same language as the question.
Do not mention SQL, tables or columns. Round amounts naturally.`

	userPrompt := fmt.Sprintf("Question: %s\nQuery: %s\nRows: %s", req.Question, req.Query, string(rowsJSON))
	if req.Truncated {
		userPrompt += "\n(The row list was truncated; mention that more results exist.)"
	}

	return p.chat(ctx, systemPrompt, userPrompt, 0.3)
}

func (p *OpenAIProvider) chat(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error) {
	messages := []map[string]interface{}{
		{"role": "system", "content": systemPrompt},
		{"role": "user", "content": userPrompt},
	}

	requestBody := map[string]interface{}{
		"model":       p.model,
		"messages":    messages,
		"max_tokens":  p.maxTokens,
		"temperature": temperature,
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	client := &http.Client{Timeout: p.timeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("OpenAI API error: %d - %s", resp.StatusCode, string(body))
	}

	var openAIResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&openAIResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(openAIResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return strings.TrimSpace(openAIResp.Choices[0].Message.Content), nil
}
