package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const DefaultResponsesURL = "https://api.openai.com/v1/responses"

// ResponsesConfig configures a model reached through a Responses-style HTTP
// endpoint.
type ResponsesConfig struct {
	URL        string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// ResponsesClient parses claims and answers consultations with single-turn
// requests. It makes no tool calls, so its transcripts never carry a
// verifiable transaction id.
type ResponsesClient struct {
	cfg ResponsesConfig
}

func NewResponsesClient(cfg ResponsesConfig) *ResponsesClient {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultResponsesURL
	}
	return &ResponsesClient{cfg: cfg}
}

const parsePrompt = `Extract the reimbursement claim from the text below. Reply with only a JSON object of the form {"amount": number, "purpose": string, "recipient": string}. Use an empty string for recipient when none is named.

Text: `

func (c *ResponsesClient) Parse(ctx context.Context, text string) (Parsed, error) {
	out, err := c.invoke(ctx, parsePrompt+text)
	if err != nil {
		return Parsed{}, err
	}
	match := jsonObjectPattern.FindString(out)
	if match == "" {
		return Parsed{}, fmt.Errorf("parse response has no JSON object")
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return Parsed{}, fmt.Errorf("decode parse response: %w", err)
	}
	parsed := Parsed{
		Amount:    number(raw["amount"]),
		Purpose:   str(raw["purpose"]),
		Recipient: str(raw["recipient"]),
	}
	if parsed.Purpose == "" {
		parsed.Purpose = text
	}
	return parsed, nil
}

func (c *ResponsesClient) Consult(ctx context.Context, consult Consultation) (Transcript, error) {
	out, err := c.invoke(ctx, consult.Prompt)
	if err != nil {
		return Transcript{}, err
	}
	return Transcript{Messages: []Message{
		{Role: RoleUser, Content: consult.Prompt},
		{Role: RoleAssistant, Content: out},
	}}, nil
}

func (c *ResponsesClient) invoke(ctx context.Context, input string) (string, error) {
	apiKey := strings.TrimSpace(c.cfg.APIKey)
	model := strings.TrimSpace(c.cfg.Model)
	if apiKey == "" {
		return "", fmt.Errorf("%w: api key is required", ErrUnavailable)
	}
	if model == "" {
		return "", fmt.Errorf("%w: model is required", ErrUnavailable)
	}

	body, err := json.Marshal(map[string]any{"model": model, "input": input})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: request failed: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		err := fmt.Errorf("request status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
		if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusNotFound || res.StatusCode >= 500 {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return "", err
	}

	var payload struct {
		OutputText string `json:"output_text"`
		Output     []struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if text := strings.TrimSpace(payload.OutputText); text != "" {
		return text, nil
	}
	for _, item := range payload.Output {
		for _, content := range item.Content {
			if text := strings.TrimSpace(content.Text); text != "" {
				return text, nil
			}
		}
	}
	return "", fmt.Errorf("response missing output text")
}
