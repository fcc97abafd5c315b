package completion

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

const requestTimeout = 30 * time.Second

var tonePrompts = map[string]string{
	"PROFESSIONAL": "You are a professional real estate copywriter. Generate compelling, " +
		"accurate, and professional property descriptions that highlight key features " +
		"and benefits. Use industry-standard terminology and maintain a professional tone.",
	"LUXURY": "You are a luxury real estate copywriter. Create elegant, sophisticated " +
		"descriptions that evoke exclusivity and prestige. Use rich, descriptive language " +
		"that appeals to high-end buyers. Emphasize luxury features, quality, and lifestyle.",
	"FRIENDLY": "You are a friendly and approachable real estate copywriter. Write warm, " +
		"inviting descriptions that make potential buyers feel at home. Use conversational " +
		"language while remaining informative and honest.",
	"CONCISE": "You are a concise real estate copywriter. Create brief, punchy descriptions " +
		"that get straight to the point. Highlight only the most important features " +
		"in a clear, direct manner. Keep descriptions under 150 words.",
	"DETAILED": "You are a detailed real estate copywriter. Provide comprehensive, thorough " +
		"descriptions that cover all aspects of the property. Include specific details " +
		"about features, layout, and amenities. Paint a complete picture for buyers.",
}

type DeepSeekProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewDeepSeek(baseURL, apiKey, model string) *DeepSeekProvider {
	return &DeepSeekProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

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
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *DeepSeekProvider) GenerateDescription(ctx context.Context, req Request) (string, error) {
	if p.apiKey == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(req.Tone)},
			{Role: "user", Content: buildPrompt(req)},
		},
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error != nil {
			message = parsed.Error.Message
		}
		return "", &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func systemPrompt(tone string) string {
	if prompt, ok := tonePrompts[strings.ToUpper(strings.TrimSpace(tone))]; ok {
		return prompt
	}
	return tonePrompts["PROFESSIONAL"]
}

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a compelling property description for the following %s:\n\n",
		strings.ToLower(req.PropertyType))

	fmt.Fprintf(&b, "**Property Type:** %s\n", req.PropertyType)
	fmt.Fprintf(&b, "**Location:** %s\n", location(req))
	fmt.Fprintf(&b, "**Price:** $%d.%02d\n", req.PriceCents/100, req.PriceCents%100)

	if req.Bedrooms != nil {
		fmt.Fprintf(&b, "**Bedrooms:** %d\n", *req.Bedrooms)
	}
	if req.Bathrooms != nil {
		fmt.Fprintf(&b, "**Bathrooms:** %.1f\n", *req.Bathrooms)
	}
	if req.SquareFeet != nil {
		fmt.Fprintf(&b, "**Square Footage:** %d sqft\n", *req.SquareFeet)
	}
	if req.LotSize != nil {
		fmt.Fprintf(&b, "**Lot Size:** %d sqft\n", *req.LotSize)
	}
	if req.YearBuilt != nil {
		fmt.Fprintf(&b, "**Year Built:** %d\n", *req.YearBuilt)
	}
	if len(req.KeyFeatures) > 0 {
		fmt.Fprintf(&b, "**Key Features:** %s\n", strings.Join(req.KeyFeatures, ", "))
	}
	fmt.Fprintf(&b, "**Target Audience:** %s\n", req.TargetAudience)
	if req.AdditionalNotes != "" {
		fmt.Fprintf(&b, "**Additional Information:** %s\n", req.AdditionalNotes)
	}

	b.WriteString("\nCreate an SEO-optimized description that highlights the property's best features " +
		"and appeals to the target audience. Focus on benefits and lifestyle. " +
		"Do not include a title or heading - just the description text.")
	return b.String()
}

func location(req Request) string {
	parts := []string{req.City}
	if req.State != "" {
		parts = append(parts, req.State)
	}
	if req.Country != "" && req.Country != "USA" {
		parts = append(parts, req.Country)
	}
	return strings.Join(parts, ", ")
}
