// Package llm turns normalized sensor readings plus a user question into a
// natural-language answer via the Groq chat-completions API. The generator
// is treated as a pure function from (question, data) to text: any API
// failure degrades to a templated answer, never a hard error on the UI path.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"sensorchat-backend/config"
	"sensorchat-backend/internal/model"
)

const systemPrompt = "You are an expert assistant for an IoT sensor dashboard. " +
	"Answer questions about the sensor data you are given, clearly and concisely. " +
	"Only use values present in the data; say so when the data cannot answer the question."

// Generator calls the Groq API.
type Generator struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	http        *http.Client
}

// Answer is one generated response.
type Answer struct {
	Text       string
	Model      string
	TokensUsed int
	Degraded   bool // true when the templated fallback was used
}

// NewGenerator builds a generator from config. An empty API key is allowed;
// every call then degrades to the templated answer.
func NewGenerator(cfg *config.LLMConfig) *Generator {
	return &Generator{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		http:        &http.Client{Timeout: cfg.Timeout},
	}
}

// Model returns the configured model name.
func (g *Generator) Model() string {
	return g.model
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate answers the question from the given readings. It never returns an
// error: failures yield the degraded templated answer so the dashboard keeps
// working without the LLM.
func (g *Generator) Generate(ctx context.Context, question string, readings []model.Reading) Answer {
	if g.apiKey == "" {
		log.Printf("llm: no API key configured, using templated answer")
		return g.degraded(question, readings)
	}

	answer, err := g.complete(ctx, BuildPrompt(question, readings))
	if err != nil {
		log.Printf("llm: generation failed (%v), using templated answer", err)
		return g.degraded(question, readings)
	}
	return answer
}

// complete performs one chat-completion round trip.
func (g *Generator) complete(ctx context.Context, prompt string) (Answer, error) {
	payload, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Answer{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return Answer{}, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Answer{}, fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, body)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Answer{}, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Answer{}, errors.New("chat response contained no choices")
	}

	return Answer{
		Text:       parsed.Choices[0].Message.Content,
		Model:      g.model,
		TokensUsed: parsed.Usage.TotalTokens,
	}, nil
}

// degraded builds the templated fallback answer from the data alone.
func (g *Generator) degraded(question string, readings []model.Reading) Answer {
	return Answer{
		Text:     FallbackAnswer(question, readings),
		Model:    g.model,
		Degraded: true,
	}
}
