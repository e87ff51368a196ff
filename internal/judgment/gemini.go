package judgment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/banking/compliance-sentinel/internal/config"
	"github.com/banking/compliance-sentinel/internal/pkg/logger"
)

// GeminiClient implements Client against a Gemini-style generateContent
// endpoint. All calls go through a circuit breaker so a degraded capability
// fails fast instead of stalling every pipeline run on timeouts.
type GeminiClient struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	baseURL    string
	model      string
	apiKey     string
	log        *logger.Logger
}

// NewGeminiClient creates a capability client from configuration.
func NewGeminiClient(cfg config.JudgmentConfig, log *logger.Logger) *GeminiClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "judgment",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
	})

	return &GeminiClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		log:        log.Named("judgment_client"),
	}
}

type generateRequest struct {
	SystemInstruction *content         `json:"system_instruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Judge sends the prompt to the capability and returns the raw text
// response. Any transport, HTTP, decode, or empty-response failure comes
// back as a *CapabilityError.
func (c *GeminiClient) Judge(ctx context.Context, systemInstruction, prompt string, structured bool) (string, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.call(ctx, systemInstruction, prompt, structured)
	})
	if err != nil {
		return "", &CapabilityError{Op: "judge", Err: err}
	}
	return result.(string), nil
}

func (c *GeminiClient) call(ctx context.Context, systemInstruction, prompt string, structured bool) (string, error) {
	reqBody := generateRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: prompt}}},
		},
		GenerationConfig: generationConfig{Temperature: 0.3},
	}
	if systemInstruction != "" {
		reqBody.SystemInstruction = &content{Parts: []part{{Text: systemInstruction}}}
	}
	if structured {
		reqBody.GenerationConfig.ResponseMimeType = "application/json"
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transport: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response")
	}

	text := parsed.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return "", fmt.Errorf("empty response text")
	}

	c.log.Debug("judgment call completed",
		logger.BoolField("structured", structured),
		logger.DurationField("duration", time.Since(start)),
	)

	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
