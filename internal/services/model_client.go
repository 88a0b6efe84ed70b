package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// LanguageModel produces a completion for a fully rendered prompt
type LanguageModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiConfig configures the Gemini-backed language model
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string // empty uses the public endpoint
	Timeout time.Duration

	// Requests per second across the process; 0 disables limiting
	RatePerSec float64

	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int32
}

// GeminiModel calls the Gemini generateContent endpoint with fixed
// generation parameters and a fixed safety policy
type GeminiModel struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	config  *genai.GenerateContentConfig
}

// fixedSafetySettings are attached to every request
var fixedSafetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
}

// NewGeminiModel creates the model client
func NewGeminiModel(ctx context.Context, cfg GeminiConfig) (*GeminiModel, error) {
	if cfg.APIKey == "" {
		return nil, ErrModelUnavailable
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout + 5*time.Second},
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}

	log.Printf("✅ [MODEL] Gemini client ready (model: %s)", cfg.Model)

	return &GeminiModel{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		limiter: limiter,
		config: &genai.GenerateContentConfig{
			Temperature:     genai.Ptr(cfg.Temperature),
			TopP:            genai.Ptr(cfg.TopP),
			TopK:            genai.Ptr(cfg.TopK),
			MaxOutputTokens: cfg.MaxOutputTokens,
			SafetySettings:  fixedSafetySettings,
		},
	}, nil
}

// Generate sends prompt as the entire instruction payload. A failed call and
// an empty completion both return a *ModelError.
func (m *GeminiModel) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			GetMetrics().RecordModelCall("rate_limited")
			return "", &ModelError{Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, genai.Text(prompt), m.config)
	if err != nil {
		GetMetrics().RecordModelCall("error")
		return "", &ModelError{Err: err}
	}

	text := strings.TrimSpace(firstCandidateText(resp))
	if text == "" {
		GetMetrics().RecordModelCall("empty")
		return "", &ModelError{Err: ErrEmptyCompletion}
	}

	GetMetrics().RecordModelCall("ok")
	return text, nil
}

// firstCandidateText reads candidates[0].content.parts[0].text
func firstCandidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return ""
	}
	part := candidate.Content.Parts[0]
	if part == nil {
		return ""
	}
	return part.Text
}
