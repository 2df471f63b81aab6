// File: internal/llmclient/gemini.go
// Description: Gemini backend for the model boundary. Speaks the
// generateContent REST API with multimodal parts: the current observation
// travels as inline base64 PNG. Transient API errors are retried with
// exponential backoff inside the call deadline; a client-side rate limiter
// keeps the loop under the configured requests-per-minute.
package llmclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/marionette-cli/api/schemas"
	"github.com/xkilldash9x/marionette-cli/internal/config"
)

// -- Gemini API Request/Response Structures (Internal to this file) --

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiSystemInstruction struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequestPayload struct {
	Contents          []geminiContent          `json:"contents"`
	SystemInstruction *geminiSystemInstruction `json:"system_instruction,omitempty"`
	GenerationConfig  geminiGenerationConfig   `json:"generationConfig,omitempty"`
}

type geminiResponsePayload struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// gemini implements the backend interface for the Gemini REST API.
type gemini struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	cfg        config.ModelConfig
	logger     *zap.Logger
}

func newGemini(cfg config.ModelConfig, logger *zap.Logger) (*gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required (set MARIONETTE_MODEL_API_KEY)")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", cfg.Model)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), 1)
	}

	return &gemini{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		cfg:      cfg,
		httpClient: &http.Client{
			Timeout: cfg.CallTimeout,
		},
		limiter: limiter,
		logger:  logger.Named("llmclient.gemini"),
	}, nil
}

// generate sends the decision request and returns the raw model text.
func (g *gemini) generate(ctx context.Context, req schemas.DecisionRequest) (string, error) {
	body, err := json.Marshal(g.buildRequestPayload(req))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 20 * time.Second
	b.MaxElapsedTime = 0 // Bounded by the context deadline.

	var responseContent string

	operation := func() error {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", g.apiKey)

		startTime := time.Now()
		resp, err := g.httpClient.Do(httpReq)
		duration := time.Since(startTime)

		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			g.logger.Warn("Network error during model request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return g.handleAPIError(resp.StatusCode, respBody)
		}

		var responsePayload geminiResponsePayload
		if err := json.Unmarshal(respBody, &responsePayload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}

		if len(responsePayload.Candidates) == 0 {
			return backoff.Permanent(fmt.Errorf("gemini API returned no candidates"))
		}

		candidate := responsePayload.Candidates[0]
		if len(candidate.Content.Parts) == 0 {
			if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "BLOCKLIST" {
				return backoff.Permanent(fmt.Errorf("gemini API blocked the request (reason: %s)", candidate.FinishReason))
			}
			return fmt.Errorf("gemini API returned empty content parts (reason: %s)", candidate.FinishReason)
		}

		g.logger.Info("Model generation complete (Gemini).",
			zap.Duration("duration", duration),
			zap.Int("prompt_tokens", responsePayload.UsageMetadata.PromptTokenCount),
			zap.Int("completion_tokens", responsePayload.UsageMetadata.CandidatesTokenCount),
			zap.Int("total_tokens", responsePayload.UsageMetadata.TotalTokenCount),
		)

		responseContent = candidate.Content.Parts[0].Text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return responseContent, nil
}

func (g *gemini) buildRequestPayload(req schemas.DecisionRequest) geminiRequestPayload {
	contents := make([]geminiContent, 0, 2*len(req.History)+1)

	// Replay the conversation: the model's own raw replies alternating with
	// the outcome feedback for each turn.
	for _, turn := range req.History {
		if turn.RawResponse != "" {
			contents = append(contents, geminiContent{
				Role:  "model",
				Parts: []geminiPart{{Text: turn.RawResponse}},
			})
		}
		contents = append(contents, geminiContent{
			Role:  "user",
			Parts: []geminiPart{{Text: turnFeedback(turn)}},
		})
	}

	parts := []geminiPart{{Text: observationPrompt(req)}}
	if req.Observation != nil && len(req.Observation.PNG) > 0 {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: "image/png",
			Data:     base64.StdEncoding.EncodeToString(req.Observation.PNG),
		}})
	}
	contents = append(contents, geminiContent{Role: "user", Parts: parts})

	return geminiRequestPayload{
		Contents: contents,
		SystemInstruction: &geminiSystemInstruction{
			Parts: []geminiPart{{Text: systemPrompt}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      float64(g.cfg.Temperature),
			ResponseMimeType: "application/json",
			MaxOutputTokens:  g.cfg.MaxTokens,
		},
	}
}

func (g *gemini) handleAPIError(statusCode int, body []byte) error {
	g.logger.Error("Gemini API returned error status.",
		zap.Int("status", statusCode),
		zap.String("response", string(body)))
	err := fmt.Errorf("gemini API error: status %d, body: %s", statusCode, string(body))

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return err // Transient, retry.
	default:
		return backoff.Permanent(err)
	}
}
