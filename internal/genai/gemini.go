// Package genai is the generative-AI boundary. Calls are single-shot; failures surface to the caller, who decides
// whether to try again.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/smallbiznis/storeadmin/internal/apperror"
	"github.com/smallbiznis/storeadmin/internal/config"
	"github.com/smallbiznis/storeadmin/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrDisabled      = errors.New("genai_disabled")
	ErrEmptyResponse = errors.New("genai_empty_response")
	ErrBlocked       = errors.New("genai_blocked")
)

var Module = fx.Module("genai",
	fx.Provide(NewGemini),
	fx.Provide(func(g *Gemini) Generator { return g }),
)

type Request struct {
	Model  string
	System string
	Prompt string
	// Schema asks for a JSON response matching this OpenAPI-style schema.
	Schema      map[string]any
	Temperature *float64
}

type Response struct {
	Text         string
	Model        string
	PromptTokens int
	OutputTokens int
}

// JSON decodes a schema-constrained response.
func (r *Response) JSON(v any) error {
	text := strings.TrimSpace(r.Text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), v); err != nil {
		return apperror.Wrap(apperror.KindExternalService, err, "ai response is not valid json")
	}
	return nil
}

type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

type Params struct {
	fx.In

	Config  config.Config
	Metrics *metrics.Metrics `optional:"true"`
	Log     *zap.Logger
}

// Gemini calls the Gemini generateContent REST endpoint.
type Gemini struct {
	http    *resty.Client
	apiKey  string
	model   string
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewGemini(p Params) *Gemini {
	cfg := p.Config.Gemini
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Gemini{
		http:    client,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   cfg.Model,
		metrics: p.Metrics,
		log:     p.Log.Named("genai.gemini"),
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (g *Gemini) Generate(ctx context.Context, req Request) (*Response, error) {
	if g.apiKey == "" {
		return nil, apperror.Wrap(apperror.KindUnavailable, ErrDisabled, "ai is not configured")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, apperror.Validation("prompt is required")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = g.model
	}

	body := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
	}
	if s := strings.TrimSpace(req.System); s != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: s}}}
	}
	if req.Schema != nil || req.Temperature != nil {
		body.GenerationConfig = &generationConfig{Temperature: req.Temperature}
		if req.Schema != nil {
			body.GenerationConfig.ResponseMimeType = "application/json"
			body.GenerationConfig.ResponseSchema = req.Schema
		}
	}

	start := time.Now()
	var out generateResponse
	var failure apiError
	resp, err := g.http.R().
		SetContext(ctx).
		SetHeader("x-goog-api-key", g.apiKey).
		SetBody(body).
		SetResult(&out).
		SetError(&failure).
		Post(fmt.Sprintf("/models/%s:generateContent", model))
	elapsed := time.Since(start)

	if err != nil {
		g.metrics.RecordAICall(ctx, model, "transport_error", elapsed)
		g.log.Warn("gemini call failed", zap.String("model", model), zap.Duration("elapsed", elapsed), zap.Error(err))
		return nil, fmt.Errorf("%w: gemini: %w", apperror.ErrExternalService, err)
	}
	if resp.IsError() {
		g.metrics.RecordAICall(ctx, model, "http_error", elapsed)
		g.log.Warn("gemini returned error",
			zap.String("model", model),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("status", failure.Error.Status),
			zap.String("message", failure.Error.Message),
		)
		return nil, fmt.Errorf("%w: gemini status %d: %s", apperror.ErrExternalService, resp.StatusCode(), failure.Error.Message)
	}
	if reason := out.PromptFeedback.BlockReason; reason != "" {
		g.metrics.RecordAICall(ctx, model, "blocked", elapsed)
		return nil, fmt.Errorf("%w: %w: %s", apperror.ErrExternalService, ErrBlocked, reason)
	}

	var text strings.Builder
	if len(out.Candidates) > 0 {
		for _, p := range out.Candidates[0].Content.Parts {
			text.WriteString(p.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		g.metrics.RecordAICall(ctx, model, "empty", elapsed)
		return nil, fmt.Errorf("%w: %w", apperror.ErrExternalService, ErrEmptyResponse)
	}

	g.metrics.RecordAICall(ctx, model, "ok", elapsed)
	g.log.Debug("gemini call completed",
		zap.String("model", model),
		zap.Duration("elapsed", elapsed),
		zap.Int("prompt_tokens", out.UsageMetadata.PromptTokenCount),
		zap.Int("output_tokens", out.UsageMetadata.CandidatesTokenCount),
	)
	return &Response{
		Text:         text.String(),
		Model:        model,
		PromptTokens: out.UsageMetadata.PromptTokenCount,
		OutputTokens: out.UsageMetadata.CandidatesTokenCount,
	}, nil
}
