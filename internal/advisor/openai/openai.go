package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"crypto-trading-bot/internal/api"
	"crypto-trading-bot/internal/store"
	"crypto-trading-bot/internal/trace"
	"crypto-trading-bot/internal/types"
)

const defaultEndpoint = "https://api.openai.com/v1/chat/completions"

const systemPrompt = "You are a disciplined crypto spot trader. Analyze the market state and respond ONLY with compact JSON: " +
	`{"recommendation":"buy|sell|hold","confidence":<0-100>,"reasoning":"<short text>"}`

// Advisor implements the AIProvider interface against the OpenAI chat API.
type Advisor struct {
	cfg    *store.Config
	client *api.Client
}

func NewAdvisor(cfg *store.Config) *Advisor {
	endpoint := defaultEndpoint
	if ep := os.Getenv("OPENAI_API_ENDPOINT"); ep != "" {
		endpoint = ep
	}
	client := api.NewClient(
		api.WithBaseURL(endpoint),
		api.WithTimeout(time.Duration(cfg.AI.TimeoutSeconds)*time.Second),
		api.WithLogging(true),
	)
	return &Advisor{cfg: cfg, client: client}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type recommendationPayload struct {
	Recommendation string  `json:"recommendation"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
}

// Recommend asks the model for a recommendation on the given market state.
// Any transport failure or unparsable reply is an error; the advisory cache
// decides how to degrade.
func (a *Advisor) Recommend(ctx context.Context, pc types.PromptContext) (types.Recommendation, error) {
	ctx, span := trace.StartSpan(ctx, "openai-advisory-call")
	defer span.End()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return types.Recommendation{}, errors.New("OPENAI_API_KEY missing")
	}

	state := map[string]any{
		"pair":       pc.Pair,
		"closes":     recentCloses(pc.Candles, 24),
		"indicators": pc.Indicators,
	}
	stateB, _ := json.Marshal(state)

	reqBody := map[string]any{
		"model": a.cfg.AI.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": fmt.Sprintf("Market state:%s", string(stateB))},
		},
		"max_tokens":  a.cfg.AI.MaxTokens,
		"temperature": a.cfg.AI.Temperature,
	}

	req := api.NewRequest("POST", "").
		WithContext(ctx).
		WithBody(reqBody).
		WithHeader("Authorization", "Bearer "+apiKey)

	resp, err := a.client.DoWithRetry(req, nil)
	if err != nil {
		return types.Recommendation{}, err
	}

	var chat chatResponse
	if err := resp.ParseJSON(&chat); err != nil {
		return types.Recommendation{}, err
	}
	if len(chat.Choices) == 0 || strings.TrimSpace(chat.Choices[0].Message.Content) == "" {
		return types.Recommendation{}, errors.New("empty completion")
	}

	return parseRecommendation(chat.Choices[0].Message.Content)
}

// parseRecommendation locates a JSON object in the completion text and maps
// it onto a Recommendation. Models occasionally wrap the JSON in prose or
// code fences, so the first balanced {...} slice is tried as a fallback.
func parseRecommendation(text string) (types.Recommendation, error) {
	t := strings.TrimSpace(text)

	var p recommendationPayload
	if strings.HasPrefix(t, "{") {
		if err := json.Unmarshal([]byte(t), &p); err == nil {
			return toRecommendation(p)
		}
	}
	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(t[start:end+1]), &p); err == nil {
			return toRecommendation(p)
		}
	}
	return types.Recommendation{}, fmt.Errorf("no JSON recommendation in completion: %q", truncate(t, 120))
}

func toRecommendation(p recommendationPayload) (types.Recommendation, error) {
	action := strings.ToUpper(strings.TrimSpace(p.Recommendation))
	if action != types.ActionBuy && action != types.ActionSell && action != types.ActionHold {
		return types.Recommendation{}, fmt.Errorf("unknown recommendation %q", p.Recommendation)
	}
	return types.Recommendation{
		Action:     action,
		Confidence: p.Confidence,
		Reasoning:  p.Reasoning,
	}, nil
}

func recentCloses(candles []types.Candle, n int) []float64 {
	if len(candles) > n {
		candles = candles[len(candles)-n:]
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
