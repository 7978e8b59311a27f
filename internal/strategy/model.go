package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// ModelStrategy delegates decision generation to an OpenAI-style
// chat-completions endpoint. Execution still runs against the simulated
// market so the two variants stay interchangeable behind DecisionStrategy.
type ModelStrategy struct {
	client *resty.Client
	model  string
	exec   *RandomStrategy
	logger zerolog.Logger
}

// ModelConfig configures the chat-completions backend.
type ModelConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewModelStrategy creates a model-backed strategy.
func NewModelStrategy(cfg ModelConfig, logger zerolog.Logger) *ModelStrategy {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &ModelStrategy{
		client: client,
		model:  cfg.Model,
		exec:   NewRandomStrategy(0),
		logger: logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
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
}

const systemPrompt = `You are a trading desk generating daily decisions. ` +
	`Respond with a JSON array only. Each element: ` +
	`{"symbol": string, "signal": "BUY"|"SELL"|"HOLD", "confidence": number 0-100, "position_size": number 0-0.10}. ` +
	`Pick 3 to 5 symbols from the provided watchlist.`

// Decide asks the model for decisions, then applies the same risk-profile
// modifiers as the random variant so both honor team behavior identically.
func (s *ModelStrategy) Decide(ctx context.Context, team TeamInfo, watchlist []string, day int) ([]Decision, error) {
	req := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(
				"Team %s (model %s, risk profile %s), trading day %d. Watchlist: %s",
				team.Name, team.Model, team.RiskProfile, day, strings.Join(watchlist, ", "),
			)},
		},
		Temperature: 0.7,
	}

	var parsed chatResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&parsed).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("chat completion: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: empty response")
	}

	raw, err := extractJSONArray(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	var candidates []Decision
	if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
		return nil, fmt.Errorf("decode decisions: %w", err)
	}

	decisions := make([]Decision, 0, len(candidates))
	for _, d := range candidates {
		if d.Confidence < 0 {
			d.Confidence = 0
		}
		if d.Confidence > 100 {
			d.Confidence = 100
		}
		if d.PositionSize < 0 {
			d.PositionSize = 0
		}
		if d.PositionSize > 0.10 {
			d.PositionSize = 0.10
		}

		switch team.RiskProfile {
		case RiskConservative:
			if d.Confidence < 70 {
				d.Signal = SignalHold
			}
		case RiskAggressive:
			d.PositionSize *= 1.5
		}

		if d.Signal != SignalBuy && d.Signal != SignalSell {
			continue
		}
		decisions = append(decisions, d)
	}

	s.logger.Debug().
		Str("team", team.Name).
		Int("day", day).
		Int("decisions", len(decisions)).
		Msg("model decisions generated")

	return decisions, nil
}

// Apply executes against the shared simulated market.
func (s *ModelStrategy) Apply(team TeamInfo, decisions []Decision, day int) (float64, []Trade, error) {
	return s.exec.Apply(team, decisions, day)
}

// extractJSONArray pulls the outermost JSON array out of a completion,
// tolerating markdown fences and prose around it.
func extractJSONArray(content string) (string, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON array in model response")
	}
	return content[start : end+1], nil
}
