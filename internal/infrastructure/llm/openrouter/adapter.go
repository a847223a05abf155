package openrouter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"uipilot/internal/application/port/output"
	"uipilot/internal/domain/entity"
	"uipilot/internal/infrastructure/prompts"
)

var _ output.VisionPort = (*VisionAdapter)(nil)

// VisionAdapter answers the three visual questions the pilot asks —
// where is a target, what state is the surface in, and what should we
// try next — through an OpenRouter-hosted multimodal model.
type VisionAdapter struct {
	client *openai.Client
	model  string
	logger output.LoggerPort
}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Logger  output.LoggerPort
}

func DefaultConfig(apiKey, model string) Config {
	return Config{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: "https://openrouter.ai/api/v1",
	}
}

type loggingTransport struct {
	base   http.RoundTripper
	logger output.LoggerPort
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.logger != nil {
		t.logger.Debug("HTTP Request",
			"method", req.Method,
			"url", req.URL.String(),
		)
	}

	resp, err := t.base.RoundTrip(req)

	if t.logger != nil && resp != nil {
		t.logger.Debug("HTTP Response",
			"status", resp.Status,
			"statusCode", resp.StatusCode,
		)
	}

	return resp, err
}

func NewVisionAdapter(cfg Config) *VisionAdapter {
	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = cfg.BaseURL

	if cfg.Logger != nil {
		config.HTTPClient = &http.Client{
			Transport: &loggingTransport{
				base:   http.DefaultTransport,
				logger: cfg.Logger,
			},
		}
	}

	return &VisionAdapter{
		client: openai.NewClientWithConfig(config),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

// LocateTarget asks the model for pixel coordinates of a labeled
// control in the screenshot. The second return reports whether the
// model saw the target at all.
func (a *VisionAdapter) LocateTarget(ctx context.Context, shot *entity.Screenshot, target string) (entity.Point, bool, error) {
	prompt, err := prompts.BuildLocatePrompt(target, shot.Width, shot.Height)
	if err != nil {
		return entity.Point{}, false, fmt.Errorf("locate prompt: %w", err)
	}

	answer, err := a.chatWithImage(ctx, prompt, shot)
	if err != nil {
		return entity.Point{}, false, err
	}

	loc, err := parseLocation(answer)
	if err != nil {
		return entity.Point{}, false, err
	}
	if !loc.Found {
		return entity.Point{}, false, nil
	}
	if loc.X < 0 || loc.Y < 0 || loc.X >= shot.Width || loc.Y >= shot.Height {
		return entity.Point{}, false, fmt.Errorf("located point (%d,%d) outside %dx%d screenshot", loc.X, loc.Y, shot.Width, shot.Height)
	}
	return entity.Point{X: loc.X, Y: loc.Y}, true, nil
}

// ClassifyState matches the screenshot against the allowed state
// labels. Anything the model answers outside that set maps to Unknown.
func (a *VisionAdapter) ClassifyState(ctx context.Context, shot *entity.Screenshot, states []entity.FlowState) (entity.FlowState, error) {
	labels := make([]string, 0, len(states))
	for _, s := range states {
		labels = append(labels, string(s))
	}

	prompt, err := prompts.BuildClassifyPrompt(labels)
	if err != nil {
		return entity.StateUnknown, fmt.Errorf("classify prompt: %w", err)
	}

	answer, err := a.chatWithImage(ctx, prompt, shot)
	if err != nil {
		return entity.StateUnknown, err
	}

	state := matchState(answer, states)
	if state == entity.StateUnknown && a.logger != nil {
		a.logger.Warn("Classifier answered outside label set", "answer", answer)
	}
	return state, nil
}

func (a *VisionAdapter) Reflect(ctx context.Context, prompt string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (a *VisionAdapter) chatWithImage(ctx context.Context, prompt string, shot *entity.Screenshot) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: imageDataURL(shot),
						},
					},
				},
			},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

type location struct {
	Found bool `json:"found"`
	X     int  `json:"x"`
	Y     int  `json:"y"`
}

func parseLocation(answer string) (location, error) {
	var loc location
	if err := json.Unmarshal([]byte(extractJSON(answer)), &loc); err != nil {
		return location{}, fmt.Errorf("unparseable locate answer %q: %w", answer, err)
	}
	return loc, nil
}

func matchState(answer string, states []entity.FlowState) entity.FlowState {
	got := strings.ToLower(strings.TrimSpace(answer))
	for _, s := range states {
		if strings.Contains(got, string(s)) {
			return s
		}
	}
	return entity.StateUnknown
}

func imageDataURL(shot *entity.Screenshot) string {
	format := shot.Format
	if format == "" {
		format = "png"
	}
	return fmt.Sprintf("data:image/%s;base64,%s", format, base64.StdEncoding.EncodeToString(shot.Data))
}

// extractJSON pulls the first {...} block out of a model answer, which
// models routinely wrap in prose or code fences.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
