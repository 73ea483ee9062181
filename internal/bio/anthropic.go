package bio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/portfolio"
)

const (
	defaultClaudeModel     = "claude-3-5-haiku-latest"
	defaultClaudeMaxTokens = 512
)

// Anthropic writes bios with the Messages API.
type Anthropic struct {
	client anthropic.Client
	cfg    Config
	logger *zap.Logger
}

// NewAnthropic constructs an Anthropic writer.
func NewAnthropic(cfg Config, logger *zap.Logger) *Anthropic {
	if cfg.Model == "" {
		cfg.Model = defaultClaudeModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultClaudeMaxTokens
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL), option.WithMaxRetries(0))
	}
	return &Anthropic{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
		logger: logger.Named("bio.anthropic"),
	}
}

// WriteBio implements portfolio.BioWriter.
func (a *Anthropic) WriteBio(ctx context.Context, in portfolio.BioInput) (string, error) {
	ctx, cancel := withTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.cfg.Model),
		MaxTokens: int64(a.cfg.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt(in))),
		},
	}
	if a.cfg.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(a.cfg.Temperature))
	}
	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}
	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", errors.New("anthropic returned no text")
	}
	a.logger.Debug("bio generated", zap.String("model", a.cfg.Model), zap.Int64("output_tokens", resp.Usage.OutputTokens))
	return strings.TrimSpace(out.String()), nil
}
