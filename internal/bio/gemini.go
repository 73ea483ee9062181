package bio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/JakeFAU/profile-crawler/internal/portfolio"
)

const defaultGeminiModel = "gemini-2.0-flash"

// Gemini writes bios with the Gemini API.
type Gemini struct {
	client *genai.Client
	cfg    Config
	logger *zap.Logger
}

// NewGemini constructs a Gemini writer.
func NewGemini(ctx context.Context, cfg Config, logger *zap.Logger) (*Gemini, error) {
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, cfg: cfg, logger: logger.Named("bio.gemini")}, nil
}

// WriteBio implements portfolio.BioWriter.
func (g *Gemini) WriteBio(ctx context.Context, in portfolio.BioInput) (string, error) {
	ctx, cancel := withTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	gc := &genai.GenerateContentConfig{}
	if g.cfg.Temperature > 0 {
		gc.Temperature = genai.Ptr(g.cfg.Temperature)
	}
	if g.cfg.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(g.cfg.MaxTokens)
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt(in), genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, gc)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	var out strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				out.WriteString(part.Text)
			}
			if out.Len() > 0 {
				break
			}
		}
	}
	if strings.TrimSpace(out.String()) == "" {
		return "", errors.New("gemini returned no text")
	}
	g.logger.Debug("bio generated", zap.String("model", g.cfg.Model))
	return strings.TrimSpace(out.String()), nil
}
