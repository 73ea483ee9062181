// Package bio provides portfolio.BioWriter implementations backed by hosted
// language models, plus the template writer used when none is configured.
package bio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/portfolio"
)

// Providers understood by New.
const (
	ProviderNone      = "none"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config selects and tunes a provider.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	BaseURL     string
}

// New returns the writer for cfg.Provider.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (portfolio.BioWriter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case "", ProviderNone:
		return Template{}, nil
	case ProviderAnthropic:
		return NewAnthropic(cfg, logger), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown bio provider %q", cfg.Provider)
	}
}

// Template renders the deterministic fallback bio.
type Template struct{}

// WriteBio implements portfolio.BioWriter.
func (Template) WriteBio(_ context.Context, in portfolio.BioInput) (string, error) {
	return portfolio.FallbackBio(in), nil
}

func prompt(in portfolio.BioInput) string {
	skills := strings.Join(in.Skills, ", ")
	if skills == "" {
		skills = "Not specified"
	}
	githubBio := in.GitHubBio
	if githubBio == "" {
		githubBio = "No bio"
	}
	summary := in.LinkedInSummary
	if summary == "" {
		summary = "No summary"
	}
	var b strings.Builder
	b.WriteString("You are a professional portfolio writer. Based on the following information about a student developer, ")
	b.WriteString("write a concise, engaging professional bio (2-3 sentences, max 150 words).\n\n")
	fmt.Fprintf(&b, "Name: %s\n", in.Name)
	fmt.Fprintf(&b, "Skills: %s\n", skills)
	fmt.Fprintf(&b, "Projects: %d projects\n", in.ProjectCount)
	fmt.Fprintf(&b, "Work Experience: %d experiences\n", in.ExperienceCount)
	fmt.Fprintf(&b, "GitHub Bio: %s\n", githubBio)
	fmt.Fprintf(&b, "LinkedIn Summary: %s\n\n", summary)
	b.WriteString("Write a professional, third-person bio that highlights their expertise, passion, and key strengths. ")
	b.WriteString("Make it engaging and suitable for a portfolio website.")
	return b.String()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
