// Package github extracts profile and repository data through the GitHub
// REST API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	gh "github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

var usernamePattern = regexp.MustCompile(`github\.com/([^/?#]+)`)

// Config controls the API client.
type Config struct {
	Token     string
	BaseURL   string
	UserAgent string
	RPS       float64
	Burst     int
}

// Extractor implements crawler.Extractor for GitHub profile URLs. It is
// stateless and safe for concurrent use.
type Extractor struct {
	client  *gh.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ crawler.Extractor = (*Extractor)(nil)

// New builds an Extractor. An empty token yields an unauthenticated client.
func New(cfg Config, logger *zap.Logger) (*Extractor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := &http.Client{}
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	client := gh.NewClient(httpClient)
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}
		client.BaseURL = u
	}
	if cfg.UserAgent != "" {
		client.UserAgent = cfg.UserAgent
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return &Extractor{client: client, limiter: limiter, logger: logger}, nil
}

// Username returns the account name in a GitHub profile URL.
func Username(profileURL string) (string, error) {
	m := usernamePattern.FindStringSubmatch(profileURL)
	if len(m) < 2 || m[1] == "" {
		return "", fmt.Errorf("%w: %q is not a github profile", crawler.ErrInvalidSourceURL, profileURL)
	}
	return m[1], nil
}

// Extract fetches the user and their repositories.
func (e *Extractor) Extract(ctx context.Context, profileURL string) (crawler.Extraction, error) {
	username, err := Username(profileURL)
	if err != nil {
		return crawler.Extraction{}, err
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return crawler.Extraction{}, fmt.Errorf("github rate limit wait: %w", err)
	}
	user, _, err := e.client.Users.Get(ctx, username)
	if err != nil {
		return crawler.Extraction{}, classify(username, "get user", err)
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return crawler.Extraction{}, fmt.Errorf("github rate limit wait: %w", err)
	}
	repos, _, err := e.client.Repositories.List(ctx, username, &gh.RepositoryListOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	})
	if err != nil {
		return crawler.Extraction{}, classify(username, "list repos", err)
	}

	profile := normalize(username, user, repos)
	e.logger.Debug("github profile fetched",
		zap.String("username", username),
		zap.Int("repos", profile.TotalRepos),
		zap.Int("skills", len(profile.Skills)),
	)
	return crawler.Extraction{Data: profile}, nil
}

func classify(username, op string, err error) error {
	var apiErr *gh.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil && apiErr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: github user %q not found", crawler.ErrInvalidSourceURL, username)
	}
	return fmt.Errorf("github %s %q: %w", op, username, err)
}

func normalize(username string, user *gh.User, repos []*gh.Repository) crawler.GitHubProfile {
	out := crawler.GitHubProfile{
		Username:   username,
		Name:       user.GetName(),
		Bio:        user.GetBio(),
		Followers:  user.GetFollowers(),
		Following:  user.GetFollowing(),
		TotalRepos: len(repos),
		Skills:     []string{},
		Languages:  []string{},
		Repos:      make([]crawler.RepoSummary, 0, len(repos)),
	}

	seenSkill := map[string]bool{}
	seenLang := map[string]bool{}
	langCount := map[string]int{}
	for _, repo := range repos {
		if repo == nil {
			continue
		}
		desc := strings.TrimSpace(repo.GetDescription())
		if desc == "" {
			desc = "N/A"
		}
		topics := append([]string{}, repo.Topics...)
		out.Repos = append(out.Repos, crawler.RepoSummary{
			Name:        repo.GetName(),
			Description: desc,
			Language:    repo.GetLanguage(),
			Stars:       repo.GetStargazersCount(),
			URL:         repo.GetHTMLURL(),
			Topics:      topics,
		})
		for _, topic := range topics {
			if !seenSkill[topic] {
				seenSkill[topic] = true
				out.Skills = append(out.Skills, topic)
			}
		}
		if lang := repo.GetLanguage(); lang != "" {
			langCount[lang]++
			if !seenLang[lang] {
				seenLang[lang] = true
				out.Languages = append(out.Languages, lang)
			}
		}
	}

	ranked := append([]string(nil), out.Languages...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return langCount[ranked[i]] > langCount[ranked[j]]
	})
	for _, lang := range ranked {
		if !seenSkill[lang] {
			seenSkill[lang] = true
			out.Skills = append(out.Skills, lang)
		}
	}
	return out
}
