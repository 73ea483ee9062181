package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

func newTestExtractor(t *testing.T, mux *http.ServeMux) *Extractor {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	ext, err := New(Config{Token: "t0ken", BaseURL: srv.URL, UserAgent: "profile-crawler-test"}, zap.NewNop())
	require.NoError(t, err)
	return ext
}

func TestUsername(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://github.com/octocat", "octocat", true},
		{"github.com/octocat?tab=repositories", "octocat", true},
		{"https://www.github.com/octo-cat/some-repo", "octo-cat", true},
		{"https://gitlab.com/octocat", "", false},
		{"https://github.com/", "", false},
	}
	for _, tc := range cases {
		got, err := Username(tc.in)
		if !tc.ok {
			require.ErrorIs(t, err, crawler.ErrInvalidSourceURL, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got)
	}
}

func TestExtractNormalizesProfile(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/users/octocat", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t0ken" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"login":"octocat","name":"The Octocat","bio":"hi","followers":60,"following":3}`)
	})
	mux.HandleFunc("/users/octocat/repos", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "100", r.URL.Query().Get("per_page"))
		fmt.Fprint(w, `[
			{"name":"a","description":"","language":"Go","stargazers_count":12,"html_url":"https://github.com/octocat/a","topics":["cli","go"]},
			{"name":"b","description":"web thing","language":"TypeScript","stargazers_count":3,"html_url":"https://github.com/octocat/b","topics":["web"]},
			{"name":"c","description":"more go","language":"Go","stargazers_count":1,"html_url":"https://github.com/octocat/c"},
			{"name":"d","description":"docs","language":null,"stargazers_count":0,"html_url":"https://github.com/octocat/d","topics":["cli"]}
		]`)
	})
	ext := newTestExtractor(t, mux)

	res, err := ext.Extract(context.Background(), "https://github.com/octocat")
	require.NoError(t, err)
	require.Empty(t, res.Warnings)
	profile, ok := res.Data.(crawler.GitHubProfile)
	require.True(t, ok)

	require.Equal(t, "octocat", profile.Username)
	require.Equal(t, "The Octocat", profile.Name)
	require.Equal(t, 60, profile.Followers)
	require.Equal(t, 4, profile.TotalRepos)
	require.Equal(t, []string{"Go", "TypeScript"}, profile.Languages)
	require.Equal(t, []string{"cli", "go", "web", "Go", "TypeScript"}, profile.Skills)
	require.Equal(t, "N/A", profile.Repos[0].Description)
	require.Equal(t, 12, profile.Repos[0].Stars)
	require.Equal(t, []string{}, profile.Repos[2].Topics)
}

func TestExtractUnknownUserIsPermanent(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/users/ghost", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	ext := newTestExtractor(t, mux)

	_, err := ext.Extract(context.Background(), "https://github.com/ghost")
	require.ErrorIs(t, err, crawler.ErrInvalidSourceURL)
	require.True(t, crawler.Permanent(err))
}

func TestExtractServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/users/octocat", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"message":"bad gateway"}`)
	})
	ext := newTestExtractor(t, mux)

	_, err := ext.Extract(context.Background(), "https://github.com/octocat")
	require.Error(t, err)
	require.False(t, crawler.Permanent(err))
}

func TestExtractInvalidURL(t *testing.T) {
	t.Parallel()

	ext, err := New(Config{}, nil)
	require.NoError(t, err)
	_, err = ext.Extract(context.Background(), "not a url")
	require.ErrorIs(t, err, crawler.ErrInvalidSourceURL)
}
