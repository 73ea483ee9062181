package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

type stubBio struct {
	bio string
	err error
	got BioInput
}

func (s *stubBio) WriteBio(_ context.Context, in BioInput) (string, error) {
	s.got = in
	return s.bio, s.err
}

func profileWith(t *testing.T, gh *crawler.GitHubProfile, li *crawler.LinkedInProfile) crawler.StudentProfile {
	t.Helper()
	profile := crawler.StudentProfile{
		UserID:      "user-1",
		GitHubURL:   "https://github.com/octo",
		LinkedInURL: "https://www.linkedin.com/in/octo",
		RawData:     crawler.RawData{GitHub: json.RawMessage(`{}`), LinkedIn: json.RawMessage(`{}`)},
	}
	if gh != nil {
		raw, err := json.Marshal(gh)
		require.NoError(t, err)
		profile.RawData.GitHub = raw
	}
	if li != nil {
		raw, err := json.Marshal(li)
		require.NoError(t, err)
		profile.RawData.LinkedIn = raw
	}
	return profile
}

func TestBuildMergesSources(t *testing.T) {
	t.Parallel()

	gh := &crawler.GitHubProfile{
		Username:  "octo",
		Name:      "Octo Hub",
		Bio:       "Builds things",
		Followers: 75,
		Skills:    []string{"cli", "Go"},
		Languages: []string{"Go", "Python"},
		Repos: []crawler.RepoSummary{
			{Name: "small", Description: "N/A", Language: "Go", Stars: 1},
			{Name: "empty", Description: "N/A", Language: ""},
			{Name: "big", Description: "A popular tool", Language: "Go", Stars: 42, Topics: []string{"devtools"}},
		},
	}
	li := &crawler.LinkedInProfile{
		Name:        "Octo Cat",
		Headline:    "Engineer",
		Summary:     "Loves Go",
		Skills:      []string{"go", "Leadership"},
		Education:   []crawler.Education{{School: "State U", Degree: "BSc"}},
		Experiences: []crawler.Experience{{Title: "Intern", Company: "Acme"}, {}},
	}
	bio := &stubBio{bio: "  Octo writes Go.  "}
	builder := NewBuilder(bio, zap.NewNop())

	data, err := builder.Build(context.Background(), profileWith(t, gh, li))
	require.NoError(t, err)

	require.Equal(t, "Octo Cat", data.Name)
	require.Equal(t, "Engineer", data.Headline)
	require.Equal(t, "Octo writes Go.", data.Bio)
	require.Equal(t, []string{"cli", "Go", "Python", "devtools", "Leadership"}, data.Skills)
	require.Len(t, data.Projects, 2)
	require.Equal(t, "big", data.Projects[0].Name)
	require.Equal(t, "No description available", data.Projects[1].Description)
	require.Equal(t, "Position", data.WorkExperience[1].Title)
	require.Equal(t, "Company", data.WorkExperience[1].Company)
	require.Equal(t, []string{
		"big earned 42 stars on GitHub",
		"75 GitHub followers",
		"BSc, State U",
	}, data.Achievements)
	require.Equal(t, "https://github.com/octo", data.Links["github"])

	require.Equal(t, 2, bio.got.ProjectCount)
	require.Equal(t, "Builds things", bio.got.GitHubBio)
	require.Equal(t, "Loves Go", bio.got.LinkedInSummary)
}

func TestBuildFallsBackWhenBioWriterFails(t *testing.T) {
	t.Parallel()

	gh := &crawler.GitHubProfile{
		Username: "octo",
		Repos:    []crawler.RepoSummary{{Name: "tool", Description: "Useful", Stars: 3}},
	}
	builder := NewBuilder(&stubBio{err: errors.New("quota exceeded")}, zap.NewNop())

	data, err := builder.Build(context.Background(), profileWith(t, gh, nil))
	require.NoError(t, err)
	require.Equal(t, "octo", data.Name)
	require.Equal(t,
		"octo is a passionate developer with 1 project. "+
			"Passionate about creating innovative solutions and continuously learning new technologies.",
		data.Bio,
	)
	require.Empty(t, data.WorkExperience)
}

func TestBuildWithoutDataFails(t *testing.T) {
	t.Parallel()

	builder := NewBuilder(nil, zap.NewNop())
	_, err := builder.Build(context.Background(), profileWith(t, nil, nil))
	require.ErrorIs(t, err, ErrNoData)
}

func TestExtractProjectsKeepsTopTwenty(t *testing.T) {
	t.Parallel()

	var gh crawler.GitHubProfile
	for i := range 25 {
		gh.Repos = append(gh.Repos, crawler.RepoSummary{
			Name:     fmt.Sprintf("repo-%d", i),
			Language: "Go",
			Stars:    i,
		})
	}
	projects := ExtractProjects(gh)
	require.Len(t, projects, 20)
	require.Equal(t, "repo-24", projects[0].Name)
	require.Equal(t, 5, projects[19].Stars)
}

func TestFallbackBio(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   BioInput
		want string
	}{
		{
			name: "no skills",
			in:   BioInput{Name: "Ada"},
			want: "Ada is a passionate developer. Passionate about creating innovative solutions and continuously learning new technologies.",
		},
		{
			name: "plural",
			in: BioInput{
				Name:            "Ada",
				Skills:          []string{"Go", "SQL", "Rust", "C"},
				ProjectCount:    4,
				ExperienceCount: 2,
			},
			want: "Ada is skilled in Go, SQL, Rust with 4 projects and 2 professional experiences. " +
				"Passionate about creating innovative solutions and continuously learning new technologies.",
		},
		{
			name: "singular",
			in:   BioInput{Name: "Ada", Skills: []string{"Go"}, ProjectCount: 1, ExperienceCount: 1},
			want: "Ada is skilled in Go with 1 project and 1 professional experience. " +
				"Passionate about creating innovative solutions and continuously learning new technologies.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, FallbackBio(tc.in))
		})
	}
}
