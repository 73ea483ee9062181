// Package portfolio turns a profile's raw source data into a PortfolioData.
package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

const (
	maxProjects        = 20
	starredRepoMinimum = 10
	followerMilestone  = 50
)

// ErrNoData is returned when neither source slot holds data.
var ErrNoData = errors.New("no crawled data available")

// BioWriter produces the short professional bio shown on a portfolio.
type BioWriter interface {
	WriteBio(ctx context.Context, in BioInput) (string, error)
}

// BioInput is everything a BioWriter may draw on.
type BioInput struct {
	Name            string
	Skills          []string
	ProjectCount    int
	ExperienceCount int
	GitHubBio       string
	LinkedInSummary string
}

// Builder aggregates source data into a portfolio.
type Builder struct {
	bio    BioWriter
	logger *zap.Logger
}

// NewBuilder constructs a Builder.
func NewBuilder(bio BioWriter, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{bio: bio, logger: logger}
}

// Build decodes profile's raw data and assembles the portfolio.
func (b *Builder) Build(ctx context.Context, profile crawler.StudentProfile) (crawler.PortfolioData, error) {
	var (
		gh crawler.GitHubProfile
		li crawler.LinkedInProfile
	)
	hasGitHub := profile.RawData.Has(crawler.SourceGitHub)
	hasLinkedIn := profile.RawData.Has(crawler.SourceLinkedIn)
	if !hasGitHub && !hasLinkedIn {
		return crawler.PortfolioData{}, ErrNoData
	}
	if hasGitHub {
		if err := json.Unmarshal(profile.RawData.GitHub, &gh); err != nil {
			return crawler.PortfolioData{}, fmt.Errorf("decode github data: %w", err)
		}
	}
	if hasLinkedIn {
		if err := json.Unmarshal(profile.RawData.LinkedIn, &li); err != nil {
			return crawler.PortfolioData{}, fmt.Errorf("decode linkedin data: %w", err)
		}
	}

	data := crawler.PortfolioData{
		Name:           displayName(profile.UserID, gh, li),
		Headline:       li.Headline,
		Skills:         ExtractSkills(gh, li),
		Projects:       ExtractProjects(gh),
		WorkExperience: ExtractWorkExperience(li),
		Education:      li.Education,
		Achievements:   ExtractAchievements(gh, li),
		Contact:        li.Contact,
		Links:          links(profile),
	}
	if data.Education == nil {
		data.Education = []crawler.Education{}
	}

	in := BioInput{
		Name:            data.Name,
		Skills:          data.Skills,
		ProjectCount:    len(data.Projects),
		ExperienceCount: len(data.WorkExperience),
		GitHubBio:       gh.Bio,
		LinkedInSummary: li.Summary,
	}
	bio, err := b.writeBio(ctx, in)
	if err != nil {
		b.logger.Warn("bio generation failed, using template", zap.String("user_id", profile.UserID), zap.Error(err))
		bio = FallbackBio(in)
	}
	data.Bio = bio
	return data, nil
}

func (b *Builder) writeBio(ctx context.Context, in BioInput) (string, error) {
	if b.bio == nil {
		return FallbackBio(in), nil
	}
	bio, err := b.bio.WriteBio(ctx, in)
	if err != nil {
		return "", err
	}
	bio = strings.TrimSpace(bio)
	if bio == "" {
		return "", errors.New("empty bio")
	}
	return bio, nil
}

// ExtractSkills merges GitHub and LinkedIn skills, dropping case-insensitive
// duplicates and keeping first-seen order.
func ExtractSkills(gh crawler.GitHubProfile, li crawler.LinkedInProfile) []string {
	seen := make(map[string]struct{})
	skills := []string{}
	add := func(values []string) {
		for _, v := range values {
			v = strings.TrimSpace(v)
			key := strings.ToLower(v)
			if v == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			skills = append(skills, v)
		}
	}
	add(gh.Skills)
	add(gh.Languages)
	for _, repo := range gh.Repos {
		add(repo.Topics)
	}
	add(li.Skills)
	return skills
}

// ExtractProjects keeps repositories with a real description or a language,
// most starred first.
func ExtractProjects(gh crawler.GitHubProfile) []crawler.Project {
	projects := []crawler.Project{}
	for _, repo := range gh.Repos {
		desc := meaningful(repo.Description)
		lang := meaningful(repo.Language)
		if desc == "" && lang == "" {
			continue
		}
		if desc == "" {
			desc = "No description available"
		}
		name := repo.Name
		if name == "" {
			name = "Untitled Project"
		}
		projects = append(projects, crawler.Project{
			Name:        name,
			Description: desc,
			Language:    lang,
			Stars:       repo.Stars,
			URL:         repo.URL,
			Topics:      repo.Topics,
		})
	}
	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].Stars > projects[j].Stars
	})
	if len(projects) > maxProjects {
		projects = projects[:maxProjects]
	}
	return projects
}

// ExtractWorkExperience returns the LinkedIn positions with placeholders for
// missing titles and companies.
func ExtractWorkExperience(li crawler.LinkedInProfile) []crawler.Experience {
	out := make([]crawler.Experience, 0, len(li.Experiences))
	for _, exp := range li.Experiences {
		if exp.Title == "" {
			exp.Title = "Position"
		}
		if exp.Company == "" {
			exp.Company = "Company"
		}
		out = append(out, exp)
	}
	return out
}

// ExtractAchievements lists starred repositories, a follower milestone and
// education entries.
func ExtractAchievements(gh crawler.GitHubProfile, li crawler.LinkedInProfile) []string {
	achievements := []string{}
	for _, repo := range gh.Repos {
		if repo.Stars >= starredRepoMinimum {
			achievements = append(achievements, fmt.Sprintf("%s earned %d stars on GitHub", repo.Name, repo.Stars))
		}
	}
	if gh.Followers >= followerMilestone {
		achievements = append(achievements, fmt.Sprintf("%d GitHub followers", gh.Followers))
	}
	for _, edu := range li.Education {
		if edu.School == "" {
			continue
		}
		degree := edu.Degree
		if degree == "" {
			degree = "Academic Achievement"
		}
		achievements = append(achievements, fmt.Sprintf("%s, %s", degree, edu.School))
	}
	return achievements
}

// FallbackBio renders the template bio used when no writer is available.
func FallbackBio(in BioInput) string {
	skillsText := "a passionate developer"
	if len(in.Skills) > 0 {
		top := in.Skills
		if len(top) > 3 {
			top = top[:3]
		}
		skillsText = "skilled in " + strings.Join(top, ", ")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s is %s", in.Name, skillsText)
	if in.ProjectCount > 0 {
		fmt.Fprintf(&b, " with %d %s", in.ProjectCount, plural(in.ProjectCount, "project", "projects"))
	}
	if in.ExperienceCount > 0 {
		fmt.Fprintf(&b, " and %d %s", in.ExperienceCount,
			plural(in.ExperienceCount, "professional experience", "professional experiences"))
	}
	b.WriteString(". Passionate about creating innovative solutions and continuously learning new technologies.")
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func meaningful(s string) string {
	s = strings.TrimSpace(s)
	if s == "N/A" {
		return ""
	}
	return s
}

func displayName(userID string, gh crawler.GitHubProfile, li crawler.LinkedInProfile) string {
	for _, candidate := range []string{li.Name, gh.Name, gh.Username} {
		if strings.TrimSpace(candidate) != "" {
			return strings.TrimSpace(candidate)
		}
	}
	return userID
}

func links(profile crawler.StudentProfile) map[string]string {
	out := map[string]string{}
	if profile.GitHubURL != "" {
		out["github"] = profile.GitHubURL
	}
	if profile.LinkedInURL != "" {
		out["linkedin"] = profile.LinkedInURL
	}
	return out
}
