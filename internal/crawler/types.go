package crawler

import (
	"bytes"
	"encoding/json"
	"time"
)

// SourceType identifies one of the independent data-collection branches.
type SourceType string

// Supported sources.
const (
	SourceGitHub   SourceType = "github"
	SourceLinkedIn SourceType = "linkedin"
)

// Valid reports whether s names a known source.
func (s SourceType) Valid() bool {
	return s == SourceGitHub || s == SourceLinkedIn
}

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusPartial    JobStatus = "partial"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition can leave the status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusPartial, JobStatusFailed:
		return true
	default:
		return false
	}
}

// CrawlJob tracks one source's extraction attempt for one submission.
type CrawlJob struct {
	ID               string     `json:"id"`
	StudentProfileID string     `json:"studentProfileId"`
	SourceType       SourceType `json:"sourceType"`
	Status           JobStatus  `json:"status"`
	ErrorMessages    []string   `json:"errorMessages"`
	StartTime        *time.Time `json:"startTime,omitempty"`
	CompletionTime   *time.Time `json:"completionTime,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// RawData holds the normalized extraction output for each source.
type RawData struct {
	GitHub   json.RawMessage `json:"github"`
	LinkedIn json.RawMessage `json:"linkedin"`
}

// Slot returns the raw payload stored for source.
func (r RawData) Slot(source SourceType) json.RawMessage {
	switch source {
	case SourceGitHub:
		return r.GitHub
	case SourceLinkedIn:
		return r.LinkedIn
	default:
		return nil
	}
}

// Has reports whether the slot for source holds a non-empty object.
func (r RawData) Has(source SourceType) bool {
	return !IsEmptyPayload(r.Slot(source))
}

// IsEmptyPayload treats absent, null and {} payloads as empty.
func IsEmptyPayload(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return true
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err == nil {
		return len(obj) == 0
	}
	return false
}

// StudentProfile is the per-user record both source workers write into.
type StudentProfile struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"userId"`
	GitHubURL            string    `json:"githubUrl"`
	LinkedInURL          string    `json:"linkedinUrl"`
	RawData              RawData   `json:"rawData"`
	GitHubProcessed      bool      `json:"githubProcessed"`
	LinkedInProcessed    bool      `json:"linkedinProcessed"`
	AggregationTriggered bool      `json:"aggregationTriggered"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// Processed returns the completion flag owned by source's worker.
func (p StudentProfile) Processed(source SourceType) bool {
	switch source {
	case SourceGitHub:
		return p.GitHubProcessed
	case SourceLinkedIn:
		return p.LinkedInProcessed
	default:
		return false
	}
}

// URL returns the last submitted location for source.
func (p StudentProfile) URL(source SourceType) string {
	switch source {
	case SourceGitHub:
		return p.GitHubURL
	case SourceLinkedIn:
		return p.LinkedInURL
	default:
		return ""
	}
}

// PortfolioStatus is the aggregation lifecycle.
type PortfolioStatus string

// Portfolio status values.
const (
	PortfolioPending    PortfolioStatus = "pending"
	PortfolioGenerating PortfolioStatus = "generating"
	PortfolioCompleted  PortfolioStatus = "completed"
	PortfolioFailed     PortfolioStatus = "failed"
)

// Portfolio is the aggregated, user-facing output.
type Portfolio struct {
	UserID        string          `json:"userId"`
	Status        PortfolioStatus `json:"status"`
	Error         string          `json:"error,omitempty"`
	Data          *PortfolioData  `json:"data,omitempty"`
	LastGenerated *time.Time      `json:"lastGenerated,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// PortfolioData is the denormalized aggregation result.
type PortfolioData struct {
	Name           string            `json:"name"`
	Headline       string            `json:"headline,omitempty"`
	Bio            string            `json:"bio"`
	Skills         []string          `json:"skills"`
	Projects       []Project         `json:"projects"`
	WorkExperience []Experience      `json:"workExperience"`
	Education      []Education       `json:"education"`
	Achievements   []string          `json:"achievements"`
	Contact        LinkedInContact   `json:"contact"`
	Links          map[string]string `json:"links,omitempty"`
}

// Project is a portfolio entry derived from a repository.
type Project struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Language    string   `json:"language,omitempty"`
	Stars       int      `json:"stars"`
	URL         string   `json:"url"`
	Topics      []string `json:"topics,omitempty"`
}

// GitHubProfile is the normalized output of the API extractor.
type GitHubProfile struct {
	Username   string        `json:"username"`
	Name       string        `json:"name"`
	Bio        string        `json:"bio"`
	Followers  int           `json:"followers"`
	Following  int           `json:"following"`
	TotalRepos int           `json:"totalRepos"`
	Skills     []string      `json:"skills"`
	Languages  []string      `json:"languages"`
	Repos      []RepoSummary `json:"repos"`
}

// RepoSummary is one repository in a GitHubProfile.
type RepoSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Language    string   `json:"language"`
	Stars       int      `json:"stars"`
	URL         string   `json:"url"`
	Topics      []string `json:"topics"`
}

// LinkedInProfile is the normalized output of the browser extractor.
type LinkedInProfile struct {
	Name        string          `json:"name"`
	Headline    string          `json:"headline"`
	Location    string          `json:"location"`
	Summary     string          `json:"summary"`
	Skills      []string        `json:"skills"`
	Education   []Education     `json:"education"`
	Experiences []Experience    `json:"experiences"`
	Contact     LinkedInContact `json:"contact"`
}

// Education is one school entry.
type Education struct {
	School string `json:"school"`
	Degree string `json:"degree"`
	Period string `json:"period"`
}

// Experience is one position entry.
type Experience struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Period      string `json:"period"`
	Description string `json:"description"`
}

// LinkedInContact is best-effort contact info.
type LinkedInContact struct {
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Website string `json:"website,omitempty"`
}

// Extraction is what an extractor hands back to a worker.
// Warnings are recoverable problems that downgrade a job to partial.
type Extraction struct {
	Data     any
	Warnings []string
}

// CrawlMessage is the job payload for both source queues.
type CrawlMessage struct {
	StudentProfileID string `json:"studentProfileId"`
	GitHubURL        string `json:"githubUrl,omitempty"`
	LinkedInURL      string `json:"linkedinUrl,omitempty"`
	CrawlJobID       string `json:"crawlJobId"`
}

// URL returns the location carried for source.
func (m CrawlMessage) URL(source SourceType) string {
	switch source {
	case SourceGitHub:
		return m.GitHubURL
	case SourceLinkedIn:
		return m.LinkedInURL
	default:
		return ""
	}
}

// NewCrawlMessage builds the message for source.
func NewCrawlMessage(source SourceType, profileID, jobID, url string) CrawlMessage {
	msg := CrawlMessage{StudentProfileID: profileID, CrawlJobID: jobID}
	switch source {
	case SourceGitHub:
		msg.GitHubURL = url
	case SourceLinkedIn:
		msg.LinkedInURL = url
	}
	return msg
}

// PortfolioMessage is the aggregation job payload.
type PortfolioMessage struct {
	UserID string `json:"userId"`
}
