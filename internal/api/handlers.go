package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
	"github.com/JakeFAU/profile-crawler/internal/dispatcher"
)

type crawlRequest struct {
	GitHubURL   string `json:"githubUrl"`
	LinkedInURL string `json:"linkedinUrl"`
}

type crawlResponse struct {
	Message string             `json:"message"`
	Jobs    []crawler.CrawlJob `json:"jobs"`
}

type portfolioResponse struct {
	Status        crawler.PortfolioStatus `json:"status"`
	Message       string                  `json:"message,omitempty"`
	Error         string                  `json:"error,omitempty"`
	Data          *crawler.PortfolioData  `json:"data,omitempty"`
	LastGenerated *time.Time              `json:"lastGenerated,omitempty"`
}

func (s *Server) submitCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	jobs, err := s.submitter.Submit(r.Context(), dispatcher.SubmitRequest{
		UserID:      chi.URLParam(r, "user_id"),
		GitHubURL:   req.GitHubURL,
		LinkedInURL: req.LinkedInURL,
	})
	if err != nil {
		s.writeStoreError(w, r, err, "failed to submit crawl")
		return
	}
	writeJSON(w, http.StatusAccepted, crawlResponse{Message: "Crawl jobs submitted successfully", Jobs: jobs})
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.profiles.GetProfile(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		s.writeStoreError(w, r, err, "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	profile, err := s.profiles.GetProfile(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		s.writeStoreError(w, r, err, "failed to load profile")
		return
	}
	jobs, err := s.jobs.ListJobsByProfile(r.Context(), profile.ID)
	if err != nil {
		s.writeStoreError(w, r, err, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetJob(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.writeStoreError(w, r, err, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) getPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolio, err := s.portfolios.GetPortfolio(r.Context(), chi.URLParam(r, "user_id"))
	if errors.Is(err, crawler.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "Portfolio not found",
			"message": "Portfolio has not been generated yet. Submit GitHub/LinkedIn URLs and wait for crawling to complete.",
		})
		return
	}
	if err != nil {
		s.writeStoreError(w, r, err, "failed to fetch portfolio")
		return
	}
	switch portfolio.Status {
	case crawler.PortfolioFailed:
		writeJSON(w, http.StatusInternalServerError, portfolioResponse{
			Status:  portfolio.Status,
			Error:   portfolio.Error,
			Message: "Portfolio generation failed. Please try again.",
		})
	case crawler.PortfolioPending, crawler.PortfolioGenerating:
		writeJSON(w, http.StatusAccepted, portfolioResponse{
			Status:        portfolio.Status,
			Message:       "Portfolio is being generated. Please check back shortly.",
			LastGenerated: portfolio.LastGenerated,
		})
	default:
		writeJSON(w, http.StatusOK, portfolioResponse{
			Status:        portfolio.Status,
			Data:          portfolio.Data,
			LastGenerated: portfolio.LastGenerated,
		})
	}
}

func (s *Server) getPortfolioStatus(w http.ResponseWriter, r *http.Request) {
	portfolio, err := s.portfolios.GetPortfolio(r.Context(), chi.URLParam(r, "user_id"))
	if errors.Is(err, crawler.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_found"})
		return
	}
	if err != nil {
		s.writeStoreError(w, r, err, "failed to check portfolio status")
		return
	}
	writeJSON(w, http.StatusOK, portfolioResponse{
		Status:        portfolio.Status,
		Error:         portfolio.Error,
		LastGenerated: portfolio.LastGenerated,
	})
}

func (s *Server) regeneratePortfolio(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.submitter.Regenerate(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		s.writeStoreError(w, r, err, "failed to trigger portfolio regeneration")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Portfolio regeneration started. Check status for updates.",
		"status":  string(crawler.PortfolioPending),
		"outcome": string(outcome),
	})
}

// writeStoreError maps domain errors onto status codes; anything unexpected
// is logged and reported as a 500 with msg.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, crawler.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, crawler.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		s.logger.Error(msg,
			zap.String("request_id", requestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, msg)
	}
}
