// Package queue names the work queues and bundles the backends that carry
// crawl and aggregation messages.
package queue

import (
	"errors"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

// Base queue names.
const (
	GitHub    = "github"
	LinkedIn  = "linkedin"
	Portfolio = "portfolio"
)

// Name applies the configured prefix to a base queue name.
func Name(prefix, base string) string {
	if prefix == "" {
		return base
	}
	return prefix + "-" + base
}

// Set holds the three queues the service uses.
type Set struct {
	GitHub    crawler.Queue
	LinkedIn  crawler.Queue
	Portfolio crawler.Queue
}

// ForSource returns the crawl queue for source, or nil.
func (s Set) ForSource(source crawler.SourceType) crawler.Queue {
	switch source {
	case crawler.SourceGitHub:
		return s.GitHub
	case crawler.SourceLinkedIn:
		return s.LinkedIn
	default:
		return nil
	}
}

// Close closes every queue in the set.
func (s Set) Close() error {
	var errs []error
	for _, q := range []crawler.Queue{s.GitHub, s.LinkedIn, s.Portfolio} {
		if q == nil {
			continue
		}
		if err := q.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
