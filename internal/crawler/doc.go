// Package crawler defines the domain types and collaborator interfaces shared
// by the profile crawl pipeline: crawl jobs, student profiles, portfolios, the
// queue capability and the browser page capability.
package crawler
