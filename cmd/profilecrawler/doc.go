// Package main hosts the profile crawler service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server accepts GitHub/LinkedIn URLs per user, records them on the student profile and
//     creates one crawl job per source through the dispatcher. Job, profile and portfolio state is readable under /v1.
//   - Queues: three named queues (github, linkedin, portfolio) backed by memory channels, Redis lists or Pub/Sub
//     topics. Deliveries are acked after the job reaches a terminal state and nacked on shutdown.
//   - Workers: the GitHub pool calls the REST API through a rate limiter; a single LinkedIn worker drives the shared
//     authenticated Chrome session. Both run their extractor under a bounded retry chain with per-attempt timeouts.
//   - Join: after each source finishes, the coordinator checks both completion flags and wins an aggregation guard
//     before queuing exactly one portfolio build for the user.
//   - Portfolio: the builder merges skills, projects, experience and achievements and asks the configured language
//     model for a bio, falling back to a template.
//
// Operational notes:
//   - LinkedIn login happens lazily on the first LinkedIn job. A rejected login fails that job and drops
//     the session so the next job logs in again. Screenshots of failures go to the configured blob store.
//   - With the Redis backend, messages left in the processing lists by a crashed process are requeued at startup.
//   - SIGINT/SIGTERM stops the HTTP server, lets workers finish or nack their current message, then closes queues,
//     the browser, the database pool and cloud clients.
//
// Quick checklist:
//   - Configure env vars: PROFILECRAWLER_SERVER_PORT, PROFILECRAWLER_BROWSER_EMAIL/PASSWORD, PROFILECRAWLER_GITHUB_TOKEN,
//     PROFILECRAWLER_QUEUE_BACKEND, PROFILECRAWLER_DATABASE_DSN and PROFILECRAWLER_LLM_PROVIDER/API_KEY as needed. A
//     .env file in the working directory is loaded first.
//   - Run locally: go run ./cmd/profilecrawler -config config.yaml (or rely solely on env overrides).
package main
