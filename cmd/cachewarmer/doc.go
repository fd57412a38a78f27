// Package main hosts the cache warmer entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, readiness, metrics and the /v1/warm control endpoints. Every
//     control call carries the API key plus a short-lived action token fetched from /v1/warm/token.
//   - Run state: a single run record (config plus cursor, counters and flags) lives in the configured RunStore
//     (memory, JSON file, Redis or Postgres). Every change is a read-modify-write through RunStore.Update.
//   - Ticks: the in-process scheduler delivers ticks to warmer.Stepper. One tick fetches one batch of published
//     items above the cursor, requests each URL through the Colly fetcher, persists progress after every item and
//     schedules the next tick. Stop requests are observed between batches.
//   - Content: items come from an in-memory list, a Postgres table or a sitemap. IDs must be positive and ordered.
//   - Completion: a finished run fans out to listeners (log line, Pub/Sub message, JSON report in local or GCS
//     storage).
//
// Operational notes:
//   - A process restart resumes an active run from its cursor. The default resume is inclusive: the item at the
//     cursor is requested again by the next batch; set warmer.exclusive_resume to skip it.
//   - "cachewarmer run" drives one run in the foreground; interrupt it and use --resume to continue.
//   - Configure with a file (--config) or WARMER_* environment variables, e.g. WARMER_STATE_BACKEND=redis.
package main
