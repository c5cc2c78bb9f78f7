package sqlite

// schema is the full database schema. Statements are idempotent so
// Migrate can run on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS aether_jobs (
  id            TEXT PRIMARY KEY,
  kind          TEXT NOT NULL,
  queue         TEXT NOT NULL,
  payload       BLOB,
  status        TEXT NOT NULL CHECK (status IN ('pending','running','succeeded','failed')),
  phase         TEXT NOT NULL DEFAULT '',
  progress      INTEGER NOT NULL DEFAULT 0,
  total         INTEGER NOT NULL DEFAULT 0,
  completed     INTEGER NOT NULL DEFAULT 0,
  current_item  TEXT NOT NULL DEFAULT '',
  result        BLOB,
  error_kind    TEXT NOT NULL DEFAULT '',
  error_code    TEXT NOT NULL DEFAULT '',
  error_message TEXT NOT NULL DEFAULT '',
  attempt       INTEGER NOT NULL DEFAULT 0,
  max_attempts  INTEGER NOT NULL DEFAULT 3,
  worker_id     TEXT NOT NULL DEFAULT '',
  timeout_ns    INTEGER NOT NULL DEFAULT 0,
  started_at    TEXT,
  finished_at   TEXT,
  created_at    TEXT NOT NULL,
  updated_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_aether_jobs_claim
  ON aether_jobs (status, queue, created_at);

CREATE INDEX IF NOT EXISTS idx_aether_jobs_finished
  ON aether_jobs (status, finished_at);
`
