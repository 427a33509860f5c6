package logging

import "time"

// #region provenance-entry
// ProvenanceEntry is a single row in the provenance_log table: one recorded
// decision made while producing an analysis run.
type ProvenanceEntry struct {
	RunID      string
	Stage      string // "encode" | "forward" | "rollout" | "paths" | "lens" | "occlusion" | "persist"
	Decision   string // "ok" | "skipped" | "aborted" | "failed"
	Reason     string
	DetailJSON string
	CreatedAt  time.Time
}

// #endregion provenance-entry
