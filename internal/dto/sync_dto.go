package dto

import "time"

// SyncGroupResult reports the outcome for one assignment group in a sync run.
type SyncGroupResult struct {
	AssignmentID uint   `json:"assignment_id"`
	ExternalID   string `json:"external_id"`
	Entries      int    `json:"entries"`
	Synced       bool   `json:"synced"`
	Error        string `json:"error,omitempty"`
}

// SyncSummaryResponse is returned after a grade sync run. A failed group
// leaves its entries graded; re-invocation is the only recovery mechanism,
// so the push is at-least-once rather than exactly-once.
type SyncSummaryResponse struct {
	StartedAt     time.Time         `json:"started_at"`
	FinishedAt    time.Time         `json:"finished_at"`
	Pending       int               `json:"pending"`
	EntriesSynced int               `json:"entries_synced"`
	GroupsFailed  int               `json:"groups_failed"`
	Groups        []SyncGroupResult `json:"groups"`
}
