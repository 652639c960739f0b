package models

import (
	"time"

	"github.com/google/uuid"
)

// Batch status labels. Anything other than the two terminal values is a
// free-text phase label such as "converting 3/10" or "assembling archive".
const (
	BatchStatusQueued    = "queued"
	BatchStatusCompleted = "completed"
	BatchStatusFailed    = "failed"
)

// BatchItem is one document to produce within a batch export.
type BatchItem struct {
	HTML     string `json:"html"`
	Template string `json:"template,omitempty"`
	Filename string `json:"filename"`
}

// BatchEntryResult records the outcome of a single batch item. A failed item
// never aborts the batch; it is reported here instead.
type BatchEntryResult struct {
	Filename string `json:"filename"`
	Success  bool   `json:"success"`
	Size     int    `json:"size,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ArchiveInfo locates the combined archive produced by a batch export.
type ArchiveInfo struct {
	Location string `json:"location"`
	Key      string `json:"key"`
	Size     int64  `json:"size"`
}

// BatchResult is the payload exposed once a batch reaches a terminal state.
type BatchResult struct {
	Entries   []BatchEntryResult `json:"entries"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Archive   *ArchiveInfo       `json:"archive,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// BatchJobState is the pollable progress record for one batch. It lives in
// the tracker's short-retention table and is garbage-collected a fixed window
// after reaching a terminal status.
type BatchJobState struct {
	JobID     uuid.UUID    `json:"jobId"`
	Progress  int          `json:"progress"`
	Status    string       `json:"status"`
	Result    *BatchResult `json:"result,omitempty"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Terminal reports whether the batch has finished, successfully or not.
func (s *BatchJobState) Terminal() bool {
	return s.Status == BatchStatusCompleted || s.Status == BatchStatusFailed
}
