package models

import (
	"time"

	"github.com/google/uuid"
)

// JobKind identifies the direction of a conversion.
type JobKind string

const (
	KindDocxToHTML JobKind = "docx-to-html"
	KindHTMLToDocx JobKind = "html-to-docx"
	KindBatch      JobKind = "batch"
)

// Valid reports whether k is one of the known job kinds.
func (k JobKind) Valid() bool {
	switch k {
	case KindDocxToHTML, KindHTMLToDocx, KindBatch:
		return true
	}
	return false
}

// Priority tiers. Dispatch is FIFO within a tier; lower values dispatch first.
const (
	PriorityHigh   = 0
	PriorityNormal = 1
	PriorityBatch  = 2
)

// ConversionOptions carries the caller-supplied knobs for a single
// conversion. Template and PreserveStyles change the produced bytes and are
// part of the cache key; Filename only names the delivered artifact.
type ConversionOptions struct {
	Template       string `json:"template,omitempty"`
	Filename       string `json:"filename,omitempty"`
	PreserveStyles bool   `json:"preserveStyles,omitempty"`
	// DocumentTTL selects the long cache tier used for first-class stored
	// documents instead of the ad hoc tier.
	DocumentTTL bool `json:"documentTtl,omitempty"`
}

// ConversionJob is one unit of work. The job queue owns it exclusively from
// submission until exactly one terminal resolution is delivered.
type ConversionJob struct {
	ID          uuid.UUID         `json:"id"`
	Kind        JobKind           `json:"kind"`
	Input       []byte            `json:"-"`
	Options     ConversionOptions `json:"options"`
	Priority    int               `json:"priority"`
	SubmittedAt time.Time         `json:"submittedAt"`
}

// NewConversionJob assembles a job with a fresh identity.
func NewConversionJob(kind JobKind, input []byte, opts ConversionOptions, priority int) *ConversionJob {
	return &ConversionJob{
		ID:          uuid.New(),
		Kind:        kind,
		Input:       input,
		Options:     opts,
		Priority:    priority,
		SubmittedAt: time.Now(),
	}
}
