package conversion

import (
	"errors"
	"fmt"
	"strings"

	"docbridge/models"
)

var (
	// ErrEmptyInput rejects zero-length document uploads before any
	// strategy runs.
	ErrEmptyInput = errors.New("input document is empty")
	// ErrEmptyHTML rejects encode requests whose markup is blank.
	ErrEmptyHTML = errors.New("input html is empty")
	// ErrNotDocx rejects inputs without the container signature.
	ErrNotDocx = errors.New("input is not a docx document")
	// ErrInputTooLarge rejects inputs over the configured ceiling.
	ErrInputTooLarge = errors.New("input exceeds the size limit")
	// ErrEmptyBatch rejects batch submissions with no items.
	ErrEmptyBatch = errors.New("batch contains no items")
	// ErrUnknownBatch is returned for status polls of expired or never
	// submitted batch jobs.
	ErrUnknownBatch = errors.New("unknown batch job")
)

// AttemptError records one failed rung of the strategy chain.
type AttemptError struct {
	Strategy string
	Err      error
}

func (a AttemptError) Error() string {
	return fmt.Sprintf("%s: %v", a.Strategy, a.Err)
}

func (a AttemptError) Unwrap() error {
	return a.Err
}

// ChainError is the terminal failure of a conversion: every applicable
// strategy was tried and each one failed. Attempts preserve the order they
// were made in.
type ChainError struct {
	Kind     models.JobKind
	Attempts []AttemptError
	// NoFallback marks conversion directions that have no degraded
	// rendition to fall back to.
	NoFallback bool
}

func (e *ChainError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Error())
	}

	msg := fmt.Sprintf("%s conversion failed after %d strategy attempt(s): %s",
		e.Kind, len(e.Attempts), strings.Join(parts, "; "))
	if e.NoFallback {
		msg += " (no fallback rendition exists for this conversion)"
	}
	return msg
}

// Unwrap exposes every attempt so errors.Is can match causes such as
// context.DeadlineExceeded from any rung.
func (e *ChainError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a
	}
	return errs
}
