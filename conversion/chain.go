package conversion

import (
	"context"
	"time"

	"docbridge/models"

	"github.com/rs/zerolog"
)

// Engine labels stamped on results by the strategy that produced them.
const (
	EngineOfficeService = "office-service"
	EngineSofficeDirect = "soffice-direct"
	EngineExtractor     = "fallback-extractor"
	EngineCache         = "cache"
)

// Strategy is one rung of the conversion ladder: a named converter with its
// own deadline. Convert returns the produced bytes or the reason this rung
// cannot serve the job.
type Strategy struct {
	Name    string
	Timeout time.Duration
	Convert func(ctx context.Context, job *models.ConversionJob) ([]byte, error)
}

// runChain tries each strategy in order and returns the first success along
// with the engine that produced it. A rung failure moves to the next rung;
// the caller's own context ending stops the ladder where it stands. When
// everything fails the ChainError carries every attempt.
func runChain(ctx context.Context, logger zerolog.Logger, job *models.ConversionJob, strategies []Strategy) ([]byte, string, error) {
	attempts := make([]AttemptError, 0, len(strategies))

	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, AttemptError{Strategy: s.Name, Err: err})
			break
		}

		sctx, cancel := context.WithTimeout(ctx, s.Timeout)
		data, err := s.Convert(sctx, job)
		cancel()

		if err == nil {
			return data, s.Name, nil
		}

		logger.Warn().
			Stringer("job_id", job.ID).
			Str("strategy", s.Name).
			Err(err).
			Msg("conversion strategy failed")
		attempts = append(attempts, AttemptError{Strategy: s.Name, Err: err})
	}

	return nil, "", &ChainError{
		Kind:       job.Kind,
		Attempts:   attempts,
		NoFallback: job.Kind == models.KindHTMLToDocx,
	}
}
