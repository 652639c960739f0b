// Package conversion implements the document pipeline: validation, the
// content-addressed cache, the strategy chain with its fallbacks, and batch
// exports. It is the single entry point everything above it talks to.
package conversion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"docbridge/cache"
	"docbridge/config"
	"docbridge/extract"
	"docbridge/models"
	"docbridge/services"
	"docbridge/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	// Successful decodes with less visible text than this are logged as
	// suspicious. Advisory only; short documents are legitimate.
	qualityWarnBytes = 64
)

var docxMagic = []byte{'P', 'K', 0x03, 0x04}

// Deps are the collaborators a Service needs. Soffice and History may be
// nil; the pipeline runs without them.
type Deps struct {
	Cache     cache.Store
	Pool      *worker.Pool
	Office    *services.OfficeService
	Soffice   *services.SofficeRunner
	Artifacts services.ArtifactStore
	History   *services.HistoryService
}

// Service is the conversion pipeline facade.
type Service struct {
	cfg     *config.Config
	cache   cache.Store
	pool    *worker.Pool
	office  *services.OfficeService
	soffice *services.SofficeRunner
	store   services.ArtifactStore
	history *services.HistoryService
	batches *tracker
	logger  zerolog.Logger
}

// NewService wires the pipeline together and starts the batch janitor.
func NewService(cfg *config.Config, deps Deps, logger zerolog.Logger) *Service {
	return &Service{
		cfg:     cfg,
		cache:   deps.Cache,
		pool:    deps.Pool,
		office:  deps.Office,
		soffice: deps.Soffice,
		store:   deps.Artifacts,
		history: deps.History,
		batches: newTracker(cfg.BatchRetention, logger),
		logger:  logger.With().Str("component", "conversion").Logger(),
	}
}

// Close stops the batch janitor. The pool, cache and history services are
// owned by the caller and closed separately.
func (s *Service) Close() {
	s.batches.close()
}

// OfficeExecutor adapts the office client to the worker pool contract: one
// unit execution is one service round trip for the job's kind.
func OfficeExecutor(office *services.OfficeService) worker.ExecutorFunc {
	return func(ctx context.Context, job *models.ConversionJob) (*models.ConversionResult, error) {
		switch job.Kind {
		case models.KindDocxToHTML:
			data, err := office.DocxToHTML(ctx, job.Input, job.Options.Filename)
			if err != nil {
				return nil, err
			}
			return &models.ConversionResult{Success: true, Data: data}, nil
		case models.KindHTMLToDocx:
			data, err := office.HTMLToDocx(ctx, string(job.Input), job.Options.Template)
			if err != nil {
				return nil, err
			}
			return &models.ConversionResult{Success: true, Data: data}, nil
		default:
			return nil, fmt.Errorf("unsupported job kind %q", job.Kind)
		}
	}
}

// DecodeDocx converts a binary document to HTML. Validation failures return
// a nil result; a conversion failure returns the failure envelope alongside
// the error so callers serving the wire contract can still serialize it.
func (s *Service) DecodeDocx(ctx context.Context, input []byte, opts models.ConversionOptions) (*models.ConversionResult, error) {
	if err := validateDocx(input, s.cfg.MaxInputBytes); err != nil {
		return nil, err
	}

	job := models.NewConversionJob(models.KindDocxToHTML, input, opts, models.PriorityNormal)
	return s.convert(ctx, job, s.decodeStrategies(), s.ttlFor(opts), contentTypeHTML, "inline")
}

// EncodeHTML converts markup to a binary document. There is no degraded
// rendition on this path; when the office service cannot produce the
// document the conversion fails outright.
func (s *Service) EncodeHTML(ctx context.Context, html string, opts models.ConversionOptions) (*models.ConversionResult, error) {
	return s.encodeHTML(ctx, html, opts, models.PriorityNormal)
}

func (s *Service) encodeHTML(ctx context.Context, html string, opts models.ConversionOptions, priority int) (*models.ConversionResult, error) {
	if err := validateHTML(html, s.cfg.MaxInputBytes); err != nil {
		return nil, err
	}

	opts.Template = s.resolveTemplate(opts.Template)
	job := models.NewConversionJob(models.KindHTMLToDocx, []byte(html), opts, priority)
	disposition := fmt.Sprintf("attachment; filename=%q", attachmentName(opts))
	return s.convert(ctx, job, s.encodeStrategies(), s.ttlFor(opts), contentTypeDocx, disposition)
}

// DecodeStored fetches a first-class stored document from the artifact store
// and decodes it on the long cache tier ahead of interactive work.
func (s *Service) DecodeStored(ctx context.Context, key string, opts models.ConversionOptions) (*models.ConversionResult, error) {
	input, err := s.store.FetchDocument(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetch stored document %q: %w", key, err)
	}

	if err := validateDocx(input, s.cfg.MaxInputBytes); err != nil {
		return nil, err
	}

	opts.DocumentTTL = true
	job := models.NewConversionJob(models.KindDocxToHTML, input, opts, models.PriorityHigh)
	return s.convert(ctx, job, s.decodeStrategies(), s.cfg.DocumentCacheTTL, contentTypeHTML, "inline")
}

// InvalidateCache drops every cached conversion and reports how many.
func (s *Service) InvalidateCache(ctx context.Context) (int, error) {
	return s.cache.Clear(ctx)
}

// Health reports the live state of every pipeline dependency. The pipeline
// is degraded, not down, when the office service is unreachable; decode
// still works through the fallbacks.
type Health struct {
	Status        string       `json:"status"`
	OfficeService bool         `json:"officeService"`
	SofficeDirect bool         `json:"sofficeDirect"`
	Cache         cache.Stats  `json:"cache"`
	Pool          worker.Stats `json:"pool"`
	ActiveBatches int          `json:"activeBatches"`
}

func (s *Service) Health(ctx context.Context) Health {
	h := Health{
		Status:        "ok",
		SofficeDirect: s.soffice != nil && s.soffice.Available(),
		Cache:         s.cache.Stats(ctx),
		Pool:          s.pool.Stats(),
		ActiveBatches: s.batches.activeCount(),
	}

	if err := s.office.Healthy(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("office service health check failed")
		h.Status = "degraded"
	} else {
		h.OfficeService = true
	}
	return h
}

// convert runs the shared pipeline for one job: cache lookup, the strategy
// chain, then cache write and history. Cache trouble never fails a job.
func (s *Service) convert(ctx context.Context, job *models.ConversionJob, strategies []Strategy, ttl time.Duration, contentType, disposition string) (*models.ConversionResult, error) {
	start := time.Now()
	hash := cache.ContentHash(job.Input, job.Kind, job.Options)

	if data, err := s.cache.Get(ctx, hash); err == nil {
		s.logger.Info().
			Stringer("job_id", job.ID).
			Str("kind", string(job.Kind)).
			Str("hash", hash).
			Msg("cache hit")
		hit := &models.ConversionResult{
			Success:     true,
			Data:        data,
			ContentHash: hash,
			Cached:      true,
			Metadata: models.ResultMetadata{
				OriginalSize:  len(job.Input),
				ConvertedSize: len(data),
				DurationMS:    time.Since(start).Milliseconds(),
				Engine:        EngineCache,
				ContentType:   contentType,
				Disposition:   disposition,
			},
		}
		s.recordHistory(ctx, job, hit)
		return hit, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn().Err(err).Str("hash", hash).Msg("cache read failed, converting anyway")
	}

	data, engine, err := runChain(ctx, s.logger, job, strategies)
	if err != nil {
		failed := models.FailedResult(hash, len(job.Input), err.Error())
		s.recordHistory(ctx, job, failed)
		return failed, err
	}

	result := &models.ConversionResult{
		Success:     true,
		Data:        data,
		ContentHash: hash,
		Metadata: models.ResultMetadata{
			OriginalSize:  len(job.Input),
			ConvertedSize: len(data),
			DurationMS:    time.Since(start).Milliseconds(),
			Engine:        engine,
			ContentType:   contentType,
			Disposition:   disposition,
		},
	}

	if job.Kind == models.KindDocxToHTML {
		s.checkQuality(job.ID, engine, data)
	}

	if err := s.cache.Set(ctx, hash, data, ttl); err != nil {
		s.logger.Warn().Err(err).Str("hash", hash).Msg("cache write failed")
	}
	s.recordHistory(ctx, job, result)

	s.logger.Info().
		Stringer("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Str("engine", engine).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(start)).
		Msg("conversion completed")
	return result, nil
}

// decodeStrategies is the decode ladder: pooled service call, then a direct
// subprocess, then the in-process extractor. Availability of the direct
// converter is checked at call time so a binary installed later is picked
// up without a restart.
func (s *Service) decodeStrategies() []Strategy {
	return []Strategy{
		{Name: EngineOfficeService, Timeout: s.cfg.ServiceTimeout, Convert: s.viaPool},
		{Name: EngineSofficeDirect, Timeout: s.cfg.DirectTimeout, Convert: s.viaDirect},
		{Name: EngineExtractor, Timeout: s.cfg.ExtractTimeout, Convert: s.viaExtract},
	}
}

func (s *Service) encodeStrategies() []Strategy {
	return []Strategy{
		{Name: EngineOfficeService, Timeout: s.cfg.ServiceTimeout, Convert: s.viaPool},
	}
}

func (s *Service) viaPool(ctx context.Context, job *models.ConversionJob) ([]byte, error) {
	result, err := s.pool.Execute(ctx, job)
	if err != nil {
		return nil, err
	}
	if result == nil || len(result.Data) == 0 {
		return nil, errors.New("office service returned an empty document")
	}
	return result.Data, nil
}

func (s *Service) viaDirect(ctx context.Context, job *models.ConversionJob) ([]byte, error) {
	if s.soffice == nil {
		return nil, errors.New("direct converter not configured")
	}
	if !s.soffice.Available() {
		return nil, errors.New("soffice binary not found")
	}

	data, err := s.soffice.DocxToHTML(ctx, job.Input)
	if err != nil {
		return nil, err
	}
	// The office service styles its own output; raw subprocess output only
	// gets the same treatment when the caller asked for it.
	if job.Options.PreserveStyles {
		data = enhanceHTML(data)
	}
	return data, nil
}

func (s *Service) viaExtract(ctx context.Context, job *models.ConversionJob) ([]byte, error) {
	out, err := extract.ToHTML(ctx, job.Input)
	if err != nil {
		return nil, err
	}
	if out.Degraded {
		s.logger.Warn().Stringer("job_id", job.ID).Msg("extractor used degraded rendering")
	}
	return []byte(out.HTML), nil
}

// resolveTemplate pre-flights the named encode template when a template
// directory is mounted locally. A missing file degrades to the converter's
// default rather than failing the job, the same way the converter's own
// lookup behaves. Without a local template directory the name passes through
// untouched.
func (s *Service) resolveTemplate(name string) string {
	if name == "" || name == "default" {
		return ""
	}
	if s.cfg.TemplateDir == "" {
		return name
	}

	p := filepath.Join(s.cfg.TemplateDir, name+".dotx")
	if _, err := os.Stat(p); err != nil {
		s.logger.Warn().Str("template", name).Str("path", p).Msg("template not found, using default")
		return ""
	}
	return name
}

func (s *Service) ttlFor(opts models.ConversionOptions) time.Duration {
	if opts.DocumentTTL {
		return s.cfg.DocumentCacheTTL
	}
	return s.cfg.CacheTTL
}

func (s *Service) recordHistory(ctx context.Context, job *models.ConversionJob, result *models.ConversionResult) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(ctx, job.ID, job.Kind, result); err != nil {
		s.logger.Warn().Err(err).Stringer("job_id", job.ID).Msg("history record failed")
	}
}

// checkQuality warns when a decode produced almost no visible text, which
// usually means the source document was scanned images or the converter
// silently dropped the body. Advisory only.
func (s *Service) checkQuality(jobID uuid.UUID, engine string, html []byte) {
	if n := visibleTextLen(html); n < qualityWarnBytes {
		s.logger.Warn().
			Stringer("job_id", jobID).
			Str("engine", engine).
			Int("text_bytes", n).
			Msg("converted document contains almost no text")
	}
}

// visibleTextLen counts bytes outside markup tags, enough precision for the
// quality heuristic without parsing.
func visibleTextLen(html []byte) int {
	n, inTag := 0, false
	for _, b := range html {
		switch {
		case b == '<':
			inTag = true
		case b == '>':
			inTag = false
		case !inTag && b != ' ' && b != '\n' && b != '\t' && b != '\r':
			n++
		}
	}
	return n
}

func validateDocx(input []byte, limit int) error {
	if len(input) == 0 {
		return ErrEmptyInput
	}
	if limit > 0 && len(input) > limit {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrInputTooLarge, len(input), limit)
	}
	if !bytes.HasPrefix(input, docxMagic) {
		return ErrNotDocx
	}
	return nil
}

func validateHTML(html string, limit int) error {
	if strings.TrimSpace(html) == "" {
		return ErrEmptyHTML
	}
	if limit > 0 && len(html) > limit {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrInputTooLarge, len(html), limit)
	}
	return nil
}

// attachmentName resolves the download filename for an encoded document.
// Caller-supplied names are reduced to their base name; path separators
// never reach dispositions or archive entries.
func attachmentName(opts models.ConversionOptions) string {
	name := strings.TrimSpace(opts.Filename)
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "" || name == "." || name == ".." || name == "/" {
		name = "document"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".docx") {
		name += ".docx"
	}
	return name
}
