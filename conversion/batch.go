package conversion

import (
	"context"
	"fmt"
	"math"
	"path"
	"strings"
	"sync"
	"time"

	"docbridge/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// archiveProgressCeiling caps conversion progress when an archive follows;
// the remaining span belongs to assembly and upload.
const archiveProgressCeiling = 90

// BatchHandle is returned on batch acceptance; progress is polled by job ID.
type BatchHandle struct {
	JobID     uuid.UUID `json:"jobId"`
	StatusURL string    `json:"statusUrl"`
}

// StartBatch accepts a batch export and runs it on its own goroutine.
// Entries are converted sequentially at batch priority; a failed entry is
// recorded and never aborts the rest.
func (s *Service) StartBatch(items []models.BatchItem, withArchive bool) (*BatchHandle, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}

	jobID := uuid.New()
	s.batches.create(jobID)

	go s.runBatch(jobID, items, withArchive)

	s.logger.Info().
		Stringer("job_id", jobID).
		Int("items", len(items)).
		Bool("archive", withArchive).
		Msg("batch accepted")
	return &BatchHandle{JobID: jobID, StatusURL: "/conversions/batch/" + jobID.String()}, nil
}

// BatchStatus returns the pollable state for a batch job. Records expire a
// fixed retention window after reaching a terminal state.
func (s *Service) BatchStatus(jobID uuid.UUID) (*models.BatchJobState, error) {
	st, ok := s.batches.get(jobID)
	if !ok {
		return nil, ErrUnknownBatch
	}
	return st, nil
}

func (s *Service) runBatch(jobID uuid.UUID, items []models.BatchItem, withArchive bool) {
	total := len(items)
	ceiling := 100
	if withArchive {
		ceiling = archiveProgressCeiling
	}

	result := &models.BatchResult{Entries: make([]models.BatchEntryResult, 0, total)}
	seen := make(map[string]bool, total)

	// Opened on the first successful entry; outputs stream straight into the
	// zip instead of accumulating until the batch ends.
	var archive *archiveWriter

	for i, item := range items {
		s.batches.update(jobID, scaleProgress(i, total, ceiling), fmt.Sprintf("converting %d/%d", i+1, total))

		name := uniqueName(seen, attachmentName(models.ConversionOptions{Filename: item.Filename}))
		opts := models.ConversionOptions{Template: item.Template, Filename: name}

		res, err := s.encodeHTML(context.Background(), item.HTML, opts, models.PriorityBatch)
		if err != nil {
			s.logger.Warn().
				Stringer("job_id", jobID).
				Str("entry", name).
				Err(err).
				Msg("batch entry failed")
			result.Entries = append(result.Entries, models.BatchEntryResult{Filename: name, Error: err.Error()})
			result.Failed++
			continue
		}

		result.Entries = append(result.Entries, models.BatchEntryResult{Filename: name, Success: true, Size: len(res.Data)})
		result.Succeeded++

		if !withArchive {
			continue
		}
		if archive == nil {
			archive, err = newArchiveWriter(s.cfg.ArtifactDir, jobID)
		}
		if err == nil {
			err = archive.add(name, res.Data)
		}
		if err != nil {
			archive.discard()
			s.failBatchArchive(jobID, result, err)
			return
		}
	}

	if result.Succeeded == 0 {
		result.Error = "no documents were converted"
		s.batches.terminal(jobID, models.BatchStatusFailed, result)
		s.logger.Error().Stringer("job_id", jobID).Int("failed", result.Failed).Msg("batch failed")
		return
	}

	if withArchive {
		s.batches.update(jobID, archiveProgressCeiling, "assembling archive")

		info, err := s.sealArchive(jobID, archive)
		if err != nil {
			s.failBatchArchive(jobID, result, err)
			return
		}
		result.Archive = info
	}

	s.batches.terminal(jobID, models.BatchStatusCompleted, result)
	s.logger.Info().
		Stringer("job_id", jobID).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Msg("batch completed")
}

// failBatchArchive seals the batch as failed when the archive cannot be
// produced; per-entry outcomes recorded so far stay visible in the result.
func (s *Service) failBatchArchive(jobID uuid.UUID, result *models.BatchResult, err error) {
	s.logger.Error().Stringer("job_id", jobID).Err(err).Msg("batch archive failed")
	result.Error = fmt.Sprintf("archive assembly failed: %v", err)
	s.batches.terminal(jobID, models.BatchStatusFailed, result)
}

func scaleProgress(done, total, ceiling int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(done) / float64(total) * float64(ceiling)))
}

// uniqueName disambiguates duplicate filenames within one archive.
func uniqueName(seen map[string]bool, name string) string {
	if !seen[name] {
		seen[name] = true
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", base, i, ext)
		if !seen[candidate] {
			seen[candidate] = true
			return candidate
		}
	}
}

// tracker is the in-memory table of batch jobs. Terminal records stay
// pollable for the retention window, then the janitor sweeps them.
type tracker struct {
	mu        sync.RWMutex
	jobs      map[uuid.UUID]*models.BatchJobState
	retention time.Duration
	logger    zerolog.Logger
	done      chan struct{}
	once      sync.Once
}

func newTracker(retention time.Duration, logger zerolog.Logger) *tracker {
	if retention <= 0 {
		retention = time.Hour
	}

	t := &tracker{
		jobs:      make(map[uuid.UUID]*models.BatchJobState),
		retention: retention,
		logger:    logger.With().Str("component", "batch_tracker").Logger(),
		done:      make(chan struct{}),
	}
	go t.janitor()
	return t
}

func (t *tracker) close() {
	t.once.Do(func() { close(t.done) })
}

func (t *tracker) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func (t *tracker) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, st := range t.jobs {
		if st.Terminal() && time.Since(st.UpdatedAt) > t.retention {
			delete(t.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		t.logger.Debug().Int("removed", removed).Msg("expired batch records swept")
	}
}

func (t *tracker) create(jobID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.jobs[jobID] = &models.BatchJobState{
		JobID:     jobID,
		Status:    models.BatchStatusQueued,
		UpdatedAt: time.Now(),
	}
}

// update advances a live record. Progress only moves forward, so pollers
// never see it regress no matter how updates interleave.
func (t *tracker) update(jobID uuid.UUID, progress int, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.jobs[jobID]
	if !ok || st.Terminal() {
		return
	}
	if progress > st.Progress {
		st.Progress = progress
	}
	st.Status = status
	st.UpdatedAt = time.Now()
}

// terminal seals a record; later updates are ignored.
func (t *tracker) terminal(jobID uuid.UUID, status string, result *models.BatchResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.jobs[jobID]
	if !ok || st.Terminal() {
		return
	}
	st.Status = status
	st.Result = result
	if status == models.BatchStatusCompleted {
		st.Progress = 100
	}
	st.UpdatedAt = time.Now()
}

func (t *tracker) get(jobID uuid.UUID) (*models.BatchJobState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.jobs[jobID]
	if !ok {
		return nil, false
	}
	snapshot := *st
	return &snapshot, true
}

func (t *tracker) activeCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, st := range t.jobs {
		if !st.Terminal() {
			n++
		}
	}
	return n
}
