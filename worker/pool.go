// Package worker owns the fixed pool of conversion units and the queue of
// jobs awaiting dispatch. A single coordinator goroutine holds every piece
// of mutable state (queues, unit table, in-flight map) and is the only
// writer of job outcomes, which makes exactly-one-resolution structural
// rather than something bookkeeping has to enforce.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"docbridge/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrPoolClosed is returned for submissions after shutdown began.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrJobCanceled resolves a job whose caller asked for cancellation.
	ErrJobCanceled = errors.New("job canceled")
	// ErrWorkerFailure resolves jobs stranded on a crashed unit.
	ErrWorkerFailure = errors.New("worker unit failure")
)

// Executor performs the actual work a unit runs for one job: in production
// the round trip to the office conversion service.
type Executor interface {
	Execute(ctx context.Context, job *models.ConversionJob) (*models.ConversionResult, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, job *models.ConversionJob) (*models.ConversionResult, error)

func (f ExecutorFunc) Execute(ctx context.Context, job *models.ConversionJob) (*models.ConversionResult, error) {
	return f(ctx, job)
}

// Outcome is the single terminal resolution of a submitted job.
type Outcome struct {
	JobID    uuid.UUID
	Result   *models.ConversionResult
	Err      error
	Canceled bool
}

// Stats is a point-in-time snapshot of queue and pool occupancy.
type Stats struct {
	QueueLength      int        `json:"queueLength"`
	ActiveJobs       int        `json:"activeJobs"`
	AvailableWorkers int        `json:"availableWorkers"`
	TotalWorkers     int        `json:"totalWorkers"`
	Units            []UnitInfo `json:"units,omitempty"`
}

// Options configures a pool. Zero values fall back to safe defaults.
type Options struct {
	// Size is the fixed number of worker units.
	Size int
	// JobTimeout bounds a single unit execution.
	JobTimeout time.Duration
}

const (
	defaultSize       = 3
	defaultJobTimeout = 60 * time.Second
)

// pending tracks one submitted job from enqueue to resolution. All fields
// except the buffered out channel are owned by the coordinator.
type pending struct {
	job       *models.ConversionJob
	out       chan Outcome
	jobCtx    context.Context
	cancelJob context.CancelFunc
	canceled  bool
	resolved  bool
}

// Pool dispatches conversion jobs onto a fixed set of worker units.
type Pool struct {
	opts     Options
	executor Executor
	logger   zerolog.Logger

	submitCh chan *pending
	cancelCh chan uuid.UUID
	eventCh  chan unitEvent
	statsCh  chan chan Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewPool starts the coordinator and its units; the pool accepts
// submissions as soon as this returns. Callers must Close it.
func NewPool(opts Options, executor Executor, logger zerolog.Logger) *Pool {
	if opts.Size <= 0 {
		logger.Warn().Int("specified", opts.Size).Int("default", defaultSize).
			Msg("invalid worker count, using default")
		opts.Size = defaultSize
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		opts:     opts,
		executor: executor,
		logger:   logger.With().Str("component", "worker_pool").Logger(),
		submitCh: make(chan *pending),
		cancelCh: make(chan uuid.UUID),
		eventCh:  make(chan unitEvent, opts.Size*2),
		statsCh:  make(chan chan Stats),
		ctx:      ctx,
		cancel:   cancel,
	}

	p.wg.Add(1)
	go p.run()

	return p
}

// Submit enqueues a job and returns the channel its single outcome will
// arrive on. It never blocks on queue capacity; it only fails once the pool
// is shut down or the caller's context ends first.
func (p *Pool) Submit(ctx context.Context, job *models.ConversionJob) (<-chan Outcome, error) {
	pd := &pending{
		job: job,
		out: make(chan Outcome, 1),
	}

	select {
	case p.submitCh <- pd:
		return pd.out, nil
	case <-p.ctx.Done():
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Execute submits the job and waits for its resolution. When the caller's
// context ends first, a cooperative cancel is requested and the terminal
// outcome is still consumed, so no job resolves twice or never.
func (p *Pool) Execute(ctx context.Context, job *models.ConversionJob) (*models.ConversionResult, error) {
	out, err := p.Submit(ctx, job)
	if err != nil {
		return nil, err
	}

	select {
	case o := <-out:
		return o.Result, o.Err
	case <-ctx.Done():
		p.Cancel(job.ID)
		o := <-out
		if o.Err != nil {
			return nil, o.Err
		}
		return o.Result, nil
	}
}

// Cancel requests cooperative cancellation. Queued jobs resolve as canceled
// without running; a running job has its context canceled and resolves once
// its unit reports back.
func (p *Pool) Cancel(jobID uuid.UUID) {
	select {
	case p.cancelCh <- jobID:
	case <-p.ctx.Done():
	}
}

// Stats asks the coordinator for a snapshot.
func (p *Pool) Stats() Stats {
	resp := make(chan Stats, 1)
	select {
	case p.statsCh <- resp:
		return <-resp
	case <-p.ctx.Done():
		return Stats{TotalWorkers: p.opts.Size}
	}
}

// Close stops the pool. Every queued or in-flight job is resolved as failed
// with a shutdown reason before Close returns. Idempotent.
func (p *Pool) Close() {
	p.closeOnce.Do(p.cancel)
	p.wg.Wait()
}

// run is the coordinator loop. It alone touches the queues, the unit table
// and the in-flight map, and it never performs blocking I/O, so dispatch
// keeps flowing no matter how wedged any unit's work is.
func (p *Pool) run() {
	defer p.wg.Done()

	state := &coordinatorState{
		queues: make([][]*pending, models.PriorityBatch+1),
		units:  make([]*unit, p.opts.Size),
		active: make(map[uuid.UUID]*pending),
	}

	for slot := range state.units {
		state.units[slot] = p.startUnit(slot, 0)
	}
	p.logger.Info().Int("units", p.opts.Size).Msg("worker pool started")

	for {
		select {
		case <-p.ctx.Done():
			p.drain(state)
			return

		case pd := <-p.submitCh:
			state.push(pd)
			p.logger.Debug().
				Stringer("job_id", pd.job.ID).
				Str("kind", string(pd.job.Kind)).
				Int("queued", state.queued).
				Msg("job enqueued")
			p.dispatch(state)

		case jobID := <-p.cancelCh:
			p.handleCancel(state, jobID)
			p.dispatch(state)

		case ev := <-p.eventCh:
			p.handleEvent(state, ev)
			p.dispatch(state)

		case resp := <-p.statsCh:
			resp <- state.snapshot()
		}
	}
}

// dispatch pairs head-of-queue jobs with idle units until one side runs out.
func (p *Pool) dispatch(state *coordinatorState) {
	for {
		u := state.firstIdle()
		if u == nil {
			return
		}
		pd := state.pop()
		if pd == nil {
			return
		}

		pd.jobCtx, pd.cancelJob = context.WithTimeout(p.ctx, p.opts.JobTimeout)
		u.state = UnitBusy
		u.current = pd
		state.active[pd.job.ID] = pd

		// The unit is idle with an empty buffer, so this never blocks.
		u.jobCh <- pd

		p.logger.Debug().
			Stringer("job_id", pd.job.ID).
			Int("slot", u.slot).
			Int("gen", u.gen).
			Msg("job dispatched")
	}
}

func (p *Pool) handleCancel(state *coordinatorState, jobID uuid.UUID) {
	if pd, ok := state.active[jobID]; ok {
		pd.canceled = true
		pd.cancelJob()
		p.logger.Info().Stringer("job_id", jobID).Msg("cancel requested for running job")
		return
	}

	if pd := state.findQueued(jobID); pd != nil {
		p.resolve(state, pd, Outcome{JobID: jobID, Err: ErrJobCanceled, Canceled: true})
		p.logger.Info().Stringer("job_id", jobID).Msg("queued job canceled")
	}
}

func (p *Pool) handleEvent(state *coordinatorState, ev unitEvent) {
	u := state.units[ev.slot]
	if u == nil || u.gen != ev.gen {
		// Stale event from a replaced generation; its job was already
		// resolved when the replacement happened.
		p.logger.Warn().Int("slot", ev.slot).Int("gen", ev.gen).Msg("stale unit event ignored")
		return
	}

	if ev.fatal {
		p.replaceUnit(state, u, ev)
		return
	}

	pd := u.current
	u.current = nil
	u.state = UnitIdle

	if pd == nil || pd.job.ID != ev.jobID {
		p.logger.Warn().Stringer("job_id", ev.jobID).Int("slot", ev.slot).
			Msg("completion for unknown job ignored")
		return
	}

	switch {
	case pd.canceled:
		p.resolve(state, pd, Outcome{JobID: ev.jobID, Err: ErrJobCanceled, Canceled: true})
		p.logger.Info().Stringer("job_id", ev.jobID).Msg("job canceled")
	case ev.err != nil:
		p.resolve(state, pd, Outcome{JobID: ev.jobID, Err: ev.err})
		p.logger.Warn().Stringer("job_id", ev.jobID).Err(ev.err).Msg("job failed")
	default:
		p.resolve(state, pd, Outcome{JobID: ev.jobID, Result: ev.result})
		p.logger.Info().
			Stringer("job_id", ev.jobID).
			Int("slot", ev.slot).
			Msg("job completed")
	}
}

// replaceUnit fails the job assigned to a crashed unit and brings a fresh
// unit up in the same slot, restoring the configured pool size within one
// replacement cycle.
func (p *Pool) replaceUnit(state *coordinatorState, u *unit, ev unitEvent) {
	p.logger.Error().
		Int("slot", u.slot).
		Int("gen", u.gen).
		Err(ev.err).
		Msg("worker unit crashed, replacing")

	if pd := u.current; pd != nil {
		if pd.canceled {
			p.resolve(state, pd, Outcome{JobID: pd.job.ID, Err: ErrJobCanceled, Canceled: true})
		} else {
			reason := fmt.Errorf("%w: %v", ErrWorkerFailure, ev.err)
			p.resolve(state, pd, Outcome{JobID: pd.job.ID, Err: reason})
		}
		u.current = nil
	}

	u.state = UnitFailed
	state.units[u.slot] = p.startUnit(u.slot, u.gen+1)
}

// resolve delivers the single terminal outcome for a job and releases its
// resources.
func (p *Pool) resolve(state *coordinatorState, pd *pending, outcome Outcome) {
	if pd.resolved {
		return
	}
	pd.resolved = true

	if pd.cancelJob != nil {
		pd.cancelJob()
	}
	delete(state.active, pd.job.ID)
	if outcome.JobID == uuid.Nil {
		outcome.JobID = pd.job.ID
	}
	pd.out <- outcome
}

// drain resolves every remaining job as failed during shutdown so no caller
// hangs on a pool that is going away.
func (p *Pool) drain(state *coordinatorState) {
	shutdownErr := fmt.Errorf("%w: shutting down", ErrPoolClosed)

	for _, pd := range state.active {
		p.resolve(state, pd, Outcome{JobID: pd.job.ID, Err: shutdownErr})
	}
	for _, tier := range state.queues {
		for _, pd := range tier {
			p.resolve(state, pd, Outcome{JobID: pd.job.ID, Err: shutdownErr})
		}
	}
	for _, u := range state.units {
		u.state = UnitTerminated
	}

	p.logger.Info().Msg("worker pool stopped")
}

// coordinatorState is everything the dispatch loop owns. Nothing outside
// run() may touch it.
type coordinatorState struct {
	queues [][]*pending
	queued int
	units  []*unit
	active map[uuid.UUID]*pending
}

func (s *coordinatorState) push(pd *pending) {
	tier := pd.job.Priority
	if tier < 0 {
		tier = 0
	}
	if tier >= len(s.queues) {
		tier = len(s.queues) - 1
	}
	s.queues[tier] = append(s.queues[tier], pd)
	s.queued++
}

// pop returns the next unresolved job, highest tier first, FIFO within a
// tier. Jobs canceled while queued were resolved in place and are skipped.
func (s *coordinatorState) pop() *pending {
	for tier := range s.queues {
		for len(s.queues[tier]) > 0 {
			pd := s.queues[tier][0]
			s.queues[tier] = s.queues[tier][1:]
			if pd.resolved {
				continue
			}
			s.queued--
			return pd
		}
	}
	return nil
}

func (s *coordinatorState) findQueued(jobID uuid.UUID) *pending {
	for tier := range s.queues {
		for _, pd := range s.queues[tier] {
			if pd.job.ID == jobID && !pd.resolved {
				s.queued--
				return pd
			}
		}
	}
	return nil
}

func (s *coordinatorState) firstIdle() *unit {
	for _, u := range s.units {
		if u.state == UnitIdle {
			return u
		}
	}
	return nil
}

func (s *coordinatorState) snapshot() Stats {
	stats := Stats{
		QueueLength:  s.queued,
		ActiveJobs:   len(s.active),
		TotalWorkers: len(s.units),
		Units:        make([]UnitInfo, 0, len(s.units)),
	}
	for _, u := range s.units {
		if u.state == UnitIdle {
			stats.AvailableWorkers++
		}
		info := UnitInfo{Slot: u.slot, Generation: u.gen, State: u.state}
		if u.current != nil {
			info.JobID = u.current.job.ID.String()
		}
		stats.Units = append(stats.Units, info)
	}
	return stats
}
