package worker

import (
	"fmt"

	"docbridge/models"

	"github.com/google/uuid"
)

// UnitState describes where a worker unit is in its lifecycle.
type UnitState string

const (
	UnitIdle UnitState = "idle"
	UnitBusy UnitState = "busy"
	// UnitFailed marks a unit whose executor crashed; the slot is handed to
	// a replacement in the same coordinator step.
	UnitFailed     UnitState = "failed"
	UnitTerminated UnitState = "terminated"
)

// UnitInfo is the externally visible view of one unit slot.
type UnitInfo struct {
	Slot       int       `json:"slot"`
	Generation int       `json:"generation"`
	State      UnitState `json:"state"`
	JobID      string    `json:"jobId,omitempty"`
}

// unit is one execution slot. The coordinator owns state and current; the
// unit goroutine only receives from jobCh and sends events.
type unit struct {
	slot    int
	gen     int
	state   UnitState
	jobCh   chan *pending
	current *pending
}

// unitEvent is how a unit reports back to the coordinator. fatal means the
// unit goroutine is gone and the slot needs a replacement.
type unitEvent struct {
	slot   int
	gen    int
	jobID  uuid.UUID
	result *models.ConversionResult
	err    error
	fatal  bool
}

func (p *Pool) startUnit(slot, gen int) *unit {
	u := &unit{
		slot:  slot,
		gen:   gen,
		state: UnitIdle,
		jobCh: make(chan *pending, 1),
	}

	p.wg.Add(1)
	go p.runUnit(u)

	p.logger.Debug().Int("slot", slot).Int("gen", gen).Msg("worker unit started")
	return u
}

// runUnit is the unit goroutine: take a job, run it, report, repeat. A
// panic in the executor ends this goroutine after a fatal event; the
// coordinator starts a successor in the same slot.
func (p *Pool) runUnit(u *unit) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case pd := <-u.jobCh:
			if fatal := p.executeOnUnit(u, pd); fatal {
				return
			}
		}
	}
}

// executeOnUnit runs one job and reports the outcome. The returned flag is
// true when the executor panicked and the unit must not take further work.
func (p *Pool) executeOnUnit(u *unit, pd *pending) (fatal bool) {
	defer func() {
		if r := recover(); r != nil {
			fatal = true
			p.sendEvent(unitEvent{
				slot:  u.slot,
				gen:   u.gen,
				jobID: pd.job.ID,
				err:   fmt.Errorf("panic: %v", r),
				fatal: true,
			})
		}
	}()

	result, err := p.executor.Execute(pd.jobCtx, pd.job)

	ev := unitEvent{slot: u.slot, gen: u.gen, jobID: pd.job.ID, err: err}
	if err == nil {
		ev.result = result
	}
	p.sendEvent(ev)
	return false
}

// sendEvent delivers to the coordinator unless shutdown already started, in
// which case drain has resolved every job and the event is moot.
func (p *Pool) sendEvent(ev unitEvent) {
	select {
	case p.eventCh <- ev:
	case <-p.ctx.Done():
	}
}
