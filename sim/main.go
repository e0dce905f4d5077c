// Package sim drives a tal.System from several goroutines: controllers, the step loop, and viewers.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"nyiyui.ca/hato/senro/journal"
	"nyiyui.ca/hato/senro/notify"
	"nyiyui.ca/hato/senro/tal"
	"nyiyui.ca/hato/senro/tal/layout"
)

// DefaultSegments is the number of occupancy segments per branch in published snapshots.
const DefaultSegments = 10

// Event is published after every step and switch change.
type Event struct {
	Run      uuid.UUID    `json:"run"`
	Kind     journal.Kind `json:"kind"`
	Snapshot tal.Snapshot `json:"snapshot"`
	Errors   []string     `json:"errors,omitempty"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s step %d (%d errors)", e.Kind, e.Snapshot.Steps, len(e.Errors))
}

type Conf struct {
	System *tal.System
	// Journal is optional.
	Journal *journal.Journal
	// Segments is the number of occupancy segments in published snapshots (DefaultSegments if 0).
	Segments int
}

type Simulation struct {
	Comment string
	run     uuid.UUID
	lock    sync.Mutex
	// publishLock is taken before lock is released, so changes are journalled
	// and sent in the order they were made.
	publishLock sync.Mutex
	s           *tal.System
	j           *journal.Journal
	segments    int
	events      *notify.Multiplexer[Event]
	eventsS     *notify.MultiplexerSender[Event]
}

func New(comment string, conf Conf) *Simulation {
	s := &Simulation{
		Comment:  comment,
		run:      uuid.New(),
		s:        conf.System,
		j:        conf.Journal,
		segments: conf.Segments,
	}
	if s.j != nil {
		s.run = s.j.Run()
	}
	if s.segments == 0 {
		s.segments = DefaultSegments
	}
	s.eventsS, s.events = notify.NewMultiplexerSender[Event](comment)
	return s
}

// ID identifies this run. It is the journal's run if there is one.
func (s *Simulation) ID() uuid.UUID { return s.run }

func (s *Simulation) Events() *notify.Multiplexer[Event] { return s.events }

// Journal returns the journal, or nil if there isn't one.
func (s *Simulation) Journal() *journal.Journal { return s.j }

// Snapshot copies the current state, with segments occupancy segments per branch.
func (s *Simulation) Snapshot(segments int) tal.Snapshot {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.s.Snapshot(segments)
}

// Step steps the System by dt. The snapshot is taken after the step, whether it failed or not.
func (s *Simulation) Step(dt float64) (tal.Snapshot, error) {
	s.lock.Lock()
	err := s.s.Step(dt)
	if errors.Is(err, tal.ErrInvalidDuration) {
		s.lock.Unlock()
		return tal.Snapshot{}, err
	}
	snap := s.s.Snapshot(s.segments)
	s.publishLock.Lock()
	s.lock.Unlock()
	defer s.publishLock.Unlock()
	s.publish(journal.Record{
		Kind:    journal.KindStep,
		Step:    snap.Steps,
		Elapsed: snap.Elapsed,
		Dt:      dt,
	}, snap, err)
	return snap, err
}

// SetSwitch throws a switch. If it fails, nothing is changed, recorded, or published.
func (s *Simulation) SetSwitch(tag string, state layout.SwitchState) (tal.Snapshot, error) {
	s.lock.Lock()
	err := s.s.SetSwitchState(tag, state)
	if err != nil {
		s.lock.Unlock()
		return tal.Snapshot{}, err
	}
	snap := s.s.Snapshot(s.segments)
	s.publishLock.Lock()
	s.lock.Unlock()
	defer s.publishLock.Unlock()
	s.publish(journal.Record{
		Kind:    journal.KindSwitch,
		Step:    snap.Steps,
		Elapsed: snap.Elapsed,
		Switch:  tag,
		State:   bool(state),
	}, snap, nil)
	return snap, nil
}

func errorStrings(err error) []string {
	errs := multierr.Errors(err)
	if len(errs) == 0 {
		return nil
	}
	ss := make([]string, len(errs))
	for i, err := range errs {
		ss[i] = err.Error()
	}
	return ss
}

// publish must be called with publishLock held.
func (s *Simulation) publish(r journal.Record, snap tal.Snapshot, err error) {
	r.Errors = errorStrings(err)
	if s.j != nil {
		if _, err := s.j.Record(r); err != nil {
			zap.S().Errorw("journal", "sim", s.Comment, "error", err)
		}
	}
	s.eventsS.Send(Event{
		Run:      s.run,
		Kind:     r.Kind,
		Snapshot: snap,
		Errors:   r.Errors,
	})
}

// IsConflict reports whether err (from Step) has a derailment or collision.
func IsConflict(err error) bool {
	return len(tal.Derailments(err)) > 0 || len(tal.Collisions(err)) > 0
}

type RunConf struct {
	Dt float64
	// Interval between steps. If 0, steps are taken back to back.
	Interval time.Duration
	// Steps to take before returning. If 0, run until ctx is done.
	Steps int
	// StopOnConflict makes Run return the first derailment or collision.
	StopOnConflict bool
}

// Run steps the simulation until ctx is done or conf.Steps steps are taken.
func (s *Simulation) Run(ctx context.Context, conf RunConf) error {
	var tick <-chan time.Time
	if conf.Interval > 0 {
		ticker := time.NewTicker(conf.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for stepI := 0; conf.Steps == 0 || stepI < conf.Steps; stepI++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		_, err := s.Step(conf.Dt)
		if errors.Is(err, tal.ErrInvalidDuration) {
			return err
		}
		if err != nil {
			zap.S().Warnw("conflict", "sim", s.Comment, "step", stepI, "error", err)
			if conf.StopOnConflict && IsConflict(err) {
				return fmt.Errorf("step %d: %w", stepI, err)
			}
		}
	}
	return nil
}

// LogEvents logs every event at debug level until ctx is done.
func (s *Simulation) LogEvents(ctx context.Context) {
	ch := make(chan Event)
	s.events.Subscribe("logEvents", ch)
	defer s.events.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			zap.S().Debugw("event", "sim", s.Comment, "event", ev.String())
		}
	}
}
